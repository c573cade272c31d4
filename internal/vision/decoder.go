package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/vp8"
)

var (
	ErrEmptyFrame       = errors.New("empty frame data")
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum dimensions")
)

// maxFrameSide bounds the width and height of decoded frames.
const maxFrameSide = 4096

// VPXDecoder turns VP8 keyframes into images. The x/image decoder has no
// interframe support, so every other frame yields ErrNotKeyFrame and the
// capturer asks the sender for a fresh keyframe.
type VPXDecoder struct {
	mu      sync.Mutex
	decoder *vp8.Decoder
}

func NewVPXDecoder() *VPXDecoder {
	return &VPXDecoder{decoder: vp8.NewDecoder()}
}

func (d *VPXDecoder) Decode(data []byte, mimeType string) (image.Image, error) {
	switch {
	case len(data) == 0:
		return nil, ErrEmptyFrame
	case mimeType != MimeTypeVP8:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mimeType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.decoder.Init(bytes.NewReader(data), len(data))
	header, err := d.decoder.DecodeFrameHeader()
	if err != nil {
		return nil, fmt.Errorf("vp8 header: %w", err)
	}
	if !header.KeyFrame {
		return nil, ErrNotKeyFrame
	}
	if header.Width <= 0 || header.Height <= 0 {
		return nil, fmt.Errorf("vp8 header: invalid size %dx%d", header.Width, header.Height)
	}
	if header.Width > maxFrameSide || header.Height > maxFrameSide {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, header.Width, header.Height)
	}

	img, err := d.decoder.DecodeFrame()
	if err != nil {
		return nil, fmt.Errorf("vp8 frame: %w", err)
	}
	return img, nil
}

func (d *VPXDecoder) Close() error { return nil }
