package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	xdraw "golang.org/x/image/draw"
)

type CropperConfig struct {
	// Margin grows the face box on every side, as a fraction of its size.
	Margin  float64
	MaxSize int
	Quality int
}

// Cropper cuts the face region out of a frame and encodes it as JPEG.
type Cropper struct {
	margin  float64
	maxSize int
	quality int
}

func NewCropper(cfg CropperConfig) *Cropper {
	if cfg.Margin == 0 {
		cfg.Margin = 0.2
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 400
	}
	if cfg.Quality == 0 {
		cfg.Quality = 90
	}
	return &Cropper{
		margin:  cfg.Margin,
		maxSize: cfg.MaxSize,
		quality: cfg.Quality,
	}
}

func (c *Cropper) Crop(frame liveness.Frame, box liveness.Box) ([]byte, error) {
	img, err := FrameImage(frame)
	if err != nil {
		return nil, err
	}

	rect := expandBox(box, c.margin).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("face box %+v outside frame", box)
	}

	src := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Draw(src, src.Bounds(), img, rect.Min, xdraw.Src)

	return encodeJPEG(resizeToFit(src, c.maxSize, c.maxSize), c.quality)
}

func expandBox(box liveness.Box, margin float64) image.Rectangle {
	dx := box.Width * margin
	dy := box.Height * margin
	return image.Rect(
		int(math.Floor(box.X-dx)),
		int(math.Floor(box.Y-dy)),
		int(math.Ceil(box.X+box.Width+dx)),
		int(math.Ceil(box.Y+box.Height+dy)),
	)
}

func resizeToFit(src image.Image, maxW, maxH int) image.Image {
	bw := src.Bounds().Dx()
	bh := src.Bounds().Dy()

	scale := math.Min(float64(maxW)/float64(bw), float64(maxH)/float64(bh))
	if scale >= 1.0 {
		return src
	}
	w := int(math.Max(1, math.Round(float64(bw)*scale)))
	h := int(math.Max(1, math.Round(float64(bh)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// FrameImage returns the decoded image of a frame, decoding its JPEG bytes
// when no image is attached.
func FrameImage(frame liveness.Frame) (image.Image, error) {
	if frame.Image != nil {
		return frame.Image, nil
	}
	if len(frame.Data) == 0 {
		return nil, ErrEmptyFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}

// EncodeFrame returns the frame as JPEG bytes, reusing the encoded bytes
// when the frame already carries them.
func EncodeFrame(frame liveness.Frame) ([]byte, error) {
	if len(frame.Data) > 0 {
		return frame.Data, nil
	}
	if frame.Image == nil {
		return nil, ErrEmptyFrame
	}
	return encodeJPEG(frame.Image, 85)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
