package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

const (
	MimeTypeVP8  = "video/VP8"
	MimeTypeVP9  = "video/VP9"
	MimeTypeH264 = "video/H264"
)

var ErrNotKeyFrame = errors.New("not a keyframe")

type VideoDecoder interface {
	Decode(data []byte, mimeType string) (image.Image, error)
	Close() error
}

// FrameSink receives every captured frame in capture order.
type FrameSink func(frame liveness.Frame)

type CapturerConfig struct {
	SessionID   string
	Decoder     VideoDecoder
	Sink        FrameSink
	CaptureRate time.Duration
	// KeyFrameRequest is called when the decoder needs a fresh keyframe,
	// at most once per CaptureRate.
	KeyFrameRequest func()
	Logger          *slog.Logger
	Now             func() time.Time
}

// FrameCapturer turns RTP video packets or JPEG images into liveness frames
// at a bounded rate.
type FrameCapturer struct {
	sessionID       string
	logger          *slog.Logger
	captureRate     time.Duration
	decoder         VideoDecoder
	sink            FrameSink
	keyFrameRequest func()
	now             func() time.Time

	seq atomic.Uint64

	mu             sync.Mutex
	sampleBuilder  *samplebuilder.SampleBuilder
	lastCapture    time.Time
	lastKeyRequest time.Time
	mimeType       string
	stopped        bool
	decodeFailures int
}

func NewFrameCapturer(cfg CapturerConfig) *FrameCapturer {
	if cfg.CaptureRate == 0 {
		cfg.CaptureRate = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sink == nil {
		cfg.Sink = func(liveness.Frame) {}
	}

	return &FrameCapturer{
		sessionID:       cfg.SessionID,
		logger:          cfg.Logger.With("component", "frame-capturer", "session_id", cfg.SessionID),
		captureRate:     cfg.CaptureRate,
		decoder:         cfg.Decoder,
		sink:            cfg.Sink,
		keyFrameRequest: cfg.KeyFrameRequest,
		now:             cfg.Now,
	}
}

func (c *FrameCapturer) HandleRTPPacket(pkt *rtp.Packet, mimeType string) {
	samples := c.push(pkt, mimeType)
	for _, data := range samples {
		c.processSample(data, mimeType)
	}
}

func (c *FrameCapturer) push(pkt *rtp.Packet, mimeType string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || pkt == nil {
		return nil
	}

	if c.sampleBuilder == nil || c.mimeType != mimeType {
		c.mimeType = mimeType
		c.sampleBuilder = c.createSampleBuilder(mimeType)
		if c.sampleBuilder == nil {
			return nil
		}
	}

	c.sampleBuilder.Push(pkt)

	var out [][]byte
	for {
		sample := c.sampleBuilder.Pop()
		if sample == nil {
			break
		}
		out = append(out, sample.Data)
	}
	return out
}

func (c *FrameCapturer) createSampleBuilder(mimeType string) *samplebuilder.SampleBuilder {
	switch mimeType {
	case MimeTypeVP8:
		return samplebuilder.New(64, &codecs.VP8Packet{}, 90000)
	case MimeTypeVP9:
		return samplebuilder.New(64, &codecs.VP9Packet{}, 90000)
	case MimeTypeH264:
		return samplebuilder.New(64, &codecs.H264Packet{}, 90000)
	default:
		c.logger.Warn("unsupported video codec", "mime_type", mimeType)
		return nil
	}
}

func (c *FrameCapturer) processSample(data []byte, mimeType string) {
	now := c.now()
	if !c.admit(now) {
		return
	}

	if c.decoder == nil {
		return
	}

	img, err := c.decoder.Decode(data, mimeType)
	if err != nil {
		if errors.Is(err, ErrNotKeyFrame) {
			c.requestKeyFrame(now)
		} else {
			c.mu.Lock()
			c.decodeFailures++
			c.mu.Unlock()
			c.logger.Debug("frame decode failed", "error", err)
		}
		return
	}

	c.markCaptured(now)
	b := img.Bounds()
	c.sink(liveness.Frame{
		Seq:       c.seq.Add(1),
		Timestamp: now,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Image:     img,
	})
}

// HandleJPEG captures an already encoded image, as pushed by browser
// clients over the websocket surface.
func (c *FrameCapturer) HandleJPEG(data []byte) error {
	now := c.now()
	if !c.admit(now) {
		return nil
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode jpeg header: %w", err)
	}

	c.markCaptured(now)
	c.sink(liveness.Frame{
		Seq:       c.seq.Add(1),
		Timestamp: now,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Data:      data,
	})
	return nil
}

func (c *FrameCapturer) admit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	return now.Sub(c.lastCapture) >= c.captureRate
}

func (c *FrameCapturer) markCaptured(now time.Time) {
	c.mu.Lock()
	c.lastCapture = now
	c.mu.Unlock()
}

func (c *FrameCapturer) requestKeyFrame(now time.Time) {
	c.mu.Lock()
	if c.keyFrameRequest == nil || now.Sub(c.lastKeyRequest) < c.captureRate {
		c.mu.Unlock()
		return
	}
	c.lastKeyRequest = now
	req := c.keyFrameRequest
	c.mu.Unlock()

	req()
}

func (c *FrameCapturer) Captured() uint64 {
	return c.seq.Load()
}

func (c *FrameCapturer) DecodeFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decodeFailures
}

func (c *FrameCapturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.decoder != nil {
		c.decoder.Close()
	}
}
