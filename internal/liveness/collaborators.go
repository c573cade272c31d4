package liveness

import (
	"context"
	"image"
	"time"
)

// Frame is one decoded video frame. Image may be nil when only the encoded
// bytes are available.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Image     image.Image
	Data      []byte
}

type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Box) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

func (b Box) Within(width, height int) bool {
	return b.X >= 0 && b.Y >= 0 &&
		b.X+b.Width <= float64(width) &&
		b.Y+b.Height <= float64(height)
}

// Face is a single detection. Eye and mouth openness are ratios in [0,1].
type Face struct {
	Box          Box     `json:"box"`
	BoxScore     float64 `json:"box_score"`
	FaceScore    float64 `json:"face_score"`
	Pose         Pose    `json:"pose"`
	LeftEyeOpen  float64 `json:"left_eye_open"`
	RightEyeOpen float64 `json:"right_eye_open"`
	MouthOpen    float64 `json:"mouth_open"`
}

type SpoofScores struct {
	Real float64 `json:"real"`
	Live float64 `json:"live"`
}

type EngineInfo struct {
	DetectorVersion   string `json:"detector_version"`
	ClassifierVersion string `json:"classifier_version"`
}

type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Face, error)
}

// FrameEncoder is implemented by detectors that consume encoded frames. The
// scorer encodes a frame once and passes the bytes in Frame.Data to both the
// detector and the classifier.
type FrameEncoder interface {
	EncodeFrame(frame Frame) ([]byte, error)
}

type Classifier interface {
	Classify(ctx context.Context, frame Frame, face Face) (SpoofScores, error)
}

type Cropper interface {
	Crop(frame Frame, box Box) ([]byte, error)
}

type Loader interface {
	Load(ctx context.Context) (EngineInfo, error)
}
