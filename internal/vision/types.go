package vision

import (
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
)

type Config struct {
	DetectorURL string
	Token       string
	Timeout     time.Duration
	CaptureTTL  time.Duration
}

type CaptureKind string

const (
	CaptureFace  CaptureKind = "face"
	CaptureFrame CaptureKind = "frame"
)

// Capture is a JPEG retained for a finished session.
type Capture struct {
	SessionID string
	Kind      CaptureKind
	Score     float64
	Data      []byte
}

type infoResponse struct {
	DetectorVersion   string `json:"detector_version"`
	ClassifierVersion string `json:"classifier_version"`
	Ready             bool   `json:"ready"`
}

type detectRequest struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type detectResponse struct {
	Faces []liveness.Face `json:"faces"`
}

type classifyRequest struct {
	Image string       `json:"image"`
	Box   liveness.Box `json:"box"`
}

type classifyResponse struct {
	Real float64 `json:"real"`
	Live float64 `json:"live"`
}

type errorResponse struct {
	Error string `json:"error"`
}
