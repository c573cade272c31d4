package liveness

import "fmt"

type State int

const (
	StateInit State = iota
	StateAwaitingVideo
	StateCollecting
	StateChallenging
	StateFinishedSuccess
	StateFinishedFailure
	StateCancelled
	StateError
)

var stateNames = [...]string{
	StateInit:            "init",
	StateAwaitingVideo:   "awaiting_video",
	StateCollecting:      "collecting",
	StateChallenging:     "challenging",
	StateFinishedSuccess: "finished_success",
	StateFinishedFailure: "finished_failure",
	StateCancelled:       "cancelled",
	StateError:           "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) Terminal() bool {
	switch s {
	case StateFinishedSuccess, StateFinishedFailure, StateCancelled, StateError:
		return true
	}
	return false
}

// StatusCode is the per-frame advisory carried by status-prompt events.
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusNoFace
	StatusMultipleFace
	StatusFaceTooSmall
	StatusFaceTooLarge
	StatusFaceOutOfBounds
	StatusNotFrontal
	StatusPoorQuality
	StatusNotReal
	StatusNotLive
	StatusDetectionError
)

var statusNames = [...]string{
	StatusOK:              "OK",
	StatusNoFace:          "NO_FACE",
	StatusMultipleFace:    "MULTIPLE_FACE",
	StatusFaceTooSmall:    "FACE_TOO_SMALL",
	StatusFaceTooLarge:    "FACE_TOO_LARGE",
	StatusFaceOutOfBounds: "FACE_OUT_OF_BOUNDS",
	StatusNotFrontal:      "FACE_NOT_FRONTAL",
	StatusPoorQuality:     "POOR_QUALITY",
	StatusNotReal:         "FACE_NOT_REAL",
	StatusNotLive:         "FACE_NOT_LIVE",
	StatusDetectionError:  "DETECTION_ERROR",
}

func (c StatusCode) String() string {
	if c < 0 || int(c) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(c))
	}
	return statusNames[c]
}

func (c StatusCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Scorable reports whether a sample was produced for the frame.
func (c StatusCode) Scorable() bool {
	switch c {
	case StatusNoFace, StatusMultipleFace, StatusDetectionError:
		return false
	}
	return true
}

type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorNotInitialized
	ErrorModelLoadFailed
	ErrorCameraPermissionDenied
	ErrorVideoLoadTimeout
	ErrorCaptureFailed
	ErrorDetectionIdleTimeout
	ErrorActionTimeout
	ErrorFraudMultipleFace
	ErrorFraudSpoof
	ErrorNotLive
	ErrorDetectionFailed
	ErrorCancelled
)

var errorNames = [...]string{
	ErrorNone:                   "",
	ErrorNotInitialized:         "DETECTOR_NOT_INITIALIZED",
	ErrorModelLoadFailed:        "MODEL_LOAD_FAILED",
	ErrorCameraPermissionDenied: "CAMERA_PERMISSION_DENIED",
	ErrorVideoLoadTimeout:       "VIDEO_LOAD_TIMEOUT",
	ErrorCaptureFailed:          "CAPTURE_FAILED",
	ErrorDetectionIdleTimeout:   "DETECTION_IDLE_TIMEOUT",
	ErrorActionTimeout:          "ACTION_TIMEOUT",
	ErrorFraudMultipleFace:      "FRAUD_MULTIPLE_FACE",
	ErrorFraudSpoof:             "FRAUD_SPOOF",
	ErrorNotLive:                "NOT_LIVE",
	ErrorDetectionFailed:        "DETECTION_FAILED",
	ErrorCancelled:              "SESSION_CANCELLED",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(errorNames) {
		return fmt.Sprintf("error(%d)", int(c))
	}
	return errorNames[c]
}

func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

type Mode int

const (
	ModeSilentLiveness Mode = iota
	ModeLiveness
	ModeCollection
)

var modeNames = [...]string{
	ModeSilentLiveness: "silent_liveness",
	ModeLiveness:       "liveness",
	ModeCollection:     "collection",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	for i, name := range modeNames {
		if name == string(text) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}

type Action int

const (
	ActionBlink Action = iota
	ActionMouthOpen
	ActionNod
)

var actionNames = [...]string{
	ActionBlink:     "blink",
	ActionMouthOpen: "mouth_open",
	ActionNod:       "nod",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	for i, name := range actionNames {
		if name == string(text) {
			*a = Action(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", text)
}

type ActionStatus int

const (
	ActionStarted ActionStatus = iota
	ActionCompleted
	ActionTimedOut
)

var actionStatusNames = [...]string{
	ActionStarted:   "STARTED",
	ActionCompleted: "COMPLETED",
	ActionTimedOut:  "TIMEOUT",
}

func (s ActionStatus) String() string {
	if s < 0 || int(s) >= len(actionStatusNames) {
		return fmt.Sprintf("action_status(%d)", int(s))
	}
	return actionStatusNames[s]
}

func (s ActionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
