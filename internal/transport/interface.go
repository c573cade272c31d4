package transport

import (
	"context"

	"github.com/eleven-am/liveness-backend/internal/liveness"
)

type Connection interface {
	Send(ctx context.Context, event ServerEvent) error
	Messages() <-chan ClientEnvelope
	Frames() <-chan liveness.Frame
	IsConnected() bool
	Done() <-chan struct{}
	Close() error
	SetBackpressureCallback(cb BackpressureCallback)
}
