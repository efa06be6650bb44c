// Package stream runs frame extraction sessions: one ffmpeg subprocess per
// session decoding an RTSP feed into JPEG frames, which are buffered,
// throttled and handed to the recognition pipeline.
package stream

import (
	"context"
	"time"
)

// Frame is one extracted JPEG handed to the processor. EventID is nonzero
// when the session is pinned to an event; it overrides binding resolution
// downstream.
type Frame struct {
	SessionID      string
	CameraID       int64
	OrganizationID int64
	EventID        int64
	Data           []byte
	CapturedAt     time.Time
}

// Processor consumes extracted frames. Calls may run concurrently across
// sessions; implementations must be safe for concurrent use.
type Processor interface {
	ProcessFrame(ctx context.Context, frame *Frame) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, frame *Frame) error

func (f ProcessorFunc) ProcessFrame(ctx context.Context, frame *Frame) error {
	return f(ctx, frame)
}
