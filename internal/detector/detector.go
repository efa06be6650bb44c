// Package detector wraps the face detection/embedding engine. The engine
// itself runs as an inference sidecar; this package owns the client, the
// per-call timeout guard and model hot-reload.
package detector

import (
	"context"
	"errors"
)

var (
	ErrNotInitialized = errors.New("detector not initialized")
	ErrDetectTimeout  = errors.New("detection timed out")
)

// Box is a face bounding box in pixel coordinates of the analyzed frame.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is one detected face with its embedding vector.
type Face struct {
	Box        Box       `json:"box"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Result is the outcome of analyzing one frame.
type Result struct {
	Faces       []Face `json:"faces"`
	FrameWidth  int    `json:"frame_width"`
	FrameHeight int    `json:"frame_height"`
}

// Detector analyzes JPEG frames. Implementations must be safe for
// concurrent use.
type Detector interface {
	Initialize(ctx context.Context) error
	Detect(ctx context.Context, jpegFrame []byte) (*Result, error)
	SetConfidenceThreshold(t float64)
	Close() error
}
