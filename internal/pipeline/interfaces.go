package pipeline

import (
	"github.com/cockroachdb/errors"

	"github.com/dudu/beautycam/internal/frame"
)

// ErrDetectionFailure marks a detector error or malformed detector output.
// The frame continues with empty landmarks.
var ErrDetectionFailure = errors.New("landmark detection failed")

// Detector finds face landmarks on an upright frame. It returns no points
// when there is no face, or frame.LandmarkCount points in pixel
// coordinates of buf.
type Detector interface {
	Detect(buf *frame.PixelBuffer, mode frame.DetectMode) ([]frame.Point, error)
}

// RenderBridge hands published frames to the render thread. Both methods
// must return quickly; drawing happens on the renderer's own goroutine.
type RenderBridge interface {
	UpdateTexture(buf *frame.PixelBuffer, width, height int, hint frame.Orientation)
	RequestRedraw()
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(buf *frame.PixelBuffer, mode frame.DetectMode) ([]frame.Point, error)

func (f DetectorFunc) Detect(buf *frame.PixelBuffer, mode frame.DetectMode) ([]frame.Point, error) {
	return f(buf, mode)
}
