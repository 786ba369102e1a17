package graph

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/dudu/beautycam/internal/frame"
)

// Format is the buffer shape a graph accepts.
type Format struct {
	Width  int
	Height int
	Pixel  frame.PixelFormat
}

// Check returns ErrInvalidFormat when buf does not have format f.
func (f Format) Check(buf *frame.PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return errors.Mark(err, ErrInvalidFormat)
	}
	if buf.Width != f.Width || buf.Height != f.Height || buf.Format != f.Pixel {
		return errors.Wrapf(ErrInvalidFormat, "got %dx%d %s, want %dx%d %s",
			buf.Width, buf.Height, buf.Format, f.Width, f.Height, f.Pixel)
	}
	return nil
}

// FrameSource is the graph's entry point. It has no queue: Push runs the
// whole graph on the calling goroutine.
type FrameSource struct {
	graph      *Graph
	downstream []element
}

// Push takes ownership of buf and processes it through every node down to
// the sinks. Sinks are only updated when the whole traversal succeeds.
func (s *FrameSource) Push(ctx context.Context, buf *frame.PixelBuffer) error {
	g := s.graph
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrResourceTornDown
	}
	if err := g.format.Check(buf); err != nil {
		return err
	}
	t := &traversal{}
	for _, next := range s.downstream {
		if _, err := next.process(ctx, buf, t); err != nil {
			return errors.Wrapf(err, "frame %d", buf.Seq)
		}
	}
	t.commit()
	return nil
}
