package graph

import (
	"context"

	"go.uber.org/atomic"

	"github.com/dudu/beautycam/internal/frame"
)

// PublishedFrame is the latest complete frame a sink holds. It is never
// modified after publication.
type PublishedFrame struct {
	Buffer *frame.PixelBuffer
	Width  int
	Height int
	Seq    uint64
}

// FrameSink is a terminal element exposing the most recently processed
// frame. Publish and Latest may be called from different goroutines.
type FrameSink struct {
	name      string
	latest    atomic.Pointer[PublishedFrame]
	publishes atomic.Uint64
}

// NewFrameSink returns a standalone sink. Graph builders create their own.
func NewFrameSink(name string) *FrameSink {
	return &FrameSink{name: name}
}

// Name returns the sink's identifier.
func (s *FrameSink) Name() string { return s.name }

// Publish atomically replaces the published frame with buf.
func (s *FrameSink) Publish(buf *frame.PixelBuffer) {
	s.latest.Store(&PublishedFrame{
		Buffer: buf,
		Width:  buf.Width,
		Height: buf.Height,
		Seq:    buf.Seq,
	})
	s.publishes.Inc()
}

// Latest returns the current frame, or nil if nothing was published yet.
// It never blocks; repeated calls return the same snapshot until the next
// Publish.
func (s *FrameSink) Latest() *PublishedFrame {
	return s.latest.Load()
}

// Publishes returns how many frames have been published.
func (s *FrameSink) Publishes() uint64 {
	return s.publishes.Load()
}

func (s *FrameSink) elementName() string { return s.name }

func (s *FrameSink) process(ctx context.Context, buf *frame.PixelBuffer, t *traversal) (*frame.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.stage(s, buf)
	return buf, nil
}
