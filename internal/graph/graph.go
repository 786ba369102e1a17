// Package graph implements the filter graph frames flow through: a source,
// a tree of filter nodes and one or more sinks. Topology is fixed once the
// graph is built; only node properties change afterwards.
package graph

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/dudu/beautycam/internal/frame"
)

// SourceName is the reserved name of the graph's FrameSource.
const SourceName = "source"

// Graph owns the source, nodes and sinks. All methods are safe for
// concurrent use; Close waits for a running traversal to finish.
type Graph struct {
	mu     sync.RWMutex
	closed bool

	format Format
	source *FrameSource
	nodes  []*FilterNode
	byName map[string]*FilterNode
	sinks  []*FrameSink
}

// Run pushes buf through the graph.
func (g *Graph) Run(ctx context.Context, buf *frame.PixelBuffer) error {
	return g.source.Push(ctx, buf)
}

// Source returns the graph's entry point.
func (g *Graph) Source() *FrameSource { return g.source }

// Format returns the buffer shape the graph accepts.
func (g *Graph) Format() Format { return g.format }

// Sinks returns the terminal sinks in construction order.
func (g *Graph) Sinks() []*FrameSink {
	return append([]*FrameSink(nil), g.sinks...)
}

// Sink looks up a sink by name.
func (g *Graph) Sink(name string) (*FrameSink, error) {
	s, ok := lo.Find(g.sinks, func(s *FrameSink) bool { return s.name == name })
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "sink %q", name)
	}
	return s, nil
}

// Node returns a handle to the named filter.
func (g *Graph) Node(name string) (Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return Handle{}, ErrResourceTornDown
	}
	n, ok := g.byName[name]
	if !ok {
		return Handle{}, errors.Wrapf(ErrNodeNotFound, "filter %q", name)
	}
	return Handle{g: g, node: n}, nil
}

// Nodes returns handles to every filter in construction order.
func (g *Graph) Nodes() []Handle {
	return lo.Map(g.nodes, func(n *FilterNode, _ int) Handle { return Handle{g: g, node: n} })
}

// NodesAccepting returns the filters whose effect reads property name.
func (g *Graph) NodesAccepting(name string) []Handle {
	return lo.Filter(g.Nodes(), func(h Handle, _ int) bool { return h.node.Accepts(name) })
}

// SetProperty sets a property on the named filter.
func (g *Graph) SetProperty(filter, name string, v Value) error {
	h, err := g.Node(filter)
	if err != nil {
		return err
	}
	return h.SetProperty(name, v)
}

// Closed reports whether Close has been called.
func (g *Graph) Closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

// Close tears the graph down once no frame is in flight. Effects that
// implement io.Closer are closed. Every later operation fails with
// ErrResourceTornDown.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	var err error
	for _, n := range g.nodes {
		if c, ok := n.effect.(io.Closer); ok {
			err = multierr.Append(err, errors.Wrapf(c.Close(), "close filter %q", n.name))
		}
	}
	return err
}

// Handle is a stable reference to a filter owned by a graph. It stops
// working once the graph is closed.
type Handle struct {
	g    *Graph
	node *FilterNode
}

// Name returns the filter name.
func (h Handle) Name() string { return h.node.name }

// Kind returns the effect kind of the filter.
func (h Handle) Kind() string { return h.node.effect.Kind() }

func (h Handle) check() error {
	if h.g == nil || h.node == nil {
		return errors.Wrap(ErrNodeNotFound, "zero handle")
	}
	if h.g.closed {
		return errors.Wrapf(ErrResourceTornDown, "filter %q", h.node.name)
	}
	return nil
}

// SetProperty stores v under name on the filter.
func (h Handle) SetProperty(name string, v Value) error {
	if h.g == nil {
		return h.check()
	}
	h.g.mu.RLock()
	defer h.g.mu.RUnlock()
	if err := h.check(); err != nil {
		return err
	}
	h.node.SetProperty(name, v)
	return nil
}

// ClearProperty removes name from the filter.
func (h Handle) ClearProperty(name string) error {
	if h.g == nil {
		return h.check()
	}
	h.g.mu.RLock()
	defer h.g.mu.RUnlock()
	if err := h.check(); err != nil {
		return err
	}
	h.node.ClearProperty(name)
	return nil
}

// Property reads one property of the filter.
func (h Handle) Property(name string) (Value, bool, error) {
	if h.g == nil {
		return Value{}, false, h.check()
	}
	h.g.mu.RLock()
	defer h.g.mu.RUnlock()
	if err := h.check(); err != nil {
		return Value{}, false, err
	}
	v, ok := h.node.Property(name)
	return v, ok, nil
}

// Properties returns a snapshot of the filter's property table.
func (h Handle) Properties() (map[string]Value, error) {
	if h.g == nil {
		return nil, h.check()
	}
	h.g.mu.RLock()
	defer h.g.mu.RUnlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.node.Properties(), nil
}

// Process runs buf through the filter and everything downstream of it, then
// publishes to the reached sinks. It returns the last downstream result.
// Like Run it holds off Close and fails once the graph is closed.
func (h Handle) Process(ctx context.Context, buf *frame.PixelBuffer) (*frame.PixelBuffer, error) {
	if h.g == nil {
		return nil, h.check()
	}
	h.g.mu.RLock()
	defer h.g.mu.RUnlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	if err := h.g.format.Check(buf); err != nil {
		return nil, err
	}
	t := &traversal{}
	out, err := h.node.process(ctx, buf, t)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", buf.Seq)
	}
	t.commit()
	return out, nil
}
