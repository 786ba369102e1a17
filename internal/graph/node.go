package graph

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/dudu/beautycam/internal/frame"
)

// Effect is the image transform behind a FilterNode. Apply must not modify
// buf; it returns either buf itself (no-op) or a newly allocated buffer.
type Effect interface {
	Kind() string
	Properties() []PropertySpec
	Apply(buf *frame.PixelBuffer, props PropertyReader) (*frame.PixelBuffer, error)
}

// FormatChecker is implemented by effects restricted to some pixel formats.
type FormatChecker interface {
	SupportsFormat(frame.PixelFormat) bool
}

// element is anything a node can forward a frame to.
type element interface {
	elementName() string
	process(ctx context.Context, buf *frame.PixelBuffer, t *traversal) (*frame.PixelBuffer, error)
}

// FilterNode is one named, independently parameterized stage.
type FilterNode struct {
	name       string
	effect     Effect
	props      *properties
	downstream []element
}

func newFilterNode(name string, effect Effect) *FilterNode {
	return &FilterNode{
		name:   name,
		effect: effect,
		props:  newProperties(effect.Properties()),
	}
}

// Name returns the node's stable identifier.
func (n *FilterNode) Name() string { return n.name }

// Effect returns the node's transform.
func (n *FilterNode) Effect() Effect { return n.effect }

// SetProperty stores v under name. Names the effect does not read are kept
// anyway so callers can broadcast properties without knowing each filter.
func (n *FilterNode) SetProperty(name string, v Value) {
	n.props.set(name, v)
}

// ClearProperty removes name from the table.
func (n *FilterNode) ClearProperty(name string) {
	n.props.clear(name)
}

// Property returns the current value of name.
func (n *FilterNode) Property(name string) (Value, bool) {
	return n.props.get(name)
}

// Properties returns a snapshot of the whole table.
func (n *FilterNode) Properties() map[string]Value {
	return n.props.snapshot()
}

// Accepts reports whether the node's effect declares property name.
func (n *FilterNode) Accepts(name string) bool {
	return lo.ContainsBy(n.effect.Properties(), func(s PropertySpec) bool { return s.Name == name })
}

func (n *FilterNode) elementName() string { return n.name }

func (n *FilterNode) process(ctx context.Context, buf *frame.PixelBuffer, t *traversal) (*frame.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := n.effect.Apply(buf, n.props)
	if err != nil {
		return nil, errors.Wrapf(err, "filter %q", n.name)
	}
	if out == nil {
		return nil, errors.Newf("filter %q returned no buffer", n.name)
	}
	result := out
	for _, next := range n.downstream {
		r, err := next.process(ctx, out, t)
		if err != nil {
			return nil, err
		}
		result = r
	}
	return result, nil
}

// traversal stages sink publishes so that a frame reaches either all of its
// sinks or none of them.
type traversal struct {
	pending []pendingPublish
}

type pendingPublish struct {
	sink *FrameSink
	buf  *frame.PixelBuffer
}

func (t *traversal) stage(s *FrameSink, buf *frame.PixelBuffer) {
	t.pending = append(t.pending, pendingPublish{sink: s, buf: buf})
}

func (t *traversal) commit() {
	for _, p := range t.pending {
		p.sink.Publish(p.buf)
	}
}
