package graph

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/dudu/beautycam/internal/frame"
)

// Builder wires a graph. Problems are collected and reported together by
// Build, so calls can be chained.
type Builder struct {
	format Format
	nodes  []*FilterNode
	sinks  []*FrameSink
	edges  []edge
	errs   error
}

type edge struct {
	from, to string
}

// NewBuilder starts a graph that accepts buffers of the given format.
func NewBuilder(format Format) *Builder {
	return &Builder{format: format}
}

// AddNode adds a filter named name backed by effect.
func (b *Builder) AddNode(name string, effect Effect) *Builder {
	if effect == nil {
		b.errs = multierr.Append(b.errs, errors.Newf("filter %q has no effect", name))
		return b
	}
	if err := b.checkName(name); err != nil {
		b.errs = multierr.Append(b.errs, err)
		return b
	}
	if fc, ok := effect.(FormatChecker); ok && !fc.SupportsFormat(b.format.Pixel) {
		b.errs = multierr.Append(b.errs,
			errors.Newf("filter %q (%s) does not support %s frames", name, effect.Kind(), b.format.Pixel))
	}
	b.nodes = append(b.nodes, newFilterNode(name, effect))
	return b
}

// AddSink adds a terminal sink named name.
func (b *Builder) AddSink(name string) *Builder {
	if err := b.checkName(name); err != nil {
		b.errs = multierr.Append(b.errs, err)
		return b
	}
	b.sinks = append(b.sinks, NewFrameSink(name))
	return b
}

// Connect makes to a downstream of from. Downstreams are visited in the
// order they were connected. Use SourceName as from for the root.
func (b *Builder) Connect(from, to string) *Builder {
	b.edges = append(b.edges, edge{from: from, to: to})
	return b
}

func (b *Builder) checkName(name string) error {
	switch {
	case name == "":
		return errors.New("empty element name")
	case name == SourceName:
		return errors.Newf("%q is reserved for the frame source", SourceName)
	case b.has(name):
		return errors.Newf("duplicate element name %q", name)
	}
	return nil
}

func (b *Builder) has(name string) bool {
	return lo.ContainsBy(b.nodes, func(n *FilterNode) bool { return n.name == name }) ||
		lo.ContainsBy(b.sinks, func(s *FrameSink) bool { return s.name == name })
}

// Build validates the topology and returns the graph. Every filter must be
// reachable from the source through exactly one upstream, the graph must be
// acyclic, and every path must end in a sink.
func (b *Builder) Build() (*Graph, error) {
	errs := b.errs
	if b.format.Width <= 0 || b.format.Height <= 0 {
		errs = multierr.Append(errs, errors.Newf("invalid frame size %dx%d", b.format.Width, b.format.Height))
	}
	if b.format.Pixel != frame.FormatRGBA {
		errs = multierr.Append(errs, errors.Newf("unsupported pixel format %s", b.format.Pixel))
	}
	if len(b.sinks) == 0 {
		errs = multierr.Append(errs, errors.New("graph has no sink"))
	}

	g := &Graph{
		format: b.format,
		nodes:  b.nodes,
		sinks:  b.sinks,
		byName: lo.KeyBy(b.nodes, func(n *FilterNode) string { return n.name }),
	}
	g.source = &FrameSource{graph: g}

	elements := map[string]element{}
	for _, n := range b.nodes {
		elements[n.name] = n
	}
	for _, s := range b.sinks {
		elements[s.name] = s
	}

	upstreams := map[string]int{}
	for _, e := range b.edges {
		to, ok := elements[e.to]
		if !ok {
			errs = multierr.Append(errs, errors.Newf("connect %q -> %q: unknown target", e.from, e.to))
			continue
		}
		upstreams[e.to]++
		if e.from == SourceName {
			g.source.downstream = append(g.source.downstream, to)
			continue
		}
		from, ok := g.byName[e.from]
		if !ok {
			if _, isSink := elements[e.from]; isSink {
				errs = multierr.Append(errs, errors.Newf("connect %q -> %q: sinks have no downstream", e.from, e.to))
			} else {
				errs = multierr.Append(errs, errors.Newf("connect %q -> %q: unknown source", e.from, e.to))
			}
			continue
		}
		from.downstream = append(from.downstream, to)
	}

	if len(g.source.downstream) == 0 {
		errs = multierr.Append(errs, errors.New("frame source is not connected"))
	}
	for name := range elements {
		if n := upstreams[name]; n != 1 {
			errs = multierr.Append(errs, errors.Newf("%q has %d upstreams, want exactly 1", name, n))
		}
	}
	for _, n := range b.nodes {
		if len(n.downstream) == 0 {
			errs = multierr.Append(errs, errors.Newf("filter %q does not lead to a sink", n.name))
		}
	}
	errs = multierr.Append(errs, checkReachable(g, elements))

	if errs != nil {
		return nil, errors.Mark(errs, ErrGraphMisconfigured)
	}
	return g, nil
}

// checkReachable walks the graph from the source, reporting cycles and
// elements the walk never visits.
func checkReachable(g *Graph, elements map[string]element) error {
	const (
		unseen = iota
		active
		done
	)
	state := map[string]int{}
	var errs error
	var visit func(e element)
	visit = func(e element) {
		name := e.elementName()
		switch state[name] {
		case active:
			errs = multierr.Append(errs, errors.Newf("cycle through %q", name))
			return
		case done:
			return
		}
		state[name] = active
		if n, ok := e.(*FilterNode); ok {
			for _, next := range n.downstream {
				visit(next)
			}
		}
		state[name] = done
	}
	for _, e := range g.source.downstream {
		visit(e)
	}
	for name := range elements {
		if state[name] == unseen {
			errs = multierr.Append(errs, errors.Newf("%q is not reachable from the source", name))
		}
	}
	return errs
}

// Stage names one filter for Chain.
type Stage struct {
	Name   string
	Effect Effect
}

// Chain builds the common linear topology source -> stages... -> sink.
func Chain(format Format, sink string, stages ...Stage) (*Graph, error) {
	b := NewBuilder(format)
	prev := SourceName
	for _, s := range stages {
		b.AddNode(s.Name, s.Effect).Connect(prev, s.Name)
		prev = s.Name
	}
	return b.AddSink(sink).Connect(prev, sink).Build()
}
