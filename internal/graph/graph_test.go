package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/beautycam/internal/frame"
)

var testFormat = Format{Width: 2, Height: 2, Pixel: frame.FormatRGBA}

// addEffect adds its "amount" property to every red channel byte.
type addEffect struct {
	calls   int
	seen    []uint64
	fail    error
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (e *addEffect) Kind() string { return "add" }

func (e *addEffect) Properties() []PropertySpec {
	return []PropertySpec{
		{Name: "amount", Kind: KindFloat, Default: Float(1), Description: "added to red"},
		{Name: PropFaceLandmark, Kind: KindPoints, Description: "unused"},
	}
}

func (e *addEffect) Apply(buf *frame.PixelBuffer, props PropertyReader) (*frame.PixelBuffer, error) {
	e.calls++
	e.seen = append(e.seen, buf.Seq)
	if e.entered != nil {
		e.once.Do(func() { close(e.entered) })
	}
	if e.block != nil {
		<-e.block
	}
	if e.fail != nil {
		return nil, e.fail
	}
	amount, _ := props.Float("amount")
	out := buf.Clone()
	for i := 0; i < len(out.Data); i += frame.BytesPerPixel {
		out.Data[i] += byte(amount)
	}
	return out, nil
}

// plainEffect reads nothing.
type plainEffect struct{}

func (plainEffect) Kind() string               { return "plain" }
func (plainEffect) Properties() []PropertySpec { return nil }
func (plainEffect) Apply(buf *frame.PixelBuffer, _ PropertyReader) (*frame.PixelBuffer, error) {
	return buf, nil
}

func newBuf(seq uint64) *frame.PixelBuffer {
	return frame.Filled(2, 2, [4]byte{10, 0, 0, 255}, seq)
}

func TestChainRunPublishesOnce(t *testing.T) {
	a, b := &addEffect{}, &addEffect{}
	g, err := Chain(testFormat, "display", Stage{"a", a}, Stage{"b", b})
	require.NoError(t, err)

	sink, err := g.Sink("display")
	require.NoError(t, err)
	assert.Nil(t, sink.Latest())

	require.NoError(t, g.Run(context.Background(), newBuf(1)))
	assert.Equal(t, uint64(1), sink.Publishes())
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	latest := sink.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, uint64(1), latest.Seq)
	assert.Equal(t, 2, latest.Width)
	assert.Equal(t, byte(12), latest.Buffer.Data[0])
	assert.Same(t, latest, sink.Latest())

	require.NoError(t, g.Run(context.Background(), newBuf(2)))
	assert.Equal(t, uint64(2), sink.Publishes())
	assert.Equal(t, uint64(2), sink.Latest().Seq)
}

func TestRunRejectsInvalidFormat(t *testing.T) {
	a := &addEffect{}
	g, err := Chain(testFormat, "display", Stage{"a", a})
	require.NoError(t, err)

	wrongSize := frame.Filled(3, 2, [4]byte{}, 1)
	err = g.Run(context.Background(), wrongSize)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFormat))

	short := &frame.PixelBuffer{Data: make([]byte, 3), Width: 2, Height: 2}
	err = g.Run(context.Background(), short)
	assert.True(t, errors.Is(err, ErrInvalidFormat))

	assert.Zero(t, a.calls)
	sink, _ := g.Sink("display")
	assert.Zero(t, sink.Publishes())
}

func TestFailedTraversalPublishesNothing(t *testing.T) {
	good, bad := &addEffect{}, &addEffect{fail: errors.New("shader exploded")}
	g, err := NewBuilder(testFormat).
		AddNode("good", good).
		AddNode("bad", bad).
		AddSink("first").
		AddSink("second").
		Connect(SourceName, "good").
		Connect("good", "first").
		Connect("good", "bad").
		Connect("bad", "second").
		Build()
	require.NoError(t, err)

	err = g.Run(context.Background(), newBuf(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shader exploded")

	for _, s := range g.Sinks() {
		assert.Zero(t, s.Publishes(), s.Name())
		assert.Nil(t, s.Latest(), s.Name())
	}
}

func TestFanOutVisitsInOrder(t *testing.T) {
	root := &addEffect{}
	left, right := &addEffect{}, &addEffect{}
	g, err := NewBuilder(testFormat).
		AddNode("root", root).
		AddNode("left", left).
		AddNode("right", right).
		AddSink("l").
		AddSink("r").
		Connect(SourceName, "root").
		Connect("root", "left").
		Connect("root", "right").
		Connect("left", "l").
		Connect("right", "r").
		Build()
	require.NoError(t, err)
	require.NoError(t, g.SetProperty("right", "amount", Float(5)))

	h, err := g.Node("root")
	require.NoError(t, err)
	out, err := h.Process(context.Background(), newBuf(3))
	require.NoError(t, err)
	// the last downstream is returned
	assert.Equal(t, byte(16), out.Data[0])

	l, _ := g.Sink("l")
	r, _ := g.Sink("r")
	assert.Equal(t, byte(12), l.Latest().Buffer.Data[0])
	assert.Equal(t, byte(16), r.Latest().Buffer.Data[0])
	assert.Equal(t, uint64(1), l.Publishes())
	assert.Equal(t, uint64(1), r.Publishes())
}

func TestPropertiesAreIsolatedPerNode(t *testing.T) {
	g, err := Chain(testFormat, "display",
		Stage{"beauty", &addEffect{}},
		Stage{"reshape", &addEffect{}},
		Stage{"lipstick", &addEffect{}})
	require.NoError(t, err)

	before := map[string]map[string]Value{}
	for _, name := range []string{"reshape", "lipstick"} {
		h, err := g.Node(name)
		require.NoError(t, err)
		before[name], err = h.Properties()
		require.NoError(t, err)
	}

	require.NoError(t, g.SetProperty("beauty", "skin_smoothing", Float(0.7)))

	beauty, _ := g.Node("beauty")
	v, ok, err := beauty.Property("skin_smoothing")
	require.NoError(t, err)
	require.True(t, ok)
	f, _ := v.AsFloat()
	assert.InDelta(t, 0.7, f, 1e-6)

	for _, name := range []string{"reshape", "lipstick"} {
		h, _ := g.Node(name)
		after, err := h.Properties()
		require.NoError(t, err)
		assert.Equal(t, before[name], after, name)
	}
}

func TestNodesAccepting(t *testing.T) {
	g, err := Chain(testFormat, "display",
		Stage{"plain", plainEffect{}},
		Stage{"add", &addEffect{}})
	require.NoError(t, err)

	accepting := g.NodesAccepting(PropFaceLandmark)
	require.Len(t, accepting, 1)
	assert.Equal(t, "add", accepting[0].Name())
}

func TestPointsValueIsCopied(t *testing.T) {
	pts := []frame.Point{{X: 1, Y: 2}}
	g, err := Chain(testFormat, "display", Stage{"add", &addEffect{}})
	require.NoError(t, err)
	require.NoError(t, g.SetProperty("add", PropFaceLandmark, Points(pts)))
	pts[0].X = 99

	h, _ := g.Node("add")
	v, ok, err := h.Property(PropFaceLandmark)
	require.NoError(t, err)
	require.True(t, ok)
	got, ok := v.AsPoints()
	require.True(t, ok)
	assert.Equal(t, float32(1), got[0].X)

	got[0].X = 42
	v, _, _ = h.Property(PropFaceLandmark)
	again, _ := v.AsPoints()
	assert.Equal(t, float32(1), again[0].X)
}

func TestBuildRejectsBadTopologies(t *testing.T) {
	cases := map[string]*Builder{
		"no sink": NewBuilder(testFormat).
			AddNode("a", plainEffect{}).
			Connect(SourceName, "a"),
		"dead end": NewBuilder(testFormat).
			AddNode("a", plainEffect{}).
			AddNode("b", plainEffect{}).
			AddSink("s").
			Connect(SourceName, "a").
			Connect("a", "s").
			Connect("a", "b"),
		"two upstreams": NewBuilder(testFormat).
			AddNode("a", plainEffect{}).
			AddNode("b", plainEffect{}).
			AddSink("s").
			Connect(SourceName, "a").
			Connect(SourceName, "b").
			Connect("a", "s").
			Connect("b", "s"),
		"detached cycle": NewBuilder(testFormat).
			AddNode("a", plainEffect{}).
			AddNode("b", plainEffect{}).
			AddNode("c", plainEffect{}).
			AddSink("s").
			Connect(SourceName, "a").
			Connect("a", "s").
			Connect("b", "c").
			Connect("c", "b"),
		"duplicate name": NewBuilder(testFormat).
			AddNode("a", plainEffect{}).
			AddNode("a", plainEffect{}).
			AddSink("s").
			Connect(SourceName, "a").
			Connect("a", "s"),
		"reserved name": NewBuilder(testFormat).
			AddNode(SourceName, plainEffect{}).
			AddSink("s").
			Connect(SourceName, "s"),
		"sink with downstream": NewBuilder(testFormat).
			AddNode("a", plainEffect{}).
			AddSink("s").
			Connect(SourceName, "s").
			Connect("s", "a"),
		"unknown target": NewBuilder(testFormat).
			AddSink("s").
			Connect(SourceName, "s").
			Connect(SourceName, "missing"),
		"nil effect": NewBuilder(testFormat).
			AddNode("a", nil).
			AddSink("s").
			Connect(SourceName, "s"),
		"bad size": NewBuilder(Format{Width: 0, Height: 2}).
			AddSink("s").
			Connect(SourceName, "s"),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			g, err := b.Build()
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, ErrGraphMisconfigured), err.Error())
		})
	}
}

func TestClosedGraphFailsFast(t *testing.T) {
	g, err := Chain(testFormat, "display", Stage{"a", &addEffect{}})
	require.NoError(t, err)
	h, err := g.Node("a")
	require.NoError(t, err)

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.True(t, g.Closed())

	assert.True(t, errors.Is(h.SetProperty("amount", Float(3)), ErrResourceTornDown))
	assert.True(t, errors.Is(h.ClearProperty("amount"), ErrResourceTornDown))
	assert.True(t, errors.Is(g.SetProperty("a", "amount", Float(3)), ErrResourceTornDown))
	assert.True(t, errors.Is(g.Run(context.Background(), newBuf(1)), ErrResourceTornDown))
	_, err = h.Process(context.Background(), newBuf(1))
	assert.True(t, errors.Is(err, ErrResourceTornDown))
	sink, _ := g.Sink("display")
	assert.Zero(t, sink.Publishes())
	_, _, err = h.Property("amount")
	assert.True(t, errors.Is(err, ErrResourceTornDown))
}

func TestUnknownNode(t *testing.T) {
	g, err := Chain(testFormat, "display", Stage{"a", &addEffect{}})
	require.NoError(t, err)
	err = g.SetProperty("nope", "amount", Float(1))
	assert.True(t, errors.Is(err, ErrNodeNotFound))
	assert.True(t, errors.Is(Handle{}.SetProperty("x", Float(1)), ErrNodeNotFound))
}

func TestCloseWaitsForInFlightFrame(t *testing.T) {
	blocker := &addEffect{block: make(chan struct{}), entered: make(chan struct{})}
	g, err := Chain(testFormat, "display", Stage{"a", blocker})
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- g.Run(context.Background(), newBuf(1)) }()

	select {
	case <-blocker.entered:
	case <-time.After(time.Second):
		t.Fatal("frame never reached the filter")
	}

	closeDone := make(chan struct{})
	go func() {
		_ = g.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("Close returned while a frame was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(blocker.block)
	require.NoError(t, <-runDone)
	<-closeDone

	sink, _ := g.Sink("display")
	assert.Equal(t, uint64(1), sink.Publishes())
}

func TestConcurrentPropertyWritesDuringRun(t *testing.T) {
	g, err := Chain(testFormat, "display", Stage{"a", &addEffect{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pts := make([]frame.Point, 106)
		for i := 0; ctx.Err() == nil; i++ {
			for j := range pts {
				pts[j] = frame.Point{X: float32(i), Y: float32(i)}
			}
			_ = g.SetProperty("a", PropFaceLandmark, Points(pts))
			_ = g.SetProperty("a", "amount", Float(float32(i%3)))
		}
	}()

	h, _ := g.Node("a")
	for seq := uint64(1); seq <= 200; seq++ {
		require.NoError(t, g.Run(ctx, newBuf(seq)))
		v, ok, err := h.Property(PropFaceLandmark)
		require.NoError(t, err)
		if !ok {
			continue
		}
		pts, _ := v.AsPoints()
		for _, p := range pts {
			// a torn write would mix two iterations
			require.Equal(t, pts[0], p)
		}
	}
	cancel()
	wg.Wait()
}
