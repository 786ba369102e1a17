package tuning

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/beautycam/internal/filter"
	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

func newGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Chain(graph.Format{Width: 2, Height: 2, Pixel: frame.FormatRGBA}, "display",
		graph.Stage{Name: filter.KindLipstick, Effect: filter.NewLipstick(filter.DefaultLipColor, nil)},
		graph.Stage{Name: filter.KindBeauty, Effect: filter.NewBeauty()},
		graph.Stage{Name: filter.KindFaceReshape, Effect: filter.NewFaceReshape()},
	)
	require.NoError(t, err)
	return g
}

func floatOf(t *testing.T, g *graph.Graph, node, prop string) float32 {
	t.Helper()
	h, err := g.Node(node)
	require.NoError(t, err)
	v, ok, err := h.Property(prop)
	require.NoError(t, err)
	require.True(t, ok)
	f, ok := v.AsFloat()
	require.True(t, ok)
	return f
}

func TestApplyMapsSliderRanges(t *testing.T) {
	g := newGraph(t)
	require.NoError(t, Apply(g, Positions{
		SkinSmoothing: 50,
		Whiteness:     100,
		ThinFace:      80,
		BigEye:        20,
		Lipstick:      30,
	}))

	assert.InDelta(t, 5.0, floatOf(t, g, filter.KindBeauty, filter.PropSkinSmoothing), 1e-6)
	assert.InDelta(t, 10.0, floatOf(t, g, filter.KindBeauty, filter.PropWhiteness), 1e-6)
	assert.InDelta(t, 0.5, floatOf(t, g, filter.KindFaceReshape, filter.PropThinFace), 1e-6)
	assert.InDelta(t, 0.5, floatOf(t, g, filter.KindFaceReshape, filter.PropBigEye), 1e-6)
	assert.InDelta(t, 3.0, floatOf(t, g, filter.KindLipstick, filter.PropBlendLevel), 1e-6)
}

func TestApplyRejectsBadInput(t *testing.T) {
	g := newGraph(t)
	err := Apply(g, Positions{Whiteness: 20, "sparkle": 3, BigEye: 101})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sparkle")
	assert.Contains(t, err.Error(), "out of range")
	assert.Zero(t, floatOf(t, g, filter.KindBeauty, filter.PropWhiteness))
}

func TestApplyAfterClose(t *testing.T) {
	g := newGraph(t)
	require.NoError(t, g.Close())
	err := Apply(g, Positions{Whiteness: 20})
	assert.True(t, errors.Is(err, graph.ErrResourceTornDown))
}

func TestSliderValue(t *testing.T) {
	for _, s := range Sliders() {
		assert.Zero(t, s.Value(0), s.Name)
	}
	assert.Len(t, Sliders(), 5)
}
