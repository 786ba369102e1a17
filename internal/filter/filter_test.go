package filter

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

type props map[string]graph.Value

func (p props) Float(name string) (float32, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

func (p props) Points(name string) ([]frame.Point, bool) {
	v, ok := p[name]
	if !ok {
		return nil, false
	}
	return v.AsPoints()
}

var white = [4]byte{255, 255, 255, 255}

// rectMask fills the bounding box of points.
func rectMask(points []frame.Point, box image.Rectangle) (*image.Gray, error) {
	mask := image.NewGray(image.Rect(0, 0, box.Dx(), box.Dy()))
	r := bounds(points).Sub(box.Min)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			mask.SetGray(x, y, color.Gray{Y: 0xff})
		}
	}
	return mask, nil
}

// meshFace lays points out the way the 106-point detector does: jaw
// contour 0-32 on an arc below the nose, eye outlines 33-42 and 87-96 on
// circles of radius 4 around (20, 20) and (44, 20), nose 72-86 with its tip
// at (32, 36).
func meshFace() []frame.Point {
	pts := make([]frame.Point, frame.LandmarkCount)
	for i := range pts {
		pts[i] = frame.Point{X: 32, Y: 14}
	}
	for i := 0; i <= 32; i++ {
		a := math.Pi * float64(i) / 32
		pts[i] = frame.Point{X: 32 + 24*float32(math.Cos(a)), Y: 24 + 24*float32(math.Sin(a))}
	}
	circle := func(first int, cx, cy, r float32) {
		for i := 0; i < 10; i++ {
			a := 2 * math.Pi * float64(i) / 10
			pts[first+i] = frame.Point{X: cx + r*float32(math.Cos(a)), Y: cy + r*float32(math.Sin(a))}
		}
	}
	circle(33, 20, 20, 4)
	circle(87, 44, 20, 4)
	for i := 72; i <= 86; i++ {
		pts[i] = frame.Point{X: 32, Y: 34}
	}
	pts[noseTip] = frame.Point{X: 32, Y: 36}
	for i := mouthFirst; i <= mouthLast; i++ {
		pts[i] = frame.Point{X: 32, Y: 44}
	}
	return pts
}

// testFace lays out 106 points with the mouth on a circle of radius 6 around
// (20, 20) and everything else clustered around (20, 10).
func testFace() []frame.Point {
	pts := make([]frame.Point, frame.LandmarkCount)
	for i := range pts {
		pts[i] = frame.Point{X: 20 + float32(i%5), Y: 8 + float32(i%3)}
	}
	n := mouthLast - mouthFirst + 1
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[mouthFirst+i] = frame.Point{X: 20 + 6*float32(math.Cos(a)), Y: 20 + 6*float32(math.Sin(a))}
	}
	return pts
}

func TestNeutralParametersAreIdentity(t *testing.T) {
	buf := frame.Filled(8, 8, [4]byte{120, 90, 80, 255}, 1)
	withFace := props{graph.PropFaceLandmark: graph.Points(testFace())}

	for _, tc := range []struct {
		name   string
		effect graph.Effect
		props  props
	}{
		{"beauty", NewBeauty(), props{}},
		{"beauty zero", NewBeauty(), props{PropSkinSmoothing: graph.Float(0), PropWhiteness: graph.Float(0)}},
		{"reshape no face", NewFaceReshape(), props{PropThinFace: graph.Float(0.5), PropBigEye: graph.Float(1)}},
		{"reshape zero", NewFaceReshape(), withFace},
		{"lipstick no face", NewLipstick(DefaultLipColor, rectMask), props{PropBlendLevel: graph.Float(5)}},
		{"lipstick zero", NewLipstick(DefaultLipColor, rectMask), withFace},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.effect.Apply(buf, tc.props)
			require.NoError(t, err)
			assert.Same(t, buf, out)
		})
	}
}

func TestReshapeIgnoresIncompleteMesh(t *testing.T) {
	buf := frame.Filled(8, 8, white, 1)
	out, err := NewFaceReshape().Apply(buf, props{
		PropThinFace:           graph.Float(0.5),
		graph.PropFaceLandmark: graph.Points(testFace()[:5]),
	})
	require.NoError(t, err)
	assert.Same(t, buf, out)
}

func TestBeautyWhitenessBrightens(t *testing.T) {
	buf := frame.Filled(4, 4, [4]byte{100, 100, 100, 255}, 3)
	before := append([]byte(nil), buf.Data...)

	out, err := NewBeauty().Apply(buf, props{PropWhiteness: graph.Float(5)})
	require.NoError(t, err)
	require.NotSame(t, buf, out)
	assert.Equal(t, before, buf.Data)
	assert.Equal(t, uint64(3), out.Seq)
	assert.Greater(t, out.Data[0], byte(100))
	assert.Equal(t, byte(255), out.Data[3])
}

func TestBeautySmoothingKeepsFlatImage(t *testing.T) {
	buf := frame.Filled(6, 6, [4]byte{180, 140, 120, 255}, 1)
	out, err := NewBeauty().Apply(buf, props{PropSkinSmoothing: graph.Float(10)})
	require.NoError(t, err)
	require.Equal(t, 6, out.Width)
	require.Equal(t, 6, out.Height)
	for i := 0; i < len(out.Data); i += 4 {
		assert.InDelta(t, 180, int(out.Data[i]), 1)
		assert.InDelta(t, 140, int(out.Data[i+1]), 1)
		assert.InDelta(t, 120, int(out.Data[i+2]), 1)
	}
}

func TestReshapeOnFlatImage(t *testing.T) {
	buf := frame.Filled(40, 40, white, 9)
	out, err := NewFaceReshape().Apply(buf, props{
		PropThinFace:           graph.Float(0.3),
		PropBigEye:             graph.Float(1.5),
		graph.PropFaceLandmark: graph.Points(testFace()),
	})
	require.NoError(t, err)
	require.NotSame(t, buf, out)
	assert.Equal(t, buf.Data, out.Data)
	assert.Equal(t, uint64(9), out.Seq)
}

func TestWarps(t *testing.T) {
	origin := frame.Point{X: 10, Y: 10}
	target := frame.Point{X: 20, Y: 10}

	w := curveWarp(origin, target, 0.5)
	assert.Equal(t, frame.Point{X: 5, Y: 10}, w(origin))
	far := frame.Point{X: 40, Y: 40}
	assert.Equal(t, far, w(far))

	e := enlarge(origin, 10, 1)
	assert.Equal(t, origin, e(origin))
	assert.Equal(t, far, e(far))
	near := e(frame.Point{X: 15, Y: 10})
	assert.Less(t, near.X, float32(15))
	assert.Greater(t, near.X, float32(10))
}

func TestLipstickTintsMouthOnly(t *testing.T) {
	buf := frame.Filled(40, 40, white, 2)
	out, err := NewLipstick(DefaultLipColor, rectMask).Apply(buf, props{
		PropBlendLevel:         graph.Float(10),
		graph.PropFaceLandmark: graph.Points(testFace()),
	})
	require.NoError(t, err)
	require.NotSame(t, buf, out)
	assert.Equal(t, byte(255), buf.Data[0])

	at := func(b *frame.PixelBuffer, x, y int) []byte {
		o := y*b.Stride() + x*4
		return b.Data[o : o+4]
	}
	center := at(out, 20, 20)
	assert.Less(t, center[1], byte(200))
	assert.Equal(t, byte(255), center[3])
	assert.Equal(t, []byte{255, 255, 255, 255}, at(out, 0, 0))
	assert.Equal(t, []byte{255, 255, 255, 255}, at(out, 39, 39))
}

func TestLipstickRejectsMisSizedMask(t *testing.T) {
	small := func([]frame.Point, image.Rectangle) (*image.Gray, error) {
		return image.NewGray(image.Rect(0, 0, 1, 1)), nil
	}
	_, err := NewLipstick(DefaultLipColor, small).Apply(frame.Filled(40, 40, white, 1), props{
		PropBlendLevel:         graph.Float(10),
		graph.PropFaceLandmark: graph.Points(testFace()),
	})
	require.Error(t, err)

	buf := frame.Filled(40, 40, white, 1)
	out, err := NewLipstick(DefaultLipColor, nil).Apply(buf, props{
		PropBlendLevel:         graph.Float(10),
		graph.PropFaceLandmark: graph.Points(testFace()),
	})
	require.NoError(t, err)
	assert.Same(t, buf, out)
}

func TestBigEyeCentersOnEyeOutlines(t *testing.T) {
	pts := meshFace()
	warps := faceWarps(pts, 0, 1)
	require.Len(t, warps, 2)

	center, radius := eyeDisc(pts, leftEyeIndices)
	assert.InDelta(t, 20, center.X, 1e-3)
	assert.InDelta(t, 20, center.Y, 1e-3)
	assert.InDelta(t, 4, radius, 1e-3)
	center, _ = eyeDisc(pts, rightEyeIndices)
	assert.InDelta(t, 44, center.X, 1e-3)

	left := warps[0]
	near := left(frame.Point{X: 24, Y: 20})
	assert.Greater(t, near.X, float32(20))
	assert.Less(t, near.X, float32(24))
	tip := pts[noseTip]
	for _, w := range warps {
		assert.Equal(t, tip, w(tip))
	}

	// A dark pupil grows; the nose does not move.
	buf := frame.Filled(64, 64, white, 1)
	paint := func(b *frame.PixelBuffer, x, y int) {
		o := y*b.Stride() + x*4
		copy(b.Data[o:o+4], []byte{0, 0, 0, 255})
	}
	for y := 17; y <= 23; y++ {
		for x := 17; x <= 23; x++ {
			if (x-20)*(x-20)+(y-20)*(y-20) <= 9 {
				paint(buf, x, y)
			}
		}
	}
	paint(buf, 32, 34)
	out, err := NewFaceReshape().Apply(buf, props{
		PropBigEye:             graph.Float(1),
		graph.PropFaceLandmark: graph.Points(pts),
	})
	require.NoError(t, err)
	at := func(b *frame.PixelBuffer, x, y int) byte { return b.Data[y*b.Stride()+x*4] }
	assert.Equal(t, byte(255), at(buf, 24, 20))
	assert.Less(t, at(out, 24, 20), byte(64))
	assert.Equal(t, byte(0), at(out, 32, 34))
}

func TestThinFacePullsJawTowardNose(t *testing.T) {
	pts := meshFace()
	warps := faceWarps(pts, 0.5, 0)
	require.NotEmpty(t, warps)

	apply := func(p frame.Point) frame.Point {
		for _, w := range warps {
			p = w(p)
		}
		return p
	}
	assert.Equal(t, pts[noseTip], apply(pts[noseTip]))
	// The chin samples from below itself, so the jaw line moves up.
	chin := apply(pts[16])
	assert.Greater(t, chin.Y, pts[16].Y)
	forehead := frame.Point{X: 32, Y: 2}
	assert.Equal(t, forehead, apply(forehead))
}

func TestFaceLandmarkInterest(t *testing.T) {
	g, err := graph.Chain(graph.Format{Width: 4, Height: 4, Pixel: frame.FormatRGBA}, "display",
		graph.Stage{Name: "lipstick", Effect: NewLipstick(DefaultLipColor, rectMask)},
		graph.Stage{Name: "beauty", Effect: NewBeauty()},
		graph.Stage{Name: "face_reshape", Effect: NewFaceReshape()},
	)
	require.NoError(t, err)

	var names []string
	for _, h := range g.NodesAccepting(graph.PropFaceLandmark) {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"lipstick", "face_reshape"}, names)

	h, err := g.Node("beauty")
	require.NoError(t, err)
	v, ok, err := h.Property(PropSkinSmoothing)
	require.NoError(t, err)
	require.True(t, ok)
	f, _ := v.AsFloat()
	assert.Zero(t, f)
}
