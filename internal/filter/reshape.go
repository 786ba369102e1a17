package filter

import (
	"math"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

// Landmark layout of the insightface 2d106det model.
var (
	contourIndices  = indexRange(0, 32)
	leftEyeIndices  = indexRange(33, 42)
	rightEyeIndices = indexRange(87, 96)
)

// noseTip is the point jaw contour points are pulled toward.
const noseTip = 86

// The magnified disc around each eye is this many eye radii wide.
const eyeRadiusScale = 2

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// FaceReshape slims the jaw line and enlarges the eyes with local warps
// around the face landmarks. Without a face it passes frames through.
type FaceReshape struct {
	rgbaOnly
}

// NewFaceReshape returns a face reshape effect.
func NewFaceReshape() *FaceReshape { return &FaceReshape{} }

func (*FaceReshape) Kind() string { return KindFaceReshape }

func (*FaceReshape) Properties() []graph.PropertySpec {
	return []graph.PropertySpec{
		floatSpec(PropThinFace, 0, "face slimming strength"),
		floatSpec(PropBigEye, 0, "eye enlargement strength"),
		landmarkSpec(),
	}
}

func (*FaceReshape) Apply(buf *frame.PixelBuffer, props graph.PropertyReader) (*frame.PixelBuffer, error) {
	thin, _ := props.Float(PropThinFace)
	eye, _ := props.Float(PropBigEye)
	pts, ok := face(props)
	if !ok || (thin == 0 && eye == 0) {
		return buf, nil
	}

	warps := faceWarps(pts, thin, eye)
	out := make([]byte, len(buf.Data))
	stride := buf.Stride()
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			p := frame.Point{X: float32(x), Y: float32(y)}
			for _, w := range warps {
				p = w(p)
			}
			o := y*stride + x*frame.BytesPerPixel
			sampleBilinear(buf, p, out[o:o+frame.BytesPerPixel])
		}
	}
	return &frame.PixelBuffer{
		Data:   out,
		Width:  buf.Width,
		Height: buf.Height,
		Format: buf.Format,
		Seq:    buf.Seq,
	}, nil
}

// faceWarps returns the warps for one face, jaw first. Every second contour
// point below the nose tip is pulled toward the tip; each eye is enlarged
// around the mean of its outline.
func faceWarps(pts []frame.Point, thin, eye float32) []warp {
	var warps []warp
	if thin != 0 {
		tip := pts[noseTip]
		for i, idx := range contourIndices {
			if i%2 == 0 && pts[idx].Y > tip.Y {
				warps = append(warps, curveWarp(pts[idx], tip, thin))
			}
		}
	}
	if eye != 0 {
		for _, outline := range [][]int{leftEyeIndices, rightEyeIndices} {
			center, radius := eyeDisc(pts, outline)
			warps = append(warps, enlarge(center, radius*eyeRadiusScale, eye))
		}
	}
	return warps
}

// eyeDisc returns the center of an eye outline and the distance of its
// farthest point.
func eyeDisc(pts []frame.Point, outline []int) (frame.Point, float32) {
	var center frame.Point
	for _, i := range outline {
		center.X += pts[i].X
		center.Y += pts[i].Y
	}
	center.X /= float32(len(outline))
	center.Y /= float32(len(outline))

	var radius float32
	for _, i := range outline {
		radius = max(radius, distance(center, pts[i]))
	}
	return center, radius
}

// warp maps an output coordinate to the coordinate it samples from.
type warp func(frame.Point) frame.Point

// curveWarp drags the area around origin toward target. The pull fades out
// linearly and reaches zero at the origin-target distance.
func curveWarp(origin, target frame.Point, delta float32) warp {
	radius := distance(origin, target)
	dx := (target.X - origin.X) * delta
	dy := (target.Y - origin.Y) * delta
	return func(p frame.Point) frame.Point {
		if radius == 0 {
			return p
		}
		ratio := clamp01(1 - distance(p, origin)/radius)
		return frame.Point{X: p.X - dx*ratio, Y: p.Y - dy*ratio}
	}
}

// enlarge magnifies a disc of the given radius around center.
func enlarge(center frame.Point, radius, delta float32) warp {
	return func(p frame.Point) frame.Point {
		if radius == 0 {
			return p
		}
		w := distance(p, center) / radius
		w = clamp01(1 - (1-w*w)*delta)
		return frame.Point{X: center.X + (p.X-center.X)*w, Y: center.Y + (p.Y-center.Y)*w}
	}
}

func distance(a, b frame.Point) float32 {
	return float32(math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y)))
}

// sampleBilinear writes the pixel of buf at p into dst, clamping to the edge.
func sampleBilinear(buf *frame.PixelBuffer, p frame.Point, dst []byte) {
	maxX, maxY := float32(buf.Width-1), float32(buf.Height-1)
	x := min(max(p.X, 0), maxX)
	y := min(max(p.Y, 0), maxY)
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, buf.Width-1), min(y0+1, buf.Height-1)
	fx, fy := x-float32(x0), y-float32(y0)

	stride := buf.Stride()
	at := func(px, py, c int) float32 {
		return float32(buf.Data[py*stride+px*frame.BytesPerPixel+c])
	}
	for c := 0; c < frame.BytesPerPixel; c++ {
		top := at(x0, y0, c)*(1-fx) + at(x1, y0, c)*fx
		bottom := at(x0, y1, c)*(1-fx) + at(x1, y1, c)*fx
		dst[c] = uint8(top*(1-fy) + bottom*fy + 0.5)
	}
}
