package filter

import (
	"image"
	"image/color"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

// Mouth region of the 106-point layout.
const (
	mouthFirst = 52
	mouthLast  = 71
)

const (
	lipMaxOpacity = 0.6
	lipFeather    = 2.0
)

// DefaultLipColor is the tint used when none is configured.
var DefaultLipColor = color.NRGBA{R: 196, G: 32, B: 72, A: 255}

// MaskFunc fills the convex hull of points into a mask covering box, with
// mask pixel (0, 0) at box.Min.
type MaskFunc func(points []frame.Point, box image.Rectangle) (*image.Gray, error)

// Lipstick tints the lips toward a color inside a feathered mouth mask.
type Lipstick struct {
	rgbaOnly
	color color.NRGBA
	mask  MaskFunc
}

// NewLipstick returns a lipstick effect painting with c inside the mouth
// outline rendered by mask. With a nil mask the effect passes frames
// through.
func NewLipstick(c color.NRGBA, mask MaskFunc) *Lipstick {
	return &Lipstick{color: c, mask: mask}
}

func (*Lipstick) Kind() string { return KindLipstick }

func (*Lipstick) Properties() []graph.PropertySpec {
	return []graph.PropertySpec{
		floatSpec(PropBlendLevel, 0, "lip tint level, 0 (off) to 10"),
		landmarkSpec(),
	}
}

func (l *Lipstick) Apply(buf *frame.PixelBuffer, props graph.PropertyReader) (*frame.PixelBuffer, error) {
	level, _ := props.Float(PropBlendLevel)
	pts, ok := face(props)
	if !ok || level <= 0 || l.mask == nil {
		return buf, nil
	}
	mouth := pts[mouthFirst : mouthLast+1]

	pad := int(math.Ceil(3 * lipFeather))
	box := bounds(mouth).Inset(-pad).Intersect(image.Rect(0, 0, buf.Width, buf.Height))
	if box.Empty() {
		return buf, nil
	}

	mask, err := l.mask(mouth, box)
	if err != nil {
		return nil, errors.Wrap(err, "mouth mask")
	}
	if mask.Bounds().Size() != box.Size() {
		return nil, errors.Newf("mouth mask is %v, want %v", mask.Bounds().Size(), box.Size())
	}
	soft := imaging.Blur(mask, lipFeather)

	strength := clamp01(level/beautyMaxLevel) * lipMaxOpacity
	tint := [3]float32{float32(l.color.R), float32(l.color.G), float32(l.color.B)}
	out := buf.Clone()
	stride := out.Stride()
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			a := float32(soft.Pix[y*soft.Stride+x*4]) / 0xff * strength
			if a == 0 {
				continue
			}
			o := (box.Min.Y+y)*stride + (box.Min.X+x)*frame.BytesPerPixel
			for c := 0; c < 3; c++ {
				v := float32(out.Data[o+c])
				out.Data[o+c] = uint8(v + (tint[c]-v)*a + 0.5)
			}
		}
	}
	return out, nil
}

func bounds(pts []frame.Point) image.Rectangle {
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := float32(-math.MaxFloat32), float32(-math.MaxFloat32)
	for _, p := range pts {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(float64(minX))), int(math.Floor(float64(minY))),
		int(math.Ceil(float64(maxX)))+1, int(math.Ceil(float64(maxY)))+1)
}
