package filter

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

const (
	// Parameters are slider/10, so 10 is the strongest setting.
	beautyMaxLevel = 10

	maxSmoothingOpacity = 0.85
	minBlurSigma        = 1.0
	blurSigmaPerLevel   = 0.4
	gammaPerLevel       = 0.06
)

// Beauty smooths skin by mixing a blurred copy over the frame and whitens it
// with a gamma lift.
type Beauty struct {
	rgbaOnly
}

// NewBeauty returns a beauty effect.
func NewBeauty() *Beauty { return &Beauty{} }

func (*Beauty) Kind() string { return KindBeauty }

func (*Beauty) Properties() []graph.PropertySpec {
	return []graph.PropertySpec{
		floatSpec(PropSkinSmoothing, 0, "skin smoothing level, 0 (off) to 10"),
		floatSpec(PropWhiteness, 0, "whitening level, 0 (off) to 10"),
	}
}

func (*Beauty) Apply(buf *frame.PixelBuffer, props graph.PropertyReader) (*frame.PixelBuffer, error) {
	smoothing, _ := props.Float(PropSkinSmoothing)
	whiteness, _ := props.Float(PropWhiteness)
	if smoothing <= 0 && whiteness <= 0 {
		return buf, nil
	}

	src := buf.Image()
	var out *image.NRGBA
	if smoothing > 0 {
		sigma := minBlurSigma + float64(smoothing)*blurSigmaPerLevel
		opacity := float64(clamp01(smoothing/beautyMaxLevel)) * maxSmoothingOpacity
		out = imaging.Overlay(src, imaging.Blur(src, sigma), image.Point{}, opacity)
	} else {
		out = imaging.Clone(src)
	}
	if whiteness > 0 {
		out = imaging.AdjustGamma(out, 1+float64(whiteness)*gammaPerLevel)
	}
	return frame.FromImage(out, buf.Seq), nil
}
