// Package filter contains the effects behind the beautification graph nodes.
// Every effect reads its parameters from the node's property table and
// leaves its input buffer untouched.
package filter

import (
	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

// Property names read by the effects in this package.
const (
	PropSkinSmoothing = "skin_smoothing"
	PropWhiteness     = "whiteness"
	PropThinFace      = "thin_face"
	PropBigEye        = "big_eye"
	PropBlendLevel    = "blend_level"
)

// Effect kinds.
const (
	KindBeauty      = "beauty"
	KindFaceReshape = "face_reshape"
	KindLipstick    = "lipstick"
)

// rgbaOnly is embedded by effects that only handle FormatRGBA.
type rgbaOnly struct{}

func (rgbaOnly) SupportsFormat(f frame.PixelFormat) bool { return f == frame.FormatRGBA }

func floatSpec(name string, def float32, desc string) graph.PropertySpec {
	return graph.PropertySpec{Name: name, Kind: graph.KindFloat, Default: graph.Float(def), Description: desc}
}

func landmarkSpec() graph.PropertySpec {
	return graph.PropertySpec{
		Name:        graph.PropFaceLandmark,
		Kind:        graph.KindPoints,
		Default:     graph.Points(nil),
		Description: "106 face landmarks in pixel coordinates of the current frame",
	}
}

// face returns the frame's landmarks when a complete face mesh is set.
func face(props graph.PropertyReader) ([]frame.Point, bool) {
	pts, ok := props.Points(graph.PropFaceLandmark)
	if !ok || len(pts) < frame.LandmarkCount {
		return nil, false
	}
	return pts, true
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
