// Package tuning maps UI slider positions onto filter parameters.
package tuning

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/dudu/beautycam/internal/filter"
	"github.com/dudu/beautycam/internal/graph"
)

// Slider positions run from 0 to MaxPosition.
const MaxPosition = 100

// Slider names.
const (
	SkinSmoothing = "skin_smoothing"
	Whiteness     = "whiteness"
	ThinFace      = "thin_face"
	BigEye        = "big_eye"
	Lipstick      = "lipstick"
)

// Slider binds one control to a filter property.
type Slider struct {
	Name     string
	Filter   string
	Property string
	Divisor  float32
}

// Value converts a slider position into the property value.
func (s Slider) Value(position int) float32 {
	return float32(position) / s.Divisor
}

// Sliders returns the standard controls, assuming the standard node names.
func Sliders() []Slider {
	return []Slider{
		{SkinSmoothing, filter.KindBeauty, filter.PropSkinSmoothing, 10},
		{Whiteness, filter.KindBeauty, filter.PropWhiteness, 10},
		{ThinFace, filter.KindFaceReshape, filter.PropThinFace, 160},
		{BigEye, filter.KindFaceReshape, filter.PropBigEye, 40},
		{Lipstick, filter.KindLipstick, filter.PropBlendLevel, 10},
	}
}

// Positions are slider positions keyed by slider name.
type Positions map[string]int

// Apply sets the property behind every slider present in positions.
// Positions outside [0, MaxPosition] and unknown sliders are rejected
// without touching the graph.
func Apply(g *graph.Graph, positions Positions) error {
	sliders := lo.KeyBy(Sliders(), func(s Slider) string { return s.Name })

	var errs error
	for name, pos := range positions {
		if _, ok := sliders[name]; !ok {
			errs = multierr.Append(errs, errors.Newf("unknown slider %q", name))
		}
		if pos < 0 || pos > MaxPosition {
			errs = multierr.Append(errs, errors.Newf("slider %q position %d out of range 0..%d", name, pos, MaxPosition))
		}
	}
	if errs != nil {
		return errs
	}

	for _, name := range lo.Keys(positions) {
		s := sliders[name]
		if err := g.SetProperty(s.Filter, s.Property, graph.Float(s.Value(positions[name]))); err != nil {
			return errors.Wrapf(err, "slider %q", name)
		}
	}
	return nil
}
