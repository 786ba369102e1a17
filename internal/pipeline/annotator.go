package pipeline

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
)

// StalePolicy decides what happens to the landmark property of interested
// nodes when a frame has no face.
type StalePolicy string

const (
	// StaleClear removes face_landmark so landmark effects pass frames through.
	StaleClear StalePolicy = "clear"
	// StaleRetain keeps the last landmarks in place.
	StaleRetain StalePolicy = "retain"
)

// ParseStalePolicy accepts "clear" or "retain"; empty means clear.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", StaleClear:
		return StaleClear, nil
	case StaleRetain:
		return StaleRetain, nil
	default:
		return "", errors.Newf("unknown stale landmark policy %q", s)
	}
}

// Annotator writes each frame's landmarks into every node whose effect
// reads face_landmark.
type Annotator struct {
	targets []graph.Handle
	policy  StalePolicy
}

// NewAnnotator resolves the interested nodes of g once; topology does not
// change after construction.
func NewAnnotator(g *graph.Graph, policy StalePolicy) *Annotator {
	return &Annotator{
		targets: g.NodesAccepting(graph.PropFaceLandmark),
		policy:  policy,
	}
}

// Targets returns the names of the nodes the annotator writes to.
func (a *Annotator) Targets() []string {
	names := make([]string, len(a.targets))
	for i, h := range a.targets {
		names[i] = h.Name()
	}
	return names
}

// Annotate applies lm to the targets. It fails only when the graph has been
// torn down.
func (a *Annotator) Annotate(lm frame.Landmarks) error {
	for _, h := range a.targets {
		var err error
		switch {
		case !lm.Empty():
			err = h.SetProperty(graph.PropFaceLandmark, graph.Points(lm.Points))
		case a.policy == StaleClear:
			err = h.ClearProperty(graph.PropFaceLandmark)
		}
		if err != nil {
			return errors.Wrapf(err, "annotate %q", h.Name())
		}
	}
	return nil
}
