package graph

import (
	"sync"

	"github.com/samber/lo"

	"github.com/dudu/beautycam/internal/frame"
)

// PropFaceLandmark is the property carrying the current frame's landmarks.
const PropFaceLandmark = "face_landmark"

// ValueKind is the type of a property value.
type ValueKind int

const (
	KindFloat ValueKind = iota
	KindPoints
)

func (k ValueKind) String() string {
	if k == KindPoints {
		return "points"
	}
	return "float"
}

// Value is a property value: a scalar or a point sequence. Point data is
// copied on the way in and out so a stored value is never shared.
type Value struct {
	kind   ValueKind
	scalar float32
	points []frame.Point
}

// Float builds a scalar value.
func Float(v float32) Value {
	return Value{kind: KindFloat, scalar: v}
}

// Points builds a point sequence value.
func Points(pts []frame.Point) Value {
	return Value{kind: KindPoints, points: frame.ClonePoints(pts)}
}

// Kind returns the value type.
func (v Value) Kind() ValueKind { return v.kind }

// AsFloat returns the scalar, false if v holds points.
func (v Value) AsFloat() (float32, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.scalar, true
}

// AsPoints returns a copy of the points, false if v holds a scalar.
func (v Value) AsPoints() ([]frame.Point, bool) {
	if v.kind != KindPoints {
		return nil, false
	}
	return frame.ClonePoints(v.points), true
}

// PropertySpec describes a property an effect reads.
type PropertySpec struct {
	Name        string
	Kind        ValueKind
	Default     Value
	Description string
}

// PropertyReader is the read side of a node's property table handed to
// effects during Apply.
type PropertyReader interface {
	Float(name string) (float32, bool)
	Points(name string) ([]frame.Point, bool)
}

// properties is a per-node table. Each key is read and written atomically;
// nothing is guaranteed across keys.
type properties struct {
	mu     sync.RWMutex
	values map[string]Value
}

func newProperties(specs []PropertySpec) *properties {
	p := &properties{values: make(map[string]Value, len(specs))}
	for _, s := range specs {
		if s.Kind == KindPoints && len(s.Default.points) == 0 {
			continue
		}
		p.values[s.Name] = s.Default
	}
	return p
}

func (p *properties) set(name string, v Value) {
	if v.kind == KindPoints {
		v.points = frame.ClonePoints(v.points)
	}
	p.mu.Lock()
	p.values[name] = v
	p.mu.Unlock()
}

func (p *properties) clear(name string) {
	p.mu.Lock()
	delete(p.values, name)
	p.mu.Unlock()
}

func (p *properties) get(name string) (Value, bool) {
	p.mu.RLock()
	v, ok := p.values[name]
	p.mu.RUnlock()
	return v, ok
}

func (p *properties) snapshot() map[string]Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Assign(p.values)
}

func (p *properties) Float(name string) (float32, bool) {
	v, ok := p.get(name)
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

func (p *properties) Points(name string) ([]frame.Point, bool) {
	v, ok := p.get(name)
	if !ok {
		return nil, false
	}
	return v.AsPoints()
}
