package detector

import "github.com/dudu/beautycam/internal/frame"

// BoundingBox is a face box in pixel coordinates.
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width.
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height.
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point.
func (b BoundingBox) Center() frame.Point {
	return frame.Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area.
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// boundsOf returns the tight box around pts.
func boundsOf(pts []frame.Point) BoundingBox {
	if len(pts) == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{X1: pts[0].X, Y1: pts[0].Y, X2: pts[0].X, Y2: pts[0].Y}
	for _, p := range pts[1:] {
		b.X1, b.X2 = min(b.X1, p.X), max(b.X2, p.X)
		b.Y1, b.Y2 = min(b.Y1, p.Y), max(b.Y2, p.Y)
	}
	return b
}

// Face is one SCRFD detection: a box, five keypoints (eyes, nose, mouth
// corners) and a confidence score.
type Face struct {
	Box       BoundingBox
	Keypoints [5]frame.Point
	Score     float32
}
