package frame

// LandmarkCount is the number of points in a complete face mesh, following
// the insightface 106-point layout.
const LandmarkCount = 106

// Point is a 2D point in pixel coordinates of the oriented frame.
type Point struct {
	X, Y float32
}

// Landmarks is the set of facial keypoints detected on the frame with
// sequence number Seq. Points is empty when no face was found.
type Landmarks struct {
	Seq    uint64
	Points []Point
}

// Empty reports whether no landmarks were detected.
func (l Landmarks) Empty() bool {
	return len(l.Points) == 0
}

// DetectMode tells the detector whether frames are part of a stream (tracking
// between frames allowed) or independent stills.
type DetectMode int

const (
	DetectModeVideo DetectMode = iota
	DetectModeImage
)

func (m DetectMode) String() string {
	if m == DetectModeImage {
		return "image"
	}
	return "video"
}

// ClonePoints returns a copy of pts, or nil for an empty input.
func ClonePoints(pts []Point) []Point {
	if len(pts) == 0 {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}
