package detector

import (
	"slices"

	"github.com/samber/lo"
)

// nms performs non-maximum suppression, keeping the best scoring face of
// every group overlapping by more than iouThreshold.
func nms(faces []Face, iouThreshold float32) []Face {
	slices.SortFunc(faces, func(a, b Face) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	suppressed := make([]bool, len(faces))
	for i := range faces {
		if suppressed[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if !suppressed[j] && iou(faces[i].Box, faces[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return lo.Filter(faces, func(_ Face, i int) bool { return !suppressed[i] })
}

// iou calculates intersection over union of two boxes.
func iou(a, b BoundingBox) float32 {
	x1, y1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	x2, y2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
