package detector

import (
	"image"
	"image/color"
	"math"

	"github.com/cockroachdb/errors"
	"gocv.io/x/gocv"

	"github.com/dudu/beautycam/internal/frame"
)

// HullMask fills the convex hull of points into a mask covering box. Mask
// pixel (0, 0) is box.Min; inside the hull it is 0xff, elsewhere 0.
func HullMask(points []frame.Point, box image.Rectangle) (*image.Gray, error) {
	if box.Empty() {
		return nil, errors.Newf("empty mask box %v", box)
	}
	w, h := box.Dx(), box.Dy()
	if len(points) < 3 {
		return image.NewGray(image.Rect(0, 0, w, h)), nil
	}

	local := make([]image.Point, len(points))
	for i, p := range points {
		local[i] = image.Pt(
			int(math.Round(float64(p.X)))-box.Min.X,
			int(math.Round(float64(p.Y)))-box.Min.Y,
		)
	}
	pointsVec := gocv.NewPointVectorFromPoints(local)
	defer pointsVec.Close()

	// Without returnPoints the hull holds indices into local.
	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(pointsVec, &hull, true, false)

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8U)
	defer mask.Close()
	if n := hull.Rows() * hull.Cols(); n >= 3 {
		outline := make([]image.Point, n)
		for i := range outline {
			outline[i] = local[hull.GetIntAt(i, 0)]
		}
		polys := gocv.NewPointsVectorFromPoints([][]image.Point{outline})
		defer polys.Close()
		gocv.FillPoly(&mask, polys, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}

	return &image.Gray{Pix: mask.ToBytes(), Stride: w, Rect: image.Rect(0, 0, w, h)}, nil
}
