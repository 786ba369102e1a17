package detector

import (
	"image"

	"github.com/cockroachdb/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/inference"
)

const (
	landmarkInputSize = 192
	// The crop around a face box is this much larger than the box.
	landmarkCropScale = 1.5
)

// Landmark106 runs insightface's 2d106det model on a face crop.
type Landmark106 struct {
	session *inference.Session
}

// NewLandmark106 loads the 106-point landmark model.
func NewLandmark106(modelPath string) (*Landmark106, error) {
	session, err := inference.NewSession(modelPath, []string{"data"}, []string{"fc1"})
	if err != nil {
		return nil, errors.Wrap(err, "landmark session")
	}
	return &Landmark106{session: session}, nil
}

// Detect returns frame.LandmarkCount points for the face inside box, in
// pixel coordinates of the BGR image img.
func (l *Landmark106) Detect(img gocv.Mat, box BoundingBox) ([]frame.Point, error) {
	side := max(box.Width(), box.Height())
	if side <= 0 {
		return nil, errors.Newf("empty face box %+v", box)
	}
	center := box.Center()
	scale := float32(landmarkInputSize) / (side * landmarkCropScale)

	m := cropTransform(center, scale)
	defer m.Close()
	crop := gocv.NewMat()
	defer crop.Close()
	gocv.WarpAffine(img, &crop, m, image.Pt(landmarkInputSize, landmarkInputSize))

	blob := gocv.BlobFromImage(crop, 1.0/128.0, image.Pt(landmarkInputSize, landmarkInputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()
	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "landmark input blob")
	}

	input, err := inference.CreateTensor([]int64{1, 3, landmarkInputSize, landmarkInputSize}, data)
	if err != nil {
		return nil, errors.Wrap(err, "landmark input tensor")
	}
	defer input.Destroy()
	output, err := inference.CreateEmptyTensor[float32]([]int64{1, 2 * frame.LandmarkCount})
	if err != nil {
		return nil, errors.Wrap(err, "landmark output tensor")
	}
	defer output.Destroy()

	if err := l.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, errors.Wrap(err, "landmark inference")
	}
	return uncrop(output.GetData(), center, scale), nil
}

// cropTransform maps the image onto a square crop of the model input size
// centered on center.
func cropTransform(center frame.Point, scale float32) gocv.Mat {
	half := float64(landmarkInputSize) / 2
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, float64(scale))
	m.SetDoubleAt(0, 1, 0)
	m.SetDoubleAt(0, 2, half-float64(center.X*scale))
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, float64(scale))
	m.SetDoubleAt(1, 2, half-float64(center.Y*scale))
	return m
}

// uncrop maps model output in [-1, 1] crop space back to image pixels.
func uncrop(output []float32, center frame.Point, scale float32) []frame.Point {
	half := float32(landmarkInputSize) / 2
	pts := make([]frame.Point, frame.LandmarkCount)
	for i := range pts {
		pts[i] = frame.Point{
			X: output[2*i]*half/scale + center.X,
			Y: output[2*i+1]*half/scale + center.Y,
		}
	}
	return pts
}

// Close releases detector resources.
func (l *Landmark106) Close() error {
	return l.session.Destroy()
}
