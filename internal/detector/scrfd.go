package detector

import (
	"image"

	"github.com/cockroachdb/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/inference"
)

var scrfdStrides = [...]int{8, 16, 32}

const scrfdAnchors = 2 // anchors per feature map position

// SCRFD finds face boxes with the SCRFD detector. It has one input and
// nine outputs: score, bbox and keypoints for each of three strides.
type SCRFD struct {
	session       *inference.Session
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
}

// NewSCRFD loads the SCRFD model. inputSize is the square network input,
// a multiple of 32.
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32) (*SCRFD, error) {
	if inputSize <= 0 || inputSize%32 != 0 {
		return nil, errors.Newf("scrfd input size %d is not a positive multiple of 32", inputSize)
	}
	session, err := inference.NewSession(modelPath,
		[]string{"input.1"},
		[]string{
			"score_8", "score_16", "score_32",
			"bbox_8", "bbox_16", "bbox_32",
			"kps_8", "kps_16", "kps_32",
		})
	if err != nil {
		return nil, errors.Wrap(err, "scrfd session")
	}
	return &SCRFD{
		session:       session,
		inputSize:     inputSize,
		confThreshold: confThreshold,
		nmsThreshold:  nmsThreshold,
	}, nil
}

// Detect returns the faces in a BGR image, best score first.
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	blob, scale := s.preprocess(img)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "scrfd input blob")
	}
	size := int64(s.inputSize)
	input, err := inference.CreateTensor([]int64{1, 3, size, size}, data)
	if err != nil {
		return nil, errors.Wrap(err, "scrfd input tensor")
	}
	defer input.Destroy()

	outputs := make([]*ort.Tensor[float32], 3*len(scrfdStrides))
	defer func() {
		for _, t := range outputs {
			if t != nil {
				t.Destroy()
			}
		}
	}()
	widths := [...]int64{1, 4, 10} // score, bbox, kps
	for kind, width := range widths {
		for level, stride := range scrfdStrides {
			n := int64((s.inputSize / stride) * (s.inputSize / stride) * scrfdAnchors)
			t, err := inference.CreateEmptyTensor[float32]([]int64{n, width})
			if err != nil {
				return nil, errors.Wrap(err, "scrfd output tensor")
			}
			outputs[kind*len(scrfdStrides)+level] = t
		}
	}

	values := make([]ort.Value, len(outputs))
	for i, t := range outputs {
		values[i] = t
	}
	if err := s.session.Run([]ort.Value{input}, values); err != nil {
		return nil, errors.Wrap(err, "scrfd inference")
	}

	var faces []Face
	for level, stride := range scrfdStrides {
		faces = append(faces, s.decode(stride,
			outputs[level].GetData(),
			outputs[len(scrfdStrides)+level].GetData(),
			outputs[2*len(scrfdStrides)+level].GetData(),
			scale, img.Cols(), img.Rows())...)
	}
	return nms(faces, s.nmsThreshold), nil
}

// preprocess letterboxes img into the top-left of a square input and
// returns an RGB NCHW blob normalized to (x - 127.5) / 128.
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	scale := float32(s.inputSize) / float32(max(img.Rows(), img.Cols()))
	w := int(float32(img.Cols()) * scale)
	h := int(float32(img.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, w, h))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// decode turns one stride level of raw outputs into faces in image
// coordinates. Distances are predicted in units of the stride.
func (s *SCRFD) decode(stride int, scores, boxes, kps []float32, scale float32, width, height int) []Face {
	var faces []Face
	fm := s.inputSize / stride
	st := float32(stride)
	idx := 0
	for y := 0; y < fm; y++ {
		for x := 0; x < fm; x++ {
			cx := float32(x) * st
			cy := float32(y) * st
			for a := 0; a < scrfdAnchors; a, idx = a+1, idx+1 {
				// the exported model applies the sigmoid itself
				score := scores[idx]
				if score < s.confThreshold {
					continue
				}

				b := boxes[idx*4 : idx*4+4]
				face := Face{
					Box: BoundingBox{
						X1: clamp((cx-b[0]*st)/scale, 0, float32(width)),
						Y1: clamp((cy-b[1]*st)/scale, 0, float32(height)),
						X2: clamp((cx+b[2]*st)/scale, 0, float32(width)),
						Y2: clamp((cy+b[3]*st)/scale, 0, float32(height)),
					},
					Score: score,
				}
				k := kps[idx*10 : idx*10+10]
				for i := range face.Keypoints {
					face.Keypoints[i] = frame.Point{
						X: (cx + k[2*i]*st) / scale,
						Y: (cy + k[2*i+1]*st) / scale,
					}
				}
				faces = append(faces, face)
			}
		}
	}
	return faces
}

// Close releases detector resources.
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func clamp(x, lo, hi float32) float32 {
	return min(max(x, lo), hi)
}
