// Package detector finds face landmarks with SCRFD and the insightface
// 106-point model on ONNX Runtime.
package detector

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/dudu/beautycam/internal/frame"
)

// Config holds model paths and thresholds.
type Config struct {
	SCRFDModel    string
	LandmarkModel string
	DetectionSize int
	ConfThreshold float32
	NMSThreshold  float32
	// RedetectEvery forces a full SCRFD pass every n video frames even
	// while tracking succeeds. Zero means 30.
	RedetectEvery int
}

// FaceMesh returns the 106 landmarks of the most prominent face. In video
// mode the box derived from the previous frame's landmarks is reused and
// SCRFD only runs when tracking is lost or periodically.
type FaceMesh struct {
	scrfd     *SCRFD
	landmarks *Landmark106
	redetect  int

	mu        sync.Mutex
	tracked   *BoundingBox
	sinceScan int
}

// NewFaceMesh loads both models. inference.Initialize must have been called.
func NewFaceMesh(cfg Config) (*FaceMesh, error) {
	scrfd, err := NewSCRFD(cfg.SCRFDModel, cfg.DetectionSize, cfg.ConfThreshold, cfg.NMSThreshold)
	if err != nil {
		return nil, err
	}
	lm, err := NewLandmark106(cfg.LandmarkModel)
	if err != nil {
		return nil, multierr.Append(err, scrfd.Close())
	}
	redetect := cfg.RedetectEvery
	if redetect <= 0 {
		redetect = 30
	}
	return &FaceMesh{scrfd: scrfd, landmarks: lm, redetect: redetect}, nil
}

// Detect implements the pipeline detector on an RGBA buffer.
func (m *FaceMesh) Detect(buf *frame.PixelBuffer, mode frame.DetectMode) ([]frame.Point, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	rgba, err := gocv.NewMatFromBytes(buf.Height, buf.Width, gocv.MatTypeCV8UC4, buf.Data)
	if err != nil {
		return nil, errors.Wrap(err, "wrap frame")
	}
	defer rgba.Close()
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)

	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.trackedBox(mode)
	if !ok {
		faces, err := m.scrfd.Detect(bgr)
		if err != nil {
			m.tracked = nil
			return nil, err
		}
		m.sinceScan = 0
		if len(faces) == 0 {
			m.tracked = nil
			return nil, nil
		}
		box = lo.MaxBy(faces, func(a, b Face) bool { return a.Box.Area() > b.Box.Area() }).Box
	}

	pts, err := m.landmarks.Detect(bgr, box)
	if err != nil {
		m.tracked = nil
		return nil, err
	}
	if mode == frame.DetectModeVideo {
		next := boundsOf(pts)
		m.tracked = &next
	}
	return pts, nil
}

func (m *FaceMesh) trackedBox(mode frame.DetectMode) (BoundingBox, bool) {
	if mode != frame.DetectModeVideo || m.tracked == nil {
		return BoundingBox{}, false
	}
	m.sinceScan++
	if m.sinceScan >= m.redetect {
		return BoundingBox{}, false
	}
	return *m.tracked, true
}

// Close releases both models.
func (m *FaceMesh) Close() error {
	return multierr.Combine(m.scrfd.Close(), m.landmarks.Close())
}
