// Package camera reads frames from a local video device.
package camera

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/logging"
)

// maxReadFailures is how many consecutive empty reads end Run.
const maxReadFailures = 100

// ErrClosed is returned by reads after Close.
var ErrClosed = errors.New("camera closed")

// FrameHandler receives every captured frame. It must not block; the
// pipeline's Offer is the intended handler.
type FrameHandler func(raw frame.RawFrame)

// Config selects the device and the requested capture mode.
type Config struct {
	Index             int
	FPS               int
	Width             int
	Height            int
	SensorOrientation int
	FrontFacing       bool
}

// Capture manages webcam capture.
type Capture struct {
	config Config
	width  int
	height int
	seq    atomic.Uint64
	logger *zap.SugaredLogger

	mu     sync.Mutex
	webcam *gocv.VideoCapture
	bgr    gocv.Mat
	rgba   gocv.Mat
}

// Open opens the device. The camera may not support the requested size;
// Width and Height report what it actually delivers.
func Open(cfg Config, logger *zap.SugaredLogger) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, errors.Wrapf(err, "open camera %d", cfg.Index)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	webcam.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	c := &Capture{
		config: cfg,
		width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
		logger: logging.Component(logger, "camera"),
		webcam: webcam,
		bgr:    gocv.NewMat(),
		rgba:   gocv.NewMat(),
	}
	c.logger.Infow("camera opened", "index", cfg.Index, "width", c.width, "height", c.height, "fps", cfg.FPS)
	return c, nil
}

// Width returns frame width.
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height.
func (c *Capture) Height() int {
	return c.height
}

// Read captures one frame. Every frame gets a freshly allocated buffer and
// the next sequence number.
func (c *Capture) Read() (frame.RawFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return frame.RawFrame{}, ErrClosed
	}
	if !c.webcam.Read(&c.bgr) || c.bgr.Empty() {
		return frame.RawFrame{}, errors.New("empty frame")
	}
	gocv.CvtColor(c.bgr, &c.rgba, gocv.ColorBGRToRGBA)

	buf, err := frame.NewPixelBuffer(c.rgba.ToBytes(), c.rgba.Cols(), c.rgba.Rows(), c.seq.Inc())
	if err != nil {
		return frame.RawFrame{}, errors.Wrap(err, "captured frame")
	}
	return frame.RawFrame{
		Buffer:            buf,
		SensorOrientation: c.config.SensorOrientation,
		FrontFacing:       c.config.FrontFacing,
	}, nil
}

// Run reads frames and hands them to handle until ctx is done or the camera
// keeps failing.
func (c *Capture) Run(ctx context.Context, handle FrameHandler) error {
	failures := 0
	for ctx.Err() == nil {
		raw, err := c.Read()
		switch {
		case errors.Is(err, ErrClosed):
			return nil
		case err != nil:
			failures++
			if failures >= maxReadFailures {
				return errors.Wrapf(err, "camera %d: %d reads in a row failed", c.config.Index, failures)
			}
			continue
		}
		failures = 0
		handle(raw)
	}
	return nil
}

// Close releases the camera. A Run in progress returns after its current
// read.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil
	}
	err := c.webcam.Close()
	c.webcam = nil
	c.bgr.Close()
	c.rgba.Close()
	return err
}
