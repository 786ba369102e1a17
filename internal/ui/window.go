// Package ui shows published frames in an OpenCV window.
package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/logging"
)

const (
	keyEsc = 27
	keyQ   = 'q'
)

type texture struct {
	buf           *frame.PixelBuffer
	width, height int
	hint          frame.Orientation
}

// Window is the render side of the pipeline. UpdateTexture and
// RequestRedraw may be called from any goroutine; Run must be called from
// the goroutine that created the window (the main OS thread on macOS).
type Window struct {
	window *gocv.Window
	name   string
	fps    int
	clock  clock.Clock
	logger *zap.SugaredLogger

	latest  atomic.Pointer[texture]
	redraw  chan struct{}
	shown   uint64
	current atomic.Float64
}

// NewWindow creates the preview window.
func NewWindow(name string, fps int, clk clock.Clock, logger *zap.SugaredLogger) *Window {
	if clk == nil {
		clk = clock.New()
	}
	if fps <= 0 {
		fps = 30
	}
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window: window,
		name:   name,
		fps:    fps,
		clock:  clk,
		logger: logging.Component(logger, "ui"),
		redraw: make(chan struct{}, 1),
	}
}

// UpdateTexture stores the frame to draw next. It never blocks.
func (w *Window) UpdateTexture(buf *frame.PixelBuffer, width, height int, hint frame.Orientation) {
	w.latest.Store(&texture{buf: buf, width: width, height: height, hint: hint})
}

// RequestRedraw wakes the render loop. Requests coalesce.
func (w *Window) RequestRedraw() {
	select {
	case w.redraw <- struct{}{}:
	default:
	}
}

// Run draws frames until ctx is done or the user presses q or Esc, in which
// case quit is called.
func (w *Window) Run(ctx context.Context, quit func()) error {
	ticker := w.clock.Ticker(time.Second / time.Duration(w.fps))
	defer ticker.Stop()

	var drawn *texture
	windowStart := w.clock.Now()
	var windowFrames int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.redraw:
		case <-ticker.C:
		}

		if t := w.latest.Load(); t != nil && t != drawn {
			if err := w.draw(t); err != nil {
				w.logger.Warnw("draw failed", logging.FieldSeq, t.buf.Seq, logging.FieldError, err)
			}
			drawn = t
			w.shown++
			windowFrames++
		}
		if elapsed := w.clock.Since(windowStart); elapsed >= time.Second {
			w.current.Store(float64(windowFrames) / elapsed.Seconds())
			windowFrames = 0
			windowStart = w.clock.Now()
		}

		if key := w.window.WaitKey(1); key == keyEsc || key == keyQ {
			w.logger.Infow("quit requested", "frames_shown", w.shown)
			if quit != nil {
				quit()
			}
			return nil
		}
	}
}

func (w *Window) draw(t *texture) error {
	rgba, err := gocv.NewMatFromBytes(t.height, t.width, gocv.MatTypeCV8UC4, t.buf.Data)
	if err != nil {
		return err
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	if t.hint.Mirror {
		gocv.Flip(bgr, &bgr, 1)
	}

	gocv.PutText(&bgr, fmt.Sprintf("FPS: %.1f", w.current.Load()), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	w.window.IMShow(bgr)
	return nil
}

// FPS returns the measured display rate.
func (w *Window) FPS() float64 {
	return w.current.Load()
}

// Close closes the window.
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
