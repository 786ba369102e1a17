// Package pipeline drives frames from the camera through orientation,
// landmark detection and the filter graph to the renderer.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
	"github.com/dudu/beautycam/internal/logging"
)

// Config holds pipeline configuration.
type Config struct {
	// DeviceRotation is the clockwise rotation of the device from its
	// natural orientation, in degrees.
	DeviceRotation int
	StalePolicy    StalePolicy
	DetectMode     frame.DetectMode
	// Sink names the sink whose frames go to the renderer. Empty picks
	// the first sink.
	Sink string
	// Mirror asks the renderer to flip front camera frames.
	Mirror bool

	Logger *zap.SugaredLogger
	Clock  clock.Clock
}

// Controller runs the per-frame state machine. Frames come in through Offer
// from the capture goroutine and are processed one at a time on the
// controller's worker goroutine.
type Controller struct {
	config   Config
	graph    *graph.Graph
	sink     *graph.FrameSink
	detector Detector
	render   RenderBridge
	annot    *Annotator
	clock    clock.Clock
	logger   *zap.SugaredLogger

	// handoff slot
	mu      sync.Mutex
	cond    *sync.Cond
	pending *frame.RawFrame
	busy    bool
	quit    bool
	stopped bool
	started bool
	done    chan struct{}

	// cycle serializes ProcessFrame so no node sees two frames at once.
	cycle sync.Mutex

	state      atomic.Int32
	lastTiming atomic.Pointer[Timing]

	offered   atomic.Uint64
	dropped   atomic.Uint64
	published atomic.Uint64
	aborted   atomic.Uint64
	detectErr atomic.Uint64

	dropLog   rate.Sometimes
	abortLog  rate.Sometimes
	detectLog rate.Sometimes
}

// New creates a controller around a built graph. det and render may be nil:
// without a detector every frame has empty landmarks, without a renderer
// frames are only published to the sink.
func New(config Config, g *graph.Graph, det Detector, render RenderBridge) (*Controller, error) {
	if g == nil {
		return nil, errors.Mark(errors.New("nil graph"), graph.ErrGraphMisconfigured)
	}
	if _, err := frame.NormalizeRotation(config.DeviceRotation); err != nil {
		return nil, errors.Wrap(err, "device rotation")
	}
	if config.StalePolicy == "" {
		config.StalePolicy = StaleClear
	}
	if _, err := ParseStalePolicy(string(config.StalePolicy)); err != nil {
		return nil, err
	}

	var sink *graph.FrameSink
	if config.Sink == "" {
		sinks := g.Sinks()
		if len(sinks) == 0 {
			return nil, errors.Mark(errors.New("graph has no sink"), graph.ErrGraphMisconfigured)
		}
		sink = sinks[0]
	} else {
		s, err := g.Sink(config.Sink)
		if err != nil {
			return nil, errors.Mark(err, graph.ErrGraphMisconfigured)
		}
		sink = s
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	c := &Controller{
		config:    config,
		graph:     g,
		sink:      sink,
		detector:  det,
		render:    render,
		annot:     NewAnnotator(g, config.StalePolicy),
		clock:     clk,
		logger:    logging.Component(config.Logger, "pipeline"),
		done:      make(chan struct{}),
		dropLog:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
		abortLog:  rate.Sometimes{First: 3, Interval: 5 * time.Second},
		detectLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	c.cond = sync.NewCond(&c.mu)
	c.logger.Debugw("pipeline ready",
		"sink", sink.Name(),
		"landmark_targets", c.annot.Targets(),
		"stale_landmarks", config.StalePolicy)
	return c, nil
}

// Start launches the worker goroutine. The worker exits when ctx is done or
// Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return graph.ErrResourceTornDown
	}
	if c.started {
		return errors.New("pipeline already started")
	}
	c.started = true
	context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.quit = true
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	go c.loop(ctx)
	return nil
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	for {
		raw, ok := c.next()
		if !ok {
			return
		}
		_ = c.ProcessFrame(ctx, raw)

		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}
}

// next blocks until a frame is pending and takes it.
func (c *Controller) next() (frame.RawFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending == nil && !c.quit && !c.stopped {
		c.cond.Wait()
	}
	if c.quit || c.stopped {
		if c.pending != nil {
			c.pending = nil
			c.dropped.Inc()
		}
		return frame.RawFrame{}, false
	}
	raw := *c.pending
	c.pending = nil
	c.busy = true
	return raw, true
}

// Offer hands a captured frame to the controller without blocking. While a
// frame is pending or being processed the new frame is discarded and Offer
// returns false. After Stop, or once the context given to Start is done, it
// returns ErrResourceTornDown.
func (c *Controller) Offer(raw frame.RawFrame) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.quit {
		return false, graph.ErrResourceTornDown
	}
	c.offered.Inc()
	if c.pending != nil || c.busy {
		n := c.dropped.Inc()
		c.dropLog.Do(func() {
			c.logger.Infow("dropping frame, pipeline busy", logging.FieldSeq, seqOf(raw), "dropped_total", n)
		})
		return false, nil
	}
	c.pending = &raw
	c.cond.Signal()
	return true, nil
}

// ProcessFrame runs one full cycle on the calling goroutine: orient,
// detect, annotate, run the graph and hand the result to the renderer. An
// error means the frame was dropped; the controller stays usable.
func (c *Controller) ProcessFrame(ctx context.Context, raw frame.RawFrame) error {
	c.cycle.Lock()
	defer c.cycle.Unlock()

	start := c.clock.Now()
	var timing Timing
	c.setState(StateCaptured)
	if c.graph.Closed() {
		return c.abort(raw, graph.ErrResourceTornDown)
	}

	// Oriented
	stageStart := c.clock.Now()
	rotation, err := frame.ComputeRotation(raw.SensorOrientation, c.config.DeviceRotation, raw.FrontFacing)
	if err != nil {
		return c.abort(raw, errors.Mark(err, graph.ErrInvalidFormat))
	}
	oriented, err := frame.Orient(raw.Buffer, rotation)
	if err != nil {
		return c.abort(raw, errors.Mark(err, graph.ErrInvalidFormat))
	}
	// A frame the graph would reject must not reach the detector or the
	// node properties.
	if err := c.graph.Format().Check(oriented); err != nil {
		return c.abort(raw, err)
	}
	timing.Orient = c.clock.Since(stageStart)
	c.setState(StateOriented)

	// Detected
	stageStart = c.clock.Now()
	landmarks := c.detect(oriented)
	timing.Detect = c.clock.Since(stageStart)
	c.setState(StateDetected)

	// Annotated
	stageStart = c.clock.Now()
	if err := c.annot.Annotate(landmarks); err != nil {
		return c.abort(raw, err)
	}
	timing.Annotate = c.clock.Since(stageStart)
	c.setState(StateAnnotated)

	// Processed
	stageStart = c.clock.Now()
	if err := c.graph.Run(ctx, oriented); err != nil {
		return c.abort(raw, err)
	}
	timing.Process = c.clock.Since(stageStart)
	c.setState(StateProcessed)

	// Published
	if pub := c.sink.Latest(); pub != nil && c.render != nil {
		hint := frame.Orientation{Mirror: c.config.Mirror && raw.FrontFacing}
		c.render.UpdateTexture(pub.Buffer, pub.Width, pub.Height, hint)
		c.render.RequestRedraw()
	}
	c.published.Inc()
	c.setState(StatePublished)

	timing.Total = c.clock.Since(start)
	c.lastTiming.Store(&timing)
	c.logger.Debugw("frame published",
		logging.FieldSeq, oriented.Seq,
		"rotation", int(rotation),
		"faces", !landmarks.Empty(),
		logging.FieldDurationMS, timing.Total.Milliseconds())
	return nil
}

func (c *Controller) detect(buf *frame.PixelBuffer) frame.Landmarks {
	lm := frame.Landmarks{Seq: buf.Seq}
	if c.detector == nil {
		return lm
	}
	pts, err := c.detector.Detect(buf, c.config.DetectMode)
	if err == nil && len(pts) != 0 && len(pts) != frame.LandmarkCount {
		err = errors.Newf("detector returned %d points, want %d", len(pts), frame.LandmarkCount)
	}
	if err != nil {
		err = errors.Mark(err, ErrDetectionFailure)
		c.detectErr.Inc()
		c.detectLog.Do(func() {
			c.logger.Warnw("landmark detection failed", logging.FieldSeq, buf.Seq, logging.FieldError, err)
		})
		return lm
	}
	lm.Points = pts
	return lm
}

func (c *Controller) abort(raw frame.RawFrame, err error) error {
	c.setState(StateDropped)
	c.aborted.Inc()
	if !errors.Is(err, graph.ErrResourceTornDown) {
		c.abortLog.Do(func() {
			c.logger.Warnw("frame dropped", logging.FieldSeq, seqOf(raw), logging.FieldError, err)
		})
	}
	return err
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// State returns the state of the current or most recent cycle.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// LastTiming returns timing from the last published cycle.
func (c *Controller) LastTiming() Timing {
	if t := c.lastTiming.Load(); t != nil {
		return *t
	}
	return Timing{}
}

// Stats returns a snapshot of the lifetime counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Offered:           c.offered.Load(),
		Dropped:           c.dropped.Load(),
		Published:         c.published.Load(),
		Aborted:           c.aborted.Load(),
		DetectionFailures: c.detectErr.Load(),
	}
}

// Graph returns the controlled graph.
func (c *Controller) Graph() *graph.Graph { return c.graph }

// Sink returns the sink frames are rendered from.
func (c *Controller) Sink() *graph.FrameSink { return c.sink }

// Stop tears the pipeline down: new offers are rejected, the worker is
// woken and joined after its current cycle, and then the graph is closed.
// Stop is idempotent.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	if c.pending != nil {
		c.pending = nil
		c.dropped.Inc()
	}
	started := c.started
	c.cond.Broadcast()
	c.mu.Unlock()

	if started {
		<-c.done
	}
	if err := c.graph.Close(); err != nil {
		return errors.Wrap(err, "close graph")
	}
	c.logger.Infow("pipeline stopped", "published", c.published.Load(), "dropped", c.dropped.Load())
	return nil
}

func seqOf(raw frame.RawFrame) uint64 {
	if raw.Buffer == nil {
		return 0
	}
	return raw.Buffer.Seq
}
