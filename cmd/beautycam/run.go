package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dudu/beautycam/internal/camera"
	"github.com/dudu/beautycam/internal/config"
	"github.com/dudu/beautycam/internal/detector"
	"github.com/dudu/beautycam/internal/filter"
	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/graph"
	"github.com/dudu/beautycam/internal/inference"
	"github.com/dudu/beautycam/internal/logging"
	"github.com/dudu/beautycam/internal/pipeline"
	"github.com/dudu/beautycam/internal/tuning"
	"github.com/dudu/beautycam/internal/ui"
)

const statsInterval = 5 * time.Second

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-json":        "log.json",
	"camera":          "camera.index",
	"fps":             "camera.fps",
	"width":           "camera.width",
	"height":          "camera.height",
	"device-rotation": "camera.device_rotation",
	"detect":          "detector.enabled",
	"onnx-library":    "detector.library",
	"stale-landmarks": "pipeline.stale_landmarks",
	"preview":         "render.enabled",
	"mirror":          "render.mirror",
	"skin-smoothing":  "tuning.skin_smoothing",
	"whiteness":       "tuning.whiteness",
	"thin-face":       "tuning.thin_face",
	"big-eye":         "tuning.big_eye",
	"lipstick":        "tuning.lipstick",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the camera pipeline",
	Long: `Capture frames from the camera and show them beautified in a preview window.

Slider flags take positions from 0 to 100. When --config is given the file is
watched and slider changes are applied while running; a slider set by flag
keeps the flag's value.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.IntP("camera", "c", 0, "Camera device index")
	f.Int("fps", 30, "Requested capture frame rate")
	f.Int("width", 1280, "Requested capture width")
	f.Int("height", 720, "Requested capture height")
	f.Int("device-rotation", 0, "Device rotation in degrees: 0, 90, 180 or 270")
	f.Bool("detect", true, "Run face landmark detection")
	f.String("onnx-library", "", "Path to the onnxruntime shared library")
	f.String("stale-landmarks", string(pipeline.StaleClear), "Landmarks when no face is found: clear or retain")
	f.BoolP("preview", "p", true, "Show preview window")
	f.Bool("mirror", true, "Mirror front camera frames in the preview")
	f.Int("skin-smoothing", 0, "Skin smoothing slider")
	f.Int("whiteness", 0, "Whiteness slider")
	f.Int("thin-face", 0, "Thin face slider")
	f.Int("big-eye", 0, "Big eye slider")
	f.Int("lipstick", 0, "Lipstick slider")
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user actually set.
func loadConfig(cmd *cobra.Command) (*viper.Viper, *config.Config, error) {
	v, err := config.New(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := bindFlags(v, cmd); err != nil {
		return nil, nil, err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "bind --%s", name)
		}
	}
	return nil
}

func runPipeline(cmd *cobra.Command, _ []string) (err error) {
	v, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var det pipeline.Detector
	if cfg.Detector.Enabled {
		if err := inference.Initialize(cfg.Detector.Library); err != nil {
			return err
		}
		defer multierr.AppendInvoke(&err, multierr.Invoke(inference.Shutdown))

		logger.Infow("loading models", "scrfd", cfg.Detector.SCRFDModel, "landmarks", cfg.Detector.LandmarkModel)
		var mesh *detector.FaceMesh
		mesh, err = detector.NewFaceMesh(detector.Config{
			SCRFDModel:    cfg.Detector.SCRFDModel,
			LandmarkModel: cfg.Detector.LandmarkModel,
			DetectionSize: cfg.Detector.DetectionSize,
			ConfThreshold: cfg.Detector.ConfThreshold,
			NMSThreshold:  cfg.Detector.NMSThreshold,
		})
		if err != nil {
			return errors.Wrap(err, "load face mesh")
		}
		defer multierr.AppendInvoke(&err, multierr.Close(mesh))
		det = mesh
	} else {
		logger.Infow("landmark detection disabled, face filters will pass frames through")
	}

	cam, err := camera.Open(camera.Config{
		Index:             cfg.Camera.Index,
		FPS:               cfg.Camera.FPS,
		Width:             cfg.Camera.Width,
		Height:            cfg.Camera.Height,
		SensorOrientation: cfg.Camera.SensorOrientation,
		FrontFacing:       cfg.Camera.FrontFacing,
	}, logger)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(cam))

	format, err := uprightFormat(cfg, cam.Width(), cam.Height())
	if err != nil {
		return err
	}
	g, err := buildGraph(format, cfg.Pipeline.Sink)
	if err != nil {
		return err
	}
	if err := tuning.Apply(g, cfg.Tuning.Positions()); err != nil {
		return multierr.Append(err, g.Close())
	}

	var (
		window *ui.Window
		render pipeline.RenderBridge
	)
	if cfg.Render.Enabled {
		window = ui.NewWindow(cfg.Render.Title, cfg.Render.FPS, nil, logger)
		defer multierr.AppendInvoke(&err, multierr.Close(window))
		render = window
	}

	pc := cfg.PipelineConfig()
	pc.Logger = logger
	ctl, err := pipeline.New(pc, g, det, render)
	if err != nil {
		return multierr.Append(err, g.Close())
	}
	// Stop closes the graph; it must run before the detector is released.
	defer multierr.AppendInvoke(&err, multierr.Invoke(ctl.Stop))

	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(v, config.DefaultDebounce, logger)
		if err != nil {
			return err
		}
		watcher.OnReload(func(next *config.Config) error {
			return tuning.Apply(g, next.Tuning.Positions())
		})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if err := ctl.Start(egCtx); err != nil {
		return err
	}
	eg.Go(func() error {
		return cam.Run(egCtx, func(raw frame.RawFrame) {
			if _, err := ctl.Offer(raw); err != nil {
				logger.Debugw("frame refused", logging.FieldSeq, raw.Buffer.Seq, logging.FieldError, err)
			}
		})
	})
	if watcher != nil {
		eg.Go(func() error { return watcher.Run(egCtx) })
	}
	eg.Go(func() error { return reportStats(egCtx, ctl, window, clock.New(), logger) })

	logger.Infow("running", "width", format.Width, "height", format.Height,
		"detect", cfg.Detector.Enabled, "preview", cfg.Render.Enabled)

	// The window has to be driven from the main thread.
	if window != nil {
		if err := window.Run(egCtx, stop); err != nil {
			logger.Warnw("preview stopped", logging.FieldError, err)
		}
	} else {
		<-egCtx.Done()
	}
	stop()
	err = eg.Wait()

	s := ctl.Stats()
	logger.Infow("shutting down", "offered", s.Offered, "published", s.Published,
		"dropped", s.Dropped, "aborted", s.Aborted, "detection_failures", s.DetectionFailures)
	return err
}

// uprightFormat is the frame format after orientation. Rotating by 90 or
// 270 degrees swaps the camera's width and height.
func uprightFormat(cfg *config.Config, width, height int) (graph.Format, error) {
	rot, err := frame.ComputeRotation(cfg.Camera.SensorOrientation, cfg.Camera.DeviceRotation, cfg.Camera.FrontFacing)
	if err != nil {
		return graph.Format{}, err
	}
	if rot.SwapsDimensions() {
		width, height = height, width
	}
	return graph.Format{Width: width, Height: height, Pixel: frame.FormatRGBA}, nil
}

// buildGraph wires source -> lipstick -> beauty -> face_reshape -> sink.
// Nodes are named after their filter kind so tuning sliders find them.
func buildGraph(format graph.Format, sink string) (*graph.Graph, error) {
	return graph.Chain(format, sink,
		graph.Stage{Name: filter.KindLipstick, Effect: filter.NewLipstick(filter.DefaultLipColor, detector.HullMask)},
		graph.Stage{Name: filter.KindBeauty, Effect: filter.NewBeauty()},
		graph.Stage{Name: filter.KindFaceReshape, Effect: filter.NewFaceReshape()},
	)
}

// reportStats logs throughput and the last cycle's timing until ctx is done.
func reportStats(ctx context.Context, ctl *pipeline.Controller, window *ui.Window, clk clock.Clock, logger *zap.SugaredLogger) error {
	ticker := clk.Ticker(statsInterval)
	defer ticker.Stop()

	var last pipeline.Stats
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s := ctl.Stats()
		t := ctl.LastTiming()
		fields := []any{
			"published", s.Published - last.Published,
			"dropped", s.Dropped - last.Dropped,
			"aborted", s.Aborted - last.Aborted,
			"orient_ms", t.Orient.Milliseconds(),
			"detect_ms", t.Detect.Milliseconds(),
			"process_ms", t.Process.Milliseconds(),
			logging.FieldDurationMS, t.Total.Milliseconds(),
		}
		if window != nil {
			fields = append(fields, "display_fps", window.FPS())
		}
		logger.Infow("pipeline stats", fields...)
		last = s
	}
}
