// Package config loads beautycam settings from defaults, an optional
// config file and BEAUTYCAM_* environment variables.
package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/dudu/beautycam/internal/frame"
	"github.com/dudu/beautycam/internal/pipeline"
	"github.com/dudu/beautycam/internal/tuning"
)

// EnvPrefix prefixes environment overrides, e.g. BEAUTYCAM_CAMERA_INDEX.
const EnvPrefix = "BEAUTYCAM"

// Config is the full application configuration.
type Config struct {
	Camera   CameraConfig   `mapstructure:"camera"`
	Detector DetectorConfig `mapstructure:"detector"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Tuning   TuningConfig   `mapstructure:"tuning"`
	Render   RenderConfig   `mapstructure:"render"`
	Log      LogConfig      `mapstructure:"log"`
}

type CameraConfig struct {
	Index  int `mapstructure:"index"`
	FPS    int `mapstructure:"fps"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	// SensorOrientation is reported with every frame; webcams are upright.
	SensorOrientation int  `mapstructure:"sensor_orientation"`
	FrontFacing       bool `mapstructure:"front_facing"`
	DeviceRotation    int  `mapstructure:"device_rotation"`
}

type DetectorConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Library       string  `mapstructure:"library"`
	SCRFDModel    string  `mapstructure:"scrfd_model"`
	LandmarkModel string  `mapstructure:"landmark_model"`
	DetectionSize int     `mapstructure:"detection_size"`
	ConfThreshold float32 `mapstructure:"conf_threshold"`
	NMSThreshold  float32 `mapstructure:"nms_threshold"`
	Mode          string  `mapstructure:"mode"`
}

type PipelineConfig struct {
	StaleLandmarks string `mapstructure:"stale_landmarks"`
	Sink           string `mapstructure:"sink"`
}

// TuningConfig holds slider positions, 0 to 100.
type TuningConfig struct {
	SkinSmoothing int `mapstructure:"skin_smoothing"`
	Whiteness     int `mapstructure:"whiteness"`
	ThinFace      int `mapstructure:"thin_face"`
	BigEye        int `mapstructure:"big_eye"`
	Lipstick      int `mapstructure:"lipstick"`
}

type RenderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Title   string `mapstructure:"title"`
	FPS     int    `mapstructure:"fps"`
	Mirror  bool   `mapstructure:"mirror"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("camera.index", 0)
	v.SetDefault("camera.fps", 30)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.sensor_orientation", 0)
	v.SetDefault("camera.front_facing", true)
	v.SetDefault("camera.device_rotation", 0)

	v.SetDefault("detector.enabled", true)
	v.SetDefault("detector.library", "")
	v.SetDefault("detector.scrfd_model", "models/scrfd_10g.onnx")
	v.SetDefault("detector.landmark_model", "models/2d106det.onnx")
	v.SetDefault("detector.detection_size", 640)
	v.SetDefault("detector.conf_threshold", 0.5)
	v.SetDefault("detector.nms_threshold", 0.4)
	v.SetDefault("detector.mode", frame.DetectModeVideo.String())

	v.SetDefault("pipeline.stale_landmarks", string(pipeline.StaleClear))
	v.SetDefault("pipeline.sink", "display")

	v.SetDefault("tuning.skin_smoothing", 0)
	v.SetDefault("tuning.whiteness", 0)
	v.SetDefault("tuning.thin_face", 0)
	v.SetDefault("tuning.big_eye", 0)
	v.SetDefault("tuning.lipstick", 0)

	v.SetDefault("render.enabled", true)
	v.SetDefault("render.title", "beautycam")
	v.SetDefault("render.fps", 30)
	v.SetDefault("render.mirror", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// New returns a viper instance with defaults and environment binding.
// When path is set the file is read as well.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return v, nil
}

// Load reads defaults, the optional file at path and the environment.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if _, err := frame.NormalizeRotation(c.Camera.SensorOrientation); err != nil {
		return errors.WithHint(errors.Wrap(err, "camera.sensor_orientation"), "use 0, 90, 180 or 270")
	}
	if _, err := frame.NormalizeRotation(c.Camera.DeviceRotation); err != nil {
		return errors.WithHint(errors.Wrap(err, "camera.device_rotation"), "use 0, 90, 180 or 270")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.Newf("camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height)
	}
	if _, err := pipeline.ParseStalePolicy(c.Pipeline.StaleLandmarks); err != nil {
		return errors.WithHint(err, "pipeline.stale_landmarks is clear or retain")
	}
	if _, err := c.Detector.DetectMode(); err != nil {
		return err
	}
	if c.Render.FPS <= 0 {
		return errors.Newf("render.fps %d must be positive", c.Render.FPS)
	}
	for name, pos := range c.Tuning.Positions() {
		if pos < 0 || pos > tuning.MaxPosition {
			return errors.Newf("tuning.%s %d out of range 0..%d", name, pos, tuning.MaxPosition)
		}
	}
	return nil
}

// DetectMode parses the detector mode.
func (d DetectorConfig) DetectMode() (frame.DetectMode, error) {
	switch strings.ToLower(d.Mode) {
	case "", frame.DetectModeVideo.String():
		return frame.DetectModeVideo, nil
	case frame.DetectModeImage.String():
		return frame.DetectModeImage, nil
	default:
		return 0, errors.Newf("detector.mode %q is not video or image", d.Mode)
	}
}

// Positions returns the slider positions keyed by slider name.
func (t TuningConfig) Positions() tuning.Positions {
	return tuning.Positions{
		tuning.SkinSmoothing: t.SkinSmoothing,
		tuning.Whiteness:     t.Whiteness,
		tuning.ThinFace:      t.ThinFace,
		tuning.BigEye:        t.BigEye,
		tuning.Lipstick:      t.Lipstick,
	}
}

// PipelineConfig converts the settings into pipeline.Config. Logger and
// clock are left for the caller.
func (c *Config) PipelineConfig() pipeline.Config {
	policy, _ := pipeline.ParseStalePolicy(c.Pipeline.StaleLandmarks)
	mode, _ := c.Detector.DetectMode()
	return pipeline.Config{
		DeviceRotation: c.Camera.DeviceRotation,
		StalePolicy:    policy,
		DetectMode:     mode,
		Sink:           c.Pipeline.Sink,
		Mirror:         c.Render.Mirror,
	}
}
