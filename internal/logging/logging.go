// Package logging builds the zap loggers used across beautycam.
package logging

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names. Use these instead of raw strings.
const (
	FieldComponent  = "component"
	FieldSeq        = "seq"
	FieldState      = "state"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldFilter     = "filter"
	FieldProperty   = "property"
	FieldCount      = "count"
	FieldPath       = "path"
)

// Config selects level and encoding.
type Config struct {
	Level string
	JSON  bool
}

// New returns a logger writing to stderr. JSON output is meant for
// machines; the console encoder for people watching the preview.
func New(cfg Config) (*zap.SugaredLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(ec)
	}
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar(), nil
}

// ParseLevel accepts zap level names; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return l, errors.WithHint(errors.Wrapf(err, "log level %q", s),
			"use one of debug, info, warn, error")
	}
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Component returns parent named and tagged for one component.
func Component(parent *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if parent == nil {
		parent = Nop()
	}
	return parent.Named(name).With(FieldComponent, name)
}
