// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/boiler-ingest/pkg/types"
)

// NewLogger builds a zap logger writing to stderr. Format is json or
// console; an empty level means info.
func NewLogger(c types.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		l, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, eris.Wrapf(err, "config: log level %q", c.Level)
		}
		level = l
	}

	var zc zap.Config
	switch c.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, eris.Errorf("config: unknown log format %q", c.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	log, err := zc.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	return log, nil
}

// InitLogger builds the logger and installs it as the zap global. The
// returned function flushes and restores the previous global.
func InitLogger(c types.LogConfig) (*zap.Logger, func(), error) {
	log, err := NewLogger(c)
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(log)
	return log, func() {
		_ = log.Sync()
		restore()
	}, nil
}
