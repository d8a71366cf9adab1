// Package logger builds the zap logger used by the steps-auth CLI.
//
// JSON format for machine consumption, console for interactive use.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger.
// level: debug, info, warn, error
// format: json or console
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, atomicLevel, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, atomicLevel, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = atomicLevel
	// Command output goes to stdout; keep logs off it.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, atomicLevel, fmt.Errorf("build logger: %w", err)
	}
	return logger, atomicLevel, nil
}
