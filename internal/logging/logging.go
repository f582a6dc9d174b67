// Package logging builds the logr.Logger shared by the simulator, backed by zap.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V().
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

// ParseLevel maps a level name to a verbosity.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "trace":
		return TRACE, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q (want info, debug or trace)", name)
	}
}

// New returns a logger writing to stderr that enables V(n) for n <= verbosity.
func New(verbosity int, development bool) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.DisableStacktrace = true

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// NewTestLogger returns a logger with every level enabled. Output goes to w,
// or is dropped when no writer is given.
func NewTestLogger(w ...io.Writer) logr.Logger {
	var sink io.Writer = io.Discard
	if len(w) > 0 {
		sink = w[0]
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(sink),
		zapcore.Level(-TRACE),
	)
	return zapr.NewLogger(zap.New(core))
}
