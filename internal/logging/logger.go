// Package logging builds the charm loggers used to trace exploration.
// Level, prefix and destination come from the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Environment variables read by NewLogger.
const (
	EnvLevel  = "X2ARM_LOG_LEVEL"
	EnvPrefix = "X2ARM_LOG_PREFIX"
	EnvToFile = "X2ARM_LOG_TO_FILE"
)

// LoggerCloser wraps a logger and closes its file, if any.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Level returns the level named by X2ARM_LOG_LEVEL, or info.
func Level() log.Level {
	lvl, err := log.ParseLevel(os.Getenv(EnvLevel))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           Level(),
	})

	prefix := os.Getenv(EnvPrefix)
	if prefix == "" {
		prefix = "x2arm"
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a logger on stderr, or on a timestamped file in dir when
// X2ARM_LOG_TO_FILE=1. A file that cannot be created falls back to stderr.
func NewLogger(dir string) *LoggerCloser {
	output := io.Writer(os.Stderr)
	if os.Getenv(EnvToFile) == "1" {
		name := fmt.Sprintf("x2arm-%s-debug.log", time.Now().Format("20060102-150405"))
		if f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644); err == nil {
			output = f
		}
	}
	return NewLoggerWithWriter(output)
}

// IsDebug reports whether X2ARM_LOG_LEVEL asks for debug output.
func IsDebug() bool {
	return Level() == log.DebugLevel
}
