package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		env  string
		want log.Level
	}{
		{"", log.InfoLevel},
		{"debug", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"nonsense", log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(EnvLevel, tt.env)
			if got := Level(); got != tt.want {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
			if got := IsDebug(); got != (tt.want == log.DebugLevel) {
				t.Errorf("IsDebug() = %v", got)
			}
		})
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvPrefix, "test")
	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Debug("decode", "addr", "0x1000")
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "test") || !strings.Contains(out, "decode") || !strings.Contains(out, "addr=0x1000") {
		t.Errorf("log output = %q", out)
	}
}

func TestNewLoggerToFile(t *testing.T) {
	t.Setenv(EnvToFile, "1")
	t.Setenv(EnvLevel, "")
	dir := t.TempDir()
	lg := NewLogger(dir)
	lg.Info("hello")
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "x2arm-*-debug.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log files = %v, %v", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q", data)
	}
}
