package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
	}{
		{"production", "info", zapcore.InfoLevel},
		{"development", "debug", zapcore.DebugLevel},
		{"development", "", zapcore.InfoLevel},
		{"production", "WARN", zapcore.WarnLevel},
	}
	for _, tt := range tests {
		log, err := New(tt.env, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.env, tt.level, err)
		}
		if !log.Core().Enabled(tt.want) {
			t.Errorf("New(%q, %q): level %s disabled", tt.env, tt.level, tt.want)
		}
		if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
			t.Errorf("New(%q, %q): level below %s enabled", tt.env, tt.level, tt.want)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
