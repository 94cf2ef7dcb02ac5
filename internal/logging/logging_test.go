package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		encoding  string
		wantErr   bool
		wantDebug bool
	}{
		{"info console", "info", "console", false, false},
		{"debug json", "debug", "json", false, true},
		{"upper case level", "WARN", "console", false, false},
		{"unknown level", "loud", "console", true, false},
		{"unknown encoding", "info", "xml", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.encoding)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q, %q) error = %v, wantErr %v", tt.level, tt.encoding, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.wantDebug {
				t.Errorf("Expected debug enabled = %v, got %v", tt.wantDebug, got)
			}
		})
	}
}
