package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.verbose)

			logger.Debug("resolving", "ref", "vsg/1.0.3")
			logger.Info("created", "ref", "vsg/1.0.3")

			out := buf.String()
			if got := strings.Contains(out, "resolving"); got != tt.wantDebug {
				t.Errorf("debug output present = %v, want %v\n%s", got, tt.wantDebug, out)
			}
			if !strings.Contains(out, "created") || !strings.Contains(out, "vsg/1.0.3") {
				t.Errorf("info output missing:\n%s", out)
			}
		})
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := Discard()
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return the given logger")
	}
}
