package settings

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	s, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if s != Default() {
		t.Errorf("LoadFrom(empty) = %+v, want %+v", s, Default())
	}
	if s.MaxIterations != 32 {
		t.Errorf("MaxIterations = %d, want 32", s.MaxIterations)
	}
}

func TestLoadFrom_Values(t *testing.T) {
	s, err := LoadFrom(map[string]string{
		"STRATUM_LOG_LEVEL":      "debug",
		"STRATUM_LOG_FORMAT":     "json",
		"STRATUM_MAX_ITERATIONS": "8",
		"STRATUM_WORKERS":        "4",
		"STRATUM_DEBOUNCE":       "1s",
		"STRATUM_OTEL_ENDPOINT":  "localhost:4318",
		"LOG_LEVEL":              "error",
	})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	want := Settings{
		LogLevel:      slog.LevelDebug,
		LogFormat:     FormatJSON,
		MaxIterations: 8,
		Workers:       4,
		Debounce:      time.Second,
		OTelEndpoint:  "localhost:4318",
	}
	if s != want {
		t.Errorf("LoadFrom() = %+v, want %+v", s, want)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad int", map[string]string{"STRATUM_MAX_ITERATIONS": "many"}, "parse env"},
		{"bad level", map[string]string{"STRATUM_LOG_LEVEL": "loud"}, "parse env"},
		{"bad duration", map[string]string{"STRATUM_DEBOUNCE": "soon"}, "parse env"},
		{"bad format", map[string]string{"STRATUM_LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"zero iterations", map[string]string{"STRATUM_MAX_ITERATIONS": "0"}, "MAX_ITERATIONS"},
		{"negative workers", map[string]string{"STRATUM_WORKERS": "-1"}, "WORKERS"},
		{"zero debounce", map[string]string{"STRATUM_DEBOUNCE": "0s"}, "DEBOUNCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	s := Default()
	s.LogFormat = FormatJSON
	s.NewLogger(&buf).Info("evaluated", "paths", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if rec["msg"] != "evaluated" || rec["paths"] != float64(3) {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	s = Default()
	s.NewLogger(&buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
	s.NewLogger(&buf).Warn("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text output = %q", buf.String())
	}
}
