// Package settings reads process-wide defaults for the stratum CLI from
// STRATUM_* environment variables.
package settings

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dshills/stratum/internal/merge"
	"github.com/dshills/stratum/internal/watcher"
)

// Prefix is prepended to every variable name.
const Prefix = "STRATUM_"

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Settings holds the environment-derived defaults. Command-line flags take
// precedence over every field.
type Settings struct {
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text"`

	// MaxIterations bounds the conditional merge loop.
	MaxIterations int `env:"MAX_ITERATIONS"`

	// Workers bounds concurrent module file reads. Zero uses GOMAXPROCS.
	Workers int `env:"WORKERS"`

	// Debounce is the quiet period before watch mode re-evaluates.
	Debounce time.Duration `env:"DEBOUNCE"`

	// OTelEndpoint is an OTLP/HTTP collector address. Empty disables
	// trace export.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Default returns the settings used when no variable is set.
func Default() Settings {
	return Settings{
		LogLevel:      slog.LevelInfo,
		LogFormat:     FormatText,
		MaxIterations: merge.DefaultMaxIterations,
		Debounce:      watcher.DefaultDebounce,
	}
}

// Load reads settings from the process environment.
func Load() (Settings, error) {
	return LoadFrom(nil)
}

// LoadFrom reads settings from environ, or from the process environment
// when environ is nil. Keys include the prefix.
func LoadFrom(environ map[string]string) (Settings, error) {
	s := Default()
	opts := env.Options{Prefix: Prefix, Environment: environ}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks field ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.LogFormat != FormatText && s.LogFormat != FormatJSON {
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT: unknown format %q", Prefix, s.LogFormat))
	}
	if s.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("%sMAX_ITERATIONS: must be positive, got %d", Prefix, s.MaxIterations))
	}
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("%sWORKERS: must not be negative, got %d", Prefix, s.Workers))
	}
	if s.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%sDEBOUNCE: must be positive, got %s", Prefix, s.Debounce))
	}
	return errors.Join(errs...)
}

// NewLogger builds a logger writing to w in the configured format.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.LogLevel}
	if s.LogFormat == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
