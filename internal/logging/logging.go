// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level  string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" json:"format" default:"console" validate:"oneof=console json"`
}

// New returns a logger writing to w, or stderr when w is nil.
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(cfg.Level); err != nil {
			return zerolog.Nop(), fmt.Errorf("log level: %w", err)
		}
	}
	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want console or json", cfg.Format)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
