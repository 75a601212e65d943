// Package logging builds the zerolog loggers used by mirrortex and carries
// them on a context.Context.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options controls how New builds a logger.
type Options struct {
	Debug bool
	// Format is "console" (default) or "json".
	Format  string
	Writer  io.Writer
	NoColor bool
}

// New returns a logger writing to opts.Writer (stderr by default).
func New(opts Options) zerolog.Logger {
	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	if opts.Format != "json" {
		out = NewConsoleWriter(out, opts.NoColor, opts.Debug)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
