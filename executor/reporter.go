package executor

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ZacxDev/mirrortex/logging"
	"github.com/ZacxDev/mirrortex/target"
)

// Reporter is told about every file as the builder works through it.
// Skipped files only produce a Finished call.
type Reporter interface {
	Started(ctx context.Context, source, targetDir string)
	Finished(ctx context.Context, outcome target.Outcome)
}

// LogReporter writes progress to the logger carried by the context.
type LogReporter struct{}

func (LogReporter) Started(ctx context.Context, source, targetDir string) {
	logging.FromContext(ctx).Info().
		Str("file", source).
		Msgf("Building: %s -> %s", source, targetDir)
}

func (LogReporter) Finished(ctx context.Context, outcome target.Outcome) {
	log := logging.FromContext(ctx)

	switch {
	case outcome.Planned:
		log.Info().Str("file", outcome.Source).Msgf("Would build: %s -> %s", outcome.Source, outcome.Artifact)
	case outcome.Status == target.StatusSkipped:
		log.Info().Str("file", outcome.Source).Msgf("Skipping (up to date): %s", filepath.Base(outcome.Source))
	case outcome.Status == target.StatusSucceeded:
		log.Info().
			Str("file", outcome.Source).
			Dur("duration", outcome.Duration).
			Msgf("SUCCESS: %s", outcome.Source)
	default:
		log.Error().Str("file", outcome.Source).Msgf("FAILED: %s", outcome.Source)
		if errors.Is(outcome.Err, ErrToolNotInstalled) {
			for _, line := range outcome.Diagnostics {
				log.Error().Msg(line)
			}
			return
		}
		if len(outcome.Diagnostics) == 0 {
			return
		}
		if outcome.TailOnly {
			log.Warn().Msg("Tail of output:")
		} else {
			log.Warn().Msg("Captured Errors:")
		}
		for _, line := range outcome.Diagnostics {
			log.Warn().Msgf("  %s", line)
		}
	}
}
