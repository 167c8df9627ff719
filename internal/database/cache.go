package database

import (
	"fmt"
	"strings"

	"arena-tracker/internal/config"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// NewCache opens the badger store that holds slim match details.
func NewCache(cfg *config.Config, logger zerolog.Logger) (*badger.DB, error) {
	return OpenCache(cfg.CacheDir, logger)
}

// OpenCache opens a badger store at dir; an empty dir keeps it in memory.
func OpenCache(dir string, logger zerolog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger: logger.With().Str("component", "badger").Logger()}).
		WithNumVersionsToKeep(1)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	logger.Info().Str("dir", dir).Bool("in_memory", dir == "").Msg("opening match cache")

	db, err := badger.Open(opts)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open match cache")
		return nil, fmt.Errorf("failed to open match cache: %w", err)
	}
	return db, nil
}

// badgerLogger routes badger's printf-style logs into zerolog. Info chatter is
// demoted to debug.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(strings.TrimSpace(format), args...)
}
