package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"arena-tracker/internal/domain"
	"arena-tracker/internal/repository"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// BackupService snapshots and restores the whole local state as one document.
type BackupService struct {
	db       *sql.DB
	settings *repository.SettingsRepository
	history  *repository.HistoryRepository
	cache    *repository.MatchCacheRepository
	logger   zerolog.Logger
}

func NewBackupService(db *sql.DB, settings *repository.SettingsRepository, history *repository.HistoryRepository, cache *repository.MatchCacheRepository, logger zerolog.Logger) *BackupService {
	return &BackupService{db: db, settings: settings, history: history, cache: cache, logger: logger}
}

// Snapshot reads the cache and then the sqlite state. The two reads are only
// consistent with each other when no engine operation runs in between; use
// Engine.Snapshot or Engine.Export for that.
func (s *BackupService) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	cache, err := s.cache.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read match cache: %w", err)
	}

	snap := &domain.Snapshot{MatchCache: cache}
	err = repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
		settings := s.settings.WithTx(tx)

		var err error
		if snap.RiotID, err = settings.RiotID(ctx); err != nil {
			return err
		}
		if snap.MatchHistory, err = s.history.WithTx(tx).Load(ctx); err != nil {
			return err
		}
		if snap.ArenaProgress, err = settings.Progress(ctx); err != nil {
			return err
		}
		cutoff, ok, err := settings.SeasonCutoff(ctx)
		if err != nil {
			return err
		}
		if ok {
			snap.FirstSeasonMatchID = &cutoff
		}
		scope, err := settings.HistoryScope(ctx)
		if err != nil {
			return err
		}
		snap.HistoryScope = &scope
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read local state: %w", err)
	}

	s.logger.Debug().
		Int("history", len(snap.MatchHistory)).
		Int("cache", len(snap.MatchCache)).
		Msg("snapshot taken")
	return snap, nil
}

// Restore overwrites local state with snap. Progress is taken verbatim, the
// cache is replaced by the snapshot's entries, the cursor is reset to the
// history length and hasMore to true. Repeated match ids keep their first
// occurrence.
func (s *BackupService) Restore(ctx context.Context, snap *domain.Snapshot) error {
	history := dedupe(snap.MatchHistory)

	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear match cache: %w", err)
	}
	if err := s.cache.PutMany(ctx, snap.MatchCache); err != nil {
		return fmt.Errorf("failed to restore match cache: %w", err)
	}

	err := repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
		settings := s.settings.WithTx(tx)

		if err := settings.SetRiotID(ctx, snap.RiotID); err != nil {
			return err
		}
		if err := s.history.WithTx(tx).Replace(ctx, history); err != nil {
			return err
		}
		if err := settings.SetProgress(ctx, snap.ArenaProgress); err != nil {
			return err
		}
		cutoff := ""
		if snap.FirstSeasonMatchID != nil {
			cutoff = *snap.FirstSeasonMatchID
		}
		if err := settings.SetSeasonCutoff(ctx, cutoff); err != nil {
			return err
		}
		if snap.HistoryScope != nil {
			if err := settings.SetHistoryScope(ctx, *snap.HistoryScope); err != nil {
				return err
			}
		}
		if err := settings.SetCursor(ctx, len(history)); err != nil {
			return err
		}
		return settings.SetHasMore(ctx, true)
	})
	if err != nil {
		return fmt.Errorf("failed to restore local state: %w", err)
	}

	s.logger.Info().
		Int("history", len(history)).
		Int("cache", len(snap.MatchCache)).
		Msg("backup restored")
	return nil
}

func (s *BackupService) Export(ctx context.Context, w io.Writer) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeSnapshot(w, snap)
}

func writeSnapshot(w io.Writer, snap *domain.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

func DecodeSnapshot(r io.Reader) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	return &snap, nil
}

// DefaultFileName names an export taken at now, e.g.
// arena-tracker-backup-2025-01-02T03-04-05-678Z.json.
func DefaultFileName(now time.Time) string {
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "arena-tracker-backup-" + stamp + ".json"
}

func dedupe(history []domain.MatchResult) []domain.MatchResult {
	seen := make(map[string]struct{}, len(history))
	out := make([]domain.MatchResult, 0, len(history))
	for _, m := range history {
		if _, ok := seen[m.MatchID]; ok {
			continue
		}
		seen[m.MatchID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Snapshot takes a backup while holding the busy flag, after pending cache
// evictions have finished, so the cache and sqlite reads see the same state.
func (e *Engine) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if !e.acquire() {
		return nil, ErrBusy
	}
	defer e.release()

	e.background.Wait()
	return e.backup.Snapshot(ctx)
}

// Export writes a consistent backup document to w.
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeSnapshot(w, snap)
}

// Restore replaces the local state with snap and reloads the engine.
func (e *Engine) Restore(ctx context.Context, snap *domain.Snapshot) error {
	if !e.acquire() {
		return ErrBusy
	}
	defer e.release()

	if err := e.backup.Restore(ctx, snap); err != nil {
		return err
	}
	if err := e.Load(ctx); err != nil {
		return err
	}
	e.notify(e.Progress())
	return nil
}

// Import reads a backup document from r and restores it.
func (e *Engine) Import(ctx context.Context, r io.Reader) error {
	snap, err := DecodeSnapshot(r)
	if err != nil {
		return err
	}
	return e.Restore(ctx, snap)
}
