package service

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"arena-tracker/internal/domain"
	"arena-tracker/internal/repository"
)

type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

type DropResult struct {
	CutoffMatchID string               `json:"cutoffMatchId"`
	Kept          int                  `json:"kept"`
	Dropped       int                  `json:"dropped"`
	Progress      domain.ArenaProgress `json:"arenaProgress"`
}

const dropPrompt = "Drop all older games and track from this match onward? This will ignore older matches for progress and stop loading older matches."

// DropPastGames starts a new season at cutoffMatchID, or at the newest match
// when it is empty. Older entries leave the history and are evicted from the
// cache in the background; eviction failures are only logged.
func (e *Engine) DropPastGames(ctx context.Context, cutoffMatchID string, confirm Confirmer) (*DropResult, error) {
	if !e.acquire() {
		return nil, ErrBusy
	}
	defer e.release()

	e.mu.RLock()
	matches := e.matches
	cursor := e.cursor
	e.mu.RUnlock()

	if len(matches) == 0 {
		return nil, ErrNoMatches
	}
	idx := 0
	if cutoffMatchID != "" {
		if idx = indexOf(matches, cutoffMatchID); idx < 0 {
			return nil, ErrCutoffNotFound
		}
	}

	ok, err := confirm.Confirm(ctx, dropPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm: %w", err)
	}
	if !ok {
		return nil, ErrNotConfirmed
	}

	cutoff := matches[idx].MatchID
	kept := slices.Clone(matches[:idx+1])
	evict := make([]string, 0, len(matches)-idx-1)
	for _, m := range matches[idx+1:] {
		evict = append(evict, m.MatchID)
	}

	if err := e.settings.SetSeasonCutoff(ctx, cutoff); err != nil {
		return nil, fmt.Errorf("failed to save season cutoff: %w", err)
	}
	e.mu.Lock()
	e.cutoff = cutoff
	e.mu.Unlock()

	if len(evict) > 0 {
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			if err := e.cache.DeleteMany(context.WithoutCancel(ctx), evict); err != nil {
				e.logger.Warn().Err(err).Int("matches", len(evict)).Msg("failed to evict dropped matches")
			}
		}()
	}

	done := false
	progress, err := e.persist(ctx, kept, cursor, &done)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("cutoff", cutoff).
		Int("kept", len(kept)).
		Int("dropped", len(evict)).
		Msg("dropped past games")

	return &DropResult{
		CutoffMatchID: cutoff,
		Kept:          len(kept),
		Dropped:       len(evict),
		Progress:      progress,
	}, nil
}

// ClearAll wipes history, progress, season cutoff, pagination state and the
// match cache. The identity and history scope stay.
func (e *Engine) ClearAll(ctx context.Context) error {
	if !e.acquire() {
		return ErrBusy
	}
	defer e.release()

	err := repository.InTx(ctx, e.db, func(tx *sql.Tx) error {
		if err := e.history.WithTx(tx).Clear(ctx); err != nil {
			return err
		}
		return e.settings.WithTx(tx).Delete(ctx,
			repository.KeyArenaProgress,
			repository.KeySeasonCutoff,
			repository.KeyCursor,
			repository.KeyHasMore,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to clear match data: %w", err)
	}
	if err := e.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear match cache: %w", err)
	}

	progress := domain.EmptyProgress()
	e.mu.Lock()
	e.matches = nil
	e.cursor = 0
	e.hasMore = true
	e.cutoff = ""
	e.progress = progress
	e.mu.Unlock()

	e.logger.Info().Msg("all match data cleared")
	e.notify(progress)
	return nil
}

// ClearMatches wipes the history and pagination state only. Progress and the
// match cache stay.
func (e *Engine) ClearMatches(ctx context.Context) error {
	if !e.acquire() {
		return ErrBusy
	}
	defer e.release()

	err := repository.InTx(ctx, e.db, func(tx *sql.Tx) error {
		if err := e.history.WithTx(tx).Clear(ctx); err != nil {
			return err
		}
		return e.settings.WithTx(tx).Delete(ctx, repository.KeyCursor, repository.KeyHasMore)
	})
	if err != nil {
		return fmt.Errorf("failed to clear match history: %w", err)
	}

	e.mu.Lock()
	e.matches = nil
	e.cursor = 0
	e.hasMore = true
	e.mu.Unlock()

	e.logger.Info().Msg("match history cleared")
	return nil
}
