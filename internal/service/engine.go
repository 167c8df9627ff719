package service

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"arena-tracker/internal/config"
	"arena-tracker/internal/constants"
	"arena-tracker/internal/domain"
	"arena-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// RiotAPI is the remote match source. *api.RiotClient implements it.
type RiotAPI interface {
	GetAccount(ctx context.Context, gameName, tagLine string) (*domain.Account, error)
	GetMatchIDs(ctx context.Context, puuid string, count, start int) ([]string, error)
	GetMatch(ctx context.Context, matchID string) (*domain.RawMatch, error)
}

type Options struct {
	PageSize        int
	AutoRefreshSize int
	BatchSize       int
	ListPause       time.Duration
	BatchPause      time.Duration
}

func DefaultOptions(cfg *config.Config) Options {
	return Options{
		PageSize:        config.ClampPageSize(cfg.MatchPageSize),
		AutoRefreshSize: constants.AutoRefreshPageSize,
		BatchSize:       constants.MatchBatchSize,
		ListPause:       constants.ListPause,
		BatchPause:      constants.BatchPause,
	}
}

// State is a read-only view of the engine's in-memory state.
type State struct {
	RiotID       *domain.RiotID       `json:"riotId"`
	HistoryLen   int                  `json:"historyLength"`
	Cursor       int                  `json:"cursor"`
	HasMore      bool                 `json:"hasMore"`
	SeasonCutoff string               `json:"seasonCutoff,omitempty"`
	Scope        domain.HistoryScope  `json:"historyScope"`
	Progress     domain.ArenaProgress `json:"arenaProgress"`
	Busy         bool                 `json:"busy"`
}

// Engine keeps the local mirror of one player's arena history in step with
// the remote API. Sync, AutoRefreshLatest, DropPastGames, the clears and
// Restore share one busy flag and never interleave.
type Engine struct {
	api      RiotAPI
	db       *sql.DB
	settings *repository.SettingsRepository
	history  *repository.HistoryRepository
	cache    *repository.MatchCacheRepository
	backup   *BackupService
	opts     Options
	logger   zerolog.Logger

	busy atomic.Bool

	mu       sync.RWMutex
	riotID   *domain.RiotID
	matches  []domain.MatchResult
	cursor   int
	hasMore  bool
	cutoff   string
	scope    domain.HistoryScope
	progress domain.ArenaProgress

	listenersMu  sync.Mutex
	listeners    map[int]func(domain.ArenaProgress)
	nextListener int

	background sync.WaitGroup
}

func NewEngine(
	api RiotAPI,
	db *sql.DB,
	settings *repository.SettingsRepository,
	history *repository.HistoryRepository,
	cache *repository.MatchCacheRepository,
	backup *BackupService,
	cfg *config.Config,
	logger zerolog.Logger,
) *Engine {
	return NewEngineWithOptions(api, db, settings, history, cache, backup, DefaultOptions(cfg), logger)
}

func NewEngineWithOptions(
	api RiotAPI,
	db *sql.DB,
	settings *repository.SettingsRepository,
	history *repository.HistoryRepository,
	cache *repository.MatchCacheRepository,
	backup *BackupService,
	opts Options,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		api:       api,
		db:        db,
		settings:  settings,
		history:   history,
		cache:     cache,
		backup:    backup,
		opts:      opts,
		logger:    logger,
		hasMore:   true,
		scope:     domain.DefaultHistoryScope(),
		progress:  domain.EmptyProgress(),
		listeners: make(map[int]func(domain.ArenaProgress)),
	}
}

// Load reads the persisted state into memory. A missing cursor defaults to
// the history length.
func (e *Engine) Load(ctx context.Context) error {
	riotID, err := e.settings.RiotID(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	matches, err := e.history.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load match history: %w", err)
	}
	cursor, ok, err := e.settings.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	if !ok {
		cursor = len(matches)
	}
	hasMore, err := e.settings.HasMore(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pagination state: %w", err)
	}
	cutoff, _, err := e.settings.SeasonCutoff(ctx)
	if err != nil {
		return fmt.Errorf("failed to load season cutoff: %w", err)
	}
	scope, err := e.settings.HistoryScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history scope: %w", err)
	}
	progress, err := e.settings.Progress(ctx)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	e.mu.Lock()
	e.riotID = riotID
	e.matches = matches
	e.cursor = cursor
	e.hasMore = hasMore
	e.cutoff = cutoff
	e.scope = scope
	e.progress = progress
	e.mu.Unlock()

	e.logger.Debug().
		Int("history", len(matches)).
		Int("cursor", cursor).
		Bool("has_more", hasMore).
		Str("season_cutoff", cutoff).
		Msg("engine state loaded")
	return nil
}

func (e *Engine) History() []domain.MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.matches)
}

func (e *Engine) Progress() domain.ArenaProgress {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.progress
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var riotID *domain.RiotID
	if e.riotID != nil {
		id := *e.riotID
		riotID = &id
	}
	return State{
		RiotID:       riotID,
		HistoryLen:   len(e.matches),
		Cursor:       e.cursor,
		HasMore:      e.hasMore,
		SeasonCutoff: e.cutoff,
		Scope:        e.scope,
		Progress:     e.progress,
		Busy:         e.busy.Load(),
	}
}

// Subscribe registers fn for progress changes and returns its unsubscribe func.
func (e *Engine) Subscribe(fn func(domain.ArenaProgress)) func() {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn

	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *Engine) notify(progress domain.ArenaProgress) {
	e.listenersMu.Lock()
	fns := make([]func(domain.ArenaProgress), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.Unlock()

	for _, fn := range fns {
		fn(progress)
	}
}

// Close waits for background cache evictions to finish.
func (e *Engine) Close() {
	e.background.Wait()
}

func (e *Engine) acquire() bool {
	return e.busy.CompareAndSwap(false, true)
}

func (e *Engine) release() {
	e.busy.Store(false)
}

// SetIdentity stores the player to track.
func (e *Engine) SetIdentity(ctx context.Context, gameName, tagLine string) error {
	id := domain.RiotID{GameName: strings.TrimSpace(gameName), TagLine: strings.TrimSpace(tagLine)}
	if id.Empty() {
		return ErrInvalidIdentity
	}
	if err := e.settings.SetRiotID(ctx, &id); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}

	e.mu.Lock()
	e.riotID = &id
	e.mu.Unlock()

	e.logger.Info().Str("riot_id", id.String()).Msg("identity updated")
	return nil
}

// SetHistoryScope stores scope and recomputes progress with it.
func (e *Engine) SetHistoryScope(ctx context.Context, scope domain.HistoryScope) (domain.ArenaProgress, error) {
	scope = domain.NewHistoryScope(string(scope.Mode), scope.Limit)

	e.mu.RLock()
	progress := Aggregate(e.matches, e.cutoff, scope)
	e.mu.RUnlock()

	err := repository.InTx(ctx, e.db, func(tx *sql.Tx) error {
		settings := e.settings.WithTx(tx)
		if err := settings.SetHistoryScope(ctx, scope); err != nil {
			return err
		}
		return settings.SetProgress(ctx, progress)
	})
	if err != nil {
		return domain.ArenaProgress{}, fmt.Errorf("failed to save history scope: %w", err)
	}

	e.mu.Lock()
	e.scope = scope
	e.progress = progress
	e.mu.Unlock()

	e.notify(progress)
	return progress, nil
}

// ToggleProgress is a direct user edit; the next recompute overwrites it.
func (e *Engine) ToggleProgress(ctx context.Context, kind ProgressKind, champion string) (domain.ArenaProgress, error) {
	e.mu.RLock()
	current := e.progress
	e.mu.RUnlock()

	progress, err := Toggle(current, kind, champion)
	if err != nil {
		return domain.ArenaProgress{}, err
	}
	if err := e.settings.SetProgress(ctx, progress); err != nil {
		return domain.ArenaProgress{}, fmt.Errorf("failed to save progress: %w", err)
	}

	e.mu.Lock()
	e.progress = progress
	e.mu.Unlock()

	e.notify(progress)
	return progress, nil
}

// persist writes history, cursor, progress and optionally hasMore in one
// transaction, then publishes them to memory.
func (e *Engine) persist(ctx context.Context, matches []domain.MatchResult, cursor int, hasMore *bool) (domain.ArenaProgress, error) {
	e.mu.RLock()
	progress := Aggregate(matches, e.cutoff, e.scope)
	e.mu.RUnlock()

	err := repository.InTx(ctx, e.db, func(tx *sql.Tx) error {
		if err := e.history.WithTx(tx).Replace(ctx, matches); err != nil {
			return err
		}
		settings := e.settings.WithTx(tx)
		if err := settings.SetCursor(ctx, cursor); err != nil {
			return err
		}
		if hasMore != nil {
			if err := settings.SetHasMore(ctx, *hasMore); err != nil {
				return err
			}
		}
		return settings.SetProgress(ctx, progress)
	})
	if err != nil {
		return domain.ArenaProgress{}, fmt.Errorf("failed to persist match history: %w", err)
	}

	e.mu.Lock()
	e.matches = matches
	e.cursor = cursor
	if hasMore != nil {
		e.hasMore = *hasMore
	}
	e.progress = progress
	e.mu.Unlock()

	e.notify(progress)
	return progress, nil
}

func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
