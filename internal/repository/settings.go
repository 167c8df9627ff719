package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"arena-tracker/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	KeyRiotID           = "riot_id"
	KeySeasonCutoff     = "season_cutoff"
	KeyHistoryScope     = "history_scope"
	KeyHistoryLimit     = "history_limit"
	KeyArenaProgress    = "arena_progress"
	KeyCursor           = "cursor"
	KeyHasMore          = "has_more"
	KeyLegacyMatchCache = "match_cache"
)

// SettingsRepository stores small JSON documents keyed by name. Every key has
// a single writer, so the last write wins.
type SettingsRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewSettingsRepository(sqlDB *sql.DB, logger zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{db: sqlDB, logger: logger}
}

func (r *SettingsRepository) WithTx(tx *sql.Tx) *SettingsRepository {
	return &SettingsRepository{db: tx, logger: r.logger}
}

func (r *SettingsRepository) getRaw(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return raw, true, nil
}

func (r *SettingsRepository) get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := r.getRaw(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (r *SettingsRepository) putRaw(ctx context.Context, key, raw string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	r.logger.Debug().Str("key", key).Int("bytes", len(raw)).Msg("document written")
	return nil
}

func (r *SettingsRepository) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return r.putRaw(ctx, key, string(data))
}

func (r *SettingsRepository) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func (r *SettingsRepository) RiotID(ctx context.Context) (*domain.RiotID, error) {
	var id domain.RiotID
	ok, err := r.get(ctx, KeyRiotID, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// SetRiotID stores id; nil removes the stored identity.
func (r *SettingsRepository) SetRiotID(ctx context.Context, id *domain.RiotID) error {
	if id == nil {
		return r.Delete(ctx, KeyRiotID)
	}
	return r.put(ctx, KeyRiotID, id)
}

func (r *SettingsRepository) SeasonCutoff(ctx context.Context) (string, bool, error) {
	var id string
	ok, err := r.get(ctx, KeySeasonCutoff, &id)
	if err != nil || !ok || id == "" {
		return "", false, err
	}
	return id, true, nil
}

// SetSeasonCutoff stores the cutoff match id; an empty id clears it.
func (r *SettingsRepository) SetSeasonCutoff(ctx context.Context, matchID string) error {
	if matchID == "" {
		return r.Delete(ctx, KeySeasonCutoff)
	}
	return r.put(ctx, KeySeasonCutoff, matchID)
}

func (r *SettingsRepository) HistoryScope(ctx context.Context) (domain.HistoryScope, error) {
	var mode string
	if _, err := r.get(ctx, KeyHistoryScope, &mode); err != nil {
		return domain.HistoryScope{}, err
	}
	var limit int
	if _, err := r.get(ctx, KeyHistoryLimit, &limit); err != nil {
		return domain.HistoryScope{}, err
	}
	return domain.NewHistoryScope(mode, limit), nil
}

func (r *SettingsRepository) SetHistoryScope(ctx context.Context, scope domain.HistoryScope) error {
	scope = domain.NewHistoryScope(string(scope.Mode), scope.Limit)
	if err := r.put(ctx, KeyHistoryScope, scope.Mode); err != nil {
		return err
	}
	return r.put(ctx, KeyHistoryLimit, scope.Limit)
}

func (r *SettingsRepository) Progress(ctx context.Context) (domain.ArenaProgress, error) {
	var progress domain.ArenaProgress
	if _, err := r.get(ctx, KeyArenaProgress, &progress); err != nil {
		return domain.EmptyProgress(), err
	}
	return progress.Normalized(), nil
}

func (r *SettingsRepository) SetProgress(ctx context.Context, progress domain.ArenaProgress) error {
	return r.put(ctx, KeyArenaProgress, progress.Normalized())
}

// Cursor returns the next offset for load-more and whether one was stored.
func (r *SettingsRepository) Cursor(ctx context.Context) (int, bool, error) {
	var cursor int
	ok, err := r.get(ctx, KeyCursor, &cursor)
	return cursor, ok, err
}

func (r *SettingsRepository) SetCursor(ctx context.Context, cursor int) error {
	return r.put(ctx, KeyCursor, cursor)
}

// HasMore defaults to true until a load-more reaches the end of history.
func (r *SettingsRepository) HasMore(ctx context.Context) (bool, error) {
	hasMore := true
	if _, err := r.get(ctx, KeyHasMore, &hasMore); err != nil {
		return true, err
	}
	return hasMore, nil
}

func (r *SettingsRepository) SetHasMore(ctx context.Context, hasMore bool) error {
	return r.put(ctx, KeyHasMore, hasMore)
}

// LegacyMatchCache returns the single-blob match cache older versions kept
// among the settings.
func (r *SettingsRepository) LegacyMatchCache(ctx context.Context) ([]byte, bool, error) {
	raw, ok, err := r.getRaw(ctx, KeyLegacyMatchCache)
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(raw), true, nil
}

func (r *SettingsRepository) SetLegacyMatchCache(ctx context.Context, raw []byte) error {
	return r.putRaw(ctx, KeyLegacyMatchCache, string(raw))
}
