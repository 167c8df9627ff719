package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"arena-tracker/internal/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const matchKeyPrefix = "match:"

// MatchCacheRepository keeps slim match details in badger, keyed by match id.
// Matches never change once played, so entries live until evicted or cleared.
type MatchCacheRepository struct {
	db       *badger.DB
	settings *SettingsRepository
	group    singleflight.Group
	migrated atomic.Bool
	logger   zerolog.Logger
}

func NewMatchCacheRepository(db *badger.DB, settings *SettingsRepository, logger zerolog.Logger) *MatchCacheRepository {
	return &MatchCacheRepository{db: db, settings: settings, logger: logger}
}

func matchKey(id string) []byte {
	return []byte(matchKeyPrefix + id)
}

// ensureMigration moves the legacy single-blob cache into badger once per
// process. Concurrent callers share one run; a failed run is retried on the
// next access.
func (r *MatchCacheRepository) ensureMigration(ctx context.Context) error {
	if r.migrated.Load() {
		return nil
	}
	_, err, _ := r.group.Do("legacy", func() (any, error) {
		if r.migrated.Load() {
			return nil, nil
		}
		if err := r.migrateLegacy(ctx); err != nil {
			return nil, err
		}
		r.migrated.Store(true)
		return nil, nil
	})
	return err
}

func (r *MatchCacheRepository) migrateLegacy(ctx context.Context) error {
	raw, ok, err := r.settings.LegacyMatchCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to read legacy match cache: %w", err)
	}
	if !ok {
		return nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		r.logger.Warn().Err(err).Msg("dropping corrupt legacy match cache")
	} else {
		details := make(map[string]domain.MatchDetail, len(entries))
		for id, entry := range entries {
			detail, err := domain.DecodeMatch(entry)
			if err != nil {
				r.logger.Warn().Err(err).Str("match_id", id).Msg("skipping corrupt legacy cache entry")
				continue
			}
			details[id] = detail
		}
		if err := r.putMany(details); err != nil {
			return fmt.Errorf("failed to migrate legacy match cache: %w", err)
		}
		r.logger.Info().Int("matches", len(details)).Msg("legacy match cache migrated")
	}

	if err := r.settings.Delete(ctx, KeyLegacyMatchCache); err != nil {
		return fmt.Errorf("failed to remove legacy match cache: %w", err)
	}
	return nil
}

// PutMany writes all details in one batch, slimming each first.
func (r *MatchCacheRepository) PutMany(ctx context.Context, details map[string]domain.MatchDetail) error {
	if err := r.ensureMigration(ctx); err != nil {
		return err
	}
	return r.putMany(details)
}

func (r *MatchCacheRepository) putMany(details map[string]domain.MatchDetail) error {
	if len(details) == 0 {
		return nil
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()

	for id, detail := range details {
		data, err := json.Marshal(detail.Slim())
		if err != nil {
			return fmt.Errorf("marshal match %s: %w", id, err)
		}
		if err := wb.Set(matchKey(id), data); err != nil {
			return fmt.Errorf("set match %s: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush match cache: %w", err)
	}

	r.logger.Debug().Int("matches", len(details)).Msg("match details cached")
	return nil
}

// GetMany returns the cached subset of ids. Misses are not errors.
func (r *MatchCacheRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.MatchDetail, error) {
	if err := r.ensureMigration(ctx); err != nil {
		return nil, err
	}

	found := make(map[string]domain.MatchDetail, len(ids))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(matchKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get match %s: %w", id, err)
			}

			var detail domain.MatchDetail
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &detail)
			}); err != nil {
				return fmt.Errorf("decode match %s: %w", id, err)
			}
			found[id] = detail
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *MatchCacheRepository) DeleteMany(ctx context.Context, ids []string) error {
	if err := r.ensureMigration(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range ids {
		if err := wb.Delete(matchKey(id)); err != nil {
			return fmt.Errorf("delete match %s: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush match cache: %w", err)
	}

	r.logger.Debug().Int("matches", len(ids)).Msg("match details evicted")
	return nil
}

func (r *MatchCacheRepository) Clear(ctx context.Context) error {
	if err := r.ensureMigration(ctx); err != nil {
		return err
	}
	if err := r.db.DropPrefix([]byte(matchKeyPrefix)); err != nil {
		return fmt.Errorf("clear match cache: %w", err)
	}
	return nil
}

// GetAll dumps the cache, used by backups.
func (r *MatchCacheRepository) GetAll(ctx context.Context) (map[string]domain.MatchDetail, error) {
	if err := r.ensureMigration(ctx); err != nil {
		return nil, err
	}

	all := make(map[string]domain.MatchDetail)
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(matchKeyPrefix), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(matchKeyPrefix):])

			var detail domain.MatchDetail
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &detail)
			}); err != nil {
				return fmt.Errorf("decode match %s: %w", id, err)
			}
			all[id] = detail
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (r *MatchCacheRepository) Count(ctx context.Context) (int, error) {
	if err := r.ensureMigration(ctx); err != nil {
		return 0, err
	}

	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(matchKeyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
