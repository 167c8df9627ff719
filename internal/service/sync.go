package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"arena-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type SyncResult struct {
	RunID     string `json:"runId"`
	Listed    int    `json:"listed"`
	New       int    `json:"new"`
	CacheHits int    `json:"cacheHits"`
	Fetched   int    `json:"fetched"`
	Failed    int    `json:"failed"`
	Dropped   int    `json:"dropped"`
	Cursor    int    `json:"cursor"`
	HasMore   bool   `json:"hasMore"`
}

type batchStats struct {
	cacheHits int
	fetched   int
	failed    int
	dropped   int
}

func newRunLogger(logger zerolog.Logger, op string) (zerolog.Logger, string) {
	runID, err := gonanoid.New(10)
	if err != nil {
		runID = "unknown"
	}
	return logger.With().Str("run_id", runID).Str("op", op).Logger(), runID
}

// Sync pulls one page of match ids and merges the results. A fresh update
// (loadMore false) reads from offset 0 and prepends new matches; load-more
// reads from the cursor and appends. Duplicates are discarded and the cursor
// advances by the number of matches merged as new.
func (e *Engine) Sync(ctx context.Context, loadMore bool) (*SyncResult, error) {
	if !e.acquire() {
		return nil, ErrBusy
	}
	defer e.release()

	logger, runID := newRunLogger(e.logger, "sync")
	logger = logger.With().Bool("load_more", loadMore).Logger()

	e.mu.RLock()
	hasMore := e.hasMore
	start := e.cursor
	e.mu.RUnlock()
	if loadMore && !hasMore {
		return nil, ErrNoMoreMatches
	}
	if !loadMore {
		start = 0
	}

	account, err := e.resolve(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve account")
		return nil, err
	}

	pageSize := e.opts.PageSize
	logger.Info().Str("puuid", account.PUUID).Int("start", start).Int("count", pageSize).Msg("listing match ids")

	ids, err := e.api.GetMatchIDs(ctx, account.PUUID, pageSize, start)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list match ids")
		return nil, fmt.Errorf("failed to fetch match IDs: %w", err)
	}
	if err := e.pause(ctx, e.opts.ListPause); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		if !loadMore {
			return nil, ErrNoMatches
		}
		if err := e.settings.SetHasMore(ctx, false); err != nil {
			return nil, fmt.Errorf("failed to save pagination state: %w", err)
		}
		e.mu.Lock()
		e.hasMore = false
		cursor := e.cursor
		e.mu.Unlock()
		logger.Info().Msg("reached the end of match history")
		return &SyncResult{RunID: runID, Cursor: cursor}, nil
	}

	listed := len(ids)
	if !loadMore {
		ids = e.sinceCutoff(ids)
	}

	results, stats, err := e.collect(ctx, logger, account.PUUID, ids)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	current := e.matches
	cursor := e.cursor
	e.mu.RUnlock()

	fresh := unseen(current, results)
	var merged []domain.MatchResult
	if loadMore {
		merged = append(slices.Clone(current), fresh...)
	} else {
		merged = append(slices.Clone(fresh), current...)
	}
	cursor += len(fresh)

	var hasMorePtr *bool
	if loadMore && listed < pageSize {
		done := false
		hasMorePtr = &done
	}
	if _, err := e.persist(ctx, merged, cursor, hasMorePtr); err != nil {
		logger.Error().Err(err).Msg("failed to persist merge")
		return nil, err
	}

	result := &SyncResult{
		RunID:     runID,
		Listed:    listed,
		New:       len(fresh),
		CacheHits: stats.cacheHits,
		Fetched:   stats.fetched,
		Failed:    stats.failed,
		Dropped:   stats.dropped,
		Cursor:    cursor,
		HasMore:   e.State().HasMore,
	}
	logger.Info().
		Int("listed", result.Listed).
		Int("new", result.New).
		Int("cache_hits", result.CacheHits).
		Int("fetched", result.Fetched).
		Int("failed", result.Failed).
		Int("cursor", result.Cursor).
		Msg("sync completed")
	return result, nil
}

// AutoRefreshLatest pulls the newest page and prepends what is not known yet.
// Provider failures are logged and yield a nil result, as does a call made
// while another operation runs. Only local persistence failures are returned.
// It never clears hasMore.
func (e *Engine) AutoRefreshLatest(ctx context.Context) (*SyncResult, error) {
	if !e.acquire() {
		e.logger.Debug().Msg("auto-refresh skipped, engine busy")
		return nil, nil
	}
	defer e.release()

	logger, runID := newRunLogger(e.logger, "auto_refresh")

	account, err := e.resolve(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("auto-refresh skipped")
		return nil, nil
	}

	ids, err := e.api.GetMatchIDs(ctx, account.PUUID, e.opts.AutoRefreshSize, 0)
	if err != nil {
		logger.Warn().Err(err).Msg("auto-refresh failed to list match ids")
		return nil, nil
	}
	if len(ids) == 0 {
		state := e.State()
		return &SyncResult{RunID: runID, Cursor: state.Cursor, HasMore: state.HasMore}, nil
	}

	// The longer of memory and disk wins: a last-write-wins-by-size guard
	// against another process having merged more than we hold.
	persisted, err := e.history.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted history: %w", err)
	}
	e.mu.RLock()
	base := e.matches
	cursor := e.cursor
	e.mu.RUnlock()
	if len(persisted) >= len(base) {
		base = persisted
	}

	pending := e.sinceCutoff(ids)
	if len(base) > 0 {
		switch idx := slices.Index(ids, base[0].MatchID); {
		case idx == 0:
			logger.Debug().Msg("auto-refresh: no new matches found")
			return &SyncResult{RunID: runID, Listed: len(ids), Cursor: cursor, HasMore: e.State().HasMore}, nil
		case idx > 0:
			pending = ids[:idx]
		}
	}

	results, stats, err := e.collect(ctx, logger, account.PUUID, pending)
	if err != nil {
		logger.Warn().Err(err).Msg("auto-refresh interrupted")
		return nil, nil
	}

	fresh := unseen(base, results)
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp > fresh[j].Timestamp
	})
	merged := append(slices.Clone(fresh), base...)
	cursor += len(fresh)

	if _, err := e.persist(ctx, merged, cursor, nil); err != nil {
		logger.Error().Err(err).Msg("failed to persist auto-refresh")
		return nil, err
	}

	logger.Info().Int("new", len(fresh)).Int("cursor", cursor).Msg("auto-refresh completed")
	return &SyncResult{
		RunID:     runID,
		Listed:    len(ids),
		New:       len(fresh),
		CacheHits: stats.cacheHits,
		Fetched:   stats.fetched,
		Failed:    stats.failed,
		Dropped:   stats.dropped,
		Cursor:    cursor,
		HasMore:   e.State().HasMore,
	}, nil
}

// Watch runs AutoRefreshLatest now and then every interval until ctx ends.
func (e *Engine) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.AutoRefreshLatest(ctx); err != nil {
			e.logger.Error().Err(err).Msg("auto-refresh failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sinceCutoff cuts a newest-first id page at the season cutoff so dropped
// matches are not merged back.
func (e *Engine) sinceCutoff(ids []string) []string {
	e.mu.RLock()
	cutoff := e.cutoff
	e.mu.RUnlock()
	if cutoff == "" {
		return ids
	}
	if idx := slices.Index(ids, cutoff); idx >= 0 {
		return ids[:idx+1]
	}
	return ids
}

// resolve turns the stored identity into an account and stores the
// canonical casing the provider reports.
func (e *Engine) resolve(ctx context.Context) (*domain.Account, error) {
	e.mu.RLock()
	riotID := e.riotID
	e.mu.RUnlock()
	if riotID == nil || riotID.Empty() {
		return nil, ErrInvalidIdentity
	}

	account, err := e.api.GetAccount(ctx, riotID.GameName, riotID.TagLine)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", riotID, err)
	}

	canonical := domain.RiotID{GameName: account.GameName, TagLine: account.TagLine}
	if canonical != *riotID {
		if err := e.settings.SetRiotID(ctx, &canonical); err != nil {
			return nil, fmt.Errorf("failed to save identity: %w", err)
		}
		e.mu.Lock()
		e.riotID = &canonical
		e.mu.Unlock()
	}
	return account, nil
}

// collect turns ids into results, batch by batch: cached details are used
// as-is, the rest are fetched concurrently and cached with one write per
// batch. Every batch is followed by the pacing pause. Results keep the order
// of ids; matches that fail to fetch or do not include the player are left
// out.
func (e *Engine) collect(ctx context.Context, logger zerolog.Logger, puuid string, ids []string) ([]domain.MatchResult, batchStats, error) {
	var stats batchStats
	results := make([]domain.MatchResult, 0, len(ids))
	size := max(e.opts.BatchSize, 1)
	total := (len(ids) + size - 1) / size

	for i := 0; i < len(ids); i += size {
		batch := ids[i:min(i+size, len(ids))]

		cached, err := e.cache.GetMany(ctx, batch)
		if err != nil {
			logger.Warn().Err(err).Msg("match cache read failed, fetching batch")
			cached = map[string]domain.MatchDetail{}
		}

		fetched := make([]*domain.MatchDetail, len(batch))
		g, gCtx := errgroup.WithContext(ctx)
		for idx, id := range batch {
			if _, ok := cached[id]; ok {
				continue
			}
			g.Go(func() error {
				raw, err := e.api.GetMatch(gCtx, id)
				if err != nil {
					logger.Warn().Err(err).Str("match_id", id).Msg("failed to fetch match")
					return nil
				}
				detail := domain.SlimMatch(*raw)
				fetched[idx] = &detail
				return nil
			})
		}
		_ = g.Wait()

		toCache := make(map[string]domain.MatchDetail)
		for idx, id := range batch {
			detail, ok := cached[id]
			switch {
			case ok:
				stats.cacheHits++
			case fetched[idx] != nil:
				detail = *fetched[idx]
				toCache[id] = detail
				stats.fetched++
			default:
				stats.failed++
				continue
			}

			result, ok := detail.ResultFor(id, puuid)
			if !ok {
				stats.dropped++
				continue
			}
			results = append(results, result)
		}

		if err := e.cache.PutMany(ctx, toCache); err != nil {
			logger.Warn().Err(err).Int("matches", len(toCache)).Msg("failed to cache batch")
		}

		logger.Debug().
			Int("batch", i/size+1).
			Int("batches", total).
			Int("cache_hits", stats.cacheHits).
			Int("fetched", stats.fetched).
			Msg("batch processed")

		if err := e.pause(ctx, e.opts.BatchPause); err != nil {
			logger.Warn().Err(err).Int("batch", i/size+1).Msg("stopped between batches")
			return nil, stats, err
		}
	}
	return results, stats, nil
}

// unseen returns results whose ids are in neither history nor earlier results.
func unseen(history, results []domain.MatchResult) []domain.MatchResult {
	seen := make(map[string]struct{}, len(history)+len(results))
	for _, m := range history {
		seen[m.MatchID] = struct{}{}
	}
	out := make([]domain.MatchResult, 0, len(results))
	for _, m := range results {
		if _, ok := seen[m.MatchID]; ok {
			continue
		}
		seen[m.MatchID] = struct{}{}
		out = append(out, m)
	}
	return out
}
