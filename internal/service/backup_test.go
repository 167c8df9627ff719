package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"arena-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFileName(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.FixedZone("CET", 3600))

	assert.Equal(t, "arena-tracker-backup-2025-01-02T02-04-05-678Z.json", DefaultFileName(now))
}

func TestExportImportRoundTrip(t *testing.T) {
	h := syncedHarness(t, 5)
	ctx := context.Background()

	_, err := h.engine.SetHistoryScope(ctx, domain.HistoryScope{Mode: domain.ScopeLastN, Limit: 3})
	require.NoError(t, err)
	_, err = h.engine.DropPastGames(ctx, "m2", accept(nil))
	require.NoError(t, err)
	h.engine.Close()

	wantHistory := h.engine.History()
	wantProgress := h.engine.Progress()

	var buf bytes.Buffer
	require.NoError(t, h.engine.Export(ctx, &buf))
	assert.Contains(t, buf.String(), `"firstSeasonMatchId": "m2"`)

	require.NoError(t, h.engine.ClearAll(ctx))
	require.NoError(t, h.engine.settings.SetRiotID(ctx, nil))
	require.NoError(t, h.engine.Load(ctx))
	require.Empty(t, h.engine.History())

	require.NoError(t, h.engine.Import(ctx, &buf))

	state := h.engine.State()
	assert.Equal(t, wantHistory, h.engine.History())
	assert.Equal(t, wantProgress, state.Progress)
	assert.Equal(t, "Gambler#Adict", state.RiotID.String())
	assert.Equal(t, "m2", state.SeasonCutoff)
	assert.Equal(t, domain.HistoryScope{Mode: domain.ScopeLastN, Limit: 3}, state.Scope)
	assert.Equal(t, len(wantHistory), state.Cursor)
	assert.True(t, state.HasMore)

	cached, err := h.stores.cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, cached)
}

func TestSnapshotWaitsForEvictionAfterDrop(t *testing.T) {
	h := syncedHarness(t, 5)
	ctx := context.Background()

	_, err := h.engine.DropPastGames(ctx, "m4", accept(nil))
	require.NoError(t, err)

	snap, err := h.engine.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"m5", "m4"}, ids(snap.MatchHistory))
	assert.ElementsMatch(t, []string{"m5", "m4"}, keysOf(snap.MatchCache))
	require.NotNil(t, snap.FirstSeasonMatchID)
	assert.Equal(t, "m4", *snap.FirstSeasonMatchID)
}

func TestExportRejectedWhileBusy(t *testing.T) {
	riot := newFakeRiot()
	seed(riot, 2)
	h := newTrackedHarness(t, riot)
	ctx := context.Background()

	riot.listEntered = make(chan struct{})
	riot.listGate = make(chan struct{})

	errs := make(chan error, 1)
	go func() {
		_, err := h.engine.Sync(ctx, false)
		errs <- err
	}()
	<-riot.listEntered

	var buf bytes.Buffer
	assert.ErrorIs(t, h.engine.Export(ctx, &buf), ErrBusy)
	assert.Zero(t, buf.Len())

	close(riot.listGate)
	require.NoError(t, <-errs)

	require.NoError(t, h.engine.Export(ctx, &buf))
	assert.Contains(t, buf.String(), `"matchId": "m2"`)
}

func TestRestoreDedupesAndReplacesCache(t *testing.T) {
	h := syncedHarness(t, 2)
	ctx := context.Background()

	snap := &domain.Snapshot{
		MatchHistory: []domain.MatchResult{
			played("x2", "Ahri", 1),
			played("x1", "Lux", 3),
			played("x2", "Garen", 8),
		},
		ArenaProgress: domain.ArenaProgress{FirstPlaceChampions: []string{"Ahri"}},
		MatchCache: domain.MatchCache{
			"x1": {Timestamp: 1, Participants: []domain.Participant{{PUUID: testPUUID, Champion: "Lux", Placement: 3}}},
		},
	}
	require.NoError(t, h.engine.Restore(ctx, snap))

	assert.Equal(t, []string{"x2", "x1"}, ids(h.engine.History()))
	assert.Equal(t, "Ahri", h.engine.History()[0].Champion)
	assert.Nil(t, h.engine.State().RiotID)
	assert.Equal(t, 2, h.engine.State().Cursor)

	// Progress is taken as stored, legacy wins included.
	assert.Equal(t, []string{"Ahri"}, h.engine.Progress().Wins)

	cached, err := h.stores.cache.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, keysOf(cached))

	// A snapshot without a scope leaves the current one alone.
	assert.Equal(t, domain.DefaultHistoryScope(), h.engine.State().Scope)
}

func TestImportAcceptsProviderShapedCache(t *testing.T) {
	h := newHarness(t, newFakeRiot())
	ctx := context.Background()

	doc := `{
		"riotId": {"gameName": "Gambler", "tagLine": "Adict"},
		"matchHistory": [{"matchId": "EUW1_1", "champion": "Ahri", "placement": 2, "timestamp": 10}],
		"arenaProgress": {"firstPlaceChampions": [], "wins": [], "top4s": ["Ahri"], "firstPlays": ["Ahri"]},
		"matchCache": {
			"EUW1_1": {"info": {"gameCreation": 10, "participants": [
				{"puuid": "p", "championName": "Ahri", "placement": 2, "playerAugment1": 7, "playerAugment2": 0}
			]}}
		},
		"firstSeasonMatchId": null
	}`
	require.NoError(t, h.engine.Import(ctx, strings.NewReader(doc)))

	cached, err := h.stores.cache.GetMany(ctx, []string{"EUW1_1"})
	require.NoError(t, err)
	require.Contains(t, cached, "EUW1_1")
	assert.Equal(t, []int{7}, cached["EUW1_1"].Participants[0].Augments)
	assert.Equal(t, []string{"Ahri"}, h.engine.Progress().Top4s)
	assert.Empty(t, h.engine.State().SeasonCutoff)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	h := syncedHarness(t, 2)

	err := h.engine.Import(context.Background(), strings.NewReader("{not json"))
	assert.Error(t, err)
	assert.Len(t, h.engine.History(), 2)
}
