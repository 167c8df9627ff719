package service

import (
	"testing"

	"arena-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(entries ...domain.MatchResult) []domain.MatchResult { return entries }

func played(id, champion string, placement int) domain.MatchResult {
	return domain.MatchResult{MatchID: id, Champion: champion, Placement: placement}
}

func TestAggregatePlacementThresholds(t *testing.T) {
	history := results(
		played("m5", "Ahri", 1),
		played("m4", "Garen", 4),
		played("m3", "Lux", 5),
		played("m2", "Ahri", 8),
		played("m1", "Jinx", 2),
	)

	progress := Aggregate(history, "", domain.DefaultHistoryScope())

	assert.Equal(t, []string{"Ahri"}, progress.Wins)
	assert.Equal(t, progress.Wins, progress.FirstPlaceChampions)
	assert.Equal(t, []string{"Ahri", "Garen", "Jinx"}, progress.Top4s)
	assert.Equal(t, []string{"Ahri", "Garen", "Lux", "Jinx"}, progress.FirstPlays)
}

func TestAggregateWinsAreTop4s(t *testing.T) {
	history := results(played("m2", "Vi", 1), played("m1", "Sona", 3))

	progress := Aggregate(history, "", domain.DefaultHistoryScope())
	for _, champion := range progress.Wins {
		assert.Contains(t, progress.Top4s, champion)
	}
	for _, champion := range progress.Top4s {
		assert.Contains(t, progress.FirstPlays, champion)
	}
}

func TestAggregateIgnoresMissingPlacement(t *testing.T) {
	history := results(played("m2", "Garen", 0), played("m1", "Ahri", 3))

	progress := Aggregate(history, "", domain.DefaultHistoryScope())
	assert.Equal(t, []string{"Ahri"}, progress.Top4s)
	assert.Empty(t, progress.Wins)
	assert.Equal(t, []string{"Garen", "Ahri"}, progress.FirstPlays)
}

func TestAggregateSeasonCutoff(t *testing.T) {
	history := results(
		played("m4", "Ahri", 6),
		played("m3", "Garen", 2),
		played("m2", "Lux", 1),
		played("m1", "Jinx", 1),
	)

	progress := Aggregate(history, "m3", domain.DefaultHistoryScope())
	assert.Empty(t, progress.Wins)
	assert.Equal(t, []string{"Garen"}, progress.Top4s)
	assert.Equal(t, []string{"Ahri", "Garen"}, progress.FirstPlays)

	unknown := Aggregate(history, "missing", domain.DefaultHistoryScope())
	assert.Equal(t, []string{"Lux", "Jinx"}, unknown.Wins)
}

func TestAggregateLastN(t *testing.T) {
	history := results(
		played("m3", "Ahri", 7),
		played("m2", "Garen", 3),
		played("m1", "Lux", 1),
	)

	progress := Aggregate(history, "", domain.HistoryScope{Mode: domain.ScopeLastN, Limit: 2})
	assert.Empty(t, progress.Wins)
	assert.Equal(t, []string{"Ahri", "Garen"}, progress.FirstPlays)

	// Non-positive limits count at least one match.
	progress = Aggregate(history, "", domain.HistoryScope{Mode: domain.ScopeLastN, Limit: 0})
	assert.Equal(t, []string{"Ahri"}, progress.FirstPlays)

	// The cutoff applies before the limit.
	progress = Aggregate(history, "m2", domain.HistoryScope{Mode: domain.ScopeLastN, Limit: 5})
	assert.Equal(t, []string{"Ahri", "Garen"}, progress.FirstPlays)
}

func TestAggregateEmptyHistory(t *testing.T) {
	progress := Aggregate(nil, "", domain.DefaultHistoryScope())
	assert.Equal(t, domain.EmptyProgress(), progress)
}

func TestAggregateIsDeterministic(t *testing.T) {
	history := results(
		played("m4", "Zed", 1),
		played("m3", "Ahri", 1),
		played("m2", "Zed", 2),
		played("m1", "Garen", 8),
	)

	first := Aggregate(history, "", domain.DefaultHistoryScope())
	for range 10 {
		assert.Equal(t, first, Aggregate(history, "", domain.DefaultHistoryScope()))
	}
	assert.Equal(t, []string{"Zed", "Ahri"}, first.Wins)
}

func TestToggle(t *testing.T) {
	progress, err := Toggle(domain.ArenaProgress{}, KindFirstPlays, "Ahri")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ahri"}, progress.FirstPlays)

	progress, err = Toggle(progress, KindFirstPlays, "Ahri")
	require.NoError(t, err)
	assert.Empty(t, progress.FirstPlays)

	progress, err = Toggle(progress, KindWins, "Lux")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lux"}, progress.Wins)
	assert.Equal(t, []string{"Lux"}, progress.FirstPlaceChampions)

	_, err = Toggle(progress, ProgressKind("bogus"), "Lux")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestToggleDoesNotAliasInput(t *testing.T) {
	before := domain.ArenaProgress{Top4s: []string{"Ahri", "Garen"}}

	_, err := Toggle(before, KindTop4s, "Ahri")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ahri", "Garen"}, before.Top4s)
}

func TestToggleReadsLegacyWins(t *testing.T) {
	legacy := domain.ArenaProgress{FirstPlaceChampions: []string{"Vi"}}

	progress, err := Toggle(legacy, KindWins, "Sona")
	require.NoError(t, err)
	assert.Equal(t, []string{"Vi", "Sona"}, progress.Wins)
	assert.Equal(t, []string{"Vi", "Sona"}, progress.FirstPlaceChampions)
}
