package service

import (
	"slices"

	"arena-tracker/internal/constants"
	"arena-tracker/internal/domain"
)

type ProgressKind string

const (
	KindFirstPlays ProgressKind = "firstPlays"
	KindTop4s      ProgressKind = "top4s"
	KindWins       ProgressKind = "wins"
)

// Aggregate derives champion progress from a newest-first history. Only the
// entries from the season cutoff onward count, narrowed further to the newest
// scope.Limit entries in last_n mode. Sets keep first-seen order.
func Aggregate(history []domain.MatchResult, cutoff string, scope domain.HistoryScope) domain.ArenaProgress {
	window := history
	if cutoff != "" {
		if idx := indexOf(history, cutoff); idx >= 0 {
			window = history[:idx+1]
		}
	}
	if scope.Mode == domain.ScopeLastN {
		n := min(max(scope.Limit, 1), constants.MaxHistoryLimit)
		if len(window) > n {
			window = window[:n]
		}
	}

	played := newOrderedSet()
	top4s := newOrderedSet()
	wins := newOrderedSet()
	for _, m := range window {
		played.add(m.Champion)
		// placement 0 means the entry carried none
		if m.Placement >= 1 && m.Placement <= 4 {
			top4s.add(m.Champion)
		}
		if m.Placement == 1 {
			wins.add(m.Champion)
		}
	}

	return domain.ArenaProgress{
		FirstPlaceChampions: wins.list(),
		Wins:                wins.list(),
		Top4s:               top4s.list(),
		FirstPlays:          played.list(),
	}
}

// Toggle flips champion in the set named by kind. Wins stay mirrored into
// FirstPlaceChampions.
func Toggle(progress domain.ArenaProgress, kind ProgressKind, champion string) (domain.ArenaProgress, error) {
	progress = progress.Normalized()
	switch kind {
	case KindFirstPlays:
		progress.FirstPlays = toggle(progress.FirstPlays, champion)
	case KindTop4s:
		progress.Top4s = toggle(progress.Top4s, champion)
	case KindWins:
		progress.Wins = toggle(progress.Wins, champion)
		progress.FirstPlaceChampions = slices.Clone(progress.Wins)
	default:
		return progress, ErrUnknownKind
	}
	return progress, nil
}

func toggle(set []string, champion string) []string {
	if idx := slices.Index(set, champion); idx >= 0 {
		return slices.Delete(slices.Clone(set), idx, idx+1)
	}
	return append(slices.Clone(set), champion)
}

func indexOf(history []domain.MatchResult, matchID string) int {
	return slices.IndexFunc(history, func(m domain.MatchResult) bool {
		return m.MatchID == matchID
	})
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) list() []string {
	return slices.Clone(s.items)
}
