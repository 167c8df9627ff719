package domain

import (
	"strings"

	"arena-tracker/internal/constants"
)

type RiotID struct {
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

func (r RiotID) Empty() bool {
	return strings.TrimSpace(r.GameName) == "" || strings.TrimSpace(r.TagLine) == ""
}

func (r RiotID) String() string {
	return r.GameName + "#" + r.TagLine
}

type Account struct {
	PUUID    string `json:"puuid" validate:"required"`
	GameName string `json:"gameName" validate:"required"`
	TagLine  string `json:"tagLine" validate:"required"`
}

// Participant is the slim per-player slice of a match the cache keeps.
type Participant struct {
	PUUID     string `json:"puuid"`
	Champion  string `json:"champion"`
	Placement int    `json:"placement"`
	Score     *int   `json:"score,omitempty"`
	Augments  []int  `json:"augments,omitempty"`
}

// MatchDetail is a match in slim form. Timestamp is the game creation time in ms.
type MatchDetail struct {
	Timestamp    int64         `json:"timestamp"`
	Participants []Participant `json:"participants"`
}

type MatchResult struct {
	MatchID   string `json:"matchId"`
	Champion  string `json:"champion"`
	Placement int    `json:"placement"`
	Timestamp int64  `json:"timestamp"`
	Score     *int   `json:"score,omitempty"`
	Augments  []int  `json:"augments,omitempty"`
}

type ArenaProgress struct {
	// FirstPlaceChampions mirrors Wins for older readers.
	FirstPlaceChampions []string `json:"firstPlaceChampions"`
	Wins                []string `json:"wins"`
	Top4s               []string `json:"top4s"`
	FirstPlays          []string `json:"firstPlays"`
}

// Normalized fills missing sets. A record written before wins existed
// carries its wins in FirstPlaceChampions.
func (p ArenaProgress) Normalized() ArenaProgress {
	if p.Wins == nil {
		p.Wins = p.FirstPlaceChampions
	}
	if p.FirstPlaceChampions == nil {
		p.FirstPlaceChampions = []string{}
	}
	if p.Wins == nil {
		p.Wins = []string{}
	}
	if p.Top4s == nil {
		p.Top4s = []string{}
	}
	if p.FirstPlays == nil {
		p.FirstPlays = []string{}
	}
	return p
}

func EmptyProgress() ArenaProgress {
	return ArenaProgress{}.Normalized()
}

type ScopeMode string

const (
	ScopeAll   ScopeMode = "all"
	ScopeLastN ScopeMode = "last_n"
)

type HistoryScope struct {
	Mode  ScopeMode `json:"mode"`
	Limit int       `json:"limit"`
}

func DefaultHistoryScope() HistoryScope {
	return HistoryScope{Mode: ScopeAll, Limit: constants.DefaultHistoryLimit}
}

// NewHistoryScope reads unknown modes as all and clamps the limit to
// [1, MaxHistoryLimit]; a non-positive limit falls back to the default.
func NewHistoryScope(mode string, limit int) HistoryScope {
	scope := HistoryScope{Mode: ScopeAll, Limit: ClampHistoryLimit(limit)}
	if ScopeMode(mode) == ScopeLastN {
		scope.Mode = ScopeLastN
	}
	return scope
}

func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultHistoryLimit
	}
	if limit > constants.MaxHistoryLimit {
		return constants.MaxHistoryLimit
	}
	return limit
}

// Snapshot is the portable backup document.
type Snapshot struct {
	RiotID             *RiotID       `json:"riotId"`
	MatchHistory       []MatchResult `json:"matchHistory"`
	ArenaProgress      ArenaProgress `json:"arenaProgress"`
	MatchCache         MatchCache    `json:"matchCache"`
	FirstSeasonMatchID *string       `json:"firstSeasonMatchId"`
	HistoryScope       *HistoryScope `json:"historyScope,omitempty"`
}

type RawMatch struct {
	Info RawMatchInfo `json:"info"`
}

type RawMatchInfo struct {
	GameCreation int64            `json:"gameCreation" validate:"required"`
	Participants []RawParticipant `json:"participants" validate:"required,dive"`
}

type RawParticipant struct {
	PUUID          string `json:"puuid" validate:"required"`
	ChampionName   string `json:"championName" validate:"required"`
	Placement      *int   `json:"placement" validate:"required"`
	PlayerAugment1 *int   `json:"playerAugment1,omitempty"`
	PlayerAugment2 *int   `json:"playerAugment2,omitempty"`
	PlayerAugment3 *int   `json:"playerAugment3,omitempty"`
	PlayerAugment4 *int   `json:"playerAugment4,omitempty"`
	PlayerAugment5 *int   `json:"playerAugment5,omitempty"`
	PlayerAugment6 *int   `json:"playerAugment6,omitempty"`
	Augments       []int  `json:"augments,omitempty"`
	ArenaScore     *int   `json:"arenaScore,omitempty"`
	Score          *int   `json:"score,omitempty"`
	CherryScore    *int   `json:"cherryScore,omitempty"`
	PlayerScore0   *int   `json:"playerScore0,omitempty"`
}
