package domain

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestSlimMatchKeepsResultFields(t *testing.T) {
	raw := RawMatch{Info: RawMatchInfo{
		GameCreation: 1700000000000,
		Participants: []RawParticipant{
			{
				PUUID:          "p1",
				ChampionName:   "Ahri",
				Placement:      intPtr(2),
				PlayerAugment1: intPtr(11),
				PlayerAugment2: intPtr(0),
				PlayerAugment3: intPtr(33),
				Score:          intPtr(900),
				CherryScore:    intPtr(5),
			},
			{
				PUUID:        "p2",
				ChampionName: "Jinx",
				Placement:    intPtr(7),
				Augments:     []int{0, 4, 5},
			},
		},
	}}

	detail := SlimMatch(raw)

	require.Len(t, detail.Participants, 2)
	assert.Equal(t, int64(1700000000000), detail.Timestamp)
	assert.Equal(t, []int{11, 33}, detail.Participants[0].Augments)
	require.NotNil(t, detail.Participants[0].Score)
	assert.Equal(t, 900, *detail.Participants[0].Score)
	assert.Equal(t, []int{4, 5}, detail.Participants[1].Augments)
	assert.Nil(t, detail.Participants[1].Score)
}

func TestSlimMatchScorePrefersArenaScore(t *testing.T) {
	detail := SlimMatch(RawMatch{Info: RawMatchInfo{
		GameCreation: 1,
		Participants: []RawParticipant{{PUUID: "p", ChampionName: "Zed", Placement: intPtr(1), ArenaScore: intPtr(7), Score: intPtr(3)}},
	}})
	assert.Equal(t, 7, *detail.Participants[0].Score)
}

func TestResultFor(t *testing.T) {
	detail := MatchDetail{
		Timestamp: 42,
		Participants: []Participant{
			{PUUID: "a", Champion: "Lux", Placement: 4},
			{PUUID: "b", Champion: "Vi", Placement: 1, Augments: []int{9}},
		},
	}

	result, ok := detail.ResultFor("EUW1_1", "b")
	require.True(t, ok)
	assert.Equal(t, MatchResult{MatchID: "EUW1_1", Champion: "Vi", Placement: 1, Timestamp: 42, Augments: []int{9}}, result)

	_, ok = detail.ResultFor("EUW1_1", "missing")
	assert.False(t, ok)
}

func TestDecodeMatchAcceptsBothShapes(t *testing.T) {
	provider := []byte(`{"metadata":{"matchId":"X"},"info":{"gameCreation":10,"gameDuration":1500,"participants":[{"puuid":"p","championName":"Ahri","placement":3,"kills":4,"playerAugment1":8}]}}`)
	detail, err := DecodeMatch(provider)
	require.NoError(t, err)
	assert.Equal(t, MatchDetail{Timestamp: 10, Participants: []Participant{{PUUID: "p", Champion: "Ahri", Placement: 3, Augments: []int{8}}}}, detail)

	slim := []byte(`{"timestamp":10,"participants":[{"puuid":"p","champion":"Ahri","placement":3,"augments":[0]}]}`)
	detail, err = DecodeMatch(slim)
	require.NoError(t, err)
	assert.Nil(t, detail.Participants[0].Augments)

	_, err = DecodeMatch([]byte(`{"foo":1}`))
	assert.ErrorIs(t, err, ErrUnknownMatchShape)
}

func TestSnapshotDecodesLegacyCache(t *testing.T) {
	doc := []byte(`{
		"riotId": {"gameName": "Gambler", "tagLine": "Adict"},
		"matchHistory": [{"matchId": "m1", "champion": "Ahri", "placement": 1, "timestamp": 10}],
		"arenaProgress": {"firstPlaceChampions": ["Ahri"]},
		"matchCache": {"m1": {"info": {"gameCreation": 10, "participants": [{"puuid": "p", "championName": "Ahri", "placement": 1}]}}},
		"firstSeasonMatchId": null
	}`)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(doc, &snap))

	assert.Equal(t, "Gambler#Adict", snap.RiotID.String())
	assert.Nil(t, snap.FirstSeasonMatchID)
	assert.Equal(t, "Ahri", snap.MatchCache["m1"].Participants[0].Champion)
	assert.Equal(t, []string{"Ahri"}, snap.ArenaProgress.Normalized().Wins)
}

func TestNewHistoryScope(t *testing.T) {
	assert.Equal(t, HistoryScope{Mode: ScopeAll, Limit: 100}, NewHistoryScope("bogus", 0))
	assert.Equal(t, HistoryScope{Mode: ScopeLastN, Limit: 500}, NewHistoryScope("last_n", 9000))
	assert.Equal(t, HistoryScope{Mode: ScopeLastN, Limit: 1}, NewHistoryScope("last_n", 1))
}

func TestRiotIDEmpty(t *testing.T) {
	assert.True(t, RiotID{GameName: " ", TagLine: "EUW"}.Empty())
	assert.False(t, RiotID{GameName: "a", TagLine: "b"}.Empty())
}
