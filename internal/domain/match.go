package domain

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// SlimMatch keeps only what result derivation reads from a provider payload.
func SlimMatch(raw RawMatch) MatchDetail {
	detail := MatchDetail{
		Timestamp:    raw.Info.GameCreation,
		Participants: make([]Participant, 0, len(raw.Info.Participants)),
	}
	for _, p := range raw.Info.Participants {
		placement := 0
		if p.Placement != nil {
			placement = *p.Placement
		}
		detail.Participants = append(detail.Participants, Participant{
			PUUID:     p.PUUID,
			Champion:  p.ChampionName,
			Placement: placement,
			Score:     firstSet(p.ArenaScore, p.Score, p.CherryScore, p.PlayerScore0),
			Augments:  rawAugments(p),
		})
	}
	return detail
}

func firstSet(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			n := *v
			return &n
		}
	}
	return nil
}

// rawAugments prefers the numbered slots and falls back to the augments array.
func rawAugments(p RawParticipant) []int {
	var ids []int
	for _, slot := range []*int{p.PlayerAugment1, p.PlayerAugment2, p.PlayerAugment3, p.PlayerAugment4, p.PlayerAugment5, p.PlayerAugment6} {
		if slot != nil && *slot != 0 {
			ids = append(ids, *slot)
		}
	}
	if len(ids) > 0 {
		return ids
	}
	for _, id := range p.Augments {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Slim drops zero augment ids and empty augment lists.
func (d MatchDetail) Slim() MatchDetail {
	out := MatchDetail{
		Timestamp:    d.Timestamp,
		Participants: make([]Participant, 0, len(d.Participants)),
	}
	for _, p := range d.Participants {
		var augments []int
		for _, id := range p.Augments {
			if id != 0 {
				augments = append(augments, id)
			}
		}
		p.Augments = augments
		out.Participants = append(out.Participants, p)
	}
	return out
}

// ResultFor derives the per-player view of a match. ok is false when the
// player is not among the participants.
func (d MatchDetail) ResultFor(matchID, puuid string) (MatchResult, bool) {
	for _, p := range d.Participants {
		if p.PUUID != puuid {
			continue
		}
		return MatchResult{
			MatchID:   matchID,
			Champion:  p.Champion,
			Placement: p.Placement,
			Timestamp: d.Timestamp,
			Score:     p.Score,
			Augments:  p.Augments,
		}, true
	}
	return MatchResult{}, false
}

var ErrUnknownMatchShape = errors.New("unrecognised match payload")

// DecodeMatch accepts either a slim MatchDetail or a provider payload with an
// "info" object and returns the slim form.
func DecodeMatch(data []byte) (MatchDetail, error) {
	var probe struct {
		Info         json.RawMessage `json:"info"`
		Participants json.RawMessage `json:"participants"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return MatchDetail{}, fmt.Errorf("failed to decode match: %w", err)
	}

	switch {
	case len(probe.Info) > 0 && string(probe.Info) != "null":
		var raw RawMatch
		if err := json.Unmarshal(data, &raw); err != nil {
			return MatchDetail{}, fmt.Errorf("failed to decode provider match: %w", err)
		}
		return SlimMatch(raw), nil
	case len(probe.Participants) > 0:
		var detail MatchDetail
		if err := json.Unmarshal(data, &detail); err != nil {
			return MatchDetail{}, fmt.Errorf("failed to decode slim match: %w", err)
		}
		return detail.Slim(), nil
	default:
		return MatchDetail{}, ErrUnknownMatchShape
	}
}

// MatchCache decodes entries in either shape DecodeMatch accepts.
type MatchCache map[string]MatchDetail

func (c *MatchCache) UnmarshalJSON(data []byte) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	out := make(MatchCache, len(entries))
	for id, entry := range entries {
		detail, err := DecodeMatch(entry)
		if err != nil {
			return fmt.Errorf("match %s: %w", id, err)
		}
		out[id] = detail
	}
	*c = out
	return nil
}
