package models

import "github.com/cbodonnell/gameportal/pkg/store"

// MatchInfo is the client's view of one match.
type MatchInfo struct {
	MatchID    string `json:"matchId"`
	GameSpecID string `json:"gameSpecId"`

	// ParticipantsUserIDs is ordered by join index.
	ParticipantsUserIDs []string        `json:"participantsUserIds"`
	LastUpdatedOn       store.Timestamp `json:"lastUpdatedOn"`
	MatchState          MatchState      `json:"matchState"`
}

func (m *MatchInfo) HasParticipant(userID string) bool {
	return m.ParticipantIndex(userID) >= 0
}

// ParticipantIndex returns the join index of userID, or -1.
func (m *MatchInfo) ParticipantIndex(userID string) int {
	for i, id := range m.ParticipantsUserIDs {
		if id == userID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m *MatchInfo) Clone() *MatchInfo {
	c := *m
	c.ParticipantsUserIDs = append([]string(nil), m.ParticipantsUserIDs...)
	if m.MatchState != nil {
		c.MatchState = make(MatchState, len(m.MatchState))
		for i, p := range m.MatchState {
			c.MatchState[i] = p
			c.MatchState[i].CardVisibility = append(VisibilitySet(nil), p.CardVisibility...)
		}
	}
	return &c
}
