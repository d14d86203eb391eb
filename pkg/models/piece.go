package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const (
	MinCoordinate   = -100
	MaxCoordinate   = 100
	MinZDepth       = 1
	MaxZDepth       = 1e17
	MaxImageIndex   = 256
	MaxParticipants = 8
)

// PieceState is the position and face of one piece in a match.
type PieceState struct {
	X                 float64       `json:"x"`
	Y                 float64       `json:"y"`
	ZDepth            float64       `json:"zDepth"`
	CurrentImageIndex int           `json:"currentImageIndex"`
	CardVisibility    VisibilitySet `json:"cardVisibility,omitempty"`
}

// MatchState holds one PieceState per piece of the game, in piece order.
type MatchState []PieceState

// VisibilitySet is the sorted set of participant indices that may see
// a card's face.
type VisibilitySet []int

func NewVisibilitySet(indices ...int) VisibilitySet {
	var s VisibilitySet
	for _, i := range indices {
		s = s.With(i)
	}
	return s
}

func (s VisibilitySet) Contains(index int) bool {
	i := sort.SearchInts(s, index)
	return i < len(s) && s[i] == index
}

// With returns a copy of s that also contains index.
func (s VisibilitySet) With(index int) VisibilitySet {
	if s.Contains(index) {
		return s
	}
	out := make(VisibilitySet, 0, len(s)+1)
	out = append(out, s...)
	out = append(out, index)
	sort.Ints(out)
	return out
}

// UnmarshalJSON accepts a JSON array or the index-keyed object the store
// turns arrays into.
func (s *VisibilitySet) UnmarshalJSON(b []byte) error {
	var list []int
	if err := json.Unmarshal(b, &list); err == nil {
		*s = NewVisibilitySet(list...)
		return nil
	}
	byKey := map[string]int{}
	if err := json.Unmarshal(b, &byKey); err != nil {
		return fmt.Errorf("invalid visibility set: %w", err)
	}
	indices := make([]int, 0, len(byKey))
	for _, index := range byKey {
		indices = append(indices, index)
	}
	*s = NewVisibilitySet(indices...)
	return nil
}

// Validate checks the numeric ranges of a piece. Bounds are inclusive.
func (p PieceState) Validate() error {
	if !inRange(p.X, MinCoordinate, MaxCoordinate) {
		return NewValidationError("x", "%v is outside [%d, %d]", p.X, MinCoordinate, MaxCoordinate)
	}
	if !inRange(p.Y, MinCoordinate, MaxCoordinate) {
		return NewValidationError("y", "%v is outside [%d, %d]", p.Y, MinCoordinate, MaxCoordinate)
	}
	if !inRange(p.ZDepth, MinZDepth, MaxZDepth) {
		return NewValidationError("zDepth", "%v is outside [%d, %g]", p.ZDepth, MinZDepth, MaxZDepth)
	}
	if p.CurrentImageIndex < 0 || p.CurrentImageIndex > MaxImageIndex {
		return NewValidationError("currentImageIndex", "%d is outside [0, %d]", p.CurrentImageIndex, MaxImageIndex)
	}
	for i, index := range p.CardVisibility {
		if index < 0 || index >= MaxParticipants {
			return NewValidationError("cardVisibility", "participant index %d is outside [0, %d)", index, MaxParticipants)
		}
		if i > 0 && p.CardVisibility[i-1] >= index {
			return NewValidationError("cardVisibility", "indices must be sorted and unique")
		}
	}
	return nil
}

func inRange(v float64, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
