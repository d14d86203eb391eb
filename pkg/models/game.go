package models

import "fmt"

type PieceKind string

const (
	PieceKindStandard PieceKind = "standard"
	PieceKindCard     PieceKind = "card"
	PieceKindDice     PieceKind = "dice"
	PieceKindToggle   PieceKind = "toggle"
)

// GameSpec declares the pieces of a game. Every match of the game has
// exactly one PieceState per PieceSpec, in the same order.
type GameSpec struct {
	GameSpecID string      `json:"gameSpecId"`
	GameName   string      `json:"gameName"`
	Pieces     []PieceSpec `json:"pieces"`
}

type PieceSpec struct {
	ElementID    string     `json:"elementId"`
	Kind         PieceKind  `json:"kind"`
	ImageCount   int        `json:"imageCount"`
	InitialState PieceState `json:"initialState"`
}

func (g *GameSpec) Validate() error {
	if g.GameSpecID == "" {
		return NewValidationError("gameSpecId", "must not be empty")
	}
	for i, piece := range g.Pieces {
		switch piece.Kind {
		case PieceKindStandard, PieceKindCard, PieceKindDice, PieceKindToggle:
		default:
			return NewValidationError("pieces", "piece %d has unknown kind %q", i, piece.Kind)
		}
		if piece.ImageCount < 1 {
			return NewValidationError("pieces", "piece %d must have at least one image", i)
		}
		if err := g.ValidatePiece(i, piece.InitialState); err != nil {
			return fmt.Errorf("initial state of piece %d: %w", i, err)
		}
	}
	return nil
}

// InitialMatchState returns a fresh copy of the game's starting layout.
func (g *GameSpec) InitialMatchState() MatchState {
	state := make(MatchState, len(g.Pieces))
	for i, piece := range g.Pieces {
		state[i] = piece.InitialState
		state[i].CardVisibility = append(VisibilitySet(nil), piece.InitialState.CardVisibility...)
	}
	return state
}

// ValidatePiece checks one piece against its ranges and its spec.
func (g *GameSpec) ValidatePiece(index int, p PieceState) error {
	if index < 0 || index >= len(g.Pieces) {
		return NewValidationError("pieceIndex", "%d is outside the %d pieces of game %s", index, len(g.Pieces), g.GameSpecID)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	spec := g.Pieces[index]
	if p.CurrentImageIndex >= spec.ImageCount {
		return NewValidationError("currentImageIndex", "%d exceeds the %d images of piece %s", p.CurrentImageIndex, spec.ImageCount, spec.ElementID)
	}
	if len(p.CardVisibility) > 0 && spec.Kind != PieceKindCard {
		return NewValidationError("cardVisibility", "piece %s is not a card", spec.ElementID)
	}
	return nil
}

// ValidateMatchState checks that state has the game's shape. An empty
// state is a match whose pieces have not been written yet.
func (g *GameSpec) ValidateMatchState(state MatchState) error {
	if len(state) == 0 {
		return nil
	}
	if len(state) != len(g.Pieces) {
		return NewValidationError("matchState", "has %d pieces, game %s has %d", len(state), g.GameSpecID, len(g.Pieces))
	}
	for i, p := range state {
		if err := g.ValidatePiece(i, p); err != nil {
			return fmt.Errorf("piece %d: %w", i, err)
		}
	}
	return nil
}
