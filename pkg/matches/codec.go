package matches

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/store"
)

// matchDocument is the stored form of a match at /gamePortal/matches/{id}.
type matchDocument struct {
	GameSpecID    string                         `json:"gameSpecId"`
	Participants  map[string]participantDocument `json:"participants"`
	CreatedOn     store.Timestamp                `json:"createdOn"`
	LastUpdatedOn store.Timestamp                `json:"lastUpdatedOn"`
	Pieces        map[string]pieceDocument       `json:"pieces,omitempty"`
}

// storedMatch is decoded separately so pieces can arrive as an object or
// as an array, depending on how the database chose to return the keys.
type storedMatch struct {
	GameSpecID    string                         `json:"gameSpecId"`
	Participants  map[string]participantDocument `json:"participants"`
	LastUpdatedOn store.Timestamp                `json:"lastUpdatedOn"`
	Pieces        json.RawMessage                `json:"pieces"`
}

type participantDocument struct {
	ParticipantIndex int             `json:"participantIndex"`
	PingOpponents    store.Timestamp `json:"pingOpponents"`
}

type membershipDocument struct {
	AddedByUID string          `json:"addedByUid"`
	Timestamp  store.Timestamp `json:"timestamp"`
}

type pieceDocument struct {
	CurrentState *pieceStateDocument `json:"currentState"`
}

type pieceStateDocument struct {
	X                 float64        `json:"x"`
	Y                 float64        `json:"y"`
	ZDepth            float64        `json:"zDepth"`
	CurrentImageIndex int            `json:"currentImageIndex"`
	CardVisibility    wireVisibility `json:"cardVisibility,omitempty"`
}

// wireVisibility stores a VisibilitySet as {"0":true,"2":true}. Hidden
// indices are absent, never false.
type wireVisibility models.VisibilitySet

func (v wireVisibility) MarshalJSON() ([]byte, error) {
	m := make(map[string]bool, len(v))
	for _, index := range v {
		m[strconv.Itoa(index)] = true
	}
	return json.Marshal(m)
}

func (v *wireVisibility) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var set models.VisibilitySet
	switch {
	case len(b) == 0 || string(b) == "null":
	case b[0] == '[':
		var list []*bool
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("invalid card visibility: %w", err)
		}
		for i, visible := range list {
			if visible != nil && *visible {
				set = set.With(i)
			}
		}
	default:
		var m map[string]bool
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("invalid card visibility: %w", err)
		}
		for key, visible := range m {
			index, err := strconv.Atoi(key)
			if err != nil {
				return fmt.Errorf("invalid card visibility key %q", key)
			}
			if visible {
				set = set.With(index)
			}
		}
	}
	*v = wireVisibility(set)
	return nil
}

func encodePieceState(p models.PieceState) *pieceStateDocument {
	return &pieceStateDocument{
		X:                 p.X,
		Y:                 p.Y,
		ZDepth:            p.ZDepth,
		CurrentImageIndex: p.CurrentImageIndex,
		CardVisibility:    wireVisibility(p.CardVisibility),
	}
}

func (d *pieceStateDocument) pieceState() models.PieceState {
	return models.PieceState{
		X:                 d.X,
		Y:                 d.Y,
		ZDepth:            d.ZDepth,
		CurrentImageIndex: d.CurrentImageIndex,
		CardVisibility:    models.VisibilitySet(d.CardVisibility),
	}
}

// encodeMatchState returns the pieces node for state, keyed by piece index.
// An empty state encodes to nil.
func encodeMatchState(state models.MatchState) map[string]pieceDocument {
	if len(state) == 0 {
		return nil
	}
	pieces := make(map[string]pieceDocument, len(state))
	for i, p := range state {
		pieces[strconv.Itoa(i)] = pieceDocument{CurrentState: encodePieceState(p)}
	}
	return pieces
}

// DecodeMatch converts a stored match into a MatchInfo. Participants are
// ordered by join index. Any structural problem is a *models.ProgrammingError.
func DecodeMatch(matchID string, raw json.RawMessage) (*models.MatchInfo, error) {
	var doc storedMatch
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, models.NewProgrammingError("DecodeMatch", fmt.Errorf("match %s: %w", matchID, err))
	}
	pieces, err := decodePieces(doc.Pieces)
	if err != nil {
		return nil, models.NewProgrammingError("DecodeMatch", fmt.Errorf("match %s: %w", matchID, err))
	}
	return &models.MatchInfo{
		MatchID:             matchID,
		GameSpecID:          doc.GameSpecID,
		ParticipantsUserIDs: sortParticipants(doc.Participants),
		LastUpdatedOn:       doc.LastUpdatedOn,
		MatchState:          pieces,
	}, nil
}

func sortParticipants(participants map[string]participantDocument) []string {
	ids := make([]string, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := participants[ids[i]], participants[ids[j]]
		if a.ParticipantIndex != b.ParticipantIndex {
			return a.ParticipantIndex < b.ParticipantIndex
		}
		return ids[i] < ids[j]
	})
	return ids
}

// decodePieces accepts the pieces node in object or array form. The keys
// must be exactly the indices 0..n-1.
func decodePieces(raw json.RawMessage) (models.MatchState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return models.MatchState{}, nil
	}
	switch raw[0] {
	case '[':
		var list []*pieceDocument
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		state := make(models.MatchState, len(list))
		for i, p := range list {
			if p == nil || p.CurrentState == nil {
				return nil, malformedPieces("piece %d is missing", i)
			}
			state[i] = p.CurrentState.pieceState()
		}
		return state, nil
	case '{':
		byIndex, err := decodePieceObject(raw)
		if err != nil {
			return nil, err
		}
		state := make(models.MatchState, len(byIndex))
		for i := range state {
			p, ok := byIndex[i]
			if !ok {
				return nil, malformedPieces("piece %d is missing", i)
			}
			state[i] = p.CurrentState.pieceState()
		}
		return state, nil
	default:
		return nil, malformedPieces("pieces must be an object or an array")
	}
}

// decodePieceObject walks the object token by token so repeated keys are
// seen instead of silently overwritten.
func decodePieceObject(raw json.RawMessage) (map[int]pieceDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	byIndex := make(map[int]pieceDocument)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || strconv.Itoa(index) != key {
			return nil, malformedPieces("key %q is not a piece index", key)
		}
		if _, ok := byIndex[index]; ok {
			return nil, malformedPieces("duplicate piece index %d", index)
		}
		var p pieceDocument
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		if p.CurrentState == nil {
			return nil, malformedPieces("piece %d has no current state", index)
		}
		byIndex[index] = p
	}
	return byIndex, nil
}

func malformedPieces(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrMalformedPieceIndex, fmt.Sprintf(format, args...))
}
