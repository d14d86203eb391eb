package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/gameportal/pkg/models"
)

const (
	// MessageBufferSize represents the maximum size of a compressed message
	MessageBufferSize = 1 << 20
)

// Client message types
const (
	MessageTypeLogin            = "login"
	MessageTypeListenMatches    = "listenMatches"
	MessageTypeListenSignals    = "listenSignals"
	MessageTypeFetchGames       = "fetchGames"
	MessageTypeWriteUser        = "writeUser"
	MessageTypeCreateMatch      = "createMatch"
	MessageTypeAddParticipant   = "addParticipant"
	MessageTypeUpdateMatchState = "updateMatchState"
	MessageTypeUpdatePiece      = "updatePiece"
	MessageTypePingOpponents    = "pingOpponents"
	MessageTypeSendSignal       = "sendSignal"
	MessageTypeResolveContacts  = "resolveContacts"
	MessageTypeDisplayName      = "displayName"
)

// Server message types
const (
	MessageTypeResult      = "result"
	MessageTypeMatchesList = "matchesList"
	MessageTypeSignals     = "signals"
	MessageTypeUserInfo    = "userInfo"
	MessageTypeGamesList   = "gamesList"
	MessageTypeTerminated  = "terminated"
)

// Message represents a generic message for serialization/deserialization.
// A result carries the Seq of the command it answers. Pushed events have
// Seq 0.
type Message struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage encodes payload as the JSON body of a message.
func NewMessage(seq uint64, messageType string, payload interface{}) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", messageType, err)
	}
	return &Message{Seq: seq, Type: messageType, Payload: b}, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v as is.
func (m *Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v", m.Type, err)
	}
	return nil
}

type Login struct {
	IDToken string `json:"idToken"`
}

type WriteUser struct {
	PhoneNumber string `json:"phoneNumber"`
	CountryCode string `json:"countryCode"`
	DisplayName string `json:"displayName"`
}

type CreateMatch struct {
	GameSpecID string `json:"gameSpecId"`
}

type AddParticipant struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
}

type UpdateMatchState struct {
	MatchID    string            `json:"matchId"`
	MatchState models.MatchState `json:"matchState"`
}

type UpdatePiece struct {
	MatchID    string            `json:"matchId"`
	PieceIndex int               `json:"pieceIndex"`
	PieceState models.PieceState `json:"pieceState"`
}

type PingOpponents struct {
	MatchID string `json:"matchId"`
}

type SendSignal struct {
	ToUserID   string            `json:"toUserId"`
	SignalType models.SignalType `json:"signalType"`
	SignalData string            `json:"signalData"`
}

type ResolveContacts struct {
	PhoneNumbers []string `json:"phoneNumbers"`
}

type DisplayName struct {
	UserID string `json:"userId"`
}

// Error kinds reported in a Result.
const (
	ErrorKindValidation  = "validation"
	ErrorKindMissingData = "missingData"
	ErrorKindWrite       = "write"
	ErrorKindProgramming = "programming"
	ErrorKindAuth        = "auth"
	ErrorKindClosed      = "closed"
	ErrorKindInternal    = "internal"
)

// Result answers one command.
type Result struct {
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// LoginResult is the data of the result that answers a login.
type LoginResult struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type MatchesList struct {
	Matches []*models.MatchInfo `json:"matches"`
}

type Signals struct {
	Signals []models.SignalEntry `json:"signals"`
}

type UserInfo struct {
	Users map[string]models.UserInfo `json:"users"`
}

type GamesList struct {
	Games []*models.GameSpec `json:"games"`
}

type Terminated struct {
	Error string `json:"error"`
}
