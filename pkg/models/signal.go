package models

import "github.com/cbodonnell/gameportal/pkg/store"

type SignalType string

const (
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "candidate"
)

// MaxSignalDataLength is the exclusive upper bound on a signal payload.
const MaxSignalDataLength = 10000

// SignalEntry is one handshake message waiting in a recipient's mailbox.
type SignalEntry struct {
	SignalID   string          `json:"signalId"`
	AddedByUID string          `json:"addedByUid"`
	Timestamp  store.Timestamp `json:"timestamp"`
	SignalType SignalType      `json:"signalType"`
	SignalData string          `json:"signalData"`
}

func ValidateSignal(signalType SignalType, signalData string) error {
	switch signalType {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeCandidate:
	default:
		return NewValidationError("signalType", "unknown type %q", signalType)
	}
	if len(signalData) >= MaxSignalDataLength {
		return NewValidationError("signalData", "length %d must be below %d", len(signalData), MaxSignalDataLength)
	}
	return nil
}
