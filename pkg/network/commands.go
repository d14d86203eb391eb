package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbodonnell/gameportal/pkg/auth"
	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/session"
	"github.com/cbodonnell/gameportal/pkg/store"
)

// ErrUnknownMessageType is returned for a command the server does not know.
var ErrUnknownMessageType = errors.New("unknown message type")

// handleCommand runs one command against the client's session and returns
// the data of its result.
func (n *NetworkManager) handleCommand(ctx context.Context, client *Client, message *messages.Message) (interface{}, error) {
	s := client.Session
	switch message.Type {
	case messages.MessageTypeListenMatches:
		return nil, s.ListenToMyMatchesList(ctx)
	case messages.MessageTypeListenSignals:
		return nil, s.ListenToSignals(ctx)
	case messages.MessageTypeFetchGames:
		games, err := s.FetchGamesList(ctx)
		if err != nil {
			return nil, err
		}
		return &messages.GamesList{Games: games}, nil
	case messages.MessageTypeWriteUser:
		cmd := &messages.WriteUser{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.WriteUser(ctx, cmd.PhoneNumber, cmd.CountryCode, cmd.DisplayName)
	case messages.MessageTypeCreateMatch:
		cmd := &messages.CreateMatch{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return s.CreateMatch(ctx, cmd.GameSpecID)
	case messages.MessageTypeAddParticipant:
		cmd := &messages.AddParticipant{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.AddParticipant(ctx, cmd.MatchID, cmd.UserID)
	case messages.MessageTypeUpdateMatchState:
		cmd := &messages.UpdateMatchState{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.UpdateMatchState(ctx, cmd.MatchID, cmd.MatchState)
	case messages.MessageTypeUpdatePiece:
		cmd := &messages.UpdatePiece{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.UpdatePieceState(ctx, cmd.MatchID, cmd.PieceIndex, cmd.PieceState)
	case messages.MessageTypePingOpponents:
		cmd := &messages.PingOpponents{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.PingOpponents(ctx, cmd.MatchID)
	case messages.MessageTypeSendSignal:
		cmd := &messages.SendSignal{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.SendSignal(ctx, cmd.ToUserID, cmd.SignalType, cmd.SignalData)
	case messages.MessageTypeResolveContacts:
		cmd := &messages.ResolveContacts{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		return nil, s.UpdateUserIDsAndPhoneNumbers(ctx, cmd.PhoneNumbers)
	case messages.MessageTypeDisplayName:
		cmd := &messages.DisplayName{}
		if err := decode(message, cmd); err != nil {
			return nil, err
		}
		name, err := s.DisplayName(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}
		return &models.UserInfo{UserID: cmd.UserID, DisplayName: name}, nil
	case messages.MessageTypeLogin:
		return nil, models.NewValidationError("type", "already logged in as %s", client.UserID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, message.Type)
	}
}

func decode(message *messages.Message, v interface{}) error {
	if err := message.Decode(v); err != nil {
		return models.NewValidationError("payload", "%v", err)
	}
	return nil
}

// ErrorKind classifies err for a client.
func ErrorKind(err error) string {
	switch {
	case models.IsValidationError(err), errors.Is(err, ErrUnknownMessageType):
		return messages.ErrorKindValidation
	case store.IsMissingData(err):
		return messages.ErrorKindMissingData
	case store.IsWriteError(err):
		return messages.ErrorKindWrite
	case models.IsProgrammingError(err):
		return messages.ErrorKindProgramming
	case errors.Is(err, auth.ErrUnauthenticated):
		return messages.ErrorKindAuth
	case errors.Is(err, session.ErrClosed):
		return messages.ErrorKindClosed
	default:
		return messages.ErrorKindInternal
	}
}
