package network

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/cbodonnell/gameportal/pkg/auth"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/session"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "Validation", err: models.NewValidationError("x", "out of bounds"), want: messages.ErrorKindValidation},
		{name: "Unknown type", err: fmt.Errorf("%w: dance", ErrUnknownMessageType), want: messages.ErrorKindValidation},
		{name: "Missing data", err: fmt.Errorf("load: %w", &store.MissingDataError{Path: "games"}), want: messages.ErrorKindMissingData},
		{name: "Write", err: &store.WriteError{Op: "update", Path: "matches/m1", Err: errors.New("denied")}, want: messages.ErrorKindWrite},
		{name: "Programming", err: models.NewProgrammingError("listenToMyMatchesList", errors.New("already set up")), want: messages.ErrorKindProgramming},
		{name: "Auth", err: fmt.Errorf("login: %w", auth.ErrUnauthenticated), want: messages.ErrorKindAuth},
		{name: "Closed", err: session.ErrClosed, want: messages.ErrorKindClosed},
		{name: "Internal", err: errors.New("boom"), want: messages.ErrorKindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestResultMessage(t *testing.T) {
	msg := resultMessage(7, &models.UserInfo{UserID: "alice"}, nil)
	require.Equal(t, uint64(7), msg.Seq)
	require.Equal(t, messages.MessageTypeResult, msg.Type)
	result := &messages.Result{}
	require.NoError(t, msg.Decode(result))
	assert.True(t, result.OK)
	assert.NotEmpty(t, result.Data)

	msg = resultMessage(8, nil, models.NewValidationError("payload", "bad"))
	result = &messages.Result{}
	require.NoError(t, msg.Decode(result))
	assert.False(t, result.OK)
	assert.Equal(t, messages.ErrorKindValidation, result.ErrorKind)
	assert.NotEmpty(t, result.Error)
}

func TestClientManager(t *testing.T) {
	logger := log.New(io.Discard, "", log.DefaultLoggerFlag, log.LogLevelError)
	cm := NewClientManager()
	alice := newClient(nil, "alice", logger)
	bob := newClient(nil, "bob", logger)
	require.NotEqual(t, alice.ID, bob.ID)

	cm.ConnectClient(alice)
	cm.ConnectClient(bob)
	assert.Equal(t, 2, cm.Count())
	assert.Len(t, cm.GetClients(), 2)

	got, ok := cm.GetClient(alice.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", got.UserID)

	cm.DisconnectClient(alice.ID)
	_, ok = cm.GetClient(alice.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, cm.Count())
}
