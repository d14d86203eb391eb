package messages

import (
	"bytes"
	"testing"

	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeMessage(t *testing.T) {
	tests := []struct {
		name    string
		message *Message
		wantErr bool
	}{
		{
			name:    "Command with payload",
			message: &Message{Seq: 7, Type: MessageTypeCreateMatch, Payload: []byte(`{"gameSpecId":"chess"}`)},
		},
		{
			name:    "Event without payload",
			message: &Message{Type: MessageTypeListenMatches},
		},
		{
			name:    "Large compressible payload",
			message: &Message{Seq: 1, Type: MessageTypeSendSignal, Payload: bytes.Repeat([]byte("a"), 64*1024)},
		},
		{
			name:    "Missing type",
			message: &Message{Seq: 1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := SerializeMessage(tt.message)
			if (err != nil) != tt.wantErr {
				t.Errorf("SerializeMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			got, err := DeserializeMessage(b)
			require.NoError(t, err)
			assert.Equal(t, tt.message, got)
		})
	}
}

func TestDeserializeMessage_Malformed(t *testing.T) {
	_, err := DeserializeMessage([]byte("not zstd"))
	assert.Error(t, err)

	_, err = DeserializeMessageFlatbuffer([]byte{0xff, 0xff, 0xff, 0x7f, 0x00})
	assert.Error(t, err)

	_, err = DeserializeMessageFlatbuffer(nil)
	assert.Error(t, err)
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage(3, MessageTypeUpdatePiece, UpdatePiece{
		MatchID:    "m1",
		PieceIndex: 2,
		PieceState: models.PieceState{X: 1, Y: 2, ZDepth: 3, CardVisibility: models.NewVisibilitySet(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.Seq)

	var got UpdatePiece
	require.NoError(t, m.Decode(&got))
	assert.Equal(t, "m1", got.MatchID)
	assert.Equal(t, 2, got.PieceIndex)
	assert.Equal(t, models.NewVisibilitySet(1), got.PieceState.CardVisibility)

	empty := &Message{Type: MessageTypeFetchGames}
	assert.NoError(t, empty.Decode(&got))
	assert.Error(t, (&Message{Type: "x", Payload: []byte("{")}).Decode(&got))
}
