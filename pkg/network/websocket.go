package network

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/gorilla/websocket"
)

const (
	// WriteWait is the time allowed to write one message
	WriteWait = 10 * time.Second
	// PongWait is the time allowed between two pongs from the peer
	PongWait = 60 * time.Second
	// PingPeriod is how often the writer pings the peer
	PingPeriod = PongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MalformedMessageError is returned by ReadMessageFromWS when a frame was
// read but could not be decoded. The connection is still usable.
type MalformedMessageError struct {
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

func IsMalformedMessage(err error) bool {
	var me *MalformedMessageError
	return errors.As(err, &me)
}

// WriteMessageToWS writes a Message to a WebSocket connection
func WriteMessageToWS(conn *websocket.Conn, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

// ReadMessageFromWS reads a Message from a WebSocket connection
func ReadMessageFromWS(conn *websocket.Conn) (*messages.Message, error) {
	kind, message, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, &MalformedMessageError{Err: fmt.Errorf("unexpected websocket message type %d", kind)}
	}

	msg, err := messages.DeserializeMessage(message)
	if err != nil {
		return nil, &MalformedMessageError{Err: err}
	}

	return msg, nil
}
