package workers

import (
	"context"

	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/cbodonnell/gameportal/pkg/models"
)

// Broadcaster sends a message to every connected client.
type Broadcaster interface {
	SendToAll(msg *messages.Message)
}

type BroadcastMessageWorker struct {
	broadcaster          Broadcaster
	broadcastMessageChan <-chan BroadcastMessage
}

type BroadcastMessage struct {
	Type    string
	Message interface{}
}

type NewBroadcastMessageWorkerOptions struct {
	Broadcaster          Broadcaster
	BroadcastMessageChan <-chan BroadcastMessage
}

func NewBroadcastMessageWorker(opts NewBroadcastMessageWorkerOptions) *BroadcastMessageWorker {
	return &BroadcastMessageWorker{
		broadcaster:          opts.Broadcaster,
		broadcastMessageChan: opts.BroadcastMessageChan,
	}
}

func (w *BroadcastMessageWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.broadcastMessageChan:
			switch msg.Type {
			case messages.MessageTypeGamesList:
				games, ok := msg.Message.([]*models.GameSpec)
				if !ok {
					log.Error("Failed to cast games list message")
					continue
				}
				w.send(msg.Type, &messages.GamesList{Games: games})
			default:
				log.Error("Unknown broadcast message type: %v", msg.Type)
			}
		}
	}
}

func (w *BroadcastMessageWorker) send(messageType string, payload interface{}) {
	msg, err := messages.NewMessage(0, messageType, payload)
	if err != nil {
		log.Error("Failed to encode %s broadcast: %v", messageType, err)
		return
	}
	w.broadcaster.SendToAll(msg)
}
