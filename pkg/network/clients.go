package network

import (
	"sync"

	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/cbodonnell/gameportal/pkg/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// ClientSendBufferSize represents the number of outgoing messages a
	// client may have queued before it is disconnected as too slow
	ClientSendBufferSize = 256
)

// Client represents a connected, logged in websocket client
type Client struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Session *session.Session

	send      chan *messages.Message
	done      chan struct{}
	closeOnce sync.Once
	logger    *log.Logger
}

func newClient(conn *websocket.Conn, userID string, logger *log.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		UserID: userID,
		Conn:   conn,
		send:   make(chan *messages.Message, ClientSendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("client", id).With("user", userID),
	}
}

// Send queues msg for the writer. It never blocks: a client whose queue
// is full is closed.
func (c *Client) Send(msg *messages.Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.logger.Warn("Send queue is full, closing connection")
		c.Close()
	}
}

// Close stops the writer and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ClientManager manages connected clients
type ClientManager struct {
	clients     map[string]*Client
	clientsLock sync.RWMutex
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
	}
}

// GetClients returns a snapshot of all connected clients.
func (cm *ClientManager) GetClients() []*Client {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	return clients
}

// ConnectClient adds a client to the manager
func (cm *ClientManager) ConnectClient(client *Client) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()
	cm.clients[client.ID] = client
}

// DisconnectClient removes a client from the manager
func (cm *ClientManager) DisconnectClient(clientID string) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()
	delete(cm.clients, clientID)
}

func (cm *ClientManager) GetClient(clientID string) (*Client, bool) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	client, ok := cm.clients[clientID]
	return client, ok
}

func (cm *ClientManager) Count() int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return len(cm.clients)
}

// CloseAll closes every connected client.
func (cm *ClientManager) CloseAll() {
	for _, client := range cm.GetClients() {
		client.Close()
	}
}
