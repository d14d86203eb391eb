// Package network serves sessions to websocket clients. A client logs in
// with its first message, then drives its session with commands and
// receives what the session publishes.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cbodonnell/gameportal/pkg/auth"
	authproviders "github.com/cbodonnell/gameportal/pkg/auth/providers"
	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/session"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/gorilla/websocket"
)

const (
	// LoginTimeout is how long a new connection has to send its login
	LoginTimeout = 10 * time.Second
	// SessionCloseTimeout bounds the cleanup of a disconnected session
	SessionCloseTimeout = 5 * time.Second
)

// StoreConnector opens a new store connection for one session.
type StoreConnector func() store.Store

type NetworkManager struct {
	AuthProvider  authproviders.AuthProvider
	ClientManager *ClientManager

	connect         StoreConnector
	catalog         *catalog.Catalog
	catalogSource   catalog.Source
	clock           clock.Clock
	signalStaleness time.Duration
	logger          *log.Logger
}

type NewNetworkManagerOptions struct {
	AuthProvider  authproviders.AuthProvider
	ClientManager *ClientManager
	Connect       StoreConnector
	// Catalog is shared by every session.
	Catalog         *catalog.Catalog
	CatalogSource   catalog.Source
	Clock           clock.Clock
	SignalStaleness time.Duration
	Logger          *log.Logger
}

func NewNetworkManager(opts NewNetworkManagerOptions) *NetworkManager {
	clientManager := opts.ClientManager
	if clientManager == nil {
		clientManager = NewClientManager()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &NetworkManager{
		AuthProvider:    opts.AuthProvider,
		ClientManager:   clientManager,
		connect:         opts.Connect,
		catalog:         opts.Catalog,
		catalogSource:   opts.CatalogSource,
		clock:           opts.Clock,
		signalStaleness: opts.SignalStaleness,
		logger:          logger,
	}
}

// HandleWS upgrades the request and serves the connection until either
// side closes it.
func (n *NetworkManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	conn.SetReadLimit(messages.MessageBufferSize)
	n.logger.Debug("New WebSocket connection from %s", conn.RemoteAddr().String())
	n.handleWSConnection(conn)
}

func (n *NetworkManager) handleWSConnection(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, identity, err := n.login(ctx, conn)
	if err != nil {
		n.logger.Warn("Login from %s failed: %v", conn.RemoteAddr().String(), err)
		conn.Close()
		return
	}

	client.Session = session.New(session.NewSessionOptions{
		Store:           n.connect(),
		Identity:        identity,
		Catalog:         n.catalog,
		CatalogSource:   n.catalogSource,
		Clock:           n.clock,
		SignalStaleness: n.signalStaleness,
		Logger:          client.logger,
		Events:          n.events(client),
	})
	n.ClientManager.ConnectClient(client)
	client.logger.Info("Client connected")

	defer func() {
		client.Close()
		n.ClientManager.DisconnectClient(client.ID)
		closeCtx, closeCancel := context.WithTimeout(context.Background(), SessionCloseTimeout)
		defer closeCancel()
		if err := client.Session.Close(closeCtx); err != nil {
			client.logger.Error("Failed to close session: %v", err)
		}
		client.logger.Info("Client disconnected")
	}()

	go n.writePump(client)
	client.Send(resultMessage(0, &messages.LoginResult{UserID: client.UserID, SessionID: client.Session.ID()}, nil))

	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})
	for {
		message, err := ReadMessageFromWS(conn)
		if err != nil {
			if IsMalformedMessage(err) {
				client.logger.Warn("Dropping message: %v", err)
				client.Send(resultMessage(0, nil, models.NewValidationError("message", "%v", err)))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.logger.Debug("Error reading WebSocket message: %v", err)
			}
			return
		}
		data, err := n.handleCommand(ctx, client, message)
		if err != nil {
			client.logger.Debug("Command %s failed: %v", message.Type, err)
		}
		client.Send(resultMessage(message.Seq, data, err))
	}
}

// login reads and verifies the first message of the connection.
func (n *NetworkManager) login(ctx context.Context, conn *websocket.Conn) (*Client, *auth.Identity, error) {
	conn.SetReadDeadline(time.Now().Add(LoginTimeout))
	message, err := ReadMessageFromWS(conn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read login: %v", err)
	}
	reject := func(err error) (*Client, *auth.Identity, error) {
		if werr := WriteMessageToWS(conn, resultMessage(message.Seq, nil, err)); werr != nil {
			n.logger.Debug("Failed to send login failure: %v", werr)
		}
		return nil, nil, err
	}
	if message.Type != messages.MessageTypeLogin {
		return reject(fmt.Errorf("%w: first message is %s", auth.ErrUnauthenticated, message.Type))
	}
	login := &messages.Login{}
	if err := message.Decode(login); err != nil {
		return reject(models.NewValidationError("login", "%v", err))
	}

	identity := auth.NewIdentity()
	claims, err := identity.Login(ctx, n.AuthProvider, login.IDToken)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err))
	}
	return newClient(conn, claims.UID, n.logger), identity, nil
}

// events forwards what the session publishes to the client. They run on
// the session loop, and Client.Send never blocks it.
func (n *NetworkManager) events(client *Client) session.Events {
	push := func(messageType string, payload interface{}) {
		msg, err := messages.NewMessage(0, messageType, payload)
		if err != nil {
			client.logger.Error("Failed to encode %s: %v", messageType, err)
			return
		}
		client.Send(msg)
	}
	return session.Events{
		OnMatchesList: func(matches []*models.MatchInfo) {
			push(messages.MessageTypeMatchesList, &messages.MatchesList{Matches: matches})
		},
		OnSignals: func(signals []models.SignalEntry) {
			push(messages.MessageTypeSignals, &messages.Signals{Signals: signals})
		},
		OnUserInfo: func(users map[string]models.UserInfo) {
			push(messages.MessageTypeUserInfo, &messages.UserInfo{Users: users})
		},
		OnGamesList: func(games []*models.GameSpec) {
			push(messages.MessageTypeGamesList, &messages.GamesList{Games: games})
		},
		OnTerminated: func(err error) {
			push(messages.MessageTypeTerminated, &messages.Terminated{Error: err.Error()})
		},
	}
}

// writePump is the only writer of the connection.
func (n *NetworkManager) writePump(client *Client) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-client.send:
			if err := WriteMessageToWS(client.Conn, msg); err != nil {
				client.logger.Debug("Failed to write %s: %v", msg.Type, err)
				client.Close()
				return
			}
			if msg.Type == messages.MessageTypeTerminated {
				client.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session terminated"),
					time.Now().Add(WriteWait))
				client.Close()
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait)); err != nil {
				client.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

// resultMessage builds the result message for a command. Data that cannot
// be marshaled is reported as an internal error.
func resultMessage(seq uint64, data interface{}, err error) *messages.Message {
	result := &messages.Result{OK: err == nil}
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = ErrorKind(err)
	} else if data != nil {
		b, merr := json.Marshal(data)
		if merr != nil {
			result = &messages.Result{Error: merr.Error(), ErrorKind: messages.ErrorKindInternal}
		} else {
			result.Data = b
		}
	}
	msg, merr := messages.NewMessage(seq, messages.MessageTypeResult, result)
	if merr != nil {
		return &messages.Message{Seq: seq, Type: messages.MessageTypeResult}
	}
	return msg
}

// SendToAll queues msg for every connected client.
func (n *NetworkManager) SendToAll(msg *messages.Message) {
	for _, client := range n.ClientManager.GetClients() {
		client.Send(msg)
	}
}
