// Package session ties the synchronization components of one signed-in
// client to a single event loop.
//
// Every store callback and every command of a Session runs on the loop
// goroutine, in the order it was posted. Events are delivered on the loop
// too, so handlers must not block.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/contacts"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/matches"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/queue"
	"github.com/cbodonnell/gameportal/pkg/registry"
	"github.com/cbodonnell/gameportal/pkg/signals"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("session closed")

// Identity is the signed-in user of the session.
type Identity interface {
	CurrentUserID() (string, error)
	PhoneNumber() (string, error)
}

// Events receives what the session publishes. Nil handlers are skipped.
type Events struct {
	OnMatchesList func([]*models.MatchInfo)
	OnSignals     func([]models.SignalEntry)
	OnUserInfo    func(map[string]models.UserInfo)
	OnGamesList   func([]*models.GameSpec)
	// OnTerminated is called once when a fatal error ends the session.
	OnTerminated func(error)
}

type Session struct {
	id       string
	identity Identity
	store    store.Store
	queue    *queue.TaskQueue
	registry *registry.Registry
	catalog  *catalog.Catalog
	source   catalog.Source
	logger   *log.Logger
	events   Events

	matches  *matches.Synchronizer
	signals  *signals.Relay
	contacts *contacts.Resolver

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	errLock   sync.Mutex
	err       error
	closeOnce sync.Once
	closeErr  error
}

type NewSessionOptions struct {
	// Store is this session's own connection to the database.
	Store    store.Store
	Identity Identity
	// Catalog may be shared between sessions. Defaults to an empty catalog.
	Catalog *catalog.Catalog
	// CatalogSource feeds FetchGamesList. Defaults to the store.
	CatalogSource   catalog.Source
	Clock           clock.Clock
	SignalStaleness time.Duration
	Logger          *log.Logger
	Events          Events
}

// New creates a session and starts its event loop. The loop runs until
// Close is called or a fatal error terminates the session.
func New(opts NewSessionOptions) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("session", id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		identity: opts.Identity,
		queue:    queue.NewTaskQueue(),
		registry: registry.New(),
		catalog:  opts.Catalog,
		source:   opts.CatalogSource,
		logger:   logger,
		events:   opts.Events,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.store = store.Dispatching(opts.Store, s.queue.Enqueue)
	if s.catalog == nil {
		s.catalog = catalog.New()
	}
	if s.source == nil {
		s.source = catalog.NewStoreSource(s.store)
	}

	s.matches = matches.NewSynchronizer(matches.NewSynchronizerOptions{
		Store:         s.store,
		Identity:      opts.Identity,
		Games:         s.catalog,
		Registry:      s.registry,
		Logger:        logger,
		OnMatchesList: s.events.OnMatchesList,
		OnFatal:       s.terminate,
	})
	s.signals = signals.NewRelay(signals.NewRelayOptions{
		Store:     s.store,
		Identity:  opts.Identity,
		Registry:  s.registry,
		Clock:     opts.Clock,
		Staleness: opts.SignalStaleness,
		Logger:    logger,
		OnSignals: s.events.OnSignals,
		OnFatal:   s.terminate,
	})
	s.contacts = contacts.NewResolver(contacts.NewResolverOptions{
		Store:  s.store,
		Logger: logger,
		OnUserInfo: func(m map[string]models.UserInfo) {
			if s.events.OnUserInfo != nil {
				s.queue.Enqueue(func() { s.events.OnUserInfo(m) })
			}
		},
	})

	go func() {
		defer close(s.done)
		s.queue.Run(ctx)
	}()
	logger.Debug("Session started")
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}

// Done is closed when the event loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the fatal error that terminated the session, if any.
func (s *Session) Err() error {
	s.errLock.Lock()
	defer s.errLock.Unlock()
	return s.err
}

// Do runs fn on the event loop and waits for its result. A
// ProgrammingError from fn terminates the session like one raised in a
// watch callback.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	s.queue.Enqueue(func() {
		if err := s.Err(); err != nil {
			result <- err
			return
		}
		err := fn()
		if models.IsProgrammingError(err) {
			s.terminate(err)
		}
		result <- err
	})
	select {
	case err := <-result:
		return err
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminate runs on the loop when a watch callback or a command hits a
// fatal error.
func (s *Session) terminate(err error) {
	s.errLock.Lock()
	if s.err != nil {
		s.errLock.Unlock()
		return
	}
	s.err = err
	s.errLock.Unlock()

	s.logger.Error("Session terminated: %v", err)
	s.queue.Clear()
	s.cancel()
	if s.events.OnTerminated != nil {
		s.events.OnTerminated(err)
	}
}

// Close stops the event loop and disconnects the store, which runs the
// removals registered by this session.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			s.closeErr = ctx.Err()
			return
		}
		if dc, ok := s.store.(store.Disconnector); ok {
			if err := dc.Disconnect(ctx); err != nil {
				s.closeErr = fmt.Errorf("failed to disconnect: %w", err)
			}
		}
		s.logger.Debug("Session closed")
	})
	return s.closeErr
}

func (s *Session) ListenToMyMatchesList(ctx context.Context) error {
	return s.Do(ctx, func() error {
		return s.matches.ListenToMyMatchesList(s.ctx)
	})
}

func (s *Session) ListenToSignals(ctx context.Context) error {
	return s.Do(ctx, func() error {
		return s.signals.ListenToSignals(s.ctx)
	})
}

// MatchesList returns the received matches and whether all have reported.
func (s *Session) MatchesList(ctx context.Context) ([]*models.MatchInfo, bool, error) {
	var list []*models.MatchInfo
	var ready bool
	err := s.Do(ctx, func() error {
		list, ready = s.matches.MatchesList()
		return nil
	})
	return list, ready, err
}

// CreateMatch starts a match of gameSpecID in the game's initial layout.
func (s *Session) CreateMatch(ctx context.Context, gameSpecID string) (*models.MatchInfo, error) {
	var match *models.MatchInfo
	err := s.Do(ctx, func() error {
		game, ok := s.catalog.GameSpec(gameSpecID)
		if !ok {
			return &store.MissingDataError{Path: models.GameSpecPath(gameSpecID)}
		}
		var err error
		match, err = s.matches.CreateMatch(ctx, game, game.InitialMatchState())
		return err
	})
	return match, err
}

func (s *Session) AddParticipant(ctx context.Context, matchID string, userID string) error {
	return s.withMatch(ctx, matchID, func(match *models.MatchInfo) error {
		return s.matches.AddParticipant(ctx, match, userID)
	})
}

func (s *Session) UpdateMatchState(ctx context.Context, matchID string, state models.MatchState) error {
	return s.withMatch(ctx, matchID, func(match *models.MatchInfo) error {
		return s.matches.UpdateMatchState(ctx, match, state)
	})
}

func (s *Session) UpdatePieceState(ctx context.Context, matchID string, pieceIndex int, piece models.PieceState) error {
	return s.withMatch(ctx, matchID, func(match *models.MatchInfo) error {
		return s.matches.UpdatePieceState(ctx, match, pieceIndex, piece)
	})
}

func (s *Session) PingOpponents(ctx context.Context, matchID string) error {
	return s.withMatch(ctx, matchID, func(match *models.MatchInfo) error {
		return s.matches.PingOpponents(ctx, match)
	})
}

func (s *Session) withMatch(ctx context.Context, matchID string, fn func(*models.MatchInfo) error) error {
	return s.Do(ctx, func() error {
		match, ok := s.matches.Match(matchID)
		if !ok {
			return models.NewValidationError("matchId", "%s has not been received", matchID)
		}
		return fn(match)
	})
}

func (s *Session) SendSignal(ctx context.Context, toUserID string, signalType models.SignalType, signalData string) error {
	return s.Do(ctx, func() error {
		return s.signals.SendSignal(ctx, toUserID, signalType, signalData)
	})
}

// SignalBacklog returns the unexpired signals received so far.
func (s *Session) SignalBacklog(ctx context.Context) ([]models.SignalEntry, error) {
	var backlog []models.SignalEntry
	err := s.Do(ctx, func() error {
		backlog = s.signals.Backlog()
		return nil
	})
	return backlog, err
}

// UpdateUserIDsAndPhoneNumbers resolves contacts off the loop. The merged
// user info is published through Events.OnUserInfo.
func (s *Session) UpdateUserIDsAndPhoneNumbers(ctx context.Context, phoneNumbers []string) error {
	if err := s.Err(); err != nil {
		return err
	}
	return s.contacts.UpdateUserIDsAndPhoneNumbers(ctx, phoneNumbers)
}

func (s *Session) DisplayName(ctx context.Context, userID string) (string, error) {
	if err := s.Err(); err != nil {
		return "", err
	}
	return s.contacts.DisplayName(ctx, userID)
}

func (s *Session) UserIDToInfo() map[string]models.UserInfo {
	return s.contacts.UserIDToInfo()
}
