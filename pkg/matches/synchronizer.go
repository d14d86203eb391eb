// Package matches keeps a session's list of matches in sync with the store
// and writes match changes back to it.
//
// A Synchronizer is driven by one event loop: its watch callbacks and its
// methods must all run on that loop.
package matches

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cbodonnell/gameportal/pkg/barrier"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/registry"
	"github.com/cbodonnell/gameportal/pkg/store"
)

// Identity resolves the signed-in user.
type Identity interface {
	CurrentUserID() (string, error)
}

// GameCatalog looks up the game a match is played with.
type GameCatalog interface {
	GameSpec(gameSpecID string) (*models.GameSpec, bool)
}

type Synchronizer struct {
	store    store.Store
	identity Identity
	games    GameCatalog
	registry *registry.Registry
	logger   *log.Logger

	onMatchesList func([]*models.MatchInfo)
	onFatal       func(error)

	watchCtx context.Context
	received *barrier.Barrier[string, *models.MatchInfo]
}

type NewSynchronizerOptions struct {
	Store    store.Store
	Identity Identity
	Games    GameCatalog
	// Registry is shared with the other listeners of the session.
	Registry *registry.Registry
	Logger   *log.Logger
	// OnMatchesList receives the full list every time it is published.
	OnMatchesList func([]*models.MatchInfo)
	// OnFatal receives errors raised inside watch callbacks.
	OnFatal func(error)
}

func NewSynchronizer(opts NewSynchronizerOptions) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Synchronizer{
		store:         opts.Store,
		identity:      opts.Identity,
		games:         opts.Games,
		registry:      reg,
		logger:        logger,
		onMatchesList: opts.OnMatchesList,
		onFatal:       opts.OnFatal,
		received:      barrier.New[string, *models.MatchInfo](),
	}
}

// ListenToMyMatchesList watches the user's match memberships and every
// match they name. The watches last until ctx is done.
func (s *Synchronizer) ListenToMyMatchesList(ctx context.Context) error {
	userID, err := s.identity.CurrentUserID()
	if err != nil {
		return err
	}
	if err := s.registry.RegisterOnce(registry.SetupListenToMyMatchesList); err != nil {
		return err
	}
	s.watchCtx = ctx
	path := models.MatchMembershipsPath(userID)
	if err := s.store.Watch(ctx, path, s.onMemberships); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}

func (s *Synchronizer) onMemberships(snap store.Snapshot) {
	if !snap.Exists() {
		return
	}
	memberships := map[string]json.RawMessage{}
	if err := snap.Unmarshal(&memberships); err != nil {
		s.fail(models.NewProgrammingError("onMemberships", fmt.Errorf("%s: %w", snap.Path(), err)))
		return
	}
	matchIDs := make([]string, 0, len(memberships))
	for matchID := range memberships {
		if !s.registry.IsSubscribed(matchID) {
			matchIDs = append(matchIDs, matchID)
		}
	}
	sort.Strings(matchIDs)
	for _, matchID := range matchIDs {
		if err := s.listenToMatch(matchID); err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *Synchronizer) listenToMatch(matchID string) error {
	handle, err := s.registry.SubscribeMatch(matchID)
	if err != nil {
		return err
	}
	s.received.Expect(matchID)
	s.logger.Debug("Listening to match %s (subscription %d)", matchID, handle.Ordinal)

	path := models.MatchPath(matchID)
	err = s.store.Watch(s.watchCtx, path, func(snap store.Snapshot) {
		s.onMatch(matchID, snap)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}

func (s *Synchronizer) onMatch(matchID string, snap store.Snapshot) {
	// a match that does not exist yet has not reported
	if !snap.Exists() {
		return
	}
	match, err := DecodeMatch(matchID, snap.Raw())
	if err != nil {
		s.fail(err)
		return
	}
	game, ok := s.games.GameSpec(match.GameSpecID)
	if !ok {
		s.fail(&store.MissingDataError{Path: models.GameSpecPath(match.GameSpecID)})
		return
	}
	if err := game.ValidateMatchState(match.MatchState); err != nil {
		s.fail(models.NewProgrammingError("onMatch", fmt.Errorf("match %s: %w", matchID, err)))
		return
	}
	if s.received.Put(matchID, match) {
		s.publish()
	}
}

func (s *Synchronizer) publish() {
	list, _ := s.MatchesList()
	s.logger.Trace("Publishing %d matches", len(list))
	if s.onMatchesList != nil {
		s.onMatchesList(list)
	}
}

// MatchesList returns copies of the received matches, most recently
// updated first, and whether every subscribed match has reported.
func (s *Synchronizer) MatchesList() ([]*models.MatchInfo, bool) {
	values := s.received.Values()
	list := make([]*models.MatchInfo, len(values))
	for i, m := range values {
		list[i] = m.Clone()
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastUpdatedOn.After(list[j].LastUpdatedOn)
	})
	return list, s.received.Ready()
}

// Match returns a copy of the last received state of matchID.
func (s *Synchronizer) Match(matchID string) (*models.MatchInfo, bool) {
	m, ok := s.received.Get(matchID)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (s *Synchronizer) fail(err error) {
	s.logger.Error("Match synchronization failed: %v", err)
	if s.onFatal != nil {
		s.onFatal(err)
	}
}

// CreateMatch writes a new match with the current user as participant 0
// and adds it to their memberships. An empty initial state writes no pieces.
func (s *Synchronizer) CreateMatch(ctx context.Context, game *models.GameSpec, initial models.MatchState) (*models.MatchInfo, error) {
	userID, err := s.identity.CurrentUserID()
	if err != nil {
		return nil, err
	}
	if err := game.ValidateMatchState(initial); err != nil {
		return nil, err
	}

	matchID := s.store.NewID(models.MatchesPath)
	doc := matchDocument{
		GameSpecID: game.GameSpecID,
		Participants: map[string]participantDocument{
			userID: {ParticipantIndex: 0, PingOpponents: store.ServerTimestamp()},
		},
		CreatedOn:     store.ServerTimestamp(),
		LastUpdatedOn: store.ServerTimestamp(),
		Pieces:        encodeMatchState(initial),
	}
	if err := store.Write(ctx, s.store, models.MatchPath(matchID), doc); err != nil {
		return nil, err
	}
	if err := s.addMembership(ctx, userID, userID, matchID); err != nil {
		return nil, err
	}

	match := &models.MatchInfo{
		MatchID:             matchID,
		GameSpecID:          game.GameSpecID,
		ParticipantsUserIDs: []string{userID},
		LastUpdatedOn:       store.ServerTimestamp(),
		MatchState:          initial,
	}
	return match.Clone(), nil
}

// AddParticipant gives userID the next join index of match and adds the
// match to their memberships.
func (s *Synchronizer) AddParticipant(ctx context.Context, match *models.MatchInfo, userID string) error {
	if match.HasParticipant(userID) {
		return models.NewProgrammingError("AddParticipant", fmt.Errorf("%w: %s in %s", models.ErrDuplicateParticipant, userID, match.MatchID))
	}
	index := len(match.ParticipantsUserIDs)
	if index >= models.MaxParticipants {
		return models.NewProgrammingError("AddParticipant", fmt.Errorf("%w: %s has %d participants", models.ErrCapacityExceeded, match.MatchID, index))
	}
	adderID, err := s.identity.CurrentUserID()
	if err != nil {
		return err
	}

	path := store.JoinPath(models.MatchPath(match.MatchID), "participants", userID)
	participant := participantDocument{ParticipantIndex: index, PingOpponents: store.ServerTimestamp()}
	if err := store.Write(ctx, s.store, path, participant); err != nil {
		return err
	}
	return s.addMembership(ctx, adderID, userID, match.MatchID)
}

func (s *Synchronizer) addMembership(ctx context.Context, adderID, toUserID, matchID string) error {
	membership := membershipDocument{AddedByUID: adderID, Timestamp: store.ServerTimestamp()}
	return store.Merge(ctx, s.store, models.MatchMembershipsPath(toUserID), map[string]interface{}{
		matchID: membership,
	})
}

// UpdateMatchState replaces every piece of match.
func (s *Synchronizer) UpdateMatchState(ctx context.Context, match *models.MatchInfo, state models.MatchState) error {
	game, err := s.gameOf(match)
	if err != nil {
		return err
	}
	if len(state) == 0 {
		return models.NewValidationError("matchState", "must not be empty")
	}
	if err := game.ValidateMatchState(state); err != nil {
		return err
	}
	return store.Merge(ctx, s.store, models.MatchPath(match.MatchID), map[string]interface{}{
		"pieces":        encodeMatchState(state),
		"lastUpdatedOn": store.ServerTimestamp(),
	})
}

// UpdatePieceState writes the state of one piece. Nothing is written if
// the piece fails validation or match has no pieces yet, since a single
// piece would leave the piece index set incomplete.
func (s *Synchronizer) UpdatePieceState(ctx context.Context, match *models.MatchInfo, pieceIndex int, piece models.PieceState) error {
	game, err := s.gameOf(match)
	if err != nil {
		return err
	}
	if len(match.MatchState) != len(game.Pieces) {
		return models.NewValidationError("matchState", "match %s has %d of %d pieces, write the whole state first", match.MatchID, len(match.MatchState), len(game.Pieces))
	}
	if err := game.ValidatePiece(pieceIndex, piece); err != nil {
		return err
	}
	values := map[string]interface{}{
		"lastUpdatedOn": store.ServerTimestamp(),
	}
	values[fmt.Sprintf("pieces/%d/currentState", pieceIndex)] = encodePieceState(piece)
	return store.Merge(ctx, s.store, models.MatchPath(match.MatchID), values)
}

// PingOpponents stamps the current user's pingOpponents field of match.
func (s *Synchronizer) PingOpponents(ctx context.Context, match *models.MatchInfo) error {
	userID, err := s.identity.CurrentUserID()
	if err != nil {
		return err
	}
	if !match.HasParticipant(userID) {
		return models.NewProgrammingError("PingOpponents", fmt.Errorf("%w: %s in %s", models.ErrNotParticipant, userID, match.MatchID))
	}
	return store.Merge(ctx, s.store, models.MatchPath(match.MatchID), map[string]interface{}{
		"participants/" + userID + "/pingOpponents": store.ServerTimestamp(),
	})
}

func (s *Synchronizer) gameOf(match *models.MatchInfo) (*models.GameSpec, error) {
	game, ok := s.games.GameSpec(match.GameSpecID)
	if !ok {
		return nil, &store.MissingDataError{Path: models.GameSpecPath(match.GameSpecID)}
	}
	return game, nil
}
