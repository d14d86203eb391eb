package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cbodonnell/gameportal/pkg/auth"
	"github.com/cbodonnell/gameportal/pkg/auth/providers"
	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func testGame() *models.GameSpec {
	return &models.GameSpec{
		GameSpecID: "cards",
		GameName:   "Cards",
		Pieces: []models.PieceSpec{
			{ElementID: "board", Kind: models.PieceKindStandard, ImageCount: 1, InitialState: models.PieceState{ZDepth: 1}},
			{ElementID: "ace", Kind: models.PieceKindCard, ImageCount: 2, InitialState: models.PieceState{X: 10, Y: 10, ZDepth: 2}},
		},
	}
}

type client struct {
	session *Session
	matches chan []*models.MatchInfo
	signals chan []models.SignalEntry
	users   chan map[string]models.UserInfo
	fatal   chan error
}

func newClient(t *testing.T, db *store.InMemoryDatabase, games *catalog.Catalog, token string) *client {
	identity := auth.NewIdentity()
	_, err := identity.Login(context.Background(), providers.NewStaticAuthProvider(), token)
	require.NoError(t, err)

	c := &client{
		matches: make(chan []*models.MatchInfo, 100),
		signals: make(chan []models.SignalEntry, 100),
		users:   make(chan map[string]models.UserInfo, 100),
		fatal:   make(chan error, 1),
	}
	c.session = New(NewSessionOptions{
		Store:    db.Connect(),
		Identity: identity,
		Catalog:  games,
		Events: Events{
			OnMatchesList: func(list []*models.MatchInfo) { c.matches <- list },
			OnSignals:     func(entries []models.SignalEntry) { c.signals <- entries },
			OnUserInfo:    func(m map[string]models.UserInfo) { c.users <- m },
			OnTerminated:  func(err error) { c.fatal <- err },
		},
	})
	t.Cleanup(func() {
		c.session.Close(context.Background())
	})
	return c
}

// waitFor reads from ch until ok accepts a value.
func waitFor[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	games := catalog.New()
	require.NoError(t, games.Put(testGame()))
	return games
}

func TestSession_MatchLifecycle(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	games := newTestCatalog(t)
	alice := newClient(t, db, games, "alice")
	bob := newClient(t, db, games, "bob")

	require.NoError(t, alice.session.ListenToMyMatchesList(ctx))
	require.NoError(t, bob.session.ListenToMyMatchesList(ctx))

	created, err := alice.session.CreateMatch(ctx, "cards")
	require.NoError(t, err)

	list := waitFor(t, alice.matches, func(l []*models.MatchInfo) bool { return len(l) == 1 })
	assert.Equal(t, created.MatchID, list[0].MatchID)
	assert.Equal(t, testGame().InitialMatchState(), list[0].MatchState)
	assert.False(t, list[0].LastUpdatedOn.Pending())

	require.NoError(t, alice.session.AddParticipant(ctx, created.MatchID, "bob"))
	list = waitFor(t, bob.matches, func(l []*models.MatchInfo) bool { return len(l) == 1 })
	assert.Equal(t, []string{"alice", "bob"}, list[0].ParticipantsUserIDs)

	piece := models.PieceState{X: 50, Y: -50, ZDepth: 3}
	require.NoError(t, bob.session.UpdatePieceState(ctx, created.MatchID, 0, piece))
	list = waitFor(t, alice.matches, func(l []*models.MatchInfo) bool {
		return len(l) == 1 && l[0].MatchState[0].X == piece.X
	})
	assert.Equal(t, piece, list[0].MatchState[0])

	err = bob.session.UpdatePieceState(ctx, created.MatchID, 0, models.PieceState{X: 150, ZDepth: 1})
	assert.True(t, models.IsValidationError(err))

	require.NoError(t, bob.session.PingOpponents(ctx, created.MatchID))

	err = bob.session.PingOpponents(ctx, "unknown")
	assert.True(t, models.IsValidationError(err))

	_, ready, err := alice.session.MatchesList(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	_, err = alice.session.CreateMatch(ctx, "chess")
	assert.True(t, store.IsMissingData(err))

	// a rejected participant is fatal to the session that tried it
	err = bob.session.AddParticipant(ctx, created.MatchID, "alice")
	assert.True(t, errors.Is(err, models.ErrDuplicateParticipant))
	waitDone(t, bob.session)
	assert.Equal(t, err, bob.session.Err())
	require.NoError(t, alice.session.PingOpponents(ctx, created.MatchID))
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop")
	}
}

func TestSession_ProgrammingErrorTerminates(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	alice := newClient(t, db, newTestCatalog(t), "alice")

	require.NoError(t, alice.session.ListenToMyMatchesList(ctx))
	err := alice.session.ListenToMyMatchesList(ctx)
	require.True(t, models.IsProgrammingError(err))
	assert.True(t, errors.Is(err, models.ErrDuplicateSetup))

	fatal := waitFor(t, alice.fatal, func(error) bool { return true })
	assert.Equal(t, err, fatal)
	waitDone(t, alice.session)
	assert.Equal(t, err, alice.session.Err())

	_, err = alice.session.CreateMatch(ctx, "cards")
	assert.True(t, errors.Is(err, models.ErrDuplicateSetup))
}

func TestSession_Signals(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	games := newTestCatalog(t)
	alice := newClient(t, db, games, "alice")
	bob := newClient(t, db, games, "bob")

	require.NoError(t, alice.session.ListenToSignals(ctx))
	require.NoError(t, bob.session.SendSignal(ctx, "alice", models.SignalTypeOffer, "sdp"))

	entries := waitFor(t, alice.signals, func(e []models.SignalEntry) bool { return len(e) == 1 })
	assert.Equal(t, "bob", entries[0].AddedByUID)
	assert.Equal(t, "sdp", entries[0].SignalData)

	backlog, err := alice.session.SignalBacklog(ctx)
	require.NoError(t, err)
	assert.Len(t, backlog, 1)

	// undelivered signals are removed when the sender disconnects
	require.NoError(t, bob.session.SendSignal(ctx, "carol", models.SignalTypeCandidate, "c1"))
	reader := db.Connect()
	snap, err := reader.ReadOnce(ctx, models.SignalsPath("carol"))
	require.NoError(t, err)
	assert.True(t, snap.Exists())

	require.NoError(t, bob.session.Close(ctx))
	snap, err = reader.ReadOnce(ctx, models.SignalsPath("carol"))
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	assert.ErrorIs(t, bob.session.SendSignal(ctx, "alice", models.SignalTypeOffer, "late"), ErrClosed)
}

func TestSession_WriteUserAndContacts(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	games := newTestCatalog(t)
	alice := newClient(t, db, games, "alice:+15550001")
	bob := newClient(t, db, games, "bob")

	require.NoError(t, alice.session.WriteUser(ctx, "", "US", " Alice "))
	assert.True(t, models.IsProgrammingError(alice.session.WriteUser(ctx, "", "US", "Alice")))
	waitDone(t, alice.session)

	reader := db.Connect()
	snap, err := reader.ReadOnce(ctx, models.PrivateFieldsPath("alice"))
	require.NoError(t, err)
	private := map[string]interface{}{}
	require.NoError(t, snap.Unmarshal(&private))
	assert.Equal(t, "+15550001", private["phoneNumber"])
	assert.Equal(t, "US", private["countryCode"])
	assert.IsType(t, float64(0), private["createdOn"])

	require.NoError(t, bob.session.UpdateUserIDsAndPhoneNumbers(ctx, []string{"+1 555 0001", "+15550009"}))
	users := waitFor(t, bob.users, func(m map[string]models.UserInfo) bool { return len(m) == 1 })
	assert.Equal(t, "+15550001", users["alice"].PhoneNumber)

	name, err := bob.session.DisplayName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
	assert.Equal(t, "Alice", bob.session.UserIDToInfo()["alice"].DisplayName)
}

func TestSession_FetchGamesList(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	alice := newClient(t, db, catalog.New(), "alice")

	_, err := alice.session.FetchGamesList(ctx)
	assert.True(t, store.IsMissingData(err))
	_, err = alice.session.FetchGamesList(ctx)
	assert.True(t, errors.Is(err, models.ErrDuplicateSetup))

	require.NoError(t, catalog.NewStoreSource(db.Connect()).SaveGameSpec(ctx, testGame()))
	bob := newClient(t, db, catalog.New(), "bob")
	games, err := bob.session.FetchGamesList(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "cards", games[0].GameSpecID)
	_, ok := bob.session.Catalog().GameSpec("cards")
	assert.True(t, ok)
}

func TestSession_FatalErrorTerminates(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	alice := newClient(t, db, newTestCatalog(t), "alice")
	require.NoError(t, alice.session.ListenToMyMatchesList(ctx))

	writer := db.Connect()
	require.NoError(t, writer.Set(ctx, models.MatchPath("broken"), map[string]interface{}{
		"gameSpecId": "cards",
		"pieces": map[string]interface{}{
			"1": map[string]interface{}{"currentState": map[string]interface{}{"zDepth": 1}},
		},
	}))
	require.NoError(t, writer.Set(ctx, models.MatchMembershipsPath("alice")+"/broken", map[string]interface{}{"addedByUid": "x"}))

	err := waitFor(t, alice.fatal, func(error) bool { return true })
	assert.True(t, errors.Is(err, models.ErrMalformedPieceIndex))

	waitDone(t, alice.session)
	assert.Equal(t, err, alice.session.Err())
	_, err = alice.session.CreateMatch(ctx, "cards")
	assert.True(t, errors.Is(err, models.ErrMalformedPieceIndex))
}

func TestSession_RequiresLogin(t *testing.T) {
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	s := New(NewSessionOptions{Store: db.Connect(), Identity: auth.NewIdentity()})
	defer s.Close(context.Background())

	err := s.ListenToMyMatchesList(context.Background())
	assert.True(t, errors.Is(err, auth.ErrUnauthenticated))
}
