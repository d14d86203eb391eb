package matches

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/cbodonnell/gameportal/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUser string

func (u testUser) CurrentUserID() (string, error) {
	if u == "" {
		return "", errors.New("signed out")
	}
	return string(u), nil
}

type gameSet map[string]*models.GameSpec

func (g gameSet) GameSpec(gameSpecID string) (*models.GameSpec, bool) {
	game, ok := g[gameSpecID]
	return game, ok
}

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

const testPieces = `{"0":{"currentState":{"x":0,"y":0,"zDepth":1,"currentImageIndex":0}},"1":{"currentState":{"x":10,"y":10,"zDepth":2,"currentImageIndex":1,"cardVisibility":{"0":true}}}}`

func matchJSON(lastUpdatedOn int64) string {
	return fmt.Sprintf(`{"gameSpecId":"cards","participants":{"alice":{"participantIndex":0,"pingOpponents":1}},"createdOn":1,"lastUpdatedOn":%d,"pieces":%s}`, lastUpdatedOn, testPieces)
}

type harness struct {
	store     *storetest.FakeStore
	sync      *Synchronizer
	published [][]*models.MatchInfo
	fatal     []error
}

func newHarness(t *testing.T) *harness {
	h := &harness{store: storetest.New()}
	h.sync = NewSynchronizer(NewSynchronizerOptions{
		Store:    h.store,
		Identity: testUser("alice"),
		Games:    gameSet{"cards": testGame()},
		OnMatchesList: func(list []*models.MatchInfo) {
			h.published = append(h.published, list)
		},
		OnFatal: func(err error) {
			h.fatal = append(h.fatal, err)
		},
	})
	return h
}

func matchIDs(list []*models.MatchInfo) []string {
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.MatchID
	}
	return ids
}

var membershipsPath = models.MatchMembershipsPath("alice")

func TestListenToMyMatchesList_WaitsForEveryMatch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sync.ListenToMyMatchesList(context.Background()))
	require.True(t, h.store.Watching(membershipsPath))

	h.store.Fire(membershipsPath, `{"A":{"addedByUid":"alice","timestamp":1},"B":{"addedByUid":"bob","timestamp":2}}`)
	require.True(t, h.store.Watching(models.MatchPath("A")))
	require.True(t, h.store.Watching(models.MatchPath("B")))

	h.store.Fire(models.MatchPath("B"), matchJSON(100))
	assert.Empty(t, h.published)

	h.store.Fire(models.MatchPath("A"), matchJSON(50))
	require.Len(t, h.published, 1)
	assert.Equal(t, []string{"B", "A"}, matchIDs(h.published[0]))

	list := h.published[0]
	assert.Equal(t, []string{"alice"}, list[0].ParticipantsUserIDs)
	assert.Equal(t, int64(100), list[0].LastUpdatedOn.Millis())
	assert.Equal(t, models.VisibilitySet{0}, list[0].MatchState[1].CardVisibility)

	// a newer update reorders the list
	h.store.Fire(models.MatchPath("A"), matchJSON(200))
	require.Len(t, h.published, 2)
	assert.Equal(t, []string{"A", "B"}, matchIDs(h.published[1]))
	assert.Empty(t, h.fatal)
}

func TestListenToMyMatchesList_WithholdsUntilNewMatchReports(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sync.ListenToMyMatchesList(context.Background()))

	h.store.Fire(membershipsPath, `{"A":{"addedByUid":"alice","timestamp":1}}`)
	h.store.Fire(models.MatchPath("A"), matchJSON(1))
	require.Len(t, h.published, 1)

	h.store.Fire(membershipsPath, `{"A":{"addedByUid":"alice","timestamp":1},"C":{"addedByUid":"bob","timestamp":3}}`)
	assert.Equal(t, 1, h.store.WatchCount(models.MatchPath("A")))
	assert.Equal(t, 1, h.store.WatchCount(models.MatchPath("C")))

	// null documents do not count as received
	h.store.Fire(models.MatchPath("C"), `null`)
	h.store.Fire(models.MatchPath("A"), matchJSON(2))
	assert.Len(t, h.published, 1)
	_, ready := h.sync.MatchesList()
	assert.False(t, ready)

	h.store.Fire(models.MatchPath("C"), matchJSON(3))
	require.Len(t, h.published, 2)
	assert.Equal(t, []string{"C", "A"}, matchIDs(h.published[1]))
}

func TestListenToMyMatchesList_TiesKeepArrivalOrder(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sync.ListenToMyMatchesList(context.Background()))

	h.store.Fire(membershipsPath, `{"A":{},"B":{},"C":{}}`)
	h.store.Fire(models.MatchPath("C"), matchJSON(7))
	h.store.Fire(models.MatchPath("A"), matchJSON(7))
	h.store.Fire(models.MatchPath("B"), matchJSON(7))
	require.Len(t, h.published, 1)
	assert.Equal(t, []string{"C", "A", "B"}, matchIDs(h.published[0]))
}

func TestListenToMyMatchesList_OnlyOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sync.ListenToMyMatchesList(context.Background()))
	err := h.sync.ListenToMyMatchesList(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsProgrammingError(err))
	assert.True(t, errors.Is(err, models.ErrDuplicateSetup))
}

func TestListenToMyMatchesList_FatalOnBadMatch(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown game",
			raw:  `{"gameSpecId":"chess","participants":{"alice":{"participantIndex":0}}}`,
			check: func(t *testing.T, err error) {
				assert.True(t, store.IsMissingData(err))
			},
		},
		{
			name: "wrong number of pieces",
			raw:  `{"gameSpecId":"cards","pieces":{"0":{"currentState":{"x":0,"y":0,"zDepth":1,"currentImageIndex":0}}}}`,
			check: func(t *testing.T, err error) {
				assert.True(t, models.IsProgrammingError(err))
				assert.True(t, models.IsValidationError(err))
			},
		},
		{
			name: "malformed pieces",
			raw:  `{"gameSpecId":"cards","pieces":{"1":{"currentState":{"zDepth":1}}}}`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, models.ErrMalformedPieceIndex))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.sync.ListenToMyMatchesList(context.Background()))
			h.store.Fire(membershipsPath, `{"A":{}}`)
			h.store.Fire(models.MatchPath("A"), tt.raw)

			assert.Empty(t, h.published)
			require.Len(t, h.fatal, 1)
			tt.check(t, h.fatal[0])
		})
	}
}

func TestListenToMyMatchesList_EmptyPiecesAccepted(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sync.ListenToMyMatchesList(context.Background()))
	h.store.Fire(membershipsPath, `{"A":{}}`)
	h.store.Fire(models.MatchPath("A"), `{"gameSpecId":"cards","participants":{"alice":{"participantIndex":0}},"lastUpdatedOn":4}`)

	require.Len(t, h.published, 1)
	assert.Empty(t, h.published[0][0].MatchState)

	match, ok := h.sync.Match("A")
	require.True(t, ok)
	assert.Equal(t, "cards", match.GameSpecID)
	_, ok = h.sync.Match("Z")
	assert.False(t, ok)
}

func TestCreateMatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	match, err := h.sync.CreateMatch(ctx, testGame(), nil)
	require.NoError(t, err)
	assert.Equal(t, "id-1", match.MatchID)
	assert.Equal(t, []string{"alice"}, match.ParticipantsUserIDs)
	assert.True(t, match.LastUpdatedOn.Pending())

	writes := h.store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "set", writes[0].Op)
	assert.Equal(t, "/gamePortal/matches/id-1", writes[0].Path)
	assert.JSONEq(t, `{"gameSpecId":"cards","participants":{"alice":{"participantIndex":0,"pingOpponents":{".sv":"timestamp"}}},"createdOn":{".sv":"timestamp"},"lastUpdatedOn":{".sv":"timestamp"}}`, writes[0].JSON())

	assert.Equal(t, "update", writes[1].Op)
	assert.Equal(t, membershipsPath, writes[1].Path)
	assert.JSONEq(t, `{"id-1":{"addedByUid":"alice","timestamp":{".sv":"timestamp"}}}`, writes[1].JSON())
}

func TestCreateMatch_WithInitialState(t *testing.T) {
	h := newHarness(t)
	game := testGame()

	_, err := h.sync.CreateMatch(context.Background(), game, game.InitialMatchState())
	require.NoError(t, err)
	writes := h.store.Writes()
	require.NotEmpty(t, writes)
	assert.Contains(t, writes[0].JSON(), `"pieces":{"0":{"currentState":{"x":0,"y":0,"zDepth":1,"currentImageIndex":0}}`)

	bad := game.InitialMatchState()[:1]
	_, err = h.sync.CreateMatch(context.Background(), game, bad)
	assert.True(t, models.IsValidationError(err))
	assert.Len(t, h.store.Writes(), 2)
}

func TestAddParticipant(t *testing.T) {
	ctx := context.Background()
	full := make([]string, models.MaxParticipants)
	for i := range full {
		full[i] = fmt.Sprintf("user-%d", i)
	}

	tests := []struct {
		name    string
		users   []string
		add     string
		wantErr error
	}{
		{name: "joins next index", users: []string{"alice"}, add: "bob"},
		{name: "duplicate", users: []string{"alice", "bob"}, add: "bob", wantErr: models.ErrDuplicateParticipant},
		{name: "at capacity", users: full, add: "late", wantErr: models.ErrCapacityExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			match := &models.MatchInfo{MatchID: "m1", GameSpecID: "cards", ParticipantsUserIDs: tt.users}

			err := h.sync.AddParticipant(ctx, match, tt.add)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, models.IsProgrammingError(err))
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Empty(t, h.store.Writes())
				return
			}
			require.NoError(t, err)
			writes := h.store.Writes()
			require.Len(t, writes, 2)
			assert.Equal(t, "/gamePortal/matches/m1/participants/bob", writes[0].Path)
			assert.JSONEq(t, `{"participantIndex":1,"pingOpponents":{".sv":"timestamp"}}`, writes[0].JSON())
			assert.Equal(t, models.MatchMembershipsPath("bob"), writes[1].Path)
			assert.JSONEq(t, `{"m1":{"addedByUid":"alice","timestamp":{".sv":"timestamp"}}}`, writes[1].JSON())
		})
	}
}

func TestUpdatePieceState(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		piece   models.PieceState
		wantErr bool
	}{
		{name: "x above range", index: 0, piece: models.PieceState{X: 150, ZDepth: 1}, wantErr: true},
		{name: "lower bound", index: 0, piece: models.PieceState{X: -100, Y: -100, ZDepth: 1}},
		{name: "upper bound", index: 0, piece: models.PieceState{X: 100, Y: 100, ZDepth: 1e17}},
		{name: "unknown piece", index: 2, piece: models.PieceState{ZDepth: 1}, wantErr: true},
		{name: "visibility on non-card", index: 0, piece: models.PieceState{ZDepth: 1, CardVisibility: models.NewVisibilitySet(0)}, wantErr: true},
		{name: "image beyond piece", index: 1, piece: models.PieceState{ZDepth: 1, CurrentImageIndex: 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			match := &models.MatchInfo{MatchID: "m1", GameSpecID: "cards", ParticipantsUserIDs: []string{"alice"}, MatchState: testGame().InitialMatchState()}

			err := h.sync.UpdatePieceState(context.Background(), match, tt.index, tt.piece)
			if tt.wantErr {
				assert.True(t, models.IsValidationError(err))
				assert.Empty(t, h.store.Writes())
				return
			}
			require.NoError(t, err)
			writes := h.store.Writes()
			require.Len(t, writes, 1)
			assert.Equal(t, "/gamePortal/matches/m1", writes[0].Path)
			require.Contains(t, writes[0].Values, "pieces/0/currentState")
			assert.Equal(t, store.ServerTimestamp(), writes[0].Values["lastUpdatedOn"])
		})
	}
}

func TestUpdatePieceState_Payload(t *testing.T) {
	h := newHarness(t)
	match := &models.MatchInfo{MatchID: "m1", GameSpecID: "cards", MatchState: testGame().InitialMatchState()}
	piece := models.PieceState{X: 3, Y: 4, ZDepth: 5, CurrentImageIndex: 1, CardVisibility: models.NewVisibilitySet(1)}

	require.NoError(t, h.sync.UpdatePieceState(context.Background(), match, 1, piece))
	writes := h.store.Writes()
	require.Len(t, writes, 1)
	assert.JSONEq(t, `{"lastUpdatedOn":{".sv":"timestamp"},"pieces/1/currentState":{"x":3,"y":4,"zDepth":5,"currentImageIndex":1,"cardVisibility":{"1":true}}}`, writes[0].JSON())
}

func TestUpdatePieceState_EmptyMatchRejected(t *testing.T) {
	ctx := context.Background()
	db := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
	conn := db.Connect()
	s := NewSynchronizer(NewSynchronizerOptions{
		Store:    conn,
		Identity: testUser("alice"),
		Games:    gameSet{"cards": testGame()},
	})

	match, err := s.CreateMatch(ctx, testGame(), models.MatchState{})
	require.NoError(t, err)

	err = s.UpdatePieceState(ctx, match, 1, models.PieceState{X: 5, Y: 5, ZDepth: 2})
	assert.True(t, models.IsValidationError(err))

	snap, err := conn.ReadOnce(ctx, models.MatchPath(match.MatchID))
	require.NoError(t, err)
	decoded, err := DecodeMatch(match.MatchID, snap.Raw())
	require.NoError(t, err)
	assert.Empty(t, decoded.MatchState)

	require.NoError(t, s.UpdateMatchState(ctx, match, testGame().InitialMatchState()))
	match.MatchState = testGame().InitialMatchState()
	require.NoError(t, s.UpdatePieceState(ctx, match, 1, models.PieceState{X: 5, Y: 5, ZDepth: 2}))

	snap, err = conn.ReadOnce(ctx, models.MatchPath(match.MatchID))
	require.NoError(t, err)
	decoded, err = DecodeMatch(match.MatchID, snap.Raw())
	require.NoError(t, err)
	require.Len(t, decoded.MatchState, 2)
	assert.Equal(t, float64(5), decoded.MatchState[1].X)
}

func TestUpdateMatchState(t *testing.T) {
	h := newHarness(t)
	game := testGame()
	match := &models.MatchInfo{MatchID: "m1", GameSpecID: "cards"}

	assert.True(t, models.IsValidationError(h.sync.UpdateMatchState(context.Background(), match, nil)))
	assert.True(t, models.IsValidationError(h.sync.UpdateMatchState(context.Background(), match, game.InitialMatchState()[:1])))
	assert.Empty(t, h.store.Writes())

	require.NoError(t, h.sync.UpdateMatchState(context.Background(), match, game.InitialMatchState()))
	writes := h.store.Writes()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0].Values, "pieces")
	assert.Contains(t, writes[0].Values, "lastUpdatedOn")

	unknown := &models.MatchInfo{MatchID: "m2", GameSpecID: "chess"}
	assert.True(t, store.IsMissingData(h.sync.UpdateMatchState(context.Background(), unknown, game.InitialMatchState())))
}

func TestPingOpponents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.sync.PingOpponents(ctx, &models.MatchInfo{MatchID: "m1", ParticipantsUserIDs: []string{"bob"}})
	assert.True(t, errors.Is(err, models.ErrNotParticipant))
	assert.Empty(t, h.store.Writes())

	require.NoError(t, h.sync.PingOpponents(ctx, &models.MatchInfo{MatchID: "m1", ParticipantsUserIDs: []string{"bob", "alice"}}))
	writes := h.store.Writes()
	require.Len(t, writes, 1)
	assert.JSONEq(t, `{"participants/alice/pingOpponents":{".sv":"timestamp"}}`, writes[0].JSON())
}

func TestWrites_RequireSignedInUser(t *testing.T) {
	s := NewSynchronizer(NewSynchronizerOptions{
		Store:    storetest.New(),
		Identity: testUser(""),
		Games:    gameSet{},
	})
	_, err := s.CreateMatch(context.Background(), testGame(), nil)
	assert.Error(t, err)
	assert.Error(t, s.ListenToMyMatchesList(context.Background()))
}
