package session

import (
	"testing"
	"time"

	"github.com/jason-s-yu/filterbattle/internal/content"
	"github.com/jason-s-yu/filterbattle/internal/game"
	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newTestRouter wires a real manager to a router the way cmd/server does.
func newTestRouter(t *testing.T) (*Router, *game.Manager) {
	t.Helper()
	lib, err := content.Load("", content.NewRand(3))
	require.NoError(t, err)
	mgr := game.NewManager(lib, game.Options{SubmitTimeout: time.Hour, Logger: quietLogger()})
	r := NewRouter(mgr, quietLogger(), 256)
	mgr.SetPublisher(r)
	return r, mgr
}

// drain empties a client's queue and returns what was in it.
func drain(c *Client) []game.Event {
	var out []game.Event
	for {
		select {
		case ev := <-c.OutChan:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func lastOfType(evs []game.Event, typ game.EventType) *game.Event {
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return &evs[i]
		}
	}
	return nil
}

func packet(typ string, payload map[string]any) map[string]any {
	p := map[string]any{"type": typ}
	if payload != nil {
		p["payload"] = payload
	}
	return p
}

func join(t *testing.T, r *Router, c *Client, roomID, name string) {
	t.Helper()
	require.NoError(t, r.Handle(c.ID, packet(EventJoinRoom, map[string]any{"roomId": roomID, "name": name})))
}

func TestJoinRoomRepliesAndBroadcasts(t *testing.T) {
	r, _ := newTestRouter(t)
	alice := r.Connect()
	watcher := r.Connect()

	join(t, r, alice, "r1", "alice")

	evs := drain(alice)
	require.NotEmpty(t, evs)
	assert.Equal(t, game.EventJoinRoomSuccess, evs[0].Type)
	assert.Equal(t, game.JoinSuccessPayload{RoomID: "r1", PlayerID: alice.ID}, evs[0].Payload)

	players := lastOfType(evs, game.EventPlayersUpdate)
	require.NotNil(t, players)
	assert.Equal(t, []models.Player{{ID: alice.ID, Name: "alice"}}, players.Payload.(game.PlayersPayload).Players)
	assert.Equal(t, game.PhaseSubmit, lastOfType(evs, game.EventPhaseUpdate).Payload)

	// Connections outside the room only see the room list push.
	watched := drain(watcher)
	require.Len(t, watched, 1)
	assert.Equal(t, game.EventRoomsList, watched[0].Type)
	assert.Equal(t, []models.RoomSummary{{RoomID: "r1", Players: []string{"alice"}}}, watched[0].Payload)

	room, ok := r.RoomOf(alice.ID)
	assert.True(t, ok)
	assert.Equal(t, "r1", room)
}

func TestJoinRoomFailure(t *testing.T) {
	r, mgr := newTestRouter(t)
	c := r.Connect()

	require.NoError(t, r.Handle(c.ID, packet(EventJoinRoom, map[string]any{"roomId": "  ", "name": "bob"})))
	evs := drain(c)
	require.Len(t, evs, 1)
	assert.Equal(t, game.EventJoinRoomFailure, evs[0].Type)
	assert.Empty(t, mgr.ListRooms())

	require.NoError(t, r.Handle(c.ID, packet(EventJoinRoom, map[string]any{"roomId": "r1"})))
	assert.Equal(t, game.EventJoinRoomFailure, drain(c)[0].Type)
}

func TestNumericRoomIDIsCoerced(t *testing.T) {
	r, mgr := newTestRouter(t)
	c := r.Connect()

	require.NoError(t, r.Handle(c.ID, packet(EventJoinRoom, map[string]any{"roomId": float64(42), "name": "zed"})))
	assert.Equal(t, []models.RoomSummary{{RoomID: "42", Players: []string{"zed"}}}, mgr.ListRooms())
}

func TestSwitchingRoomsLeavesOldRoom(t *testing.T) {
	r, mgr := newTestRouter(t)
	c := r.Connect()

	join(t, r, c, "r1", "alice")
	join(t, r, c, "r2", "alice")

	assert.Equal(t, []models.RoomSummary{{RoomID: "r2", Players: []string{"alice"}}}, mgr.ListRooms())
	room, _ := r.RoomOf(c.ID)
	assert.Equal(t, "r2", room)
}

func TestDisconnectLeavesRoomAndClosesQueue(t *testing.T) {
	r, mgr := newTestRouter(t)
	alice := r.Connect()
	bob := r.Connect()
	join(t, r, alice, "r1", "alice")
	join(t, r, bob, "r1", "bob")
	drain(bob)

	r.Disconnect(alice.ID)
	r.Disconnect(alice.ID)

	_, open := <-alice.OutChan
	for open {
		_, open = <-alice.OutChan
	}
	assert.Equal(t, 1, r.Len())

	evs := drain(bob)
	players := lastOfType(evs, game.EventPlayersUpdate)
	require.NotNil(t, players)
	payload := players.Payload.(game.PlayersPayload)
	assert.Equal(t, []models.Player{{ID: bob.ID, Name: "bob"}}, payload.Players)
	require.NotNil(t, payload.FiltererID)
	assert.Equal(t, bob.ID, *payload.FiltererID)

	r.Disconnect(bob.ID)
	assert.Empty(t, mgr.ListRooms())
}

func TestLeaveRoomTeardownPushesRoomsList(t *testing.T) {
	r, mgr := newTestRouter(t)
	alice := r.Connect()
	watcher := r.Connect()
	join(t, r, alice, "r1", "alice")
	drain(watcher)

	require.NoError(t, r.Handle(alice.ID, packet(EventLeaveRoom, map[string]any{"roomId": "r1"})))

	assert.Empty(t, mgr.ListRooms())
	_, inRoom := r.RoomOf(alice.ID)
	assert.False(t, inRoom)
	evs := drain(watcher)
	require.Len(t, evs, 1)
	assert.Equal(t, game.EventRoomsList, evs[0].Type)
	assert.Equal(t, []models.RoomSummary{}, evs[0].Payload)
}

func TestFullRoundOverRouter(t *testing.T) {
	r, _ := newTestRouter(t)
	alice := r.Connect()
	bob := r.Connect()
	join(t, r, alice, "r1", "alice")
	join(t, r, bob, "r1", "bob")

	require.NoError(t, r.Handle(alice.ID, packet(EventSubmitCard, map[string]any{"roomId": "r1", "card": "a"})))
	require.NoError(t, r.Handle(bob.ID, packet(EventSubmitCard, map[string]any{"card": "b"})))
	require.NoError(t, r.Handle(bob.ID, packet(EventStartVoting, map[string]any{"roomId": "r1"})))
	drain(alice)

	require.NoError(t, r.Handle(alice.ID, packet(EventVote, map[string]any{"roomId": "r1", "playerId": string(bob.ID)})))
	require.NoError(t, r.Handle(bob.ID, packet(EventVote, map[string]any{"roomId": "r1", "playerId": string(alice.ID)})))

	evs := drain(alice)
	results := lastOfType(evs, game.EventVotingResults)
	require.NotNil(t, results)
	payload := results.Payload.(game.VotingResultsPayload)
	// alice is the filterer: caught (-3) and tied for most votes (-1); bob accused correctly (+2) and is tied (-1).
	assert.Equal(t, map[models.PlayerID]int{alice.ID: -4, bob.ID: 1}, payload.ScoreDiffs)
	assert.Equal(t, game.PhaseResults, lastOfType(evs, game.EventPhaseUpdate).Payload)

	require.NoError(t, r.Handle(alice.ID, packet(EventReadyForRestart, nil)))
	require.NoError(t, r.Handle(bob.ID, packet(EventReadyForRestart, map[string]any{"roomId": "r1"})))
	assert.Equal(t, game.PhaseSubmit, lastOfType(drain(bob), game.EventPhaseUpdate).Payload)
}

func TestGetRoomsAndCurrentState(t *testing.T) {
	r, _ := newTestRouter(t)
	alice := r.Connect()
	outsider := r.Connect()
	join(t, r, alice, "r1", "alice")
	drain(outsider)

	require.NoError(t, r.Handle(outsider.ID, packet(EventGetRooms, nil)))
	evs := drain(outsider)
	require.Len(t, evs, 1)
	assert.Equal(t, game.EventRoomsList, evs[0].Type)

	require.NoError(t, r.Handle(outsider.ID, packet(EventGetCurrentState, map[string]any{"roomId": "r1"})))
	evs = drain(outsider)
	require.Len(t, evs, 6)
	assert.Equal(t, game.EventPlayersUpdate, evs[0].Type)
	assert.Equal(t, game.EventPhaseUpdate, evs[5].Type)
}

func TestStartGameRepliesSuccess(t *testing.T) {
	r, _ := newTestRouter(t)
	alice := r.Connect()
	join(t, r, alice, "r1", "alice")
	drain(alice)

	require.NoError(t, r.Handle(alice.ID, packet(EventStartGame, map[string]any{"roomId": "r1"})))
	evs := drain(alice)
	require.Len(t, evs, 1)
	assert.Equal(t, game.Event{Type: game.EventStartGameSuccess, Payload: game.StartGamePayload{RoomID: "r1"}}, evs[0])
}

func TestMalformedPackets(t *testing.T) {
	r, _ := newTestRouter(t)
	c := r.Connect()

	err := r.Handle(c.ID, map[string]any{"payload": map[string]any{}})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = r.Handle(c.ID, packet("dance", nil))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	err = r.Handle(c.ID, map[string]any{"type": EventJoinRoom, "payload": "not an object"})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	evs := drain(c)
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.Equal(t, game.EventError, ev.Type)
	}
}

// mockGame records the calls the router makes.
type mockGame struct {
	mock.Mock
}

func (m *mockGame) Join(roomID string, player models.Player) { m.Called(roomID, player) }
func (m *mockGame) Leave(roomID string, playerID models.PlayerID) bool {
	return m.Called(roomID, playerID).Bool(0)
}
func (m *mockGame) StartGame(roomID string) bool { return m.Called(roomID).Bool(0) }
func (m *mockGame) SubmitCard(roomID string, playerID models.PlayerID, text string) {
	m.Called(roomID, playerID, text)
}
func (m *mockGame) StartVoting(roomID string) { m.Called(roomID) }
func (m *mockGame) Vote(roomID string, voterID, targetID models.PlayerID) {
	m.Called(roomID, voterID, targetID)
}
func (m *mockGame) ReadyForRestart(roomID string, playerID models.PlayerID) {
	m.Called(roomID, playerID)
}
func (m *mockGame) StateEvents(roomID string) []game.Event {
	return m.Called(roomID).Get(0).([]game.Event)
}
func (m *mockGame) ListRooms() []models.RoomSummary {
	return m.Called().Get(0).([]models.RoomSummary)
}

func TestRoomActionsRequireMembership(t *testing.T) {
	g := &mockGame{}
	r := NewRouter(g, quietLogger(), 8)
	c := r.Connect()

	// Not in any room: nothing reaches the game.
	require.NoError(t, r.Handle(c.ID, packet(EventSubmitCard, map[string]any{"roomId": "r1", "card": "x"})))
	require.NoError(t, r.Handle(c.ID, packet(EventStartVoting, map[string]any{"roomId": "r1"})))

	g.On("Join", "r1", models.Player{ID: c.ID, Name: "carl"}).Once()
	g.On("ListRooms").Return([]models.RoomSummary{{RoomID: "r1", Players: []string{"carl"}}})
	join(t, r, c, "r1", "carl")

	// A different room than the sender's is refused.
	require.NoError(t, r.Handle(c.ID, packet(EventVote, map[string]any{"roomId": "r2", "playerId": "someone"})))

	g.On("Vote", "r1", c.ID, models.PlayerID("someone")).Once()
	require.NoError(t, r.Handle(c.ID, packet(EventVote, map[string]any{"roomId": "r1", "playerId": "someone"})))

	g.AssertExpectations(t)
	g.AssertNotCalled(t, "SubmitCard", mock.Anything, mock.Anything, mock.Anything)
	g.AssertNotCalled(t, "StartVoting", mock.Anything)
}

func TestClientWriteDropsWhenFull(t *testing.T) {
	c := &Client{ID: "x", OutChan: make(chan game.Event, 1)}
	assert.True(t, c.Write(game.Event{Type: game.EventVotingStarted}))
	assert.False(t, c.Write(game.Event{Type: game.EventVotingStarted}))
}
