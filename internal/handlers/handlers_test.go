package handlers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/filterbattle/internal/content"
	"github.com/jason-s-yu/filterbattle/internal/game"
	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/jason-s-yu/filterbattle/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv    *httptest.Server
	mgr    *game.Manager
	router *session.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	lib, err := content.Load("", content.NewRand(9))
	require.NoError(t, err)
	mgr := game.NewManager(lib, game.Options{SubmitTimeout: time.Hour, Logger: logger})
	router := session.NewRouter(mgr, logger, 0)
	mgr.SetPublisher(router)

	shutdown, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mux := NewRouter(WSHandler(shutdown, logger, router, []string{"*"}), mgr, router, "1.2.3", logger)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mgr: mgr, router: router}
}

func (ts *testServer) dial(t *testing.T, ctx context.Context, subprotocols ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: subprotocols})
	require.NoError(t, err)
	return c
}

type wireEvent struct {
	Type    game.EventType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads events until one of the given type arrives.
func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, typ game.EventType) wireEvent {
	t.Helper()
	for {
		var ev wireEvent
		require.NoError(t, wsjson.Read(ctx, c, &ev))
		if ev.Type == typ {
			return ev
		}
	}
}

func TestWebSocketJoinAndDisconnect(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := ts.dial(t, ctx, Subprotocol)
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{
		"type":    "join_room",
		"payload": map[string]any{"roomId": "kitchen", "name": "alice"},
	}))

	ev := readUntil(t, ctx, c, game.EventJoinRoomSuccess)
	var joined game.JoinSuccessPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &joined))
	assert.Equal(t, "kitchen", joined.RoomID)
	assert.NotEmpty(t, joined.PlayerID)

	ev = readUntil(t, ctx, c, game.EventPhaseUpdate)
	assert.JSONEq(t, `"Submit"`, string(ev.Payload))
	assert.Equal(t, []models.RoomSummary{{RoomID: "kitchen", Players: []string{"alice"}}}, ts.mgr.ListRooms())

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool {
		return len(ts.mgr.ListRooms()) == 0 && ts.router.Len() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocketInvalidJSON(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := ts.dial(t, ctx, Subprotocol)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	ev := readUntil(t, ctx, c, game.EventError)
	assert.Contains(t, string(ev.Payload), "invalid JSON")

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": "get_rooms"}))
	ev = readUntil(t, ctx, c, game.EventRoomsList)
	assert.JSONEq(t, `[]`, string(ev.Payload))
}

func TestWebSocketRequiresSubprotocol(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := ts.dial(t, ctx)
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}

func TestRoomsHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.mgr.Join("attic", models.Player{ID: "p1", Name: "ann"})

	resp, err := http.Get(ts.srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var rooms []models.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []models.RoomSummary{{RoomID: "attic", Players: []string{"ann"}}}, rooms)
}

func TestRoomQRHandler(t *testing.T) {
	mux := NewRouter(http.NotFoundHandler(), nil, nil, "", logrus.New())

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://party.example/rooms/den/qr", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "\x89PNG"))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://party.example/?room=den", JoinURL("https", "party.example", "den"))
	assert.Equal(t, "http://localhost:8080/?room=my+room%26co", JoinURL("http", "localhost:8080", "my room&co"))
}

func TestRequestScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http", requestScheme(r))
	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", requestScheme(r))
	r.Header.Set("X-Forwarded-Proto", "HTTPS")
	assert.Equal(t, "https", requestScheme(r))

	for _, bad := range []string{"javascript", "https://evil.example/#", "ftp"} {
		r.Header.Set("X-Forwarded-Proto", bad)
		assert.Equal(t, "http", requestScheme(r), bad)
	}
	r.TLS = &tls.ConnectionState{}
	r.Header.Set("X-Forwarded-Proto", "gopher")
	assert.Equal(t, "https", requestScheme(r))
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, healthResponse{Status: "ok"}, health)

	resp2, err := http.Get(ts.srv.URL + "/version")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Equal(t, "filterbattle v1.2.3\n", string(body))
}
