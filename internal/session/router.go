// internal/session/router.go
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/filterbattle/internal/game"
	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the outbound buffer per connection. A full buffer drops
// messages rather than stalling the game.
const DefaultQueueSize = 64

// GameService is the slice of the game manager the router drives.
type GameService interface {
	Join(roomID string, player models.Player)
	Leave(roomID string, playerID models.PlayerID) bool
	StartGame(roomID string) bool
	SubmitCard(roomID string, playerID models.PlayerID, text string)
	StartVoting(roomID string)
	Vote(roomID string, voterID, targetID models.PlayerID)
	ReadyForRestart(roomID string, playerID models.PlayerID)
	StateEvents(roomID string) []game.Event
	ListRooms() []models.RoomSummary
}

// Client is one live connection. Its id doubles as the player id.
type Client struct {
	ID      models.PlayerID
	OutChan chan game.Event

	roomID string
}

// Write pushes an event onto the client's OutChan without blocking and
// reports whether it was queued.
func (c *Client) Write(ev game.Event) bool {
	select {
	case c.OutChan <- ev:
		return true
	default:
		return false
	}
}

// Router maps connections to rooms, routes inbound packets to the game and
// fans outbound events out to the members of a room.
//
// The router never calls into the game while holding its own lock; the game
// calls Broadcast while holding its lock, so the order is always game, then router.
type Router struct {
	mu      sync.RWMutex
	clients map[models.PlayerID]*Client
	members map[string]map[models.PlayerID]*Client

	game      GameService
	log       logrus.FieldLogger
	queueSize int
}

func NewRouter(svc GameService, logger logrus.FieldLogger, queueSize int) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Router{
		clients:   make(map[models.PlayerID]*Client),
		members:   make(map[string]map[models.PlayerID]*Client),
		game:      svc,
		log:       logger,
		queueSize: queueSize,
	}
}

// Connect registers a new connection under a fresh id.
func (r *Router) Connect() *Client {
	c := &Client{
		ID:      models.PlayerID(uuid.NewString()),
		OutChan: make(chan game.Event, r.queueSize),
	}
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
	r.log.WithField("player", c.ID).Debug("Connection registered")
	return c
}

// Disconnect unregisters the connection, leaves its room and closes its
// OutChan. It is safe to call more than once.
func (r *Router) Disconnect(id models.PlayerID) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	roomID := c.roomID
	r.detachLocked(c)
	delete(r.clients, id)
	r.mu.Unlock()

	// No Broadcast can reach c any more, so closing is safe.
	close(c.OutChan)

	if roomID != "" {
		r.leave(roomID, id)
	}
	r.log.WithField("player", id).Debug("Connection removed")
}

// Broadcast delivers ev to every connection currently in roomID.
func (r *Router) Broadcast(roomID string, ev game.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.members[roomID] {
		if !c.Write(ev) {
			r.log.WithFields(logrus.Fields{"room": roomID, "player": id}).Warnf("OutChan full, dropped %s", ev.Type)
		}
	}
}

// BroadcastAll delivers ev to every connection regardless of room.
func (r *Router) BroadcastAll(ev game.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.clients {
		if !c.Write(ev) {
			r.log.WithField("player", id).Warnf("OutChan full, dropped %s", ev.Type)
		}
	}
}

// RoomOf returns the room the connection is in, if any.
func (r *Router) RoomOf(id models.PlayerID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok || c.roomID == "" {
		return "", false
	}
	return c.roomID, true
}

// Len reports the number of live connections.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Handle routes one inbound packet from connection id. Game-level misuse
// (wrong phase, bad vote target) is silently ignored by the game; only
// malformed packets produce an error, which is also replied to the sender.
func (r *Router) Handle(id models.PlayerID, raw map[string]any) error {
	pkt, err := ParsePacket(raw)
	if err != nil {
		r.reply(id, game.ErrorEvent("invalid packet"))
		return err
	}
	logger := r.log.WithField("player", id)
	logger.Debugf("Handling %s", pkt.Type)

	switch pkt.Type {
	case EventGetRooms:
		r.reply(id, game.Event{Type: game.EventRoomsList, Payload: r.game.ListRooms()})

	case EventJoinRoom:
		var req JoinRoomRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		r.join(id, req)

	case EventLeaveRoom:
		var req RoomRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		roomID, ok := r.memberRoom(id, req.RoomID)
		if !ok {
			return nil
		}
		r.mu.Lock()
		if c, ok := r.clients[id]; ok {
			r.detachLocked(c)
		}
		r.mu.Unlock()
		r.leave(roomID, id)

	case EventStartGame:
		var req RoomRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		roomID, ok := r.memberRoom(id, req.RoomID)
		if !ok {
			return nil
		}
		if r.game.StartGame(roomID) {
			r.reply(id, game.Event{Type: game.EventStartGameSuccess, Payload: game.StartGamePayload{RoomID: roomID}})
		}

	case EventGetCurrentState:
		var req RoomRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		roomID := strings.TrimSpace(req.RoomID)
		if roomID == "" {
			roomID, _ = r.RoomOf(id)
		}
		for _, ev := range r.game.StateEvents(roomID) {
			r.reply(id, ev)
		}

	case EventSubmitCard:
		var req SubmitCardRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		if roomID, ok := r.memberRoom(id, req.RoomID); ok {
			r.game.SubmitCard(roomID, id, req.Card)
		}

	case EventStartVoting:
		var req RoomRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		if roomID, ok := r.memberRoom(id, req.RoomID); ok {
			r.game.StartVoting(roomID)
		}

	case EventVote:
		var req VoteRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		if roomID, ok := r.memberRoom(id, req.RoomID); ok {
			r.game.Vote(roomID, id, req.PlayerID)
		}

	case EventReadyForRestart:
		var req RoomRequest
		if err := r.decodeOrReply(id, pkt, &req); err != nil {
			return err
		}
		if roomID, ok := r.memberRoom(id, req.RoomID); ok {
			r.game.ReadyForRestart(roomID, id)
		}

	default:
		r.reply(id, game.ErrorEvent(fmt.Sprintf("unknown event type: %s", pkt.Type)))
		return fmt.Errorf("%w: %s", ErrUnknownEvent, pkt.Type)
	}
	return nil
}

func (r *Router) join(id models.PlayerID, req JoinRoomRequest) {
	roomID := strings.TrimSpace(req.RoomID)
	name := strings.TrimSpace(req.Name)
	if roomID == "" || name == "" {
		r.reply(id, game.Event{Type: game.EventJoinRoomFailure, Payload: game.JoinFailurePayload{
			RoomID: roomID,
			Reason: "room id and name are required",
		}})
		return
	}

	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	previous := c.roomID
	if previous != roomID {
		r.detachLocked(c)
		r.attachLocked(c, roomID)
	}
	r.mu.Unlock()

	if previous != "" && previous != roomID {
		r.log.WithFields(logrus.Fields{"player": id, "room": previous}).Debugf("Switching to room %s", roomID)
		r.leave(previous, id)
	}

	r.reply(id, game.Event{Type: game.EventJoinRoomSuccess, Payload: game.JoinSuccessPayload{RoomID: roomID, PlayerID: id}})
	r.game.Join(roomID, models.Player{ID: id, Name: name})
	r.pushRoomsList()
}

func (r *Router) leave(roomID string, id models.PlayerID) {
	if r.game.Leave(roomID, id) {
		r.pushRoomsList()
	}
}

// memberRoom resolves the room a room-scoped packet targets. A blank room id
// means the sender's current room; a room the sender is not in is refused.
func (r *Router) memberRoom(id models.PlayerID, requested string) (string, bool) {
	current, ok := r.RoomOf(id)
	requested = strings.TrimSpace(requested)
	if !ok {
		r.log.WithFields(logrus.Fields{"player": id, "room": requested}).Debug("Room action from connection outside any room ignored")
		return "", false
	}
	if requested != "" && requested != current {
		r.log.WithFields(logrus.Fields{"player": id, "room": requested}).Debugf("Room action for a room the sender is not in (current %s) ignored", current)
		return "", false
	}
	return current, true
}

func (r *Router) decodeOrReply(id models.PlayerID, pkt Packet, out any) error {
	if err := decode(pkt.Payload, out); err != nil {
		r.reply(id, game.ErrorEvent(fmt.Sprintf("invalid payload for %s", pkt.Type)))
		return err
	}
	return nil
}

func (r *Router) pushRoomsList() {
	r.BroadcastAll(game.Event{Type: game.EventRoomsList, Payload: r.game.ListRooms()})
}

func (r *Router) reply(id models.PlayerID, ev game.Event) {
	// Held across the write so Disconnect cannot close OutChan underneath it.
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return
	}
	if !c.Write(ev) {
		r.log.WithField("player", id).Warnf("OutChan full, dropped reply %s", ev.Type)
	}
}

func (r *Router) attachLocked(c *Client, roomID string) {
	set, ok := r.members[roomID]
	if !ok {
		set = make(map[models.PlayerID]*Client)
		r.members[roomID] = set
	}
	set[c.ID] = c
	c.roomID = roomID
}

func (r *Router) detachLocked(c *Client) {
	if c.roomID == "" {
		return
	}
	if set, ok := r.members[c.roomID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.members, c.roomID)
		}
	}
	c.roomID = ""
}
