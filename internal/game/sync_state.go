// internal/game/sync_state.go
package game

import (
	"github.com/jason-s-yu/filterbattle/internal/models"
)

// Snapshot is a point-in-time copy of a room's visible state, safe to hand
// to other goroutines. Hidden cards are never part of it.
type Snapshot struct {
	RoomID     string                     `json:"roomId"`
	Phase      Phase                      `json:"phase"`
	Players    []models.Player            `json:"players"`
	FiltererID *models.PlayerID           `json:"filtererId"`
	Topic      *models.Topic              `json:"topic"`
	Filter     *string                    `json:"filter"`
	Cards      map[models.PlayerID]string `json:"cards"`
	Submitted  []models.PlayerID          `json:"submitted"`
	Scores     map[models.PlayerID]int    `json:"scores"`
	ReadyCount int                        `json:"readyCount"`
}

// Events renders the snapshot as the event sequence a client needs to
// rebuild its view of the room.
func (s Snapshot) Events() []Event {
	var filter any
	if s.Filter != nil {
		filter = *s.Filter
	}
	return []Event{
		{Type: EventPlayersUpdate, Payload: PlayersPayload{Players: s.Players, FiltererID: s.FiltererID}},
		{Type: EventTopicUpdate, Payload: s.Topic},
		{Type: EventFilterUpdate, Payload: filter},
		{Type: EventCardsUpdate, Payload: s.Cards},
		{Type: EventSubmittedUpdate, Payload: s.Submitted},
		{Type: EventPhaseUpdate, Payload: s.Phase},
	}
}

// StateEvents returns the current state of the room as reply events, or
// nil if the room does not exist.
func (m *Manager) StateEvents(roomID string) []Event {
	snap, ok := m.Snapshot(roomID)
	if !ok {
		return nil
	}
	return snap.Events()
}

func (m *Manager) snapshot(room *Room) Snapshot {
	r := room.Round
	snap := Snapshot{
		RoomID:     room.ID,
		Phase:      r.Phase,
		Players:    append([]models.Player{}, room.Players...),
		FiltererID: nullableID(r.FiltererID),
		Cards:      copyCards(r.Cards),
		Submitted:  m.submittedList(room),
		Scores:     copyScores(r.Scores),
		ReadyCount: len(r.Ready),
	}
	if r.Topic != nil {
		t := *r.Topic
		t.Filters = append([]string(nil), r.Topic.Filters...)
		snap.Topic = &t
	}
	if r.Filter != "" {
		f := r.Filter
		snap.Filter = &f
	}
	return snap
}

// broadcastRoundState pushes the full visible state of the room to everyone in it.
func (m *Manager) broadcastRoundState(room *Room) {
	for _, ev := range m.snapshot(room).Events() {
		m.broadcast(room, ev.Type, ev.Payload)
	}
}

func (m *Manager) broadcast(room *Room, typ EventType, payload any) {
	if m.publisher == nil {
		return
	}
	m.publisher.Broadcast(room.ID, Event{Type: typ, Payload: payload})
}

// submittedList returns the ids of players who submitted, in join order.
func (m *Manager) submittedList(room *Room) []models.PlayerID {
	out := make([]models.PlayerID, 0, len(room.Round.Submitted))
	for _, p := range room.Players {
		if _, ok := room.Round.Submitted[p.ID]; ok {
			out = append(out, p.ID)
		}
	}
	return out
}

func nullableID(id models.PlayerID) *models.PlayerID {
	if id == "" {
		return nil
	}
	return &id
}
