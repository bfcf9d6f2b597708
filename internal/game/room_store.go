// internal/game/room_store.go
package game

import (
	"sort"
	"sync"

	"github.com/jason-s-yu/filterbattle/internal/models"
)

// Room is one named game room: its players in join order and its round.
type Room struct {
	ID      string
	Players []models.Player
	Round   *Round

	deadline Timer
}

func (room *Room) hasPlayer(id models.PlayerID) bool {
	return room.indexOf(id) >= 0
}

func (room *Room) indexOf(id models.PlayerID) int {
	for i, p := range room.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (room *Room) summary() models.RoomSummary {
	names := make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		names = append(names, p.Name)
	}
	return models.RoomSummary{RoomID: room.ID, Players: names}
}

// RoomStore is the registry of live rooms keyed by room id.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the room, creating an empty Lobby room if it is absent.
func (s *RoomStore) GetOrCreate(id string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		return room, false
	}
	room := &Room{ID: id, Round: newRound()}
	s.rooms[id] = room
	return room, true
}

func (s *RoomStore) Get(id string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return room, ok
}

// Remove deletes the room entry. Callers only do this once the room is empty.
func (s *RoomStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// List snapshots every room for the room browser, ordered by room id.
func (s *RoomStore) List() []models.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RoomSummary, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
