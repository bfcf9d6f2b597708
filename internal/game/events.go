// internal/game/events.go
package game

import (
	"encoding/json"

	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/sirupsen/logrus"
)

// EventType names an outbound event.
type EventType string

const (
	// Room-scoped broadcasts.
	EventPlayersUpdate   EventType = "players_update"
	EventTopicUpdate     EventType = "topic_update"
	EventFilterUpdate    EventType = "filter_update"
	EventCardsUpdate     EventType = "cards_update"
	EventSubmittedUpdate EventType = "submitted_update"
	EventPhaseUpdate     EventType = "phase_update"
	EventRevealCards     EventType = "reveal_cards"
	EventVotingStarted   EventType = "voting_started"
	EventVotingResults   EventType = "voting_results"
	EventReadyStatus     EventType = "ready_status"

	// Replies to a single connection (rooms_list is also pushed to everyone on room changes).
	EventRoomsList        EventType = "rooms_list"
	EventJoinRoomSuccess  EventType = "join_room_success"
	EventJoinRoomFailure  EventType = "join_room_failure"
	EventStartGameSuccess EventType = "start_game_success"
	EventError            EventType = "error"
)

// Event is the envelope delivered to clients. Payload is null for events that carry no data.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type PlayersPayload struct {
	Players    []models.Player  `json:"players"`
	FiltererID *models.PlayerID `json:"filtererId"`
}

type VotingResultsPayload struct {
	Scores     map[models.PlayerID]int `json:"scores"`
	VoteCounts map[models.PlayerID]int `json:"voteCounts"`
	ScoreDiffs map[models.PlayerID]int `json:"scoreDiffs"`
}

type ReadyStatusPayload struct {
	ReadyCount int `json:"readyCount"`
	TotalCount int `json:"totalCount"`
}

type StartGamePayload struct {
	RoomID string `json:"roomId"`
}

// JoinSuccessPayload tells the joining connection which id it plays under.
type JoinSuccessPayload struct {
	RoomID   string          `json:"roomId"`
	PlayerID models.PlayerID `json:"playerId"`
}

type JoinFailurePayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Bytes marshals the event for the wire. A marshal failure is logged and
// yields "{}" so a single bad payload never kills a write loop.
func (ev Event) Bytes() []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.Warnf("Failed to marshal event type %s: %v", ev.Type, err)
		return []byte("{}")
	}
	return data
}

// ErrorEvent builds a reply-only error event.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: msg}}
}
