// internal/session/requests.go
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/mitchellh/mapstructure"
)

var (
	// ErrUnknownEvent is returned for packets whose type no handler knows.
	ErrUnknownEvent = errors.New("session: unknown event type")
	// ErrInvalidPayload is returned when a packet's payload cannot be decoded.
	ErrInvalidPayload = errors.New("session: invalid payload")
)

// Inbound event names.
const (
	EventGetRooms        = "get_rooms"
	EventJoinRoom        = "join_room"
	EventLeaveRoom       = "leave_room"
	EventStartGame       = "start_game"
	EventGetCurrentState = "get_current_state"
	EventSubmitCard      = "submit_card"
	EventStartVoting     = "start_voting"
	EventVote            = "vote"
	EventReadyForRestart = "ready_for_restart"
)

// Packet is the inbound envelope: {"type": "...", "payload": {...}}.
type Packet struct {
	Type    string `mapstructure:"type"`
	Payload any    `mapstructure:"payload"`
}

type JoinRoomRequest struct {
	RoomID string `mapstructure:"roomId"`
	Name   string `mapstructure:"name"`
}

// RoomRequest carries just the target room; used by every room-scoped event without extra fields.
type RoomRequest struct {
	RoomID string `mapstructure:"roomId"`
}

type SubmitCardRequest struct {
	RoomID string `mapstructure:"roomId"`
	Card   string `mapstructure:"card"`
}

type VoteRequest struct {
	RoomID   string          `mapstructure:"roomId"`
	PlayerID models.PlayerID `mapstructure:"playerId"`
}

// decode converts a loosely typed JSON value into out. Scalars are coerced,
// so a numeric room id arrives as its decimal string.
func decode(raw any, out any) error {
	if raw == nil {
		return nil
	}
	if err := mapstructure.WeakDecode(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// ParsePacket decodes a raw JSON object into a Packet.
func ParsePacket(raw map[string]any) (Packet, error) {
	var p Packet
	if err := decode(raw, &p); err != nil {
		return Packet{}, err
	}
	p.Type = strings.TrimSpace(p.Type)
	if p.Type == "" {
		return Packet{}, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	return p, nil
}
