// internal/models/room.go
package models

// RoomSummary is the room-browser view of one room.
type RoomSummary struct {
	RoomID  string   `json:"roomId"`
	Players []string `json:"players"`
}
