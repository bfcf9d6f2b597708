package models

// PlayerID identifies a player for the lifetime of its connection. It is
// assigned by the transport and doubles as voter and filterer identity.
type PlayerID string

type Player struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}
