// internal/game/round.go
package game

import "github.com/jason-s-yu/filterbattle/internal/models"

// Round is the mutable per-room state of one play cycle. Scores survive
// across rounds for the lifetime of the room.
type Round struct {
	Phase Phase
	// Epoch is assigned from the Manager's counter on every entry into Submit;
	// deadline tokens carry it so a timer armed for an earlier Submit, in this
	// room or a destroyed room of the same id, can never act on a later one.
	Epoch uint64
	// Completed counts rounds that reached Results.
	Completed int

	FiltererID models.PlayerID
	Topic      *models.Topic
	Filter     string

	HiddenCards map[models.PlayerID]string
	Cards       map[models.PlayerID]string
	Submitted   map[models.PlayerID]struct{}
	Votes       map[models.PlayerID]models.PlayerID
	Scores      map[models.PlayerID]int
	Ready       map[models.PlayerID]struct{}
}

func newRound() *Round {
	return &Round{
		Phase:       PhaseLobby,
		HiddenCards: make(map[models.PlayerID]string),
		Cards:       make(map[models.PlayerID]string),
		Submitted:   make(map[models.PlayerID]struct{}),
		Votes:       make(map[models.PlayerID]models.PlayerID),
		Scores:      make(map[models.PlayerID]int),
		Ready:       make(map[models.PlayerID]struct{}),
	}
}

// resetBookkeeping clears everything a new round starts without. Scores stay.
func (r *Round) resetBookkeeping() {
	clear(r.HiddenCards)
	clear(r.Cards)
	clear(r.Submitted)
	clear(r.Votes)
	clear(r.Ready)
}

// forget removes every trace of a player from the per-round sets, including
// votes cast for them.
func (r *Round) forget(id models.PlayerID) {
	delete(r.HiddenCards, id)
	delete(r.Cards, id)
	delete(r.Submitted, id)
	delete(r.Votes, id)
	delete(r.Ready, id)
	for voter, target := range r.Votes {
		if target == id {
			delete(r.Votes, voter)
		}
	}
}

func copyCards(src map[models.PlayerID]string) map[models.PlayerID]string {
	out := make(map[models.PlayerID]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyScores(src map[models.PlayerID]int) map[models.PlayerID]int {
	out := make(map[models.PlayerID]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
