// internal/game/phase.go
package game

// Phase is the current stage of a room's round. It decides which actions are legal.
type Phase string

const (
	PhaseLobby   Phase = "Lobby"   // room created, no round started yet
	PhaseSubmit  Phase = "Submit"  // players write cards against the deadline
	PhaseReveal  Phase = "Reveal"  // cards are public, waiting for someone to start voting
	PhaseVoting  Phase = "Voting"  // everyone votes for the suspected filterer
	PhaseResults Phase = "Results" // scores shown, waiting for everyone to be ready
)

func (p Phase) String() string {
	return string(p)
}

// CanTransitionTo reports whether moving from p to target is a legal edge of
// the round state machine. Re-entering Submit is legal from anywhere since a
// unanimous restart may happen in any phase.
func (p Phase) CanTransitionTo(target Phase) bool {
	if target == PhaseSubmit {
		return true
	}
	validTransitions := map[Phase]Phase{
		PhaseSubmit: PhaseReveal,
		PhaseReveal: PhaseVoting,
		PhaseVoting: PhaseResults,
	}
	next, ok := validTransitions[p]
	return ok && next == target
}
