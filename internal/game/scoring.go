// internal/game/scoring.go
package game

import "github.com/jason-s-yu/filterbattle/internal/models"

const (
	correctAccusationReward = 2
	caughtPenalty           = 3
	evadedReward            = 3
	mostSuspectedPenalty    = 1
)

// CountVotes tallies how many votes each target received.
func CountVotes(votes map[models.PlayerID]models.PlayerID) map[models.PlayerID]int {
	counts := make(map[models.PlayerID]int, len(votes))
	for _, target := range votes {
		counts[target]++
	}
	return counts
}

// ComputeRoundScores returns the per-player score deltas for one completed vote.
// It is pure: the result depends only on its arguments.
//
//   - every non-filterer who voted for the filterer gains 2
//   - the filterer loses 3 if anyone voted for them, otherwise gains 3
//   - every player tied for the most votes (with at least one vote) loses 1
func ComputeRoundScores(votes map[models.PlayerID]models.PlayerID, filtererID models.PlayerID, players []models.Player) map[models.PlayerID]int {
	counts := CountVotes(votes)

	maxVotes := 0
	for _, c := range counts {
		if c > maxVotes {
			maxVotes = c
		}
	}

	deltas := make(map[models.PlayerID]int, len(players))
	for _, p := range players {
		deltas[p.ID] = 0
	}

	for voter, target := range votes {
		if target == filtererID && voter != filtererID {
			deltas[voter] += correctAccusationReward
		}
	}

	if filtererID != "" {
		if counts[filtererID] > 0 {
			deltas[filtererID] -= caughtPenalty
		} else {
			deltas[filtererID] += evadedReward
		}
	}

	if maxVotes > 0 {
		for id, c := range counts {
			if c == maxVotes {
				deltas[id] -= mostSuspectedPenalty
			}
		}
	}

	return deltas
}
