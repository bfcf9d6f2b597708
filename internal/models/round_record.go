// internal/models/round_record.go
package models

import "time"

// RoundRecord holds everything needed to archive one scored round.
// It is produced on every Voting -> Results transition.
type RoundRecord struct {
	RoomID     string                `json:"room_id"`
	Round      int                   `json:"round"`
	FiltererID PlayerID              `json:"filterer_id"`
	Topic      string                `json:"topic"`
	Filter     string                `json:"filter"`
	Players    []Player              `json:"players"`
	Cards      map[PlayerID]string   `json:"cards"`
	Votes      map[PlayerID]PlayerID `json:"votes"`
	VoteCounts map[PlayerID]int      `json:"vote_counts"`
	ScoreDiffs map[PlayerID]int      `json:"score_diffs"`
	Scores     map[PlayerID]int      `json:"scores"`
	FinishedAt time.Time             `json:"finished_at"`
}
