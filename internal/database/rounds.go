// internal/database/rounds.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/filterbattle/internal/models"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// RoundStore archives scored rounds.
type RoundStore struct {
	db TxBeginner
}

func NewRoundStore(db TxBeginner) *RoundStore {
	return &RoundStore{db: db}
}

// InsertRounds writes the whole batch in one transaction; either every record lands or none does.
func (s *RoundStore) InsertRounds(ctx context.Context, recs []models.RoundRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if _, err := InsertRoundRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert round %s/%d: %w", rec.RoomID, rec.Round, err)
			}
		}
		return nil
	})
}

// InsertRoundRecordTx inserts one round and its per-player score rows, returning the round id.
func InsertRoundRecordTx(ctx context.Context, tx pgx.Tx, rec models.RoundRecord) (int64, error) {
	cards, err := json.Marshal(rec.Cards)
	if err != nil {
		return 0, err
	}
	votes, err := json.Marshal(rec.Votes)
	if err != nil {
		return 0, err
	}

	q := `
		INSERT INTO rounds (room_id, round_number, filterer_id, topic, filter, cards, votes, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var roundID int64
	if err := tx.QueryRow(ctx, q,
		rec.RoomID, rec.Round, nullable(string(rec.FiltererID)), rec.Topic, nullable(rec.Filter), cards, votes, rec.FinishedAt,
	).Scan(&roundID); err != nil {
		return 0, err
	}

	scoreQ := `
		INSERT INTO round_scores (round_id, player_id, player_name, votes_received, score_diff, total_score, was_filterer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, row := range scoreRows(rec) {
		if _, err := tx.Exec(ctx, scoreQ,
			roundID, row.PlayerID, row.Name, row.VotesReceived, row.ScoreDiff, row.TotalScore, row.WasFilterer,
		); err != nil {
			return 0, err
		}
	}
	return roundID, nil
}

type scoreRow struct {
	PlayerID      string
	Name          string
	VotesReceived int
	ScoreDiff     int
	TotalScore    int
	WasFilterer   bool
}

// scoreRows flattens a record into one row per scored player, ordered by player id.
func scoreRows(rec models.RoundRecord) []scoreRow {
	names := make(map[models.PlayerID]string, len(rec.Players))
	for _, p := range rec.Players {
		names[p.ID] = p.Name
	}

	rows := make([]scoreRow, 0, len(rec.ScoreDiffs))
	for id, diff := range rec.ScoreDiffs {
		rows = append(rows, scoreRow{
			PlayerID:      string(id),
			Name:          names[id],
			VotesReceived: rec.VoteCounts[id],
			ScoreDiff:     diff,
			TotalScore:    rec.Scores[id],
			WasFilterer:   id == rec.FiltererID,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PlayerID < rows[j].PlayerID })
	return rows
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
