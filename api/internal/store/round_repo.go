package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// RoundRepo: журнал раундов с отладочной нагрузкой.
type RoundRepo struct{ DB *sql.DB }

func NewRoundRepo(db *sql.DB) *RoundRepo { return &RoundRepo{DB: db} }

type RoundRow struct {
	ID          string          `json:"id"`
	PlayerID    string          `json:"playerId"`
	ChallengeID string          `json:"challengeId"`
	Success     bool            `json:"success"`
	ScoreAdded  int             `json:"scoreAdded"`
	Debug       json.RawMessage `json:"debug"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (r *RoundRepo) Insert(ctx context.Context, row RoundRow) error {
	debug := row.Debug
	if len(debug) == 0 {
		debug = json.RawMessage("{}")
	}
	ts := row.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `
insert into rounds (id, player_id, challenge_id, success, score_added, debug_json, created_at)
values ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, q, row.ID, row.PlayerID, row.ChallengeID, row.Success, row.ScoreAdded, string(debug), ts.UTC())
	return err
}

// Recent: последние раунды игрока, новые первыми.
func (r *RoundRepo) Recent(ctx context.Context, playerID string, limit int) ([]RoundRow, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
select id, player_id, challenge_id, success, score_added, debug_json, created_at
from rounds
where player_id = $1
order by created_at desc, id desc
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var (
			row   RoundRow
			debug string
		)
		if err := rows.Scan(&row.ID, &row.PlayerID, &row.ChallengeID, &row.Success, &row.ScoreAdded, &debug, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Debug = json.RawMessage(debug)
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeletePlayer: удаляет журнал игрока (reset).
func (r *RoundRepo) DeletePlayer(ctx context.Context, playerID string) error {
	_, err := r.DB.ExecContext(ctx, `delete from rounds where player_id = $1`, playerID)
	return err
}
