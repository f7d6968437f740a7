package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"reality-quest/api/internal/types"
)

// PlayerRepo: счёт, серия, история и отладочное задание игрока.
type PlayerRepo struct{ DB *sql.DB }

func NewPlayerRepo(db *sql.DB) *PlayerRepo { return &PlayerRepo{DB: db} }

// LoadState: нет строки или битый JSON - нулевое состояние.
func (r *PlayerRepo) LoadState(ctx context.Context, playerID string) (types.AppState, error) {
	var js []byte
	err := r.DB.QueryRowContext(ctx, `select state_json from player_state where player_id = $1`, playerID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AppState{}, nil
	}
	if err != nil {
		return types.AppState{}, err
	}
	return decodeState(js), nil
}

func decodeState(js []byte) types.AppState {
	var raw map[string]any
	if err := json.Unmarshal(js, &raw); err != nil {
		return types.AppState{}
	}
	num := func(k string) int {
		if f, ok := raw[k].(float64); ok {
			return int(f)
		}
		return 0
	}
	return types.AppState{Score: num("score"), Streak: num("streak")}
}

// execer: *sql.DB или *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PlayerRepo) SaveState(ctx context.Context, playerID string, s types.AppState) error {
	return saveState(ctx, r.DB, playerID, s)
}

func saveState(ctx context.Context, db execer, playerID string, s types.AppState) error {
	js, _ := json.Marshal(s)
	const q = `
insert into player_state (player_id, state_json) values ($1, $2)
on conflict (player_id) do update
set state_json = excluded.state_json, updated_at = current_timestamp`
	_, err := db.ExecContext(ctx, q, playerID, string(js))
	return err
}

// SaveRound пишет состояние и историю одной транзакцией: либо обе строки, либо ни одной.
func (r *PlayerRepo) SaveRound(ctx context.Context, playerID string, s types.AppState, h []types.HistoryRecord) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveState(ctx, tx, playerID, s); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := saveHistory(ctx, tx, playerID, h); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadHistory: не больше MaxHistory записей, битые данные - пустая история.
func (r *PlayerRepo) LoadHistory(ctx context.Context, playerID string) ([]types.HistoryRecord, error) {
	var js []byte
	err := r.DB.QueryRowContext(ctx, `select history_json from player_history where player_id = $1`, playerID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return []types.HistoryRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	var hist []types.HistoryRecord
	if err := json.Unmarshal(js, &hist); err != nil {
		return []types.HistoryRecord{}, nil
	}
	if len(hist) > types.MaxHistory {
		hist = hist[:types.MaxHistory]
	}
	return hist, nil
}

func (r *PlayerRepo) SaveHistory(ctx context.Context, playerID string, h []types.HistoryRecord) error {
	return saveHistory(ctx, r.DB, playerID, h)
}

func saveHistory(ctx context.Context, db execer, playerID string, h []types.HistoryRecord) error {
	if h == nil {
		h = []types.HistoryRecord{}
	}
	js, _ := json.Marshal(h)
	const q = `
insert into player_history (player_id, history_json) values ($1, $2)
on conflict (player_id) do update
set history_json = excluded.history_json, updated_at = current_timestamp`
	_, err := db.ExecContext(ctx, q, playerID, string(js))
	return err
}

// LoadCustomChallenge: текст отладочного задания или "".
func (r *PlayerRepo) LoadCustomChallenge(ctx context.Context, playerID string) (string, error) {
	var s string
	err := r.DB.QueryRowContext(ctx, `select custom_challenge from player_settings where player_id = $1`, playerID).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return s, err
}

func (r *PlayerRepo) SaveCustomChallenge(ctx context.Context, playerID, text string) error {
	const q = `
insert into player_settings (player_id, custom_challenge) values ($1, $2)
on conflict (player_id) do update
set custom_challenge = excluded.custom_challenge, updated_at = current_timestamp`
	_, err := r.DB.ExecContext(ctx, q, playerID, text)
	return err
}
