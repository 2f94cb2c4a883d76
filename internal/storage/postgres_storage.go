package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/model"
)

const goalColumns = `
	id, campaign_id, team_id, name, type, target, currency,
	current_value, start_value, baseline_value, status, enabled,
	thresholds, notifications, deadline, metadata, history, projection,
	reached_at, deadline_warned_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// pgxPool is the part of *pgxpool.Pool the goal store needs.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type PostgresStorage struct {
	db pgxPool
}

// NewPostgresStorage returns a GoalStorage that serializes updates with row locks.
func NewPostgresStorage(pool *pgxpool.Pool) GoalStorage {
	return &PostgresStorage{pool}
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.db.Ping(ctx)
}

func (ps *PostgresStorage) Create(ctx context.Context, g *model.Goal) error {
	if g == nil {
		return fmt.Errorf("goal cannot be nil")
	}
	args, err := goalArgs(g)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	if _, err := ps.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("goal %s: %w", g.ID, appErr.ErrConflict)
		}
		return fmt.Errorf("failed to save goal: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Get(ctx context.Context, id string) (*model.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals WHERE id = $1`

	g, err := scanGoal(ps.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal %s: %w", id, appErr.ErrNotFound)
		}
		return nil, fmt.Errorf("find by id failed: %w", err)
	}
	return g, nil
}

// Update loads the row with SELECT ... FOR UPDATE so concurrent writers of
// the same goal queue behind the transaction.
func (ps *PostgresStorage) Update(ctx context.Context, id string, fn UpdateFunc) (*model.Goal, error) {
	tx, err := ps.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const selectQuery = `SELECT ` + goalColumns + ` FROM goals WHERE id = $1 FOR UPDATE`
	g, err := scanGoal(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal %s: %w", id, appErr.ErrNotFound)
		}
		return nil, fmt.Errorf("lock goal failed: %w", err)
	}

	original := g.Clone()
	if err := fn(g); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return original, nil
		}
		return nil, err
	}

	args, err := goalArgs(g)
	if err != nil {
		return nil, err
	}
	const updateQuery = `
		UPDATE goals SET
			campaign_id = $2, team_id = $3, name = $4, type = $5, target = $6, currency = $7,
			current_value = $8, start_value = $9, baseline_value = $10, status = $11, enabled = $12,
			thresholds = $13, notifications = $14, deadline = $15, metadata = $16, history = $17,
			projection = $18, reached_at = $19, deadline_warned_at = $20, created_at = $21, updated_at = $22
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, updateQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit goal update: %w", err)
	}
	return g, nil
}

func (ps *PostgresStorage) Delete(ctx context.Context, id string) error {
	cmdTag, err := ps.db.Exec(ctx, `DELETE FROM goals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("goal %s: %w", id, appErr.ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) ListByCampaign(ctx context.Context, campaignID string) ([]model.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals WHERE campaign_id = $1 ORDER BY created_at, id`
	return ps.list(ctx, query, campaignID)
}

func (ps *PostgresStorage) ListByTeam(ctx context.Context, teamID string) ([]model.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals WHERE team_id = $1 ORDER BY created_at, id`
	return ps.list(ctx, query, teamID)
}

func (ps *PostgresStorage) ListDeadlineBetween(ctx context.Context, from, to time.Time) ([]model.Goal, error) {
	const query = `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE status = 'ACTIVE' AND enabled AND deadline BETWEEN $1 AND $2
		ORDER BY deadline, id
	`
	return ps.list(ctx, query, from, to)
}

func (ps *PostgresStorage) list(ctx context.Context, query string, args ...any) ([]model.Goal, error) {
	rows, err := ps.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	goals := make([]model.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		goals = append(goals, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return goals, nil
}

func scanGoal(row rowScanner) (*model.Goal, error) {
	var g model.Goal
	var goalType, status string
	var thresholds, notifications, meta, history, projection []byte
	err := row.Scan(
		&g.ID, &g.CampaignID, &g.TeamID, &g.Name, &goalType, &g.Target, &g.Currency,
		&g.Current, &g.StartValue, &g.BaselineValue, &status, &g.Enabled,
		&thresholds, &notifications, &g.Deadline, &meta, &history, &projection,
		&g.ReachedAt, &g.DeadlineWarnedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Type = model.GoalType(goalType)
	g.Status = model.GoalStatus(status)

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{thresholds, &g.Thresholds},
		{notifications, &g.Notifications},
		{meta, &g.Metadata},
		{history, &g.History},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode goal %s: %w", g.ID, err)
		}
	}
	if len(projection) > 0 {
		var p model.Projection
		if err := json.Unmarshal(projection, &p); err != nil {
			return nil, fmt.Errorf("decode goal %s projection: %w", g.ID, err)
		}
		g.Projection = &p
	}
	return &g, nil
}

// goalArgs returns the positional arguments matching goalColumns.
func goalArgs(g *model.Goal) ([]any, error) {
	enc := func(v any) ([]byte, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode goal %s: %w", g.ID, err)
		}
		return b, nil
	}

	thresholds := g.Thresholds
	if thresholds == nil {
		thresholds = []model.Threshold{}
	}
	history := g.History
	if history == nil {
		history = []model.HistoryEntry{}
	}

	var encoded [4][]byte
	for i, v := range []any{thresholds, g.Notifications, g.Metadata, history} {
		b, err := enc(v)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}
	var projection []byte
	if g.Projection != nil {
		b, err := enc(g.Projection)
		if err != nil {
			return nil, err
		}
		projection = b
	}

	return []any{
		g.ID, g.CampaignID, g.TeamID, g.Name, string(g.Type), g.Target, g.Currency,
		g.Current, g.StartValue, g.BaselineValue, string(g.Status), g.Enabled,
		encoded[0], encoded[1], g.Deadline, encoded[2], encoded[3], projection,
		g.ReachedAt, g.DeadlineWarnedAt, g.CreatedAt, g.UpdatedAt,
	}, nil
}
