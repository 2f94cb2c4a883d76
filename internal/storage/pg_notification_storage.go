package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lnkday/goal-service/internal/model"
)

type notificationRow struct {
	ID         string    `db:"id"`
	GoalID     string    `db:"goal_id"`
	CampaignID string    `db:"campaign_id"`
	Type       string    `db:"type"`
	Percentage float64   `db:"percentage"`
	Channels   []byte    `db:"channels"`
	Success    bool      `db:"success"`
	SentAt     time.Time `db:"sent_at"`
}

type postgresNotificationStorage struct {
	db *sqlx.DB
}

// NewPostgresNotificationStorage returns the audit log backed by the notifications table.
func NewPostgresNotificationStorage(db *sqlx.DB) NotificationStorage {
	return &postgresNotificationStorage{db: db}
}

// Save inserts the audit record; rows are never updated afterwards.
func (s *postgresNotificationStorage) Save(ctx context.Context, n *model.Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	channels := n.Channels
	if channels == nil {
		channels = []model.ChannelResult{}
	}
	raw, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("failed to encode channel results: %w", err)
	}

	query := `INSERT INTO notifications
		(id, goal_id, campaign_id, type, percentage, channels, success, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.db.ExecContext(ctx, query,
		n.ID, n.GoalID, n.CampaignID, string(n.Type), n.Percentage, string(raw), n.Success, n.SentAt)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListByGoal returns the newest notifications first; limit <= 0 returns all.
func (s *postgresNotificationStorage) ListByGoal(ctx context.Context, goalID string, limit int) ([]model.Notification, error) {
	query := `SELECT id, goal_id, campaign_id, type, percentage, channels, success, sent_at
		FROM notifications WHERE goal_id = $1 ORDER BY sent_at DESC`
	args := []any{goalID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n := model.Notification{
			ID:         r.ID,
			GoalID:     r.GoalID,
			CampaignID: r.CampaignID,
			Type:       model.NotificationType(r.Type),
			Percentage: r.Percentage,
			Success:    r.Success,
			SentAt:     r.SentAt,
		}
		if len(r.Channels) > 0 {
			if err := json.Unmarshal(r.Channels, &n.Channels); err != nil {
				return nil, fmt.Errorf("failed to decode channel results for %s: %w", r.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *postgresNotificationStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
