package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lnkday/goal-service/internal/model"
)

// ErrSkipUpdate may be returned by an UpdateFunc to leave the stored goal untouched.
var ErrSkipUpdate = errors.New("skip update")

// UpdateFunc mutates a private copy of a goal inside the store's per-goal critical section.
type UpdateFunc func(g *model.Goal) error

// GoalStorage persists Goal aggregates.
// Update must serialize writers of the same goal id.
type GoalStorage interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, g *model.Goal) error
	Get(ctx context.Context, id string) (*model.Goal, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.Goal, error)
	Delete(ctx context.Context, id string) error
	ListByCampaign(ctx context.Context, campaignID string) ([]model.Goal, error)
	ListByTeam(ctx context.Context, teamID string) ([]model.Goal, error)
	// ListDeadlineBetween returns ACTIVE, enabled goals whose deadline is within [from, to].
	ListDeadlineBetween(ctx context.Context, from, to time.Time) ([]model.Goal, error)
}

// NotificationStorage is the append-only audit log of dispatched alerts.
type NotificationStorage interface {
	Save(ctx context.Context, n *model.Notification) error
	ListByGoal(ctx context.Context, goalID string, limit int) ([]model.Notification, error)
	Ping(ctx context.Context) error
}
