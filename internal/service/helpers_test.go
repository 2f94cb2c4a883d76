package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/storage"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clockAt(t time.Time) Clock {
	return func() time.Time { return t }
}

func fp(v float64) *float64 { return &v }

func tp(t time.Time) *time.Time { return &t }

func newGoal(id, campaignID string, typ model.GoalType, target float64) *model.Goal {
	return &model.Goal{
		ID:         id,
		CampaignID: campaignID,
		TeamID:     "team-1",
		Name:       id,
		Type:       typ,
		Target:     target,
		Status:     model.StatusActive,
		Enabled:    true,
		Thresholds: model.NewThresholds(nil),
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
}

func seed(t *testing.T, goals ...*model.Goal) storage.GoalStorage {
	t.Helper()
	store := storage.NewMemoryGoalStorage()
	for _, g := range goals {
		require.NoError(t, store.Create(context.Background(), g))
	}
	return store
}
