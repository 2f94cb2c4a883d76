// Package service holds the goal engine: lifecycle, progress updates,
// analytics and health checks.
package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	appErr "github.com/lnkday/goal-service/internal/errors"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

// storeErr turns a storage error into a service error for goal id.
// Errors already carrying a service sentinel pass through untouched.
func storeErr(logger *slog.Logger, op, id string, err error) error {
	switch {
	case appErr.IsNotFound(err):
		logger.Warn("goal not found", slog.String("op", op), slog.String("goal_id", id))
		return appErr.NewNotFound("goal %s not found", id)
	case appErr.IsConflict(err), appErr.IsInvalid(err):
		return err
	default:
		logger.Error("storage failure", slog.String("op", op), slog.String("goal_id", id), slog.Any("error", err))
		return appErr.NewInternal("%s: %v", op, err)
	}
}

func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateThresholds(ps []float64) error {
	for _, p := range ps {
		if !validNumber(p) || p <= 0 {
			return appErr.NewInvalid("threshold percentage must be positive, got %v", p)
		}
	}
	return nil
}

// detach keeps trace values but drops cancellation, so fan-out work started
// on behalf of a request finishes after the client leaves.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
