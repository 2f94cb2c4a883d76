package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type HealthService interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Pinger is anything readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthService struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

func NewHealthService(deps map[string]Pinger, logger *slog.Logger) HealthService {
	l := logger.With("layer", "service", "component", "healthService")
	return &healthService{deps: deps, logger: l}
}

func (s *healthService) Liveness(ctx context.Context) error {
	s.logger.Debug("Liveness check passed")
	return nil
}

func (s *healthService) Readiness(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var errs []error
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logger.Error("Readiness check failed", slog.String("dependency", name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Debug("Readiness check passed")
	return nil
}
