package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/model"
)

type memoryGoalStorage struct {
	mu    sync.RWMutex
	goals map[string]*model.Goal
	locks sync.Map // goal id -> *sync.Mutex
}

// NewMemoryGoalStorage returns a process-local GoalStorage.
func NewMemoryGoalStorage() GoalStorage {
	return &memoryGoalStorage{goals: make(map[string]*model.Goal)}
}

func (s *memoryGoalStorage) lockFor(id string) *sync.Mutex {
	lk, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return lk.(*sync.Mutex)
}

func (s *memoryGoalStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *memoryGoalStorage) Create(_ context.Context, g *model.Goal) error {
	if g == nil {
		return fmt.Errorf("goal cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return fmt.Errorf("goal %s: %w", g.ID, appErr.ErrConflict)
	}
	s.goals[g.ID] = g.Clone()
	return nil
}

func (s *memoryGoalStorage) Get(_ context.Context, id string) (*model.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", id, appErr.ErrNotFound)
	}
	return g.Clone(), nil
}

func (s *memoryGoalStorage) Update(_ context.Context, id string, fn UpdateFunc) (*model.Goal, error) {
	lk := s.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	s.mu.RLock()
	current, ok := s.goals[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", id, appErr.ErrNotFound)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current.Clone(), nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.goals[id] = next.Clone()
	s.mu.Unlock()
	return next, nil
}

func (s *memoryGoalStorage) Delete(_ context.Context, id string) error {
	lk := s.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return fmt.Errorf("goal %s: %w", id, appErr.ErrNotFound)
	}
	delete(s.goals, id)
	return nil
}

func (s *memoryGoalStorage) ListByCampaign(_ context.Context, campaignID string) ([]model.Goal, error) {
	return s.filter(func(g *model.Goal) bool { return g.CampaignID == campaignID }), nil
}

func (s *memoryGoalStorage) ListByTeam(_ context.Context, teamID string) ([]model.Goal, error) {
	return s.filter(func(g *model.Goal) bool { return g.TeamID == teamID }), nil
}

func (s *memoryGoalStorage) ListDeadlineBetween(_ context.Context, from, to time.Time) ([]model.Goal, error) {
	return s.filter(func(g *model.Goal) bool {
		return g.Status == model.StatusActive && g.Enabled && g.Deadline != nil &&
			!g.Deadline.Before(from) && !g.Deadline.After(to)
	}), nil
}

// filter returns copies ordered by creation time, then id.
func (s *memoryGoalStorage) filter(keep func(g *model.Goal) bool) []model.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Goal, 0)
	for _, g := range s.goals {
		if keep(g) {
			out = append(out, *g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type memoryNotificationStorage struct {
	mu     sync.RWMutex
	byGoal map[string][]model.Notification
}

// NewMemoryNotificationStorage returns a process-local NotificationStorage.
func NewMemoryNotificationStorage() NotificationStorage {
	return &memoryNotificationStorage{byGoal: make(map[string][]model.Notification)}
}

func (s *memoryNotificationStorage) Save(_ context.Context, n *model.Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	cp := *n
	cp.Channels = append([]model.ChannelResult(nil), n.Channels...)
	s.mu.Lock()
	s.byGoal[n.GoalID] = append(s.byGoal[n.GoalID], cp)
	s.mu.Unlock()
	return nil
}

// ListByGoal returns the newest notifications first; limit <= 0 returns all.
func (s *memoryNotificationStorage) ListByGoal(_ context.Context, goalID string, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.byGoal[goalID]
	out := make([]model.Notification, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		n := src[i]
		n.Channels = append([]model.ChannelResult(nil), src[i].Channels...)
		out = append(out, n)
	}
	return out, nil
}

func (s *memoryNotificationStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}
