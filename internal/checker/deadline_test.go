package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lnkday/goal-service/internal/lock"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/notifier"
	"github.com/lnkday/goal-service/internal/storage"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func goalDue(id string, in time.Duration, current float64) *model.Goal {
	return &model.Goal{
		ID:         id,
		CampaignID: "c1",
		Name:       id,
		Type:       model.GoalTypeConversions,
		Target:     100,
		Current:    current,
		Status:     model.StatusActive,
		Enabled:    true,
		Deadline:   tp(now.Add(in)),
		CreatedAt:  now.Add(-10 * 24 * time.Hour),
	}
}

func newMonitor(t *testing.T, store storage.GoalStorage, d notifier.Dispatcher, l lock.Locker, cooldown time.Duration) *DeadlineMonitor {
	t.Helper()
	m := NewDeadlineMonitor(store, d, l, DeadlineConfig{
		Interval:  time.Hour,
		Lookahead: 24 * time.Hour,
		Cooldown:  cooldown,
		LockTTL:   time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return now }
	return m
}

func seed(t *testing.T, goals ...*model.Goal) storage.GoalStorage {
	t.Helper()
	s := storage.NewMemoryGoalStorage()
	for _, g := range goals {
		require.NoError(t, s.Create(context.Background(), g))
	}
	return s
}

func TestDeadlineMonitor_RunOnce_warnsOnce(t *testing.T) {
	store := seed(t, goalDue("g1", 2*time.Hour, 40))
	d := notifier.NewMockDispatcher(t)
	d.On("Send", mock.Anything, mock.MatchedBy(func(g *model.Goal) bool { return g.ID == "g1" }), 40.0, model.NotificationDeadlineWarning).
		Return(&model.Notification{}).Once()

	n, err := newMonitor(t, store, d, lock.NewLocal(), 0).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)
	require.NotNil(t, g.DeadlineWarnedAt)
	assert.Equal(t, now, *g.DeadlineWarnedAt)
}

func TestDeadlineMonitor_RunOnce_selection(t *testing.T) {
	paused := goalDue("paused", 2*time.Hour, 10)
	paused.Status = model.StatusPaused
	paused.Enabled = false
	disabled := goalDue("disabled", 2*time.Hour, 10)
	disabled.Enabled = false

	store := seed(t,
		goalDue("due", 23*time.Hour, 10),
		goalDue("met", 2*time.Hour, 100),
		goalDue("far", 48*time.Hour, 10),
		goalDue("past", -time.Hour, 10),
		paused,
		disabled,
	)
	d := notifier.NewMockDispatcher(t)
	d.On("Send", mock.Anything, mock.MatchedBy(func(g *model.Goal) bool { return g.ID == "due" }), 10.0, model.NotificationDeadlineWarning).
		Return(&model.Notification{}).Once()

	n, err := newMonitor(t, store, d, lock.NewLocal(), 0).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeadlineMonitor_RunOnce_cooldown(t *testing.T) {
	tests := []struct {
		name     string
		cooldown time.Duration
		want     int
	}{
		{name: "cooldown suppresses repeat", cooldown: 24 * time.Hour, want: 0},
		{name: "zero cooldown repeats every run", cooldown: 0, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := goalDue("g1", 5*time.Hour, 20)
			g.DeadlineWarnedAt = tp(now.Add(-time.Hour))
			store := seed(t, g)

			d := notifier.NewMockDispatcher(t)
			if tt.want > 0 {
				d.On("Send", mock.Anything, mock.Anything, 20.0, model.NotificationDeadlineWarning).
					Return(&model.Notification{}).Times(tt.want)
			}

			n, err := newMonitor(t, store, d, lock.NewLocal(), tt.cooldown).RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestDeadlineMonitor_RunOnce_lockHeld(t *testing.T) {
	l := lock.NewLocal()
	lease, err := l.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	m := newMonitor(t, storage.NewMockGoalStorage(t), notifier.NewMockDispatcher(t), l, 0)
	n, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeadlineMonitor_RunOnce_storeError(t *testing.T) {
	store := storage.NewMockGoalStorage(t)
	store.On("ListDeadlineBetween", mock.Anything, now, now.Add(24*time.Hour)).
		Return(nil, errors.New("db down"))

	l := lock.NewLocal()
	m := newMonitor(t, store, notifier.NewMockDispatcher(t), l, 0)
	_, err := m.RunOnce(context.Background())
	require.Error(t, err)

	// lock released after a failed run
	lease, err := l.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

type fakeLease struct {
	extends atomic.Int32
	lost    atomic.Bool
}

func (l *fakeLease) Extend(context.Context, time.Duration) error {
	l.extends.Add(1)
	if l.lost.Load() {
		return lock.ErrNotAcquired
	}
	return nil
}

func (l *fakeLease) Release(context.Context) error { return nil }

type fakeLocker struct{ lease *fakeLease }

func (f fakeLocker) TryLock(context.Context, string, time.Duration) (lock.Lease, error) {
	return f.lease, nil
}

// slowDispatcher holds each Send for hold or until the context ends.
type slowDispatcher struct {
	hold      time.Duration
	cancelled atomic.Bool
}

func (d *slowDispatcher) Send(ctx context.Context, g *model.Goal, pct float64, typ model.NotificationType) *model.Notification {
	select {
	case <-time.After(d.hold):
	case <-ctx.Done():
		d.cancelled.Store(true)
	}
	return &model.Notification{GoalID: g.ID, Type: typ, Percentage: pct}
}

func TestDeadlineMonitor_RunOnce_lease(t *testing.T) {
	tests := []struct {
		name          string
		lost          bool
		hold          time.Duration
		wantErr       error
		wantCancelled bool
	}{
		{name: "extended during a long run", hold: 100 * time.Millisecond},
		{name: "lost lease aborts the run", lost: true, hold: 5 * time.Second, wantErr: ErrLeaseLost, wantCancelled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lease := &fakeLease{}
			lease.lost.Store(tt.lost)
			d := &slowDispatcher{hold: tt.hold}
			m := newMonitor(t, seed(t, goalDue("g1", 2*time.Hour, 40)), d, fakeLocker{lease: lease}, 0)
			m.cfg.LockTTL = 30 * time.Millisecond

			start := time.Now()
			_, err := m.RunOnce(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Positive(t, lease.extends.Load())
			assert.Equal(t, tt.wantCancelled, d.cancelled.Load())
		})
	}
}

func TestDeadlineMonitor_Start_stopsOnCancel(t *testing.T) {
	m := newMonitor(t, storage.NewMemoryGoalStorage(), notifier.NewMockDispatcher(t), lock.NewLocal(), 0)
	m.cfg.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
