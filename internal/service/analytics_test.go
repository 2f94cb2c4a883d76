package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/model"
)

// history builds entries spaced step apart, ending at end.
func history(end time.Time, step time.Duration, values ...float64) []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(values))
	start := end.Add(-time.Duration(len(values)-1) * step)
	for i, v := range values {
		out[i] = model.HistoryEntry{Timestamp: start.Add(time.Duration(i) * step), Value: v, Source: model.SourceManual}
	}
	return out
}

func Test_computeProjection(t *testing.T) {
	now := t0.Add(30 * day)

	tests := []struct {
		name      string
		goal      func() *model.Goal
		wantRate  float64
		wantConf  float64
		wantTrend float64
		wantETA   *time.Time
	}{
		{
			name: "insufficient history is zeroed",
			goal: func() *model.Goal {
				g := newGoal("g", "c", model.GoalTypeClicks, 100)
				g.Current = 40
				g.History = history(now, day, 40)
				return g
			},
		},
		{
			name: "steady daily progress",
			goal: func() *model.Goal {
				g := newGoal("g", "c", model.GoalTypeClicks, 200)
				g.Current = 80
				g.History = history(now, day, 10, 20, 30, 40, 50, 60, 70, 80)
				return g
			},
			wantRate:  10,
			wantConf:  95,
			wantTrend: 600,
			wantETA:   tp(now.Add(12 * day)),
		},
		{
			name: "uneven deltas lower confidence",
			goal: func() *model.Goal {
				g := newGoal("g", "c", model.GoalTypeClicks, 1000)
				g.Current = 80
				g.History = history(now, 12*time.Hour, 0, 5, 20, 25, 40, 45, 60, 65, 80)
				return g
			},
			wantRate: 20,
			wantConf: 75,
			wantETA:  tp(now.Add(46 * day)),
		},
		{
			name: "erratic deltas floor confidence",
			goal: func() *model.Goal {
				g := newGoal("g", "c", model.GoalTypeClicks, 1000)
				g.Current = 80
				g.History = history(now, 12*time.Hour, 0, 0, 0, 0, 0, 0, 0, 0, 80)
				return g
			},
			wantRate: 20,
			wantConf: 10,
			wantETA:  tp(now.Add(46 * day)),
		},
		{
			name: "stale history falls back to lifetime rate",
			goal: func() *model.Goal {
				g := newGoal("g", "c", model.GoalTypeClicks, 1000)
				g.Current = 300
				g.History = history(now.Add(-20*day), day, 100, 300)
				return g
			},
			wantRate: 10,
			wantConf: 50,
			wantETA:  tp(now.Add(70 * day)),
		},
		{
			name: "completed goal has no eta",
			goal: func() *model.Goal {
				g := newGoal("g", "c", model.GoalTypeClicks, 50)
				g.Current = 60
				g.History = history(now, day, 30, 60)
				return g
			},
			wantRate: 30,
			wantConf: 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := computeProjection(tt.goal(), now)

			assert.InDelta(t, tt.wantRate, p.DailyRate, 1e-9)
			assert.InDelta(t, tt.wantConf, p.Confidence, 1e-9)
			assert.InDelta(t, tt.wantTrend, p.WeeklyTrend, 1e-9)
			assert.Equal(t, now, p.LastCalculatedAt)
			if tt.wantETA == nil {
				assert.Nil(t, p.EstimatedCompletionDate)
			} else {
				require.NotNil(t, p.EstimatedCompletionDate)
				assert.Equal(t, *tt.wantETA, *p.EstimatedCompletionDate)
			}
		})
	}
}

func Test_weeklyTrend(t *testing.T) {
	now := t0.Add(30 * day)
	g := newGoal("g", "c", model.GoalTypeClicks, 1000)
	g.StartValue = fp(0)
	g.History = []model.HistoryEntry{
		{Timestamp: now.Add(-13 * day), Value: 100},
		{Timestamp: now.Add(-8 * day), Value: 200},
		{Timestamp: now.Add(-1 * day), Value: 500},
	}
	// prior week: 200-0, this week: 500-200
	assert.InDelta(t, 50, weeklyTrend(g, now), 1e-9)

	g.History = []model.HistoryEntry{{Timestamp: now.Add(-2 * day), Value: 10}}
	assert.Zero(t, weeklyTrend(g, now), "no prior-week data")

	g.History = []model.HistoryEntry{
		{Timestamp: now.Add(-20 * day), Value: 100},
		{Timestamp: now.Add(-1 * day), Value: 150},
	}
	assert.Zero(t, weeklyTrend(g, now), "flat prior week")
}

func Test_analyticsService_CalculateProjection_caches(t *testing.T) {
	ctx := context.Background()
	now := t0.Add(10 * day)
	g := newGoal("g1", "c1", model.GoalTypeClicks, 100)
	store := seed(t, g)
	svc := newAnalyticsService(store, discardLogger(), clockAt(now))

	p, err := svc.CalculateProjection(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, p.Confidence)

	stored, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, stored.Projection)
	assert.Equal(t, now, stored.Projection.LastCalculatedAt)

	cached, err := newAnalyticsService(store, discardLogger(), clockAt(now.Add(day))).GetProjection(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, now, cached.LastCalculatedAt, "cached projection is returned as is")

	_, err = svc.CalculateProjection(ctx, "missing")
	assert.True(t, appErr.IsNotFound(err))
}

func Test_bucketKey(t *testing.T) {
	tests := []struct {
		at     time.Time
		period model.TrendPeriod
		want   string
	}{
		{time.Date(2026, 2, 16, 1, 0, 0, 0, time.UTC), model.PeriodWeek, "2026-W08"},
		{time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC), model.PeriodWeek, "2026-W07"},
		{time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), model.PeriodWeek, "2026-W53"},
		{time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), model.PeriodWeek, "2026-W01"},
		{time.Date(2026, 2, 16, 1, 0, 0, 0, time.UTC), model.PeriodMonth, "2026-02"},
		{time.Date(2026, 2, 16, 1, 0, 0, 0, time.UTC), model.PeriodDay, "2026-02-16"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketKey(tt.at, tt.period))
		})
	}
}

func Test_analyticsService_GetGoalTrends(t *testing.T) {
	g := newGoal("g1", "c1", model.GoalTypeClicks, 100)
	g.StartValue = fp(5)
	d1 := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	g.History = []model.HistoryEntry{
		{Timestamp: d1, Value: 10},
		{Timestamp: d1.Add(6 * time.Hour), Value: 15},
		{Timestamp: d1.Add(day), Value: 25},
		{Timestamp: d1.Add(8 * day), Value: 40},
	}
	svc := newAnalyticsService(seed(t, g), discardLogger(), clockAt(t0))

	days, err := svc.GetGoalTrends(context.Background(), "g1", model.PeriodDay)
	require.NoError(t, err)
	require.Len(t, days.Trends, 3)
	assert.Equal(t, model.TrendBucket{Period: "2026-02-02", Value: 15, Progress: 15, Delta: 10, Timestamp: d1.Add(6 * time.Hour)}, days.Trends[0])
	assert.Equal(t, 10.0, days.Trends[1].Delta)
	assert.Equal(t, 15.0, days.Trends[2].Delta)

	weeks, err := svc.GetGoalTrends(context.Background(), "g1", model.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, weeks.Trends, 2)
	assert.Equal(t, "2026-W06", weeks.Trends[0].Period)
	assert.Equal(t, 25.0, weeks.Trends[0].Value)
	assert.Equal(t, 20.0, weeks.Trends[0].Delta)
	assert.Equal(t, "2026-W07", weeks.Trends[1].Period)
	assert.Equal(t, 15.0, weeks.Trends[1].Delta)

	_, err = svc.GetGoalTrends(context.Background(), "g1", "year")
	assert.True(t, appErr.IsInvalid(err))
	_, err = svc.GetGoalTrends(context.Background(), "nope", model.PeriodDay)
	assert.True(t, appErr.IsNotFound(err))
}

func Test_analyticsService_GetTeamGoalStats(t *testing.T) {
	now := t0.Add(20 * day)
	mk := func(id string, status model.GoalStatus, current float64) *model.Goal {
		g := newGoal(id, "c1", model.GoalTypeClicks, 100)
		g.Status = status
		g.Current = current
		return g
	}
	overdue := mk("overdue", model.StatusActive, 20)
	overdue.Deadline = tp(now.Add(-3 * day))
	other := mk("other-team", model.StatusActive, 99)
	other.TeamID = "team-2"

	store := seed(t,
		mk("a90", model.StatusActive, 90),
		mk("a70", model.StatusActive, 70),
		mk("a50", model.StatusActive, 50),
		mk("a10", model.StatusActive, 10),
		mk("a85", model.StatusActive, 85),
		mk("a60", model.StatusActive, 60),
		overdue,
		mk("reached", model.StatusReached, 150),
		mk("failed", model.StatusFailed, 30),
		mk("paused", model.StatusPaused, 40),
		other,
	)
	svc := newAnalyticsService(store, discardLogger(), clockAt(now))

	stats, err := svc.GetTeamGoalStats(context.Background(), "team-1")
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 7, stats.Active)
	assert.Equal(t, 1, stats.Reached)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Paused)
	assert.InDelta(t, (90.0+70+50+10+85+60+20+100+30+40)/10, stats.AverageProgress, 1e-9)

	ids := func(rows []model.GoalProgressSummary) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.ID
		}
		return out
	}
	assert.Equal(t, []string{"a90", "a85", "a70", "a60", "a50"}, ids(stats.TopPerformers))
	assert.Equal(t, []string{"a10", "overdue", "a50", "a60", "a70"}, ids(stats.Underperforming))
	assert.Equal(t, 3, stats.Underperforming[1].DaysOverdue)

	_, err = svc.GetTeamGoalStats(context.Background(), "")
	assert.True(t, appErr.IsInvalid(err))
}

func Test_analyticsService_CompareGoals(t *testing.T) {
	now := t0.Add(10 * day)
	a := newGoal("a", "c1", model.GoalTypeClicks, 100)
	a.Current = 50
	b := newGoal("b", "c1", model.GoalTypeClicks, 200)
	b.Current = 100
	b.CreatedAt = t0.Add(5 * day)
	c := newGoal("c", "c1", model.GoalTypeClicks, 100)
	c.Current = 80
	svc := newAnalyticsService(seed(t, a, b, c), discardLogger(), clockAt(now))

	tests := []struct {
		name       string
		idA, idB   string
		wantWinner string
		wantPct    float64
		wantRate   float64
		wantErr    bool
	}{
		{name: "tie favours first", idA: "a", idB: "b", wantWinner: "a", wantPct: 0, wantRate: 5 - 20},
		{name: "second ahead", idA: "a", idB: "c", wantWinner: "c", wantPct: -30, wantRate: 5 - 8},
		{name: "first ahead", idA: "c", idB: "b", wantWinner: "c", wantPct: 30, wantRate: 8 - 20},
		{name: "unknown goal", idA: "a", idB: "zzz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp, err := svc.CompareGoals(context.Background(), tt.idA, tt.idB)
			if tt.wantErr {
				assert.True(t, appErr.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWinner, cmp.Winner)
			assert.InDelta(t, tt.wantPct, cmp.PercentageDifference, 1e-9)
			assert.InDelta(t, tt.wantRate, cmp.DailyRateDifference, 1e-9)
		})
	}
}
