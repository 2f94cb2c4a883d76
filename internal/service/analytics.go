package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/metrics"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/storage"
	"github.com/lnkday/goal-service/pkg/tracing"
)

const (
	day = 24 * time.Hour

	projectionWindow = 7 * day
	// Points needed in the projection window before variance is trusted.
	minConfidencePoints = 7
	baseConfidence      = 50
	minConfidence       = 10
	maxConfidence       = 95
	// ETAs further out than this are not reported.
	maxProjectionDays = 100 * 365

	teamListSize         = 5
	underperformingBelow = 80
)

type AnalyticsService interface {
	// CalculateProjection recomputes the forecast and caches it on the goal.
	CalculateProjection(ctx context.Context, goalID string) (*model.Projection, error)
	// GetProjection returns the cached forecast, computing it on first use.
	GetProjection(ctx context.Context, goalID string) (*model.Projection, error)
	GetGoalTrends(ctx context.Context, goalID string, period model.TrendPeriod) (*model.GoalTrends, error)
	GetTeamGoalStats(ctx context.Context, teamID string) (*model.TeamGoalStats, error)
	// CompareGoals declares the goal with more progress the winner; ties go to idA.
	CompareGoals(ctx context.Context, idA, idB string) (*model.GoalComparison, error)
}

type analyticsService struct {
	store  storage.GoalStorage
	logger *slog.Logger
	tracer *tracing.Tracer
	now    Clock
}

func NewAnalyticsService(store storage.GoalStorage, logger *slog.Logger) AnalyticsService {
	return newAnalyticsService(store, logger, defaultClock)
}

func newAnalyticsService(store storage.GoalStorage, logger *slog.Logger, now Clock) *analyticsService {
	return &analyticsService{
		store:  store,
		logger: logger.With("layer", "service", "component", "analyticsService"),
		tracer: tracing.NewTracer(tracing.GetTracer("goal-service")),
		now:    now,
	}
}

func (s *analyticsService) CalculateProjection(ctx context.Context, goalID string) (*model.Projection, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "AnalyticsService.CalculateProjection", attribute.String(tracing.AttrGoalID, goalID))
	defer span.End()

	g, err := s.store.Update(ctx, goalID, func(g *model.Goal) error {
		g.Projection = computeProjection(g, s.now())
		return nil
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "calculate projection", goalID, err)
	}

	metrics.ProjectionCalculations.Inc()
	s.logger.Debug("projection calculated",
		slog.String("goal_id", goalID),
		slog.Float64("daily_rate", g.Projection.DailyRate),
		slog.Float64("confidence", g.Projection.Confidence))
	return g.Projection, nil
}

func (s *analyticsService) GetProjection(ctx context.Context, goalID string) (*model.Projection, error) {
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		return nil, storeErr(s.logger, "get projection", goalID, err)
	}
	if g.Projection != nil {
		return g.Projection, nil
	}
	return s.CalculateProjection(ctx, goalID)
}

// computeProjection forecasts completion from the goal's history.
// Fewer than two history points yield a zeroed projection.
func computeProjection(g *model.Goal, now time.Time) *model.Projection {
	p := &model.Projection{LastCalculatedAt: now}
	if len(g.History) < 2 {
		return p
	}

	window := since(g.History, now.Add(-projectionWindow))
	if len(window) >= 2 {
		first, last := window[0], window[len(window)-1]
		days := math.Max(1, last.Timestamp.Sub(first.Timestamp).Hours()/24)
		p.DailyRate = (last.Value - first.Value) / days
	} else {
		days := math.Max(1, now.Sub(g.CreatedAt).Hours()/24)
		p.DailyRate = g.Current / days
	}

	p.WeeklyTrend = weeklyTrend(g, now)

	if remaining := g.Remaining(); p.DailyRate > 0 && remaining > 0 {
		if daysLeft := math.Ceil(remaining / p.DailyRate); daysLeft <= maxProjectionDays {
			eta := now.Add(time.Duration(daysLeft) * day)
			p.EstimatedCompletionDate = &eta
		}
	}

	p.Confidence = confidence(window)
	return p
}

// since returns the chronologically ordered entries at or after from.
func since(h []model.HistoryEntry, from time.Time) []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(h))
	for _, e := range h {
		if !e.Timestamp.Before(from) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// valueAt is the last recorded value at or before t, falling back to the
// goal's start value.
func valueAt(g *model.Goal, t time.Time) (float64, bool) {
	var (
		v     float64
		found bool
		at    time.Time
	)
	for _, e := range g.History {
		if e.Timestamp.After(t) {
			continue
		}
		if !found || !e.Timestamp.Before(at) {
			v, at, found = e.Value, e.Timestamp, true
		}
	}
	if !found && g.StartValue != nil {
		return *g.StartValue, false
	}
	return v, found
}

// weeklyTrend is the percentage change of this week's progress delta over
// the previous week's. It is 0 without prior-week data or when the prior
// delta is not positive.
func weeklyTrend(g *model.Goal, now time.Time) float64 {
	weekAgo := now.Add(-7 * day)
	twoWeeksAgo := now.Add(-14 * day)

	atWeekAgo, hasPrior := valueAt(g, weekAgo)
	if !hasPrior {
		return 0
	}
	atNow, _ := valueAt(g, now)
	atTwoWeeksAgo, _ := valueAt(g, twoWeeksAgo)

	current := atNow - atWeekAgo
	prior := atWeekAgo - atTwoWeeksAgo
	if prior <= 0 {
		return 0
	}
	return (current - prior) / prior * 100
}

// confidence scores how steady the recent progress deltas are.
func confidence(window []model.HistoryEntry) float64 {
	if len(window) < minConfidencePoints {
		return baseConfidence
	}
	deltas := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		deltas = append(deltas, window[i].Value-window[i-1].Value)
	}
	var sum float64
	for _, d := range deltas {
		sum += d
	}
	mean := sum / float64(len(deltas))
	if mean == 0 {
		return baseConfidence
	}
	var sq float64
	for _, d := range deltas {
		sq += (d - mean) * (d - mean)
	}
	cv := math.Sqrt(sq/float64(len(deltas))) / math.Abs(mean)
	return math.Max(minConfidence, math.Min(maxConfidence, 100-cv*50))
}

func (s *analyticsService) GetGoalTrends(ctx context.Context, goalID string, period model.TrendPeriod) (*model.GoalTrends, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "AnalyticsService.GetGoalTrends",
		attribute.String(tracing.AttrGoalID, goalID),
		attribute.String("trend.period", string(period)))
	defer span.End()

	if !period.Valid() {
		return nil, appErr.NewInvalid("unknown trend period %q", period)
	}
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "get trends", goalID, err)
	}

	return &model.GoalTrends{GoalID: g.ID, Period: period, Trends: bucketHistory(g, period)}, nil
}

// bucketKey names the calendar period t falls in. Weeks are ISO-8601.
func bucketKey(t time.Time, period model.TrendPeriod) string {
	t = t.UTC()
	switch period {
	case model.PeriodWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case model.PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// bucketHistory keeps the last value of each period and chains deltas from
// the start value (or 0).
func bucketHistory(g *model.Goal, period model.TrendPeriod) []model.TrendBucket {
	entries := since(g.History, time.Time{})
	out := make([]model.TrendBucket, 0)
	for _, e := range entries {
		key := bucketKey(e.Timestamp, period)
		if n := len(out); n > 0 && out[n-1].Period == key {
			out[n-1].Value = e.Value
			out[n-1].Timestamp = e.Timestamp
			continue
		}
		out = append(out, model.TrendBucket{Period: key, Value: e.Value, Timestamp: e.Timestamp})
	}

	prev := 0.0
	if g.StartValue != nil {
		prev = *g.StartValue
	}
	for i := range out {
		if g.Target > 0 {
			out[i].Progress = out[i].Value / g.Target * 100
		}
		out[i].Delta = out[i].Value - prev
		prev = out[i].Value
	}
	return out
}

func (s *analyticsService) GetTeamGoalStats(ctx context.Context, teamID string) (*model.TeamGoalStats, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "AnalyticsService.GetTeamGoalStats", attribute.String(tracing.AttrGoalTeamID, teamID))
	defer span.End()

	if teamID == "" {
		return nil, appErr.NewInvalid("team_id is required")
	}
	goals, err := s.store.ListByTeam(ctx, teamID)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.Error("failed to list team goals", slog.String("team_id", teamID), slog.Any("error", err))
		return nil, appErr.NewInternal("failed to list team goals: %v", err)
	}

	now := s.now()
	stats := &model.TeamGoalStats{
		TeamID:          teamID,
		Total:           len(goals),
		TopPerformers:   []model.GoalProgressSummary{},
		Underperforming: []model.GoalProgressSummary{},
	}
	var (
		sum    float64
		active []model.GoalProgressSummary
	)
	for i := range goals {
		g := &goals[i]
		row := progressSummary(g, now)
		sum += row.Progress
		switch g.Status {
		case model.StatusActive:
			stats.Active++
			active = append(active, row)
		case model.StatusReached:
			stats.Reached++
		case model.StatusFailed:
			stats.Failed++
		case model.StatusPaused:
			stats.Paused++
		}
	}
	if len(goals) > 0 {
		stats.AverageProgress = sum / float64(len(goals))
	}

	sort.SliceStable(active, func(i, j int) bool { return active[i].Progress > active[j].Progress })
	stats.TopPerformers = append(stats.TopPerformers, active[:min(teamListSize, len(active))]...)

	for i := len(active) - 1; i >= 0 && len(stats.Underperforming) < teamListSize; i-- {
		if active[i].Progress < underperformingBelow {
			stats.Underperforming = append(stats.Underperforming, active[i])
		}
	}
	return stats, nil
}

func (s *analyticsService) CompareGoals(ctx context.Context, idA, idB string) (*model.GoalComparison, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "AnalyticsService.CompareGoals",
		attribute.String("goal.a", idA), attribute.String("goal.b", idB))
	defer span.End()

	a, err := s.store.Get(ctx, idA)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "compare goals", idA, err)
	}
	b, err := s.store.Get(ctx, idB)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "compare goals", idB, err)
	}

	now := s.now()
	sa, sb := comparisonSide(a, now), comparisonSide(b, now)
	cmp := &model.GoalComparison{
		GoalA:                sa,
		GoalB:                sb,
		PercentageDifference: sa.Percentage - sb.Percentage,
		DailyRateDifference:  sa.DailyRate - sb.DailyRate,
		Winner:               a.ID,
	}
	if sb.Percentage > sa.Percentage {
		cmp.Winner = b.ID
	}
	return cmp, nil
}

// comparisonSide uses the unsmoothed rate current / days since creation.
func comparisonSide(g *model.Goal, now time.Time) model.GoalComparisonSide {
	days := math.Max(1, now.Sub(g.CreatedAt).Hours()/24)
	return model.GoalComparisonSide{
		ID:         g.ID,
		Name:       g.Name,
		Percentage: g.Percentage(),
		DailyRate:  g.Current / days,
	}
}
