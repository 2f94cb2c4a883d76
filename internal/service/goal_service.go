package service

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/storage"
	"github.com/lnkday/goal-service/pkg/tracing"
)

type GoalService interface {
	Create(ctx context.Context, in model.CreateGoalInput) (*model.Goal, error)
	Get(ctx context.Context, id string) (*model.Goal, error)
	Update(ctx context.Context, id string, in model.UpdateGoalInput) (*model.Goal, error)
	Delete(ctx context.Context, id string) error
	ListByCampaign(ctx context.Context, campaignID string) ([]model.Goal, error)

	Pause(ctx context.Context, id string) (*model.Goal, error)
	Resume(ctx context.Context, id string) (*model.Goal, error)
	// Fail is the external decision that a goal will not be met.
	Fail(ctx context.Context, id string) (*model.Goal, error)

	GetProgress(ctx context.Context, id string) (*model.ProgressDetail, error)
	CampaignSummary(ctx context.Context, campaignID string) (*model.CampaignGoalSummary, error)
	ListNotifications(ctx context.Context, goalID string, limit int) ([]model.Notification, error)
}

type goalService struct {
	store         storage.GoalStorage
	notifications storage.NotificationStorage
	logger        *slog.Logger
	tracer        *tracing.Tracer
	now           Clock
	newID         func() string
}

func NewGoalService(store storage.GoalStorage, notifications storage.NotificationStorage, logger *slog.Logger) GoalService {
	return newGoalService(store, notifications, logger, defaultClock)
}

func newGoalService(store storage.GoalStorage, notifications storage.NotificationStorage, logger *slog.Logger, now Clock) *goalService {
	return &goalService{
		store:         store,
		notifications: notifications,
		logger:        logger.With("layer", "service", "component", "goalService"),
		tracer:        tracing.NewTracer(tracing.GetTracer("goal-service")),
		now:           now,
		newID:         uuid.NewString,
	}
}

func (s *goalService) Create(ctx context.Context, in model.CreateGoalInput) (*model.Goal, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.Create")
	defer span.End()

	if err := validateCreate(in); err != nil {
		s.tracer.RecordError(span, err)
		return nil, err
	}

	now := s.now()
	g := &model.Goal{
		ID:            s.newID(),
		CampaignID:    in.CampaignID,
		TeamID:        in.TeamID,
		Name:          strings.TrimSpace(in.Name),
		Type:          in.Type,
		Target:        in.Target,
		Currency:      in.Currency,
		Current:       0,
		StartValue:    in.StartValue,
		BaselineValue: in.BaselineValue,
		Status:        model.StatusActive,
		Enabled:       true,
		Thresholds:    model.NewThresholds(in.Thresholds),
		Notifications: in.Notifications,
		Deadline:      in.Deadline,
		Metadata:      in.Metadata,
		History:       []model.HistoryEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(tracing.GoalAttributes(g.ID, g.CampaignID, g.TeamID)...)

	if err := s.store.Create(ctx, g); err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "create goal", g.ID, err)
	}

	s.logger.Info("goal created",
		slog.String("goal_id", g.ID),
		slog.String("campaign_id", g.CampaignID),
		slog.String("type", string(g.Type)),
		slog.Float64("target", g.Target))
	return g, nil
}

func validateCreate(in model.CreateGoalInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return appErr.NewInvalid("name is required")
	}
	if in.CampaignID == "" {
		return appErr.NewInvalid("campaign_id is required")
	}
	if !in.Type.Valid() {
		return appErr.NewInvalid("unknown goal type %q", in.Type)
	}
	if !validNumber(in.Target) || in.Target <= 0 {
		return appErr.NewInvalid("target must be positive")
	}
	return validateThresholds(in.Thresholds)
}

func (s *goalService) Get(ctx context.Context, id string) (*model.Goal, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.Get", attribute.String(tracing.AttrGoalID, id))
	defer span.End()

	g, err := s.store.Get(ctx, id)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "get goal", id, err)
	}
	return g, nil
}

func (s *goalService) Update(ctx context.Context, id string, in model.UpdateGoalInput) (*model.Goal, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.Update", attribute.String(tracing.AttrGoalID, id))
	defer span.End()

	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, appErr.NewInvalid("name cannot be empty")
	}
	if in.Target != nil && (!validNumber(*in.Target) || *in.Target <= 0) {
		return nil, appErr.NewInvalid("target must be positive")
	}
	if err := validateThresholds(in.Thresholds); err != nil {
		return nil, err
	}

	g, err := s.store.Update(ctx, id, func(g *model.Goal) error {
		if in.Name != nil {
			g.Name = strings.TrimSpace(*in.Name)
		}
		if in.Target != nil {
			g.Target = *in.Target
		}
		if in.Currency != nil {
			g.Currency = *in.Currency
		}
		if in.Thresholds != nil {
			g.Thresholds = mergeThresholds(g.Thresholds, in.Thresholds)
		}
		if in.Notifications != nil {
			g.Notifications = *in.Notifications
		}
		if in.ClearDeadline {
			g.Deadline = nil
			g.DeadlineWarnedAt = nil
		} else if in.Deadline != nil {
			g.Deadline = in.Deadline
			g.DeadlineWarnedAt = nil
		}
		if in.Metadata != nil {
			g.Metadata = *in.Metadata
		}
		if in.Enabled != nil {
			g.Enabled = *in.Enabled
		}
		g.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "update goal", id, err)
	}

	s.logger.Info("goal updated", slog.String("goal_id", id))
	return g, nil
}

// mergeThresholds replaces the milestone list while keeping the notified
// state of percentages that survive the edit.
func mergeThresholds(old []model.Threshold, percentages []float64) []model.Threshold {
	next := model.NewThresholds(percentages)
	for i := range next {
		for _, o := range old {
			if o.Percentage == next[i].Percentage && o.Notified {
				next[i].Notified = true
				next[i].NotifiedAt = o.NotifiedAt
				break
			}
		}
	}
	return next
}

func (s *goalService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.Delete", attribute.String(tracing.AttrGoalID, id))
	defer span.End()

	if err := s.store.Delete(ctx, id); err != nil {
		s.tracer.RecordError(span, err)
		return storeErr(s.logger, "delete goal", id, err)
	}
	s.logger.Info("goal deleted", slog.String("goal_id", id))
	return nil
}

func (s *goalService) ListByCampaign(ctx context.Context, campaignID string) ([]model.Goal, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.ListByCampaign", attribute.String(tracing.AttrGoalCampaignID, campaignID))
	defer span.End()

	goals, err := s.store.ListByCampaign(ctx, campaignID)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.Error("failed to list goals", slog.String("campaign_id", campaignID), slog.Any("error", err))
		return nil, appErr.NewInternal("failed to list goals: %v", err)
	}
	return goals, nil
}

func (s *goalService) Pause(ctx context.Context, id string) (*model.Goal, error) {
	return s.transition(ctx, "pause", id, []model.GoalStatus{model.StatusActive}, func(g *model.Goal) {
		g.Status = model.StatusPaused
		g.Enabled = false
	})
}

func (s *goalService) Resume(ctx context.Context, id string) (*model.Goal, error) {
	return s.transition(ctx, "resume", id, []model.GoalStatus{model.StatusPaused}, func(g *model.Goal) {
		g.Status = model.StatusActive
		g.Enabled = true
	})
}

func (s *goalService) Fail(ctx context.Context, id string) (*model.Goal, error) {
	return s.transition(ctx, "fail", id, []model.GoalStatus{model.StatusActive, model.StatusPaused}, func(g *model.Goal) {
		g.Status = model.StatusFailed
	})
}

// transition applies an explicit status change. REACHED and FAILED are terminal.
func (s *goalService) transition(ctx context.Context, op, id string, from []model.GoalStatus, apply func(g *model.Goal)) (*model.Goal, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService."+op, attribute.String(tracing.AttrGoalID, id))
	defer span.End()

	var prev model.GoalStatus
	g, err := s.store.Update(ctx, id, func(g *model.Goal) error {
		prev = g.Status
		if !slices.Contains(from, g.Status) {
			return appErr.NewConflict("cannot %s goal in status %s", op, g.Status)
		}
		apply(g)
		g.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, op+" goal", id, err)
	}

	span.SetAttributes(attribute.String(tracing.AttrGoalStatus, string(g.Status)))
	s.logger.Info("goal status changed",
		slog.String("goal_id", id),
		slog.String("from", string(prev)),
		slog.String("to", string(g.Status)))
	return g, nil
}

func (s *goalService) GetProgress(ctx context.Context, id string) (*model.ProgressDetail, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.GetProgress", attribute.String(tracing.AttrGoalID, id))
	defer span.End()

	g, err := s.store.Get(ctx, id)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "get progress", id, err)
	}

	p := g.Projection
	if p == nil {
		p = computeProjection(g, s.now())
	}

	detail := &model.ProgressDetail{
		GoalID:     g.ID,
		Name:       g.Name,
		Status:     g.Status,
		Current:    g.Current,
		Target:     g.Target,
		Percentage: g.ClampedPercentage(),
		Remaining:  g.Remaining(),
		DailyRate:  p.DailyRate,
		Deadline:   g.Deadline,
		Thresholds: g.Thresholds,

		LowerIsBetter: g.Type.LowerIsBetter(),
	}
	if detail.Remaining > 0 {
		detail.EstimatedCompletionDate = p.EstimatedCompletionDate
	}
	return detail, nil
}

func (s *goalService) CampaignSummary(ctx context.Context, campaignID string) (*model.CampaignGoalSummary, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.CampaignSummary", attribute.String(tracing.AttrGoalCampaignID, campaignID))
	defer span.End()

	goals, err := s.store.ListByCampaign(ctx, campaignID)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.Error("failed to list goals", slog.String("campaign_id", campaignID), slog.Any("error", err))
		return nil, appErr.NewInternal("failed to summarize campaign: %v", err)
	}

	now := s.now()
	sum := &model.CampaignGoalSummary{
		CampaignID: campaignID,
		Total:      len(goals),
		ByStatus:   map[model.GoalStatus]int{},
		Goals:      make([]model.GoalProgressSummary, 0, len(goals)),
	}
	var total float64
	for i := range goals {
		g := &goals[i]
		sum.ByStatus[g.Status]++
		row := progressSummary(g, now)
		total += row.Progress
		sum.Goals = append(sum.Goals, row)
	}
	if len(goals) > 0 {
		sum.AverageProgress = total / float64(len(goals))
	}
	return sum, nil
}

func (s *goalService) ListNotifications(ctx context.Context, goalID string, limit int) ([]model.Notification, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "GoalService.ListNotifications", attribute.String(tracing.AttrGoalID, goalID))
	defer span.End()

	if _, err := s.store.Get(ctx, goalID); err != nil {
		s.tracer.RecordError(span, err)
		return nil, storeErr(s.logger, "list notifications", goalID, err)
	}
	ns, err := s.notifications.ListByGoal(ctx, goalID, limit)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.Error("failed to list notifications", slog.String("goal_id", goalID), slog.Any("error", err))
		return nil, appErr.NewInternal("failed to list notifications: %v", err)
	}
	return ns, nil
}

// progressSummary is one rollup row. DaysOverdue is set for unfinished
// goals whose deadline has passed.
func progressSummary(g *model.Goal, now time.Time) model.GoalProgressSummary {
	row := model.GoalProgressSummary{
		ID:       g.ID,
		Name:     g.Name,
		Type:     g.Type,
		Status:   g.Status,
		Progress: g.ClampedPercentage(),

		LowerIsBetter: g.Type.LowerIsBetter(),
	}
	if g.Deadline != nil && now.After(*g.Deadline) && row.Progress < 100 {
		row.DaysOverdue = int(math.Ceil(now.Sub(*g.Deadline).Hours() / 24))
	}
	return row
}
