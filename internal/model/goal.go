package model

import (
	"math"
	"time"
)

// GoalType is the metric kind a goal tracks.
type GoalType string

const (
	GoalTypeClicks          GoalType = "CLICKS"
	GoalTypeConversions     GoalType = "CONVERSIONS"
	GoalTypeRevenue         GoalType = "REVENUE"
	GoalTypeUniqueVisitors  GoalType = "UNIQUE_VISITORS"
	GoalTypeCTR             GoalType = "CTR"
	GoalTypeEngagementRate  GoalType = "ENGAGEMENT_RATE"
	GoalTypeBounceRate      GoalType = "BOUNCE_RATE"
	GoalTypeSessionDuration GoalType = "SESSION_DURATION"
	GoalTypePageViews       GoalType = "PAGE_VIEWS"
	GoalTypeFormSubmissions GoalType = "FORM_SUBMISSIONS"
	GoalTypeSignups         GoalType = "SIGNUPS"
	GoalTypePurchases       GoalType = "PURCHASES"
	GoalTypeAvgOrderValue   GoalType = "AVG_ORDER_VALUE"
	GoalTypeReturnVisitors  GoalType = "RETURN_VISITORS"
	GoalTypeSocialShares    GoalType = "SOCIAL_SHARES"
	GoalTypeCustom          GoalType = "CUSTOM"
)

var validGoalTypes = map[GoalType]struct{}{
	GoalTypeClicks: {}, GoalTypeConversions: {}, GoalTypeRevenue: {}, GoalTypeUniqueVisitors: {},
	GoalTypeCTR: {}, GoalTypeEngagementRate: {}, GoalTypeBounceRate: {}, GoalTypeSessionDuration: {},
	GoalTypePageViews: {}, GoalTypeFormSubmissions: {}, GoalTypeSignups: {}, GoalTypePurchases: {},
	GoalTypeAvgOrderValue: {}, GoalTypeReturnVisitors: {}, GoalTypeSocialShares: {}, GoalTypeCustom: {},
}

// Valid reports whether t is a known goal type.
func (t GoalType) Valid() bool {
	_, ok := validGoalTypes[t]
	return ok
}

// LowerIsBetter is true for metrics where a smaller value is the objective.
func (t GoalType) LowerIsBetter() bool {
	return t == GoalTypeBounceRate
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	StatusActive  GoalStatus = "ACTIVE"
	StatusReached GoalStatus = "REACHED"
	StatusFailed  GoalStatus = "FAILED"
	StatusPaused  GoalStatus = "PAUSED"
)

const (
	// MaxHistoryEntries bounds Goal.History; the oldest entries are dropped first.
	MaxHistoryEntries = 365
)

// DefaultThresholdPercentages seeds Goal.Thresholds when none are supplied.
var DefaultThresholdPercentages = []float64{50, 75, 90, 100}

// Threshold is a percentage milestone that notifies at most once.
type Threshold struct {
	Percentage float64    `json:"percentage"`
	Notified   bool       `json:"notified"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

// NotificationConfig lists the channels a goal alerts on.
type NotificationConfig struct {
	WebhookURL      string   `json:"webhook_url,omitempty"`
	SlackWebhookURL string   `json:"slack_webhook_url,omitempty"`
	TeamsWebhookURL string   `json:"teams_webhook_url,omitempty"`
	EmailRecipients []string `json:"email_recipients,omitempty"`
	SMSRecipients   []string `json:"sms_recipients,omitempty"`
}

// GoalMetadata carries hints that the engine stores but does not interpret.
type GoalMetadata struct {
	Formula          string `json:"formula,omitempty"`
	Description      string `json:"description,omitempty"`
	Inverse          bool   `json:"inverse,omitempty"`
	AttributionModel string `json:"attribution_model,omitempty"`
}

// HistoryEntry records the goal value after one applied update.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Source    string    `json:"source"`
}

// Projection is the cached completion forecast.
type Projection struct {
	EstimatedCompletionDate *time.Time `json:"estimated_completion_date,omitempty"`
	DailyRate               float64    `json:"daily_rate"`
	WeeklyTrend             float64    `json:"weekly_trend"`
	Confidence              float64    `json:"confidence"`
	LastCalculatedAt        time.Time  `json:"last_calculated_at"`
}

// Goal is a tracked numeric objective of a campaign.
type Goal struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	TeamID     string `json:"team_id"`

	Name     string   `json:"name"`
	Type     GoalType `json:"type"`
	Target   float64  `json:"target"`
	Currency string   `json:"currency,omitempty"`

	Current       float64  `json:"current"`
	StartValue    *float64 `json:"start_value,omitempty"`
	BaselineValue *float64 `json:"baseline_value,omitempty"`

	Status  GoalStatus `json:"status"`
	Enabled bool       `json:"enabled"`

	Thresholds    []Threshold        `json:"thresholds"`
	Notifications NotificationConfig `json:"notifications"`
	Deadline      *time.Time         `json:"deadline,omitempty"`
	Metadata      GoalMetadata       `json:"metadata"`
	History       []HistoryEntry     `json:"history"`
	Projection    *Projection        `json:"projection,omitempty"`

	ReachedAt        *time.Time `json:"reached_at,omitempty"`
	DeadlineWarnedAt *time.Time `json:"deadline_warned_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Percentage is current/target*100, unclamped. A non-positive target yields 0.
func (g *Goal) Percentage() float64 {
	if g.Target <= 0 {
		return 0
	}
	return g.Current / g.Target * 100
}

// ClampedPercentage is Percentage bounded to [0,100].
func (g *Goal) ClampedPercentage() float64 {
	return math.Max(0, math.Min(100, g.Percentage()))
}

// Remaining is max(0, target-current).
func (g *Goal) Remaining() float64 {
	return math.Max(0, g.Target-g.Current)
}

// AppendHistory records value and drops the oldest entries beyond MaxHistoryEntries.
func (g *Goal) AppendHistory(at time.Time, value float64, source string) {
	g.History = append(g.History, HistoryEntry{Timestamp: at, Value: value, Source: source})
	if over := len(g.History) - MaxHistoryEntries; over > 0 {
		g.History = append(g.History[:0:0], g.History[over:]...)
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	c := *g
	c.StartValue = cloneFloat(g.StartValue)
	c.BaselineValue = cloneFloat(g.BaselineValue)
	c.Deadline = cloneTime(g.Deadline)
	c.ReachedAt = cloneTime(g.ReachedAt)
	c.DeadlineWarnedAt = cloneTime(g.DeadlineWarnedAt)
	if g.Thresholds != nil {
		c.Thresholds = make([]Threshold, len(g.Thresholds))
		for i, t := range g.Thresholds {
			t.NotifiedAt = cloneTime(t.NotifiedAt)
			c.Thresholds[i] = t
		}
	}
	if g.History != nil {
		c.History = append([]HistoryEntry(nil), g.History...)
	}
	if g.Projection != nil {
		p := *g.Projection
		p.EstimatedCompletionDate = cloneTime(g.Projection.EstimatedCompletionDate)
		c.Projection = &p
	}
	c.Notifications.EmailRecipients = append([]string(nil), g.Notifications.EmailRecipients...)
	c.Notifications.SMSRecipients = append([]string(nil), g.Notifications.SMSRecipients...)
	return &c
}

// NewThresholds builds un-notified thresholds from percentages.
func NewThresholds(percentages []float64) []Threshold {
	if len(percentages) == 0 {
		percentages = DefaultThresholdPercentages
	}
	out := make([]Threshold, len(percentages))
	for i, p := range percentages {
		out[i] = Threshold{Percentage: p}
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
