package model

import "time"

// Sources recorded on history entries.
const (
	SourceManual   = "manual"
	SourceBulk     = "bulk"
	SourceOverride = "set"
)

// ProgressUpdate carries exactly one of Increment or SetValue.
type ProgressUpdate struct {
	Increment *float64 `json:"increment,omitempty"`
	SetValue  *float64 `json:"set_value,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// CampaignMetrics are the aggregate deltas produced by the event pipeline.
type CampaignMetrics struct {
	CampaignID     string   `json:"campaign_id,omitempty"`
	Clicks         *float64 `json:"clicks,omitempty"`
	Conversions    *float64 `json:"conversions,omitempty"`
	Revenue        *float64 `json:"revenue,omitempty"`
	UniqueVisitors *float64 `json:"unique_visitors,omitempty"`
}

// DeltaFor returns the delta routed to goals of type t and whether t is routable.
func (m CampaignMetrics) DeltaFor(t GoalType) (float64, bool) {
	var v *float64
	switch t {
	case GoalTypeClicks:
		v = m.Clicks
	case GoalTypeConversions:
		v = m.Conversions
	case GoalTypeRevenue:
		v = m.Revenue
	case GoalTypeUniqueVisitors:
		v = m.UniqueVisitors
	default:
		return 0, false
	}
	if v == nil {
		return 0, true
	}
	return *v, true
}

// CreateGoalInput is the payload for creating a goal.
type CreateGoalInput struct {
	CampaignID    string             `json:"campaign_id"`
	TeamID        string             `json:"team_id"`
	Name          string             `json:"name"`
	Type          GoalType           `json:"type"`
	Target        float64            `json:"target"`
	Currency      string             `json:"currency,omitempty"`
	StartValue    *float64           `json:"start_value,omitempty"`
	BaselineValue *float64           `json:"baseline_value,omitempty"`
	Thresholds    []float64          `json:"thresholds,omitempty"`
	Notifications NotificationConfig `json:"notifications"`
	Deadline      *time.Time         `json:"deadline,omitempty"`
	Metadata      GoalMetadata       `json:"metadata"`
}

// UpdateGoalInput is a sparse edit of goal definition fields.
type UpdateGoalInput struct {
	Name          *string             `json:"name,omitempty"`
	Target        *float64            `json:"target,omitempty"`
	Currency      *string             `json:"currency,omitempty"`
	Thresholds    []float64           `json:"thresholds,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty"`
	Deadline      *time.Time          `json:"deadline,omitempty"`
	ClearDeadline bool                `json:"clear_deadline,omitempty"`
	Metadata      *GoalMetadata       `json:"metadata,omitempty"`
	Enabled       *bool               `json:"enabled,omitempty"`
}

// ProgressDetail is the read model for a goal's progress.
type ProgressDetail struct {
	GoalID                  string      `json:"goal_id"`
	Name                    string      `json:"name"`
	Status                  GoalStatus  `json:"status"`
	Current                 float64     `json:"current"`
	Target                  float64     `json:"target"`
	Percentage              float64     `json:"percentage"`
	Remaining               float64     `json:"remaining"`
	DailyRate               float64     `json:"daily_rate"`
	EstimatedCompletionDate *time.Time  `json:"estimated_completion_date,omitempty"`
	Deadline                *time.Time  `json:"deadline,omitempty"`
	Thresholds              []Threshold `json:"thresholds"`
	LowerIsBetter           bool        `json:"lower_is_better,omitempty"`
}

// CampaignGoalSummary aggregates every goal of a campaign.
type CampaignGoalSummary struct {
	CampaignID      string                `json:"campaign_id"`
	Total           int                   `json:"total"`
	ByStatus        map[GoalStatus]int    `json:"by_status"`
	AverageProgress float64               `json:"average_progress"`
	Goals           []GoalProgressSummary `json:"goals"`
}

// GoalProgressSummary is one row of a rollup.
type GoalProgressSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        GoalType   `json:"type"`
	Status      GoalStatus `json:"status"`
	Progress    float64    `json:"progress"`
	DaysOverdue int        `json:"days_overdue,omitempty"`

	// LowerIsBetter flags metrics such as bounce rate that clients rank inversely.
	LowerIsBetter bool `json:"lower_is_better,omitempty"`
}
