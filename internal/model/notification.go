package model

import "time"

// NotificationType is the event that triggered an alert.
type NotificationType string

const (
	NotificationThresholdReached NotificationType = "threshold_reached"
	NotificationGoalReached      NotificationType = "goal_reached"
	NotificationDeadlineWarning  NotificationType = "deadline_warning"
)

// Severity is the presentation level derived from a NotificationType.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Severity maps the event to the colour/emphasis channels render with.
func (t NotificationType) Severity() Severity {
	switch t {
	case NotificationGoalReached:
		return SeveritySuccess
	case NotificationDeadlineWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// StatusLabel is the human readable headline for the event.
func (t NotificationType) StatusLabel() string {
	switch t {
	case NotificationGoalReached:
		return "Goal reached"
	case NotificationDeadlineWarning:
		return "Deadline approaching"
	default:
		return "Milestone reached"
	}
}

// ChannelResult is the outcome of one channel for one notification.
type ChannelResult struct {
	Channel   string `json:"channel"`
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}

// Notification is the write-once audit record of one dispatch.
type Notification struct {
	ID         string           `json:"id" db:"id"`
	GoalID     string           `json:"goal_id" db:"goal_id"`
	CampaignID string           `json:"campaign_id" db:"campaign_id"`
	Type       NotificationType `json:"type" db:"type"`
	Percentage float64          `json:"percentage" db:"percentage"`
	Channels   []ChannelResult  `json:"channels" db:"-"`
	Success    bool             `json:"success" db:"success"`
	SentAt     time.Time        `json:"sent_at" db:"sent_at"`
}

// Attempted reports whether the named channel was tried.
func (n *Notification) Attempted(channel string) bool {
	for _, c := range n.Channels {
		if c.Channel == channel {
			return c.Attempted
		}
	}
	return false
}
