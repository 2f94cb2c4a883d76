package model

import "time"

// TrendPeriod is the bucket width for trend analysis.
type TrendPeriod string

const (
	PeriodDay   TrendPeriod = "day"
	PeriodWeek  TrendPeriod = "week"
	PeriodMonth TrendPeriod = "month"
)

// Valid reports whether p is a supported period.
func (p TrendPeriod) Valid() bool {
	return p == PeriodDay || p == PeriodWeek || p == PeriodMonth
}

// TrendBucket is the last observed value within one calendar period.
type TrendBucket struct {
	Period    string    `json:"period"`
	Value     float64   `json:"value"`
	Progress  float64   `json:"progress"`
	Delta     float64   `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
}

// GoalTrends is the result of trend bucketing.
type GoalTrends struct {
	GoalID string        `json:"goal_id"`
	Period TrendPeriod   `json:"period"`
	Trends []TrendBucket `json:"trends"`
}

// TeamGoalStats is the team-wide rollup.
type TeamGoalStats struct {
	TeamID          string                `json:"team_id"`
	Total           int                   `json:"total"`
	Active          int                   `json:"active"`
	Reached         int                   `json:"reached"`
	Failed          int                   `json:"failed"`
	Paused          int                   `json:"paused"`
	AverageProgress float64               `json:"average_progress"`
	TopPerformers   []GoalProgressSummary `json:"top_performers"`
	Underperforming []GoalProgressSummary `json:"underperforming"`
}

// GoalComparisonSide is one goal of a comparison.
type GoalComparisonSide struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	DailyRate  float64 `json:"daily_rate"`
}

// GoalComparison compares two goals by progress.
type GoalComparison struct {
	GoalA                GoalComparisonSide `json:"goal_a"`
	GoalB                GoalComparisonSide `json:"goal_b"`
	PercentageDifference float64            `json:"percentage_difference"`
	DailyRateDifference  float64            `json:"daily_rate_difference"`
	Winner               string             `json:"winner"`
}
