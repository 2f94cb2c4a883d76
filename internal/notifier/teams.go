package notifier

import (
	"context"
	"net/http"

	"github.com/lnkday/goal-service/internal/model"
)

// Theme colours per severity.
const (
	colorSuccess = "28A745"
	colorInfo    = "0078D7"
	colorWarning = "FFA500"
)

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle    string      `json:"activityTitle"`
	ActivitySubtitle string      `json:"activitySubtitle"`
	Facts            []teamsFact `json:"facts"`
	Markdown         bool        `json:"markdown"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Sections   []teamsSection `json:"sections"`
}

// TeamsChannel posts a MessageCard to a Microsoft Teams incoming webhook.
type TeamsChannel struct {
	client *http.Client
}

func NewTeamsChannel(client *http.Client) *TeamsChannel {
	return &TeamsChannel{client: client}
}

func (c *TeamsChannel) Name() string { return ChannelTeams }

func (c *TeamsChannel) Configured(g *model.Goal) bool {
	return g.Notifications.TeamsWebhookURL != ""
}

func (c *TeamsChannel) Send(ctx context.Context, a Alert) (string, error) {
	return postJSON(ctx, c.client, a.Goal.Notifications.TeamsWebhookURL, teamsCardFor(a), nil)
}

func themeColor(s model.Severity) string {
	switch s {
	case model.SeveritySuccess:
		return colorSuccess
	case model.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

func teamsCardFor(a Alert) teamsCard {
	g := a.Goal
	return teamsCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: themeColor(a.Type.Severity()),
		Summary:    summary(a),
		Sections: []teamsSection{{
			ActivityTitle:    a.Type.StatusLabel() + ": " + g.Name,
			ActivitySubtitle: "Progress " + formatPercent(a.Percentage),
			Facts: []teamsFact{
				{Name: "Current", Value: formatNumber(g.Current)},
				{Name: "Target", Value: formatNumber(g.Target)},
				{Name: "Type", Value: string(g.Type)},
				{Name: "Status", Value: a.Type.StatusLabel()},
				{Name: "Campaign", Value: g.CampaignID},
			},
			Markdown: true,
		}},
	}
}
