package notifier

import (
	"context"
	"net/http"
	"time"

	"github.com/lnkday/goal-service/internal/model"
)

type webhookGoal struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       model.GoalType `json:"type"`
	Current    float64        `json:"current"`
	Target     float64        `json:"target"`
	Percentage float64        `json:"percentage"`
}

type webhookPayload struct {
	Event      model.NotificationType `json:"event"`
	Goal       webhookGoal            `json:"goal"`
	CampaignID string                 `json:"campaignId"`
	Timestamp  time.Time              `json:"timestamp"`
}

// WebhookChannel POSTs a JSON event to the goal's webhook URL.
type WebhookChannel struct {
	client *http.Client
}

func NewWebhookChannel(client *http.Client) *WebhookChannel {
	return &WebhookChannel{client: client}
}

func (c *WebhookChannel) Name() string { return ChannelWebhook }

func (c *WebhookChannel) Configured(g *model.Goal) bool {
	return g.Notifications.WebhookURL != ""
}

func (c *WebhookChannel) Send(ctx context.Context, a Alert) (string, error) {
	p := webhookPayload{
		Event: a.Type,
		Goal: webhookGoal{
			ID:         a.Goal.ID,
			Name:       a.Goal.Name,
			Type:       a.Goal.Type,
			Current:    a.Goal.Current,
			Target:     a.Goal.Target,
			Percentage: a.Percentage,
		},
		CampaignID: a.Goal.CampaignID,
		Timestamp:  a.Timestamp,
	}
	return postJSON(ctx, c.client, a.Goal.Notifications.WebhookURL, p, func(r *http.Request) {
		r.Header.Set("X-Goal-Event", string(a.Type))
	})
}
