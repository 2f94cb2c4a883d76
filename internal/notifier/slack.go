package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lnkday/goal-service/internal/model"
)

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// SlackChannel posts a Block Kit message to an incoming webhook.
type SlackChannel struct {
	client *http.Client
}

func NewSlackChannel(client *http.Client) *SlackChannel {
	return &SlackChannel{client: client}
}

func (c *SlackChannel) Name() string { return ChannelSlack }

func (c *SlackChannel) Configured(g *model.Goal) bool {
	return g.Notifications.SlackWebhookURL != ""
}

func (c *SlackChannel) Send(ctx context.Context, a Alert) (string, error) {
	return postJSON(ctx, c.client, a.Goal.Notifications.SlackWebhookURL, slackMessageFor(a), nil)
}

func slackMessageFor(a Alert) slackMessage {
	g := a.Goal
	return slackMessage{
		Text: summary(a),
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("%s: %s", a.Type.StatusLabel(), g.Name)},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s* is at *%s*", g.Name, formatPercent(a.Percentage))},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: "*Current:*\n" + formatNumber(g.Current)},
					{Type: "mrkdwn", Text: "*Target:*\n" + formatNumber(g.Target)},
					{Type: "mrkdwn", Text: "*Type:*\n" + string(g.Type)},
					{Type: "mrkdwn", Text: "*Status:*\n" + a.Type.StatusLabel()},
				},
			},
			{
				Type: "context",
				Elements: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("Campaign %s | %s", g.CampaignID, a.Timestamp.UTC().Format(time.RFC3339))},
				},
			},
		},
	}
}
