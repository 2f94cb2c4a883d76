package notifier

import (
	"context"
	"net/http"

	"github.com/lnkday/goal-service/internal/model"
)

type smsPayload struct {
	TextMessage struct {
		Text string `json:"text"`
	} `json:"textMessage"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// SMSChannel posts a short text to an HTTP SMS gateway.
type SMSChannel struct {
	client   *http.Client
	url      string
	username string
	password string
}

func NewSMSChannel(client *http.Client, url, username, password string) *SMSChannel {
	return &SMSChannel{client: client, url: url, username: username, password: password}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Configured(g *model.Goal) bool {
	return len(g.Notifications.SMSRecipients) > 0
}

func (c *SMSChannel) Send(ctx context.Context, a Alert) (string, error) {
	var p smsPayload
	p.TextMessage.Text = a.Type.StatusLabel() + "\n" + summary(a)
	p.PhoneNumbers = a.Goal.Notifications.SMSRecipients

	return postJSON(ctx, c.client, c.url, p, func(r *http.Request) {
		if c.username != "" {
			r.SetBasicAuth(c.username, c.password)
		}
	})
}
