package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/lnkday/goal-service/internal/model"
)

// SendFunc hands a composed message to the mail transport.
type SendFunc func(m *gomail.Message) error

// EmailChannel sends an HTML summary to every email recipient of a goal.
type EmailChannel struct {
	from string
	send SendFunc
}

// NewEmailChannel sends through an SMTP dialer.
func NewEmailChannel(host string, port int, username, password, from string) *EmailChannel {
	d := gomail.NewDialer(host, port, username, password)
	if from == "" {
		from = username
	}
	return &EmailChannel{from: from, send: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

// NewEmailChannelWithSender is used when the transport is provided by the caller.
func NewEmailChannelWithSender(from string, send SendFunc) *EmailChannel {
	return &EmailChannel{from: from, send: send}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Configured(g *model.Goal) bool {
	return len(g.Notifications.EmailRecipients) > 0
}

func (c *EmailChannel) Send(ctx context.Context, a Alert) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", a.Goal.Notifications.EmailRecipients...)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s", a.Type.StatusLabel(), a.Goal.Name))
	m.SetBody("text/plain", summary(a))
	m.AddAlternative("text/html", emailHTML(a))

	done := make(chan error, 1)
	go func() { done <- c.send(m) }()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", classifySMTP(err)
		}
		return fmt.Sprintf("sent to %d recipient(s)", len(a.Goal.Notifications.EmailRecipients)), nil
	}
}

// classifySMTP marks 5xx SMTP replies as permanent.
func classifySMTP(err error) error {
	var te *textproto.Error
	if errors.As(err, &te) && te.Code >= 500 {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}

func emailHTML(a Alert) string {
	g := a.Goal
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(a.Type.StatusLabel() + ": " + g.Name))
	b.WriteString("</h2><table>")
	rows := [][2]string{
		{"Progress", formatPercent(a.Percentage)},
		{"Current", formatNumber(g.Current)},
		{"Target", formatNumber(g.Target)},
		{"Type", string(g.Type)},
		{"Campaign", g.CampaignID},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", r[0], html.EscapeString(r[1]))
	}
	b.WriteString("</table>")
	return b.String()
}
