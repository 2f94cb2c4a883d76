// Package notifier delivers goal alerts to external channels and records
// one audit entry per dispatch.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lnkday/goal-service/internal/model"
)

// Channel names as recorded on audit entries.
const (
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
	ChannelTeams   = "teams"
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
)

const maxResponseBody = 4 << 10

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// Alert is the channel-independent description of one notification.
type Alert struct {
	Type       model.NotificationType
	Goal       *model.Goal
	Percentage float64
	Timestamp  time.Time
}

// Channel is one outbound transport.
type Channel interface {
	Name() string
	// Configured reports whether the goal has a destination for this channel.
	Configured(g *model.Goal) bool
	// Send delivers the alert and returns the raw response.
	Send(ctx context.Context, a Alert) (string, error)
}

// StatusError is a non-2xx response from a channel endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Temporary is true for statuses worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError ||
		e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusRequestTimeout
}

// IsTransient classifies a delivery error. Network errors are transient;
// 4xx responses (other than 408/429) and ErrPermanent are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, ErrPermanent)
}

// postJSON sends body to url and returns the (truncated) response body.
func postJSON(ctx context.Context, client *http.Client, url string, body any, prepare func(*http.Request)) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: encode payload: %v", ErrPermanent, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if prepare != nil {
		prepare(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return string(raw), &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if len(raw) == 0 {
		return strconv.Itoa(resp.StatusCode), nil
	}
	return string(raw), nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

// summary is the one-line text used by plain-text channels and fallbacks.
func summary(a Alert) string {
	g := a.Goal
	switch a.Type {
	case model.NotificationGoalReached:
		return fmt.Sprintf("Goal %q reached its target: %s / %s (%s)",
			g.Name, formatNumber(g.Current), formatNumber(g.Target), g.Type)
	case model.NotificationDeadlineWarning:
		deadline := "soon"
		if g.Deadline != nil {
			deadline = g.Deadline.UTC().Format(time.RFC3339)
		}
		return fmt.Sprintf("Goal %q is at %s with its deadline %s: %s / %s (%s)",
			g.Name, formatPercent(a.Percentage), deadline, formatNumber(g.Current), formatNumber(g.Target), g.Type)
	default:
		return fmt.Sprintf("Goal %q passed the %s milestone: %s / %s (%s)",
			g.Name, formatPercent(a.Percentage), formatNumber(g.Current), formatNumber(g.Target), g.Type)
	}
}
