// Package alerts posts throttled, best-effort notifications to an
// operator webhook (spec.md §4.2 alert throttling, original
// core/alerts.py).
package alerts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// Client posts alert messages to a configured webhook. A zero-value
// Client with an empty URL is a no-op: alert failures (including "no
// webhook configured") never propagate to the caller.
type Client struct {
	WebhookURL string
	NodeID     string
	HTTPClient *http.Client
}

// NewClient builds a Client with the spec's 5s alert-webhook timeout.
func NewClient(webhookURL, nodeID string) *Client {
	return &Client{
		WebhookURL: webhookURL,
		NodeID:     nodeID,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Send posts "node=<id> slot=<slot> reason=<reason>" to the webhook.
// Errors (including no webhook configured, network failure, non-2xx)
// are swallowed: alert delivery must never block or crash the
// supervisor's enforcement loop.
func (c *Client) Send(title, slotID, reason string) {
	if c == nil || c.WebhookURL == "" {
		return
	}
	message := "node=" + c.NodeID + " slot=" + slotID + " reason=" + reason
	body, err := json.Marshal(slackPayload{Text: "*" + title + "*\n" + message + "\nTime: " + time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Throttle decides whether a new alert should fire for a slot given
// the reason that triggered this tick, the previous alert's reason,
// the previous alert's time, and the minimum interval between repeats
// of the same reason (spec.md §4.2).
func Throttle(reason, lastReason string, lastAt time.Time, minInterval time.Duration, now time.Time) bool {
	if lastAt.IsZero() {
		return true
	}
	if reason != lastReason {
		return true
	}
	return now.Sub(lastAt) >= minInterval
}
