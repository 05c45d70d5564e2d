package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/engyne/nodecore/internal/eventsink"
)

// WebhookTransport is the generic channel transport: POST a message
// envelope to a per-channel webhook (spec.md §4.7 "deliver to the
// webhook (or channel-native transport)").
type WebhookTransport struct {
	Channel Channel
	URL     string
	Secret  string
	Client  *http.Client
}

type webhookPayload struct {
	Channel string                 `json:"channel"`
	SentAt  string                 `json:"sent_at"`
	Record  eventsink.QueueRecord  `json:"record"`
	Contact string                 `json:"contact"`
	Message string                 `json:"message"`
}

func (t *WebhookTransport) Deliver(ctx context.Context, record eventsink.QueueRecord, contact string) (bool, string, error) {
	body, err := json.Marshal(webhookPayload{
		Channel: string(t.Channel),
		SentAt:  time.Now().UTC().Format(time.RFC3339),
		Record:  record,
		Contact: contact,
		Message: formatMessage(record),
	})
	if err != nil {
		return false, "webhook_error", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return false, "webhook_error", err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Secret != "" {
		req.Header.Set("X-Engyne-Channel-Secret", t.Secret)
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return false, "webhook_error", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, "webhook_error", nil
	}
	return true, "", nil
}

// WahaTransport is the WhatsApp-HTTP-Agent native transport, generalized
// from original_source/core/dispatcher_worker.py's send_whatsapp_waha
// (spec.md SPEC_FULL.md §4.2 "WAHA-style channel-native transport").
// Selected for the whatsapp channel when WAHA_BASE_URL is configured;
// falls back to WebhookTransport otherwise.
type WahaTransport struct {
	BaseURL        string
	Session        string
	SessionPrefix  string
	Token          string
	SendPath       string
	ChatSuffix     string
	AuthHeader     string
	AuthPrefix     string
	Client         *http.Client
}

func (t *WahaTransport) Deliver(ctx context.Context, record eventsink.QueueRecord, contact string) (bool, string, error) {
	session := t.Session
	if session == "" {
		prefix := t.SessionPrefix
		if prefix == "" {
			prefix = "slot-"
		}
		if record.SlotID == "" {
			return false, "waha_error", fmt.Errorf("no session and no slot_id to derive one")
		}
		session = prefix + record.SlotID
	}

	chatID := normalizeWahaChatID(contact, t.ChatSuffix)
	if chatID == "" {
		return false, "waha_error", fmt.Errorf("contact %q did not normalize to a chat id", contact)
	}

	sendPath := t.SendPath
	if sendPath == "" {
		sendPath = "/api/sendText"
	}
	url := strings.TrimRight(t.BaseURL, "/") + sendPath

	body, err := json.Marshal(map[string]string{
		"session": session,
		"chatId":  chatID,
		"text":    formatMessage(record),
	})
	if err != nil {
		return false, "waha_error", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, "waha_error", err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Token != "" {
		header := t.AuthHeader
		if header == "" {
			header = "Authorization"
		}
		prefix := t.AuthPrefix
		if strings.EqualFold(header, "Authorization") {
			if prefix == "" {
				prefix = "Bearer"
			}
			req.Header.Set(header, strings.TrimSpace(prefix+" "+t.Token))
		} else {
			req.Header.Set(header, t.Token)
		}
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return false, "waha_error", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, "waha_error", nil
	}
	return true, "waha", nil
}

// normalizeWahaChatID turns a raw phone/contact string into a WAHA chat
// id, passing through values already carrying a WAHA suffix.
func normalizeWahaChatID(contact, suffix string) string {
	raw := strings.TrimSpace(contact)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "@c.us") || strings.Contains(raw, "@g.us") {
		return raw
	}
	var digits strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	if suffix == "" {
		suffix = "@c.us"
	}
	return digits.String() + suffix
}

// formatMessage builds a human-readable delivery message from a queue
// record's payload, mirroring dispatcher_worker.py's format_message.
func formatMessage(record eventsink.QueueRecord) string {
	payload := record.Payload
	title, _ := payload["title"].(string)
	if title == "" {
		title = "Lead"
	}
	lines := []string{fmt.Sprintf("ENGYNE lead: %s", title)}
	if country, ok := payload["country"].(string); ok && country != "" {
		lines = append(lines, "Country: "+country)
	}
	if age, ok := payload["age_hours"]; ok && age != nil {
		lines = append(lines, fmt.Sprintf("Age (hrs): %v", age))
	}
	if months, ok := payload["member_months"]; ok && months != nil {
		lines = append(lines, fmt.Sprintf("Member months: %v", months))
	}
	if record.LeadID != "" {
		lines = append(lines, "Lead ID: "+record.LeadID)
	}
	return strings.Join(lines, "\n")
}

// SelectTransport resolves whatsapp's WAHA native transport when
// configured, else a generic webhook for any channel with a webhook
// URL, else nil ("missing_webhook", spec.md §4.7).
func SelectTransport(channel Channel, webhookURL, webhookSecret string, waha *WahaTransport, client *http.Client) Transport {
	if channel == ChannelWhatsApp && waha != nil && waha.BaseURL != "" {
		waha.Client = client
		return waha
	}
	if webhookURL == "" {
		return nil
	}
	return &WebhookTransport{Channel: channel, URL: webhookURL, Secret: webhookSecret, Client: client}
}
