package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldline/internal/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookSchemaVersion  = "1"
	userAgent             = "fieldline/v0"
)

// WebhookEnvelope is the JSON payload POSTed to webhook endpoints.
type WebhookEnvelope struct {
	Type          string                `json:"type"`
	SchemaVersion string                `json:"schema_version"`
	Timestamp     string                `json:"timestamp"`
	Title         string                `json:"title"`
	Body          string                `json:"body"`
	Data          domain.LifecycleEvent `json:"data"`
}

type WebhookConfig struct {
	URL     string
	Events  []string // empty means every kind
	Secret  string
	Timeout time.Duration
}

// WebhookChannel POSTs lifecycle events to an HTTP endpoint.
type WebhookChannel struct {
	client *http.Client
	url    string
	secret string
	events map[string]bool
}

// NewWebhookChannel returns an error if the URL is not an absolute http(s) URL.
func NewWebhookChannel(cfg WebhookConfig) (*WebhookChannel, error) {
	if err := validateWebhookURL(cfg.URL); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	var events map[string]bool
	if len(cfg.Events) > 0 {
		events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			events[strings.TrimSpace(e)] = true
		}
	}
	return &WebhookChannel{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		secret: cfg.Secret,
		events: events,
	}, nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must include a host")
	}
	return nil
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) wants(kind domain.EventKind) bool {
	return w.events == nil || w.events[string(kind)]
}

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if !w.wants(msg.Event.Kind) {
		return nil
	}
	payload, err := json.Marshal(WebhookEnvelope{
		Type:          string(msg.Event.Kind),
		SchemaVersion: webhookSchemaVersion,
		Timestamp:     msg.Event.At.UTC().Format(time.RFC3339),
		Title:         msg.Title,
		Body:          msg.Body,
		Data:          msg.Event,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Fieldline-Event", string(msg.Event.Kind))
	if w.secret != "" {
		req.Header.Set("X-Fieldline-Secret", w.secret)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook failed: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
