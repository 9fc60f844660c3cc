package notify

import (
	"fmt"
	"time"

	"fieldline/internal/config"
)

// ChannelsFromConfig builds the enabled channels in delivery order:
// banner, desktop, email, then webhooks.
func ChannelsFromConfig(cfg config.NotificationConfig, inbox Inbox) ([]Channel, error) {
	var out []Channel
	if cfg.Banner.Enabled && inbox != nil {
		out = append(out, NewBannerChannel(inbox))
	}
	if cfg.Desktop.Enabled {
		out = append(out, NewDesktopChannel())
	}
	if cfg.Email.Enabled {
		ch, err := NewEmailChannel(EmailConfig{
			Addr:     cfg.Email.SMTPAddr,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	for i, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		ch, err := NewWebhookChannel(WebhookConfig{
			URL:     hook.URL,
			Events:  hook.Events,
			Secret:  hook.Secret,
			Timeout: time.Duration(hook.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("webhooks[%d]: %w", i, err)
		}
		out = append(out, ch)
	}
	return out, nil
}
