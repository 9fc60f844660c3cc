package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/domain"
)

// Inbox stores banner entries. repo.Repo satisfies it.
type Inbox interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// BannerChannel records messages in the workspace inbox shown by the CLI and API.
type BannerChannel struct {
	inbox Inbox
	now   func() time.Time
}

func NewBannerChannel(inbox Inbox) *BannerChannel {
	return &BannerChannel{inbox: inbox, now: time.Now}
}

func (b *BannerChannel) Name() string { return "banner" }

func (b *BannerChannel) Send(ctx context.Context, msg Message) error {
	return b.inbox.InsertNotification(ctx, domain.Notification{
		ID:        uuid.NewString(),
		ProjectID: msg.Event.ProjectID,
		Kind:      msg.Event.Kind,
		Title:     msg.Title,
		Body:      msg.Body,
		CreatedAt: b.now().UTC().Format(time.RFC3339Nano),
	})
}
