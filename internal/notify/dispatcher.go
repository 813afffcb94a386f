// Package notify maps delivery channels onto their senders and owns the
// notification queue that hands work from evaluation to dispatch.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/pmorrell/minder/internal/discord"
	"github.com/pmorrell/minder/internal/email"
	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/push"
)

// Dispatcher delivers one notification over one channel. The returned string
// is provider delivery info (message id or marker) recorded on the row.
// Errors are terminal for this notification: dispatch marks the row failed
// rather than retrying.
type Dispatcher interface {
	Send(ctx context.Context, contact model.Contact, title, body string) (string, error)
}

// EmailDispatcher delivers via the email client.
type EmailDispatcher struct {
	client *email.Client
}

func NewEmailDispatcher(client *email.Client) *EmailDispatcher {
	return &EmailDispatcher{client: client}
}

func (d *EmailDispatcher) Send(ctx context.Context, contact model.Contact, title, body string) (string, error) {
	if contact.Email == "" {
		return "", errors.New("no email address on file")
	}
	return d.client.Send(ctx, contact.Email, title, body)
}

// DiscordDispatcher delivers via the channel webhook, mentioning the user.
type DiscordDispatcher struct {
	client *discord.Client
}

func NewDiscordDispatcher(client *discord.Client) *DiscordDispatcher {
	return &DiscordDispatcher{client: client}
}

func (d *DiscordDispatcher) Send(ctx context.Context, contact model.Contact, title, body string) (string, error) {
	if contact.DiscordUserID == "" {
		return "", errors.New("no discord user id on file")
	}
	return d.client.Send(ctx, contact.DiscordUserID, title, body)
}

// PushDispatcher delivers via web push to the stored subscription.
type PushDispatcher struct {
	service *push.Service
}

func NewPushDispatcher(service *push.Service) *PushDispatcher {
	return &PushDispatcher{service: service}
}

func (d *PushDispatcher) Send(_ context.Context, contact model.Contact, title, body string) (string, error) {
	if contact.PushSubscription == "" {
		return "", errors.New("no push subscription on file")
	}
	return d.service.Send(contact.PushSubscription, title, body)
}

// Registry maps channel names to dispatchers.
type Registry map[string]Dispatcher

// For returns the dispatcher for a channel.
func (r Registry) For(channel string) (Dispatcher, error) {
	d, ok := r[channel]
	if !ok {
		return nil, fmt.Errorf("no dispatcher for channel %q", channel)
	}
	return d, nil
}
