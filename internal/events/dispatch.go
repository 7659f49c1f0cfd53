package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/anonto42/nano-midea/fanout/internal/logging"
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/anonto42/nano-midea/fanout/internal/transport"
	"github.com/felixgeelhaar/bolt/v3"
	"golang.org/x/sync/errgroup"
)

// dispatcher persists and delivers notifications.
type dispatcher struct {
	notifications repositories.NotificationRepository
	socket        transport.Socket
	mailer        Notifier
	delivery      bool
	logger        *bolt.Logger
	pending       *sync.WaitGroup
}

// dispatch notifies every role of every subscription, once per recipient:
// a member reached through several subscriptions is notified through the
// first. Units run concurrently; the first error is returned once all have
// finished.
func (d *dispatcher) dispatch(ctx context.Context, channel string, event *models.Event, subs []*models.Subscription, notify Notify, body string) error {
	var g errgroup.Group
	seen := make(map[string]bool)
	for _, sub := range subs {
		for _, role := range notify.Roles() {
			recipient := sub.Recipient(role)
			if recipient == nil {
				logging.With(d.logger.Warn(), logging.SubscriptionID(sub.ID), logging.EventID(event.ID)).
					Str("role", string(role)).
					Msg("no recipient profile, notification skipped")
				continue
			}
			// members are not notified of their own actions
			if recipient.ID == sub.SubscriberID && sub.SubscriberID == event.ActorID {
				continue
			}
			if seen[recipient.ID] {
				continue
			}
			seen[recipient.ID] = true
			g.Go(func() error {
				return d.deliver(ctx, channel, event, sub, recipient, body)
			})
		}
	}
	return g.Wait()
}

func (d *dispatcher) deliver(ctx context.Context, channel string, event *models.Event, sub *models.Subscription, recipient *models.Member, body string) error {
	note := &models.Notification{
		SubscriberID:   recipient.ID,
		SubscriptionID: sub.ID,
		EventID:        event.ID,
	}
	if err := d.notifications.Create(ctx, note); err != nil {
		return fmt.Errorf("create notification for %s: %w", recipient.ID, err)
	}
	note.Event = event

	if err := d.socket.Send(ctx, MemberChannel(recipient.ID), "notification.new", note.Doc().Client()); err != nil {
		return fmt.Errorf("send notification %s: %w", note.ID, err)
	}

	if d.mailer != nil && d.delivery && recipient.EmailEnabled(channel) && recipient.PrimaryEmail != "" {
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			if err := d.mailer.Notify(context.WithoutCancel(ctx), recipient, note, body); err != nil {
				logging.With(d.logger.Error(), logging.MemberID(recipient.ID), logging.EventID(event.ID), logging.Err(err)).
					Msg("email notification failed")
			}
		}()
	}
	return nil
}
