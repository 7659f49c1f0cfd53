package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"golang.org/x/sync/errgroup"
)

// Subscribe creates a subscription from subscriberID to subscribeeID. An
// existing subscription for the pair is returned unchanged and nothing is
// published. Watch subscriptions publish only the bare record; requests
// and follows publish an event notifying the subscribee.
func (e *Engine) Subscribe(ctx context.Context, subscriberID, subscribeeID string, meta models.SubscriptionMeta) (*models.Subscription, error) {
	if subscriberID == "" || subscribeeID == "" {
		return nil, fmt.Errorf("%w: subscriber and subscribee are required", ErrValidation)
	}
	if err := e.validate.Struct(meta); err != nil {
		return nil, validationError(err)
	}

	sub := &models.Subscription{
		SubscriberID: subscriberID,
		SubscribeeID: subscribeeID,
		Meta:         meta,
	}
	if err := e.parties(ctx, sub); err != nil {
		return nil, err
	}

	if err := e.cfg.Subscriptions.Create(ctx, sub); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			existing, rerr := e.cfg.Subscriptions.Read(ctx, repositories.SubscriptionFilter{
				SubscriberID: subscriberID,
				SubscribeeID: subscribeeID,
			})
			if rerr != nil {
				return nil, fmt.Errorf("read existing subscription: %w", rerr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	style := string(meta.Style)
	if meta.Style == models.StyleWatch {
		return sub, e.Publish(ctx, style, style+".new", Params{Data: sub.Doc()})
	}

	subscribee := sub.Subscribee
	return sub, e.Publish(ctx, style, style+".new", Params{
		Data: sub.Doc(),
		Event: &EventSpec{
			ActorID:    sub.SubscriberID,
			TargetID:   sub.SubscribeeID,
			ActionID:   sub.ID,
			ActionType: style,
			Data: models.EventData{
				Action: actionSnapshot(sub.Subscriber.Doc(), sub.Subscriber.Gravatar, style),
				Target: targetSnapshot(subscribee),
			},
		},
		Options: Options{Method: WithSubscription, SubscriptionID: sub.ID},
		Notify:  Notify{Subscribee: true},
	})
}

// Accept turns a pending request into a follow and publishes an accept
// event to the requester and a follow event to the subscribee.
func (e *Engine) Accept(ctx context.Context, sub *models.Subscription) error {
	if sub == nil || sub.Meta.Style != models.StyleRequest {
		return ErrNotPending
	}

	var g errgroup.Group
	var updated int64
	g.Go(func() error {
		return e.parties(ctx, sub)
	})
	g.Go(func() (err error) {
		updated, err = e.cfg.Subscriptions.UpdateStyle(ctx, sub.ID, models.StyleFollow)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("accept subscription %s: %w", sub.ID, ErrNoRecordsUpdated)
	}
	sub.Meta.Style = models.StyleFollow

	subscriber := sub.Subscriber.Doc()
	subscribee := sub.Subscribee
	accept := string(models.StyleAccept)
	follow := string(models.StyleFollow)

	var pg errgroup.Group
	pg.Go(func() error {
		return e.Publish(ctx, accept, accept+".new", Params{
			Data: sub.Doc(),
			Event: &EventSpec{
				ActorID:    sub.SubscribeeID,
				TargetID:   sub.SubscriberID,
				ActionID:   sub.ID,
				ActionType: accept,
				Data: models.EventData{
					Action: actionSnapshot(subscribee, subscribee.Str("gravatar"), accept),
					Target: targetSnapshot(subscriber),
				},
			},
			Options: Options{Method: WithSubscription, SubscriptionID: sub.ID},
			Notify:  Notify{Subscriber: true},
		})
	})
	pg.Go(func() error {
		return e.Publish(ctx, follow, follow+".new", Params{
			Data: sub.Doc(),
			Event: &EventSpec{
				ActorID:    sub.SubscriberID,
				TargetID:   sub.SubscribeeID,
				ActionID:   sub.ID,
				ActionType: follow,
				Data: models.EventData{
					Action: actionSnapshot(subscriber, models.GravatarHash(sub.Subscriber.PrimaryEmail), follow),
					Target: targetSnapshot(subscribee),
				},
			},
			Options: Options{Method: WithSubscription, SubscriptionID: sub.ID},
			Notify:  Notify{Subscribee: true},
		})
	})
	return pg.Wait()
}

// Unsubscribe removes the subscription from subscriberID to subscribeeID
// with its notifications, telling every affected member. A missing
// subscription is not an error; nil is returned for it.
func (e *Engine) Unsubscribe(ctx context.Context, subscriberID, subscribeeID string) (*models.Subscription, error) {
	if subscriberID == "" || subscribeeID == "" {
		return nil, fmt.Errorf("%w: subscriber and subscribee are required", ErrValidation)
	}
	sub, err := e.cfg.Subscriptions.Read(ctx, repositories.SubscriptionFilter{
		SubscriberID: subscriberID,
		SubscribeeID: subscribeeID,
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read subscription: %w", err)
	}

	var g errgroup.Group
	var removed int64
	var notes []*models.Notification
	g.Go(func() (err error) {
		removed, err = e.cfg.Subscriptions.Remove(ctx, sub.ID)
		return err
	})
	g.Go(func() (err error) {
		notes, err = e.cfg.Notifications.ListBySubscription(ctx, sub.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("remove subscription %s: %w", sub.ID, err)
	}
	if removed == 0 {
		// removed concurrently by someone else
		return sub, nil
	}

	topic := string(sub.Meta.Style) + ".removed"
	gone := Params{Data: models.Doc{"id": sub.ID}}
	if err := e.Publish(ctx, MemberChannel(sub.SubscriberID), topic, gone); err != nil {
		return nil, err
	}
	if sub.Meta.Style == models.StyleFollow {
		if err := e.Publish(ctx, MemberChannel(sub.SubscribeeID), topic, gone); err != nil {
			return nil, err
		}
	}
	for _, note := range notes {
		err := e.Publish(ctx, MemberChannel(note.SubscriberID), "notification.removed", Params{Data: models.Doc{"id": note.ID}})
		if err != nil {
			return nil, err
		}
	}

	if _, err := e.cfg.Notifications.RemoveBySubscription(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("remove notifications of %s: %w", sub.ID, err)
	}
	return sub, nil
}

// parties loads the subscriber profile and the subscribee resource of sub
// concurrently.
func (e *Engine) parties(ctx context.Context, sub *models.Subscription) error {
	var g errgroup.Group
	var subscriber *models.Member
	var subscribee models.Doc
	g.Go(func() (err error) {
		subscriber, err = e.cfg.Members.Get(ctx, sub.SubscriberID)
		if err != nil {
			return fmt.Errorf("load subscriber %s: %w", sub.SubscriberID, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		subscribee, err = e.cfg.Joiner.Load(ctx, sub.Meta.Type, sub.SubscribeeID)
		if err != nil {
			return fmt.Errorf("load subscribee %s: %w", sub.SubscribeeID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	sub.Subscriber = subscriber
	sub.Subscribee = subscribee
	return nil
}

// actionSnapshot is the identity of the acting party stored with a
// subscription event.
func actionSnapshot(party models.Doc, gravatar, style string) models.Doc {
	return models.Doc{
		"i": party.ID(),
		"a": displayName(party),
		"g": gravatar,
		"t": style,
		"s": party.Str("username"),
	}
}

// targetSnapshot is the identity of the party acted upon.
func targetSnapshot(party models.Doc) models.Doc {
	return models.Doc{
		"i": party.ID(),
		"a": displayName(party),
		"s": party.Str("username"),
	}
}

func displayName(party models.Doc) string {
	if name := party.Str("displayName"); name != "" {
		return name
	}
	return party.Str("name")
}
