package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/fanout/internal/logging"
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/felixgeelhaar/bolt/v3"
	"golang.org/x/sync/errgroup"
)

// resolver finds the subscriptions an event is delivered to.
type resolver struct {
	subscriptions repositories.SubscriptionRepository
	members       repositories.MemberRepository
	joiner        repositories.Joiner
	access        Access
	logger        *bolt.Logger
}

// filters returns the subscription query of method for event. No filters
// means nobody is interested.
func filters(event *models.Event, opts Options) []repositories.SubscriptionFilter {
	watchers := repositories.SubscriptionFilter{
		SubscribeeID: event.TargetID,
		Style:        models.StyleWatch,
		Muted:        repositories.Unmuted(),
	}
	switch opts.Method {
	case DemandSubscription:
		out := []repositories.SubscriptionFilter{{
			SubscribeeID: event.ActorID,
			Style:        models.StyleFollow,
			Muted:        repositories.Unmuted(),
		}}
		if event.TargetID != "" {
			out = append(out, watchers)
		}
		return out
	case DemandWatchSubscription:
		if event.TargetID != "" {
			return []repositories.SubscriptionFilter{watchers}
		}
	case DemandWatchSubscriptionFromAuthor:
		if event.TargetID != "" && event.TargetAuthorID != "" {
			watchers.SubscriberID = event.TargetAuthorID
			return []repositories.SubscriptionFilter{watchers}
		}
	case WithSubscription:
		if opts.SubscriptionID != "" {
			return []repositories.SubscriptionFilter{{ID: opts.SubscriptionID}}
		}
	}
	return nil
}

func (r *resolver) resolve(ctx context.Context, event *models.Event, opts Options, notify Notify) ([]*models.Subscription, error) {
	query := filters(event, opts)
	if len(query) == 0 {
		return nil, nil
	}
	subs, err := r.subscriptions.List(ctx, query...)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}

	subs, err = r.attachMembers(ctx, subs, notify.Subscribee)
	if err != nil {
		return nil, err
	}
	if opts.Method != DemandWatchSubscription {
		return subs, nil
	}
	return r.recheck(ctx, subs)
}

// attachMembers resolves the subscriber profiles, and the subscribee
// profiles when they are to be notified. Subscriptions whose subscriber no
// longer exists are dropped.
func (r *resolver) attachMembers(ctx context.Context, subs []*models.Subscription, subscribees bool) ([]*models.Subscription, error) {
	var subscriberIDs, subscribeeIDs []string
	for _, s := range subs {
		subscriberIDs = append(subscriberIDs, s.SubscriberID)
		subscribeeIDs = append(subscribeeIDs, s.SubscribeeID)
	}

	var g errgroup.Group
	var subscribers, targets map[string]*models.Member
	g.Go(func() (err error) {
		subscribers, err = r.members.GetMany(ctx, subscriberIDs)
		return err
	})
	if subscribees {
		g.Go(func() (err error) {
			targets, err = r.members.GetMany(ctx, subscribeeIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	out := subs[:0]
	for _, s := range subs {
		s.Subscriber = subscribers[s.SubscriberID]
		if s.Subscriber == nil {
			logging.With(r.logger.Warn(), logging.SubscriptionID(s.ID), logging.MemberID(s.SubscriberID)).
				Msg("subscriber not found, skipping")
			continue
		}
		if subscribees {
			s.SubscribeeMember = targets[s.SubscribeeID]
		}
		out = append(out, s)
	}
	return out, nil
}

// recheck reloads every watched resource and drops the subscriptions whose
// subscriber may no longer access it.
func (r *resolver) recheck(ctx context.Context, subs []*models.Subscription) ([]*models.Subscription, error) {
	var g errgroup.Group
	for _, s := range subs {
		g.Go(func() error {
			resource, err := r.joiner.Load(ctx, s.Meta.Type, s.SubscribeeID)
			if errors.Is(err, repositories.ErrNotFound) {
				s.Rejected = true
				return nil
			}
			if err != nil {
				return err
			}
			s.Subscribee = resource
			ok, err := r.access.CanAccess(ctx, s.SubscriberID, resource)
			if err != nil {
				return err
			}
			s.Rejected = !ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("check access: %w", err)
	}

	out := subs[:0]
	for _, s := range subs {
		if !s.Rejected {
			out = append(out, s)
		}
	}
	return out, nil
}
