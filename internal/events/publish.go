package events

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/logging"
	"github.com/anonto42/nano-midea/fanout/internal/models"
)

// Publish sends params.Data on channel under topic and, when params.Event is
// set, records the event and fans it out: the hydrated event goes to the
// actor and the resolved subscribers, and the roles in params.Notify are
// notified.
func (e *Engine) Publish(ctx context.Context, channel, topic string, params Params) error {
	if channel == "" || topic == "" {
		return fmt.Errorf("%w: channel and topic are required", ErrValidation)
	}
	if err := e.validate.Struct(params); err != nil {
		return validationError(err)
	}
	params.Data = params.Data.Clone()
	if params.Options.Method == "" {
		params.Options.Method = e.cfg.DefaultMethod
	}
	log := func(fields ...logging.Field) []logging.Field {
		return append([]logging.Field{logging.Channel(channel), logging.Topic(topic)}, fields...)
	}

	// raw data, for static lists and tickers
	raw := params.Data.Client()
	if params.Data.Bool("public", true) {
		if err := e.send(ctx, channel, topic, raw); err != nil {
			return err
		}
	} else if author := AuthorChannel(params.Data); author != "" {
		if err := e.send(ctx, author, topic, raw); err != nil {
			return err
		}
	} else {
		logging.With(e.cfg.Logger.Warn(), log()...).Msg("private data without author, not sent")
	}

	if params.Event == nil {
		return nil
	}

	event, err := e.record(ctx, params)
	if err != nil {
		return err
	}

	subs, err := e.resolver.resolve(ctx, event, params.Options, params.Notify)
	if err != nil {
		return fmt.Errorf("resolve recipients of %s: %w", event.ID, err)
	}

	view, ok, err := e.hydrate(ctx, event, "")
	if err != nil {
		return fmt.Errorf("hydrate event %s: %w", event.ID, err)
	}
	if !ok {
		logging.With(e.cfg.Logger.Debug(), log(logging.EventID(event.ID))...).Msg("event rejected, not delivered")
		return nil
	}
	view = view.Client()

	actorChannel := MemberChannel(event.ActorID)
	if err := e.send(ctx, actorChannel, "event.new", view); err != nil {
		return err
	}
	if event.Public {
		sent := map[string]bool{actorChannel: true}
		for _, sub := range subs {
			ch := MemberChannel(sub.SubscriberID)
			if sent[ch] {
				continue
			}
			sent[ch] = true
			if err := e.send(ctx, ch, "event.new", view); err != nil {
				return err
			}
		}
	}

	logging.With(e.cfg.Logger.Debug(), log(logging.EventID(event.ID), logging.Count("recipients", len(subs)))...).Msg("event published")

	if len(subs) == 0 || params.Notify.Empty() {
		return nil
	}
	return e.dispatcher.dispatch(ctx, channel, event, subs, params.Notify, params.Data.Str("body"))
}

// record creates the event described by params, or amends the existing
// one when an id is given.
func (e *Engine) record(ctx context.Context, params Params) (*models.Event, error) {
	in := params.Event
	if in.ID != "" {
		if len(in.Set) > 0 {
			if err := e.cfg.Events.Update(ctx, in.ID, in.Set); err != nil {
				return nil, fmt.Errorf("update event %s: %w", in.ID, err)
			}
		}
		event, err := e.cfg.Events.Read(ctx, in.ID)
		if err != nil {
			return nil, fmt.Errorf("read event %s: %w", in.ID, err)
		}
		return event, nil
	}

	event := &models.Event{
		ActorID:        in.ActorID,
		TargetID:       in.TargetID,
		TargetAuthorID: in.TargetAuthorID,
		ActionID:       in.ActionID,
		ActionType:     in.ActionType,
		Public:         in.Public == nil || *in.Public,
		Data: models.EventData{
			Action: in.Data.Action.Clone(),
			Target: in.Data.Target.Clone(),
		},
	}
	if t, ok := params.Data.Time("date"); ok {
		event.Date = t
	} else if t, ok := params.Data.Time("created"); ok {
		event.Date = t
	} else {
		event.Date = time.Now()
	}
	if err := e.cfg.Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}
