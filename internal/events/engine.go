// Package events turns member actions into durable events and fans them
// out to subscribers as live messages and notifications.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anonto42/nano-midea/fanout/internal/logging"
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/anonto42/nano-midea/fanout/internal/transport"
	"github.com/felixgeelhaar/bolt/v3"
	"github.com/go-playground/validator/v10"
)

// Access decides whether a requestor may see a resource. An empty
// requestorID is the anonymous requestor.
type Access interface {
	CanAccess(ctx context.Context, requestorID string, resource models.Doc) (bool, error)
}

// Notifier delivers a notification by email.
type Notifier interface {
	Notify(ctx context.Context, recipient *models.Member, note *models.Notification, body string) error
}

// Config holds the engine's collaborators.
type Config struct {
	Subscriptions repositories.SubscriptionRepository
	Events        repositories.EventRepository
	Notifications repositories.NotificationRepository
	Members       repositories.MemberRepository
	Joiner        repositories.Joiner
	Access        Access

	// Socket and Mailer are optional.
	Socket transport.Socket
	Mailer Notifier

	// Variants defaults to ClimbingVariants.
	Variants *Registry
	// DefaultMethod defaults to DemandSubscription.
	DefaultMethod Method
	// DeliveryEnabled gates email; only production deployments send mail.
	DeliveryEnabled bool
	Logger          *bolt.Logger
}

// Engine publishes events and manages subscriptions.
type Engine struct {
	cfg        Config
	validate   *validator.Validate
	resolver   *resolver
	dispatcher *dispatcher
	mail       sync.WaitGroup
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	var missing []string
	if cfg.Subscriptions == nil {
		missing = append(missing, "subscriptions")
	}
	if cfg.Events == nil {
		missing = append(missing, "events")
	}
	if cfg.Notifications == nil {
		missing = append(missing, "notifications")
	}
	if cfg.Members == nil {
		missing = append(missing, "members")
	}
	if cfg.Joiner == nil {
		missing = append(missing, "joiner")
	}
	if cfg.Access == nil {
		missing = append(missing, "access")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("events: missing collaborators %v", missing)
	}

	if cfg.Variants == nil {
		cfg.Variants = ClimbingVariants()
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = DemandSubscription
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Get()
	}
	if cfg.Socket == nil {
		cfg.Socket = transport.Nop{}
	}

	e := &Engine{cfg: cfg, validate: validator.New()}
	if err := e.validate.Var(string(cfg.DefaultMethod), "oneof=DEMAND_SUBSCRIPTION DEMAND_WATCH_SUBSCRIPTION DEMAND_WATCH_SUBSCRIPTION_FROM_AUTHOR WITH_SUBSCRIPTION"); err != nil {
		return nil, fmt.Errorf("events: unknown default method %q", cfg.DefaultMethod)
	}
	e.resolver = &resolver{
		subscriptions: cfg.Subscriptions,
		members:       cfg.Members,
		joiner:        cfg.Joiner,
		access:        cfg.Access,
		logger:        cfg.Logger,
	}
	e.dispatcher = &dispatcher{
		notifications: cfg.Notifications,
		socket:        cfg.Socket,
		mailer:        cfg.Mailer,
		delivery:      cfg.DeliveryEnabled,
		logger:        cfg.Logger,
		pending:       &e.mail,
	}
	return e, nil
}

// Hydrate returns the client view of event as seen by requestorID. It
// reports false when the requestor may not see the event.
func (e *Engine) Hydrate(ctx context.Context, event *models.Event, requestorID string) (models.Doc, bool, error) {
	doc, ok, err := e.hydrate(ctx, event, requestorID)
	if err != nil || !ok {
		return nil, false, err
	}
	return doc.Client(), true, nil
}

// Drain waits for outstanding email deliveries.
func (e *Engine) Drain() {
	e.mail.Wait()
}

func (e *Engine) send(ctx context.Context, channel, topic string, payload any) error {
	if err := e.cfg.Socket.Send(ctx, channel, topic, payload); err != nil {
		return fmt.Errorf("send %s on %s: %w", topic, channel, err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s failed on %s", ErrValidation, verrs[0].Namespace(), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
