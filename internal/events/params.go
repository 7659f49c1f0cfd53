package events

import (
	"github.com/anonto42/nano-midea/fanout/internal/models"
)

// Method names a recipient resolution strategy.
type Method string

const (
	// DemandSubscription targets followers of the actor and watchers of the
	// target.
	DemandSubscription Method = "DEMAND_SUBSCRIPTION"
	// DemandWatchSubscription targets watchers of the target that may still
	// access it.
	DemandWatchSubscription Method = "DEMAND_WATCH_SUBSCRIPTION"
	// DemandWatchSubscriptionFromAuthor targets the target author's own
	// watch subscription.
	DemandWatchSubscriptionFromAuthor Method = "DEMAND_WATCH_SUBSCRIPTION_FROM_AUTHOR"
	// WithSubscription targets the one subscription named in the options.
	WithSubscription Method = "WITH_SUBSCRIPTION"
)

// Options tune how a publish resolves its recipients.
type Options struct {
	Method         Method `json:"method,omitempty" validate:"omitempty,oneof=DEMAND_SUBSCRIPTION DEMAND_WATCH_SUBSCRIPTION DEMAND_WATCH_SUBSCRIPTION_FROM_AUTHOR WITH_SUBSCRIPTION"`
	SubscriptionID string `json:"subscription_id,omitempty" validate:"required_if=Method WITH_SUBSCRIPTION"`
}

// Notify selects which side of each resolved subscription is notified.
type Notify struct {
	Subscriber bool `json:"subscriber,omitempty"`
	Subscribee bool `json:"subscribee,omitempty"`
}

// Roles returns the selected roles.
func (n Notify) Roles() []models.Role {
	var roles []models.Role
	if n.Subscriber {
		roles = append(roles, models.RoleSubscriber)
	}
	if n.Subscribee {
		roles = append(roles, models.RoleSubscribee)
	}
	return roles
}

// Empty reports whether nobody is to be notified.
func (n Notify) Empty() bool {
	return !n.Subscriber && !n.Subscribee
}

// EventSpec describes the event a publish creates, or, when ID is set, the
// patch applied to an existing event.
type EventSpec struct {
	ID  string     `json:"id,omitempty"`
	Set models.Doc `json:"$set,omitempty"`

	ActorID        string           `json:"actor_id,omitempty" validate:"required_without=ID"`
	TargetID       string           `json:"target_id,omitempty"`
	TargetAuthorID string           `json:"target_author_id,omitempty"`
	ActionID       string           `json:"action_id,omitempty" validate:"required_without=ID"`
	ActionType     string           `json:"action_type,omitempty" validate:"required_without=ID"`
	Public         *bool            `json:"public,omitempty"`
	Data           models.EventData `json:"data,omitempty"`
}

// Params are the arguments of a publish.
type Params struct {
	// Data is the raw payload sent on the channel.
	Data    models.Doc `json:"data" validate:"required"`
	Event   *EventSpec `json:"event,omitempty"`
	Options Options    `json:"options"`
	Notify  Notify     `json:"notify"`
}

// AuthorChannel returns the private channel of the member who authored
// data, or "" when data names no author.
func AuthorChannel(data models.Doc) string {
	var id string
	switch {
	case data.Doc("author") != nil:
		id = data.Doc("author").ID()
	case data.Doc("actor") != nil:
		id = data.Doc("actor").ID()
	case data.Str("author_id") != "":
		id = data.Str("author_id")
	default:
		id = data.Str("actor_id")
	}
	if id == "" {
		return ""
	}
	return MemberChannel(id)
}

// MemberChannel returns the private channel of a member.
func MemberChannel(memberID string) string {
	return "mem-" + memberID
}
