package models

import "time"

// Style is the kind of relationship a subscription expresses.
type Style string

const (
	StyleRequest Style = "request"
	StyleWatch   Style = "watch"
	StyleFollow  Style = "follow"
	StyleAccept  Style = "accept"
)

// SubscriptionMeta describes what is subscribed to and how.
type SubscriptionMeta struct {
	// Type is the subscribee's entity kind (member, crag, dataset, ...).
	Type  string `json:"type" bson:"type" validate:"required"`
	Style Style  `json:"style" bson:"style" validate:"required,oneof=request watch follow"`
}

// Subscription links a subscriber to a subscribee (MongoDB).
// (subscriber_id, subscribee_id) is unique.
type Subscription struct {
	ID           string           `json:"id" bson:"_id"`
	SubscriberID string           `json:"subscriber_id" bson:"subscriber_id"`
	SubscribeeID string           `json:"subscribee_id" bson:"subscribee_id"`
	Meta         SubscriptionMeta `json:"meta" bson:"meta"`
	Mute         bool             `json:"mute" bson:"mute"`
	Created      time.Time        `json:"created" bson:"created"`

	// Resolved parties, never persisted.
	Subscriber       *Member `json:"subscriber,omitempty" bson:"-"`
	Subscribee       Doc     `json:"subscribee,omitempty" bson:"-"`
	SubscribeeMember *Member `json:"-" bson:"-"`
	Rejected         bool    `json:"-" bson:"-"`
}

// Recipient returns the member playing role on this subscription.
func (s *Subscription) Recipient(role Role) *Member {
	switch role {
	case RoleSubscriber:
		return s.Subscriber
	case RoleSubscribee:
		return s.SubscribeeMember
	}
	return nil
}

// Doc returns the subscription with its resolved parties as a document.
func (s *Subscription) Doc() Doc {
	d := Doc{
		"_id":           s.ID,
		"subscriber_id": s.SubscriberID,
		"subscribee_id": s.SubscribeeID,
		"meta":          Doc{"type": s.Meta.Type, "style": string(s.Meta.Style)},
		"mute":          s.Mute,
		"created":       s.Created,
	}
	if s.Subscriber != nil {
		d["subscriber"] = s.Subscriber.Doc()
	}
	if s.Subscribee != nil {
		d["subscribee"] = s.Subscribee.Clone()
	}
	return d
}

// Role names a side of a subscription that can receive notifications.
type Role string

const (
	RoleSubscriber Role = "subscriber"
	RoleSubscribee Role = "subscribee"
)
