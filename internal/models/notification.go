package models

import "time"

// Notification is one persisted delivery of an event to a member (MongoDB)
type Notification struct {
	ID             string    `json:"id" bson:"_id"`
	SubscriberID   string    `json:"subscriber_id" bson:"subscriber_id"`
	SubscriptionID string    `json:"subscription_id" bson:"subscription_id"`
	EventID        string    `json:"event_id" bson:"event_id"`
	Read           bool      `json:"read" bson:"read"`
	Created        time.Time `json:"created" bson:"created"`

	// Event is attached for live delivery only.
	Event *Event `json:"event,omitempty" bson:"-"`
}

// Doc returns the notification, with its event when attached.
func (n *Notification) Doc() Doc {
	d := Doc{
		"_id":             n.ID,
		"subscriber_id":   n.SubscriberID,
		"subscription_id": n.SubscriptionID,
		"event_id":        n.EventID,
		"read":            n.Read,
		"created":         n.Created,
	}
	if n.Event != nil {
		d["event"] = n.Event.Doc()
	}
	return d
}
