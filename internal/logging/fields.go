package logging

import (
	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// With applies fields to e and returns it for chaining.
func With(e *bolt.Event, fields ...Field) *bolt.Event {
	for _, f := range fields {
		e = f(e)
	}
	return e
}

// Channel adds the publish channel.
func Channel(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("channel", name)
	}
}

// Topic adds the publish topic.
func Topic(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("topic", name)
	}
}

// EventID adds an event id.
func EventID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("event_id", id)
	}
}

// SubscriptionID adds a subscription id.
func SubscriptionID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("subscription_id", id)
	}
}

// MemberID adds a member id.
func MemberID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("member_id", id)
	}
}

// Count adds a named count.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Err adds an error. Nil errors are skipped.
func Err(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}
