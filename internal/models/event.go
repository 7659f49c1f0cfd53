package models

import "time"

// Action types that carry only the identity snapshot taken at publish time.
var snapshotActionTypes = map[string]bool{
	string(StyleWatch):   true,
	string(StyleFollow):  true,
	string(StyleRequest): true,
	string(StyleAccept):  true,
}

// IsSnapshotAction reports whether actionType skips variant hydration.
func IsSnapshotAction(actionType string) bool {
	return snapshotActionTypes[actionType]
}

// EventData is the denormalized payload stored with an event.
type EventData struct {
	Action Doc `json:"action,omitempty" bson:"action,omitempty"`
	Target Doc `json:"target,omitempty" bson:"target,omitempty"`
}

// Event is a durable record of one publishable action (MongoDB).
type Event struct {
	ID             string    `json:"id" bson:"_id"`
	ActorID        string    `json:"actor_id" bson:"actor_id"`
	TargetID       string    `json:"target_id,omitempty" bson:"target_id,omitempty"`
	TargetAuthorID string    `json:"target_author_id,omitempty" bson:"target_author_id,omitempty"`
	ActionID       string    `json:"action_id" bson:"action_id"`
	ActionType     string    `json:"action_type" bson:"action_type"`
	Date           time.Time `json:"date" bson:"date"`
	Public         bool      `json:"public" bson:"public"`
	Data           EventData `json:"data" bson:"data"`
}

// Doc returns a deep copy of the event as a document, the starting point
// of hydration.
func (e *Event) Doc() Doc {
	d := Doc{
		"_id":         e.ID,
		"actor_id":    e.ActorID,
		"action_id":   e.ActionID,
		"action_type": e.ActionType,
		"date":        e.Date,
		"public":      e.Public,
	}
	if e.TargetID != "" {
		d["target_id"] = e.TargetID
	}
	if e.TargetAuthorID != "" {
		d["target_author_id"] = e.TargetAuthorID
	}
	data := Doc{}
	if e.Data.Action != nil {
		data["action"] = e.Data.Action.Clone()
	}
	if e.Data.Target != nil {
		data["target"] = e.Data.Target.Clone()
	}
	d["data"] = data
	return d
}
