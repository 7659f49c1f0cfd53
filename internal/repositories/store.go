package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/anonto42/nano-midea/fanout/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("duplicate record")
)

// SubscriptionFilter matches subscriptions. Empty fields are ignored.
type SubscriptionFilter struct {
	ID           string
	SubscriberID string
	SubscribeeID string
	Style        models.Style
	// Muted restricts the mute flag when set.
	Muted *bool
}

// Unmuted is a convenience for SubscriptionFilter.Muted.
func Unmuted() *bool {
	f := false
	return &f
}

// SubscriptionRepository defines the interface for subscription data operations
type SubscriptionRepository interface {
	// Create stores sub, assigning an id. Returns ErrConflict for a taken pair.
	Create(ctx context.Context, sub *models.Subscription) error
	// Read returns the first subscription matching filter or ErrNotFound.
	Read(ctx context.Context, filter SubscriptionFilter) (*models.Subscription, error)
	// UpdateStyle sets meta.style and returns the number of records updated.
	UpdateStyle(ctx context.Context, id string, style models.Style) (int64, error)
	// Remove deletes by id and returns the number of records removed.
	Remove(ctx context.Context, id string) (int64, error)
	// List returns subscriptions matching any of filters.
	List(ctx context.Context, filters ...SubscriptionFilter) ([]*models.Subscription, error)
}

// EventRepository defines the interface for event data operations
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	Read(ctx context.Context, id string) (*models.Event, error)
	// Update applies a $set style patch to the event.
	Update(ctx context.Context, id string, set models.Doc) error
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	Create(ctx context.Context, note *models.Notification) error
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.Notification, error)
	RemoveBySubscription(ctx context.Context, subscriptionID string) (int64, error)
	ListBySubscriber(ctx context.Context, subscriberID string, skip, limit int64) ([]*models.Notification, error)
	MarkAsRead(ctx context.Context, id, subscriberID string) error
	MarkAllAsRead(ctx context.Context, subscriberID string) error
}

// MemberRepository defines the interface for member profile lookups
type MemberRepository interface {
	Get(ctx context.Context, id string) (*models.Member, error)
	// GetMany returns the members found, keyed by id. Missing ids are skipped.
	GetMany(ctx context.Context, ids []string) (map[string]*models.Member, error)
	Save(ctx context.Context, member *models.Member) error
}

// Profile is the set of fields included when a related record is joined.
// An empty profile includes every field.
type Profile []string

// Project returns the profile's view of doc. The id is always kept.
func (p Profile) Project(doc models.Doc) models.Doc {
	if doc == nil {
		return nil
	}
	if len(p) == 0 {
		return doc.Clone()
	}
	out := models.Doc{"_id": doc.ID()}
	for _, f := range p {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out.Clone()
}

// With returns a copy of p extended with fields.
func (p Profile) With(fields ...string) Profile {
	out := make(Profile, 0, len(p)+len(fields))
	out = append(out, p...)
	return append(out, fields...)
}

// Ref describes a related record: the collection it lives in and the
// profile to include.
type Ref struct {
	Collection string
	Fields     Profile
}

// FillOptions controls a reverse join.
type FillOptions struct {
	// As is the field the children are stored under. Defaults to the
	// collection name.
	As string
	// Sort is the field children are ordered by; Desc reverses it.
	Sort string
	Desc bool
	// Limit bounds the number of children; zero means unbounded.
	Limit int64
	// Reverse flips the limited result, e.g. to show the latest comments
	// oldest first.
	Reverse bool
	// Inflate joins related records into every child.
	Inflate map[string]Ref
}

// Field returns the field children of collection are stored under.
func (o FillOptions) Field(collection string) string {
	if o.As != "" {
		return o.As
	}
	return strings.ToLower(collection)
}

// Joiner resolves foreign-key relationships between documents. Lookups
// never modify their inputs, so they can run concurrently against the same
// document; Inflate and Fill apply the results in place.
type Joiner interface {
	// Resolve returns, for every field in refs, the record referenced by
	// doc[field+"_id"]. Dangling references are skipped.
	Resolve(ctx context.Context, doc models.Doc, refs map[string]Ref) (map[string]models.Doc, error)
	// Children returns the records of collection whose key equals one of
	// parentIDs, grouped by parent id and ordered by opts.
	Children(ctx context.Context, parentIDs []string, collection, key string, opts FillOptions) (map[string][]models.Doc, error)
	// Load reads one record of collection by id. Returns ErrNotFound.
	Load(ctx context.Context, collection, id string) (models.Doc, error)
}

// Inflate replaces doc[field] with the record referenced by doc[field+"_id"]
// for every field in refs.
func Inflate(ctx context.Context, j Joiner, doc models.Doc, refs map[string]Ref) error {
	if doc == nil || len(refs) == 0 {
		return nil
	}
	related, err := j.Resolve(ctx, doc, refs)
	if err != nil {
		return err
	}
	for field, d := range related {
		doc[field] = d
	}
	return nil
}

// Fill attaches to every parent the records of collection whose key equals
// the parent id. Parents without children get an empty list.
func Fill(ctx context.Context, j Joiner, parents []models.Doc, collection, key string, opts FillOptions) error {
	children, err := j.Children(ctx, ParentIDs(parents), collection, key, opts)
	if err != nil {
		return err
	}
	AttachChildren(parents, children, opts.Field(collection))
	return nil
}

// ParentIDs returns the ids of parents, skipping nil documents.
func ParentIDs(parents []models.Doc) []string {
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		if p != nil {
			ids = append(ids, p.ID())
		}
	}
	return ids
}

// AttachChildren stores the grouped children on their parents under field.
func AttachChildren(parents []models.Doc, children map[string][]models.Doc, field string) {
	for _, p := range parents {
		if p == nil {
			continue
		}
		kids := children[p.ID()]
		if kids == nil {
			kids = []models.Doc{}
		}
		p[field] = kids
	}
}

const memberCollection = "members"

// CollectionName maps an entity kind (post, tick, Comments) to the name of
// the collection holding it.
func CollectionName(kind string) string {
	name := strings.ToLower(kind)
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name
}
