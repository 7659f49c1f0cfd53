package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/google/uuid"
)

// Memory bundles in-memory implementations of every repository. It backs
// development runs without MongoDB and the engine tests.
type Memory struct {
	Subscriptions *MemorySubscriptionRepository
	Events        *MemoryEventRepository
	Notifications *MemoryNotificationRepository
	Members       *MemoryMemberRepository
	Joiner        *MemoryJoiner
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	members := &MemoryMemberRepository{members: make(map[string]*models.Member)}
	return &Memory{
		Subscriptions: &MemorySubscriptionRepository{subs: make(map[string]*models.Subscription)},
		Events:        &MemoryEventRepository{events: make(map[string]*models.Event)},
		Notifications: &MemoryNotificationRepository{notes: make(map[string]*models.Notification)},
		Members:       members,
		Joiner:        &MemoryJoiner{collections: make(map[string][]models.Doc), members: members},
	}
}

// --- Subscriptions ---

// MemorySubscriptionRepository implements SubscriptionRepository in memory
type MemorySubscriptionRepository struct {
	mu    sync.RWMutex
	subs  map[string]*models.Subscription
	order []string
}

func (r *MemorySubscriptionRepository) Create(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.SubscriberID == sub.SubscriberID && s.SubscribeeID == sub.SubscribeeID {
			return ErrConflict
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Created.IsZero() {
		sub.Created = time.Now()
	}
	r.subs[sub.ID] = storedSubscription(sub)
	r.order = append(r.order, sub.ID)
	return nil
}

func (r *MemorySubscriptionRepository) Read(_ context.Context, filter SubscriptionFilter) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if s, ok := r.subs[id]; ok && filter.matches(s) {
			return storedSubscription(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemorySubscriptionRepository) UpdateStyle(_ context.Context, id string, style models.Style) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return 0, nil
	}
	s.Meta.Style = style
	return 1, nil
}

func (r *MemorySubscriptionRepository) Remove(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return 0, nil
	}
	delete(r.subs, id)
	return 1, nil
}

func (r *MemorySubscriptionRepository) List(_ context.Context, filters ...SubscriptionFilter) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Subscription
	for _, id := range r.order {
		s, ok := r.subs[id]
		if !ok {
			continue
		}
		for _, f := range filters {
			if f.matches(s) {
				out = append(out, storedSubscription(s))
				break
			}
		}
	}
	return out, nil
}

// Len returns the number of stored subscriptions.
func (r *MemorySubscriptionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (f SubscriptionFilter) matches(s *models.Subscription) bool {
	if f.ID != "" && s.ID != f.ID {
		return false
	}
	if f.SubscriberID != "" && s.SubscriberID != f.SubscriberID {
		return false
	}
	if f.SubscribeeID != "" && s.SubscribeeID != f.SubscribeeID {
		return false
	}
	if f.Style != "" && s.Meta.Style != f.Style {
		return false
	}
	if f.Muted != nil && s.Mute != *f.Muted {
		return false
	}
	return true
}

// storedSubscription copies only the persisted fields.
func storedSubscription(s *models.Subscription) *models.Subscription {
	return &models.Subscription{
		ID:           s.ID,
		SubscriberID: s.SubscriberID,
		SubscribeeID: s.SubscribeeID,
		Meta:         s.Meta,
		Mute:         s.Mute,
		Created:      s.Created,
	}
}

// --- Events ---

// MemoryEventRepository implements EventRepository in memory
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*models.Event
}

func (r *MemoryEventRepository) Create(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if _, ok := r.events[event.ID]; ok {
		return ErrConflict
	}
	r.events[event.ID] = copyEvent(event)
	return nil
}

func (r *MemoryEventRepository) Read(_ context.Context, id string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(e), nil
}

func (r *MemoryEventRepository) Update(_ context.Context, id string, set models.Doc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range set {
		if err := applyEventField(e, k, v); err != nil {
			return err
		}
	}
	return nil
}

// All returns every stored event.
func (r *MemoryEventRepository) All() []*models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, copyEvent(e))
	}
	return out
}

func copyEvent(e *models.Event) *models.Event {
	c := *e
	c.Data = models.EventData{Action: e.Data.Action.Clone(), Target: e.Data.Target.Clone()}
	return &c
}

func applyEventField(e *models.Event, key string, v any) error {
	str := func() (string, error) {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("event field %s: want string, got %T", key, v)
		}
		return s, nil
	}
	var err error
	switch key {
	case "actor_id":
		e.ActorID, err = str()
	case "target_id":
		e.TargetID, err = str()
	case "target_author_id":
		e.TargetAuthorID, err = str()
	case "action_id":
		e.ActionID, err = str()
	case "action_type":
		e.ActionType, err = str()
	case "public":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("event field public: want bool, got %T", v)
		}
		e.Public = b
	case "date":
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("event field date: want time, got %T", v)
		}
		e.Date = t
	case "data.action":
		e.Data.Action = models.AsDoc(v).Clone()
	case "data.target":
		e.Data.Target = models.AsDoc(v).Clone()
	default:
		switch {
		case strings.HasPrefix(key, "data.action."):
			if e.Data.Action == nil {
				e.Data.Action = models.Doc{}
			}
			e.Data.Action[strings.TrimPrefix(key, "data.action.")] = v
		case strings.HasPrefix(key, "data.target."):
			if e.Data.Target == nil {
				e.Data.Target = models.Doc{}
			}
			e.Data.Target[strings.TrimPrefix(key, "data.target.")] = v
		default:
			return fmt.Errorf("event field %s: not updatable", key)
		}
	}
	return err
}

// --- Notifications ---

// MemoryNotificationRepository implements NotificationRepository in memory
type MemoryNotificationRepository struct {
	mu    sync.RWMutex
	notes map[string]*models.Notification
	order []string
}

func (r *MemoryNotificationRepository) Create(_ context.Context, note *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.Created.IsZero() {
		note.Created = time.Now()
	}
	c := *note
	c.Event = nil
	r.notes[note.ID] = &c
	r.order = append(r.order, note.ID)
	return nil
}

func (r *MemoryNotificationRepository) ListBySubscription(_ context.Context, subscriptionID string) ([]*models.Notification, error) {
	return r.filter(func(n *models.Notification) bool { return n.SubscriptionID == subscriptionID }), nil
}

func (r *MemoryNotificationRepository) RemoveBySubscription(_ context.Context, subscriptionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, n := range r.notes {
		if n.SubscriptionID == subscriptionID {
			delete(r.notes, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryNotificationRepository) ListBySubscriber(_ context.Context, subscriberID string, skip, limit int64) ([]*models.Notification, error) {
	all := r.filter(func(n *models.Notification) bool { return n.SubscriberID == subscriberID })
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if skip >= int64(len(all)) {
		return nil, nil
	}
	all = all[skip:]
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryNotificationRepository) MarkAsRead(_ context.Context, id, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.SubscriberID != subscriberID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *MemoryNotificationRepository) MarkAllAsRead(_ context.Context, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes {
		if n.SubscriberID == subscriberID {
			n.Read = true
		}
	}
	return nil
}

// All returns every stored notification in creation order.
func (r *MemoryNotificationRepository) All() []*models.Notification {
	return r.filter(func(*models.Notification) bool { return true })
}

func (r *MemoryNotificationRepository) filter(keep func(*models.Notification) bool) []*models.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Notification
	for _, id := range r.order {
		n, ok := r.notes[id]
		if ok && keep(n) {
			c := *n
			out = append(out, &c)
		}
	}
	return out
}

// --- Members ---

// MemoryMemberRepository implements MemberRepository in memory
type MemoryMemberRepository struct {
	mu      sync.RWMutex
	members map[string]*models.Member
}

func (r *MemoryMemberRepository) Get(_ context.Context, id string) (*models.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m
	return &c, nil
}

func (r *MemoryMemberRepository) GetMany(_ context.Context, ids []string) (map[string]*models.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*models.Member, len(ids))
	for _, id := range ids {
		if m, ok := r.members[id]; ok {
			c := *m
			out[id] = &c
		}
	}
	return out, nil
}

func (r *MemoryMemberRepository) Save(_ context.Context, member *models.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	c := *member
	r.members[member.ID] = &c
	return nil
}

// --- Joiner ---

// MemoryJoiner implements Joiner over in-memory collections. Member
// references are served by the member repository.
type MemoryJoiner struct {
	mu          sync.RWMutex
	collections map[string][]models.Doc
	members     *MemoryMemberRepository
}

// Insert adds doc to collection, assigning an id when it has none.
func (j *MemoryJoiner) Insert(collection string, doc models.Doc) models.Doc {
	j.mu.Lock()
	defer j.mu.Unlock()
	if doc.ID() == "" {
		doc["_id"] = uuid.NewString()
	}
	name := CollectionName(collection)
	j.collections[name] = append(j.collections[name], doc.Clone())
	return doc
}

func (j *MemoryJoiner) Load(ctx context.Context, collection, id string) (models.Doc, error) {
	if CollectionName(collection) == memberCollection {
		m, err := j.members.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return m.Doc(), nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, d := range j.collections[CollectionName(collection)] {
		if d.ID() == id {
			return d.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (j *MemoryJoiner) Resolve(ctx context.Context, doc models.Doc, refs map[string]Ref) (map[string]models.Doc, error) {
	out := make(map[string]models.Doc, len(refs))
	for field, ref := range refs {
		id := doc.Str(field + "_id")
		if id == "" {
			continue
		}
		related, err := j.Load(ctx, ref.Collection, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[field] = ref.Fields.Project(related)
	}
	return out, nil
}

func (j *MemoryJoiner) Children(ctx context.Context, parentIDs []string, collection, key string, opts FillOptions) (map[string][]models.Doc, error) {
	out := make(map[string][]models.Doc, len(parentIDs))
	for _, id := range parentIDs {
		j.mu.RLock()
		var children []models.Doc
		for _, d := range j.collections[CollectionName(collection)] {
			if d.Str(key) == id {
				children = append(children, d.Clone())
			}
		}
		j.mu.RUnlock()

		if opts.Sort != "" {
			sort.SliceStable(children, func(a, b int) bool {
				c := compareValues(children[a][opts.Sort], children[b][opts.Sort])
				if opts.Desc {
					return c > 0
				}
				return c < 0
			})
		}
		if opts.Limit > 0 && int64(len(children)) > opts.Limit {
			children = children[:opts.Limit]
		}
		if opts.Reverse {
			for a, b := 0, len(children)-1; a < b; a, b = a+1, b-1 {
				children[a], children[b] = children[b], children[a]
			}
		}
		for _, child := range children {
			if err := Inflate(ctx, j, child, opts.Inflate); err != nil {
				return nil, err
			}
		}
		out[id] = children
	}
	return out, nil
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case int:
		if y, ok := b.(int); ok {
			return x - y
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	return 0
}
