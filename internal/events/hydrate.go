package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/anonto42/nano-midea/fanout/internal/logging"
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"golang.org/x/sync/errgroup"
)

// rejectKey marks a collection item denied to the requestor. Keys starting
// with "_" never reach clients.
const rejectKey = "_reject"

// Node locates an entity under hydration: Owner[Field], or Owner itself
// when Field is empty. Entities hanging off a field stand for the whole
// event, so denying them rejects the event; bare entities are items of a
// collection and only they are dropped.
type Node struct {
	Owner models.Doc
	Field string
}

// Entity returns the located document.
func (n Node) Entity() models.Doc {
	if n.Field == "" {
		return n.Owner
	}
	return n.Owner.Doc(n.Field)
}

// Variant hydrates the entity of one action type in place.
type Variant interface {
	Hydrate(ctx context.Context, s *Scope, n Node) error
}

// VariantFunc adapts a function to Variant.
type VariantFunc func(ctx context.Context, s *Scope, n Node) error

func (f VariantFunc) Hydrate(ctx context.Context, s *Scope, n Node) error {
	return f(ctx, s, n)
}

// Registry maps action types to variants.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{variants: make(map[string]Variant)}
}

// Register binds tag to v, replacing any previous variant.
func (r *Registry) Register(tag string, v Variant) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[tag] = v
	return r
}

// Lookup returns the variant bound to tag.
func (r *Registry) Lookup(tag string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[tag]
	return v, ok
}

// Scope is one hydration pass over one event on behalf of a requestor.
type Scope struct {
	// Requestor is the member the view is built for; empty is anonymous.
	Requestor string

	joiner   repositories.Joiner
	access   Access
	registry *Registry
	rejected atomic.Bool
}

// Hydrate expands n with the variant registered for tag. Unknown tags and
// missing entities are left as they are.
func (s *Scope) Hydrate(ctx context.Context, tag string, n Node) error {
	v, ok := s.registry.Lookup(tag)
	if !ok || n.Entity() == nil {
		return nil
	}
	return v.Hydrate(ctx, s, n)
}

// Allowed checks the requestor's access to n, rejecting it on denial.
func (s *Scope) Allowed(ctx context.Context, n Node) (bool, error) {
	ok, err := s.access.CanAccess(ctx, s.Requestor, n.Entity())
	if err != nil {
		return false, err
	}
	if !ok {
		s.Reject(n)
	}
	return ok, nil
}

// Reject denies n: the whole event for field entities, the item otherwise.
func (s *Scope) Reject(n Node) {
	if n.Field != "" {
		s.RejectEvent()
		return
	}
	n.Owner[rejectKey] = true
}

// RejectEvent vetoes delivery of the event.
func (s *Scope) RejectEvent() {
	s.rejected.Store(true)
}

// Rejected reports whether the event was vetoed.
func (s *Scope) Rejected() bool {
	return s.rejected.Load()
}

// Join runs steps concurrently and, once every step succeeded, applies
// their results in order. The first error wins; the other steps still run
// to completion and their results are dropped.
func (s *Scope) Join(steps ...Step) error {
	var g errgroup.Group
	patches := make([]func(), len(steps))
	for i, step := range steps {
		g.Go(func() error {
			apply, err := step()
			if err != nil {
				return err
			}
			patches[i] = apply
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, apply := range patches {
		if apply != nil {
			apply()
		}
	}
	return nil
}

// Step is a read that returns how to apply its result.
type Step func() (apply func(), err error)

// Inflate joins the records referenced by doc into doc.
func (s *Scope) Inflate(ctx context.Context, doc models.Doc, refs map[string]repositories.Ref) Step {
	return func() (func(), error) {
		related, err := s.joiner.Resolve(ctx, doc, refs)
		if err != nil {
			return nil, err
		}
		return func() {
			for field, d := range related {
				doc[field] = d
			}
		}, nil
	}
}

// Fill attaches to each parent its children from collection.
func (s *Scope) Fill(ctx context.Context, parents []models.Doc, collection, key string, opts repositories.FillOptions) Step {
	ids := repositories.ParentIDs(parents)
	return func() (func(), error) {
		children, err := s.joiner.Children(ctx, ids, collection, key, opts)
		if err != nil {
			return nil, err
		}
		return func() {
			repositories.AttachChildren(parents, children, opts.Field(collection))
		}, nil
	}
}

// Each hydrates every item with the variant for tag, concurrently.
func (s *Scope) Each(ctx context.Context, tag string, items []models.Doc) error {
	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			return s.Hydrate(ctx, tag, Node{Owner: item})
		})
	}
	return g.Wait()
}

// Keep drops the rejected items.
func Keep(items []models.Doc) []models.Doc {
	out := make([]models.Doc, 0, len(items))
	for _, item := range items {
		if !item.Bool(rejectKey, false) {
			out = append(out, item)
		}
	}
	return out
}

// hydrate builds the client view of event for requestor. It reports false
// when authorization rejected the event.
func (e *Engine) hydrate(ctx context.Context, event *models.Event, requestor string) (models.Doc, bool, error) {
	doc := event.Doc()
	if models.IsSnapshotAction(event.ActionType) {
		return doc, true, nil
	}

	s := &Scope{Requestor: requestor, joiner: e.cfg.Joiner, access: e.cfg.Access, registry: e.cfg.Variants}
	err := s.Join(s.Inflate(ctx, doc, map[string]repositories.Ref{
		"action": {Collection: event.ActionType},
	}))
	if err != nil {
		return nil, false, err
	}
	if doc.Doc("action") == nil {
		// the action no longer exists: deliver the snapshot stored with the
		// event, still subject to access
		logging.With(e.cfg.Logger.Warn(), logging.EventID(event.ID)).
			Str("action_type", event.ActionType).
			Msg("action not found, using stored snapshot")
		ok, err := s.Allowed(ctx, Node{Owner: doc.Doc("data"), Field: "action"})
		if err != nil {
			return nil, false, err
		}
		return doc, ok, nil
	}
	if err := s.Hydrate(ctx, event.ActionType, Node{Owner: doc, Field: "action"}); err != nil {
		return nil, false, err
	}
	return doc, !s.Rejected(), nil
}
