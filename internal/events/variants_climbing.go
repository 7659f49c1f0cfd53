package events

import (
	"context"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
)

// Join profiles: the fields of a related record shown inside another.
var (
	memberProfile = repositories.Profile{"username", "displayName", "gravatar", "facebook", "twitter"}
	cragProfile   = repositories.Profile{"name", "key", "country", "city", "lat", "lon", "author_id"}
	ascentProfile = repositories.Profile{"name", "key", "grade", "type", "sector", "crag_id", "author_id"}

	authorRef = repositories.Ref{Collection: "member", Fields: memberProfile}
	cragRef   = repositories.Ref{Collection: "crag", Fields: cragProfile}
	ascentRef = repositories.Ref{Collection: "ascent", Fields: ascentProfile}
)

var (
	byNewest = repositories.FillOptions{Sort: "created", Desc: true}
	byIndex  = repositories.FillOptions{Sort: "index"}
	// latestComments are the five newest comments, oldest first.
	latestComments = repositories.FillOptions{
		Sort:    "created",
		Desc:    true,
		Limit:   5,
		Reverse: true,
		Inflate: map[string]repositories.Ref{"author": authorRef},
	}
)

// ClimbingVariants returns the registry of the climbing domain.
func ClimbingVariants() *Registry {
	return NewRegistry().
		Register("post", VariantFunc(hydratePost)).
		Register("session", VariantFunc(hydrateSession)).
		Register("tick", VariantFunc(hydrateTick)).
		Register("crag", VariantFunc(hydrateCrag)).
		Register("ascent", VariantFunc(hydrateAscent)).
		Register("hangten", Wrapping("post", "tick")).
		Register("comment", Wrapping("post", "tick"))
}

func hydratePost(ctx context.Context, s *Scope, n Node) error {
	post := n.Entity()
	parents := []models.Doc{post}
	return s.Join(
		s.Inflate(ctx, post, map[string]repositories.Ref{"author": authorRef}),
		s.Fill(ctx, parents, "Medias", "parent_id", byNewest),
		s.Fill(ctx, parents, "Comments", "parent_id", latestComments),
		s.Fill(ctx, parents, "Hangtens", "parent_id", repositories.FillOptions{}),
	)
}

// hydrateSession expands a session into its actions and their ticks. Ticks
// the requestor may not see are dropped; a session left without ticks
// rejects the event.
func hydrateSession(ctx context.Context, s *Scope, n Node) error {
	session := n.Entity()
	err := s.Join(
		s.Inflate(ctx, session, map[string]repositories.Ref{"author": authorRef, "crag": cragRef}),
		s.Fill(ctx, []models.Doc{session}, "Actions", "session_id", byIndex),
	)
	if err != nil {
		return err
	}

	actions := session.Docs("actions")
	if err := s.Join(s.Fill(ctx, actions, "Ticks", "action_id", byIndex)); err != nil {
		return err
	}

	var ticks []models.Doc
	for _, a := range actions {
		ticks = append(ticks, a.Docs("ticks")...)
	}
	if err := s.Each(ctx, "tick", ticks); err != nil {
		return err
	}

	remaining := 0
	for _, a := range actions {
		kept := Keep(a.Docs("ticks"))
		a["ticks"] = kept
		remaining += len(kept)
	}
	if remaining == 0 {
		s.RejectEvent()
	}
	return nil
}

func hydrateTick(ctx context.Context, s *Scope, n Node) error {
	ok, err := s.Allowed(ctx, n)
	if err != nil || !ok {
		return err
	}
	tick := n.Entity()
	parents := []models.Doc{tick}
	return s.Join(
		s.Inflate(ctx, tick, map[string]repositories.Ref{"author": authorRef, "ascent": ascentRef, "crag": cragRef}),
		s.Fill(ctx, parents, "Medias", "parent_id", byNewest),
		s.Fill(ctx, parents, "Comments", "parent_id", latestComments),
		s.Fill(ctx, parents, "Hangtens", "parent_id", repositories.FillOptions{}),
	)
}

func hydrateCrag(ctx context.Context, s *Scope, n Node) error {
	ok, err := s.Allowed(ctx, n)
	if err != nil || !ok {
		return err
	}
	crag := n.Entity()
	return s.Join(
		s.Inflate(ctx, crag, map[string]repositories.Ref{"author": authorRef}),
		s.Fill(ctx, []models.Doc{crag}, "Hangtens", "parent_id", repositories.FillOptions{}),
	)
}

func hydrateAscent(ctx context.Context, s *Scope, n Node) error {
	ok, err := s.Allowed(ctx, n)
	if err != nil || !ok {
		return err
	}
	ascent := n.Entity()
	return s.Join(
		s.Inflate(ctx, ascent, map[string]repositories.Ref{"author": authorRef, "crag": cragRef}),
		s.Fill(ctx, []models.Doc{ascent}, "Hangtens", "parent_id", repositories.FillOptions{}),
	)
}

// Wrapping returns the variant of entities attached to a parent of another
// type, such as comments and reactions. The parent is joined as the event
// target and hydrated with its own variant when its type is in parents.
func Wrapping(parents ...string) Variant {
	allowed := make(map[string]bool, len(parents))
	for _, p := range parents {
		allowed[p] = true
	}
	return VariantFunc(func(ctx context.Context, s *Scope, n Node) error {
		action := n.Entity()
		parentType := action.Str("parent_type")

		steps := []Step{s.Inflate(ctx, action, map[string]repositories.Ref{"author": authorRef})}
		if parentType != "" {
			steps = append(steps, s.Inflate(ctx, n.Owner, map[string]repositories.Ref{
				"target": {Collection: parentType},
			}))
		}
		if err := s.Join(steps...); err != nil {
			return err
		}
		if !allowed[parentType] {
			return nil
		}
		return s.Hydrate(ctx, parentType, Node{Owner: n.Owner, Field: "target"})
	})
}
