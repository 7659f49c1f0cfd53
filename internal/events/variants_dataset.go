package events

import (
	"context"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
)

var (
	datasetProfile = repositories.Profile{"title", "slug", "author_id", "public"}
	datasetRef     = repositories.Ref{Collection: "dataset", Fields: datasetProfile}
)

// DatasetVariants returns the registry of the dataset domain, where
// members publish datasets and views over them and annotate both.
func DatasetVariants() *Registry {
	return NewRegistry().
		Register("dataset", VariantFunc(hydrateDataset)).
		Register("view", VariantFunc(hydrateView)).
		Register("note", Wrapping("dataset", "view")).
		Register("comment", Wrapping("dataset", "view"))
}

func hydrateDataset(ctx context.Context, s *Scope, n Node) error {
	ok, err := s.Allowed(ctx, n)
	if err != nil || !ok {
		return err
	}
	dataset := n.Entity()
	parents := []models.Doc{dataset}
	return s.Join(
		s.Inflate(ctx, dataset, map[string]repositories.Ref{"author": authorRef}),
		s.Fill(ctx, parents, "Views", "dataset_id", byNewest),
		s.Fill(ctx, parents, "Notes", "parent_id", latestComments),
		s.Fill(ctx, parents, "Comments", "parent_id", latestComments),
	)
}

func hydrateView(ctx context.Context, s *Scope, n Node) error {
	ok, err := s.Allowed(ctx, n)
	if err != nil || !ok {
		return err
	}
	view := n.Entity()
	parents := []models.Doc{view}
	return s.Join(
		s.Inflate(ctx, view, map[string]repositories.Ref{"author": authorRef, "dataset": datasetRef}),
		s.Fill(ctx, parents, "Notes", "parent_id", latestComments),
		s.Fill(ctx, parents, "Comments", "parent_id", latestComments),
	)
}
