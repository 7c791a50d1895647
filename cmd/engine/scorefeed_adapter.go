package main

import (
	"context"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// unimplementedAdapter satisfies scorefeed.Adapter with no events. Real
// per-league score-feed clients are treated as external collaborators and
// are out of scope; this keeps the Classifier's Score Feed dependency
// wired and compiling without inventing a scraper for any specific league.
type unimplementedAdapter struct{}

func (unimplementedAdapter) FetchEvents(_ context.Context, _ string) ([]types.ScoringEvent, error) {
	return nil, nil
}
