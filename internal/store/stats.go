package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for basic
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	verifications countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the verifications
// collection.
func NewStatsProvider(verifications countCollection) *StatsProvider {
	return &StatsProvider{verifications: verifications}
}

// CountVerifications returns the number of live verification records.
func (p *StatsProvider) CountVerifications(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.verifications == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.verifications.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count verifications: %w", err)
	}

	return count, nil
}
