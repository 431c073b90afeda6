package storage

import (
	"context"

	"momenta/internal/model"
)

// Store defines persistence operations for experiment configurations and
// their aggregated moment results.
type Store interface {
	Init(ctx context.Context) error
	SaveExperiment(ctx context.Context, exp model.ExperimentRecord) error
	GetExperiment(ctx context.Context, id string) (model.ExperimentRecord, bool, error)
	ListExperimentIDs(ctx context.Context) ([]string, error)
	SaveMoments(ctx context.Context, agg model.AggregatedMoments) error
	GetMoments(ctx context.Context, runID string) (model.AggregatedMoments, bool, error)
	Reset(ctx context.Context) error
}
