// Package storage defines persistence contracts for experiment state and
// the append-only behavioral event journal.
package storage

import (
	"context"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// VariantTally holds the per-variant behavioral counts for one experiment.
type VariantTally struct {
	Impressions int64
	Clicks      int64
}

// VariantCounts groups tallies by variant. Counts are recomputed from the
// journal on every read; there is no read-your-writes guarantee across
// processes.
type VariantCounts struct {
	A VariantTally
	B VariantTally
}

// Total returns the combined impression count across both variants.
func (c VariantCounts) Total() int64 {
	return c.A.Impressions + c.B.Impressions
}

// TotalClicks returns the combined click count across both variants.
func (c VariantCounts) TotalClicks() int64 {
	return c.A.Clicks + c.B.Clicks
}

// EventStore persists the append-only behavioral event journal. Events are
// never updated or deleted individually; PurgeEvents removes them in bulk
// per experiment.
type EventStore interface {
	AppendEvent(ctx context.Context, event domain.Event) (int64, error)
	CountEvents(ctx context.Context, contentRef, experimentID string) (VariantCounts, error)
	CountEventsMany(ctx context.Context, contentRef string, experimentIDs []string) (map[string]VariantCounts, error)
	PurgeEvents(ctx context.Context, contentRef, experimentID string) (int64, error)
}

// ExperimentStore persists experiment lifecycle records.
type ExperimentStore interface {
	PutExperiment(ctx context.Context, experiment domain.Experiment) error
	GetExperiment(ctx context.Context, contentRef, experimentID string) (domain.Experiment, error)
	ListExperimentsByGroup(ctx context.Context, contentRef, groupKey string) ([]domain.Experiment, error)
	DeleteExperiment(ctx context.Context, contentRef, experimentID string) error
}

// MilestoneStore persists one-shot onboarding milestone flags.
type MilestoneStore interface {
	MarkMilestone(ctx context.Context, name string) (bool, error)
	SeenMilestones(ctx context.Context) ([]string, error)
}

// Store is the full persistence surface the service wires at startup.
type Store interface {
	EventStore
	ExperimentStore
	MilestoneStore
	Close() error
}
