package lifecycle

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/evaluator"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

// memStore is an in-memory storage.Store for controller tests.
type memStore struct {
	mu          sync.Mutex
	events      []domain.Event
	experiments map[string]domain.Experiment
	milestones  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		experiments: make(map[string]domain.Experiment),
		milestones:  make(map[string]bool),
	}
}

func key(contentRef, experimentID string) string {
	return contentRef + "/" + experimentID
}

func (s *memStore) AppendEvent(ctx context.Context, event domain.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return int64(len(s.events)), nil
}

func (s *memStore) CountEvents(ctx context.Context, contentRef, experimentID string) (storage.VariantCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts storage.VariantCounts
	for _, event := range s.events {
		if event.ContentRef != contentRef || event.ExperimentID != experimentID {
			continue
		}
		tally := &counts.A
		if event.Variant == domain.VariantB {
			tally = &counts.B
		} else if event.Variant != domain.VariantA {
			continue
		}
		switch event.Kind {
		case domain.KindImpression:
			tally.Impressions++
		case domain.KindClick:
			tally.Clicks++
		}
	}
	return counts, nil
}

func (s *memStore) CountEventsMany(ctx context.Context, contentRef string, experimentIDs []string) (map[string]storage.VariantCounts, error) {
	result := make(map[string]storage.VariantCounts, len(experimentIDs))
	for _, id := range experimentIDs {
		counts, err := s.CountEvents(ctx, contentRef, id)
		if err != nil {
			return nil, err
		}
		result[id] = counts
	}
	return result, nil
}

func (s *memStore) PurgeEvents(ctx context.Context, contentRef, experimentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, event := range s.events {
		if event.ContentRef == contentRef && event.ExperimentID == experimentID {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	s.events = kept
	return deleted, nil
}

func (s *memStore) PutExperiment(ctx context.Context, experiment domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[key(experiment.ContentRef, experiment.ID)] = experiment
	return nil
}

func (s *memStore) GetExperiment(ctx context.Context, contentRef, experimentID string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	experiment, ok := s.experiments[key(contentRef, experimentID)]
	if !ok {
		return domain.Experiment{}, storage.ErrNotFound
	}
	return experiment, nil
}

func (s *memStore) ListExperimentsByGroup(ctx context.Context, contentRef, groupKey string) ([]domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []domain.Experiment
	for _, experiment := range s.experiments {
		if experiment.ContentRef == contentRef && experiment.GroupKey == groupKey {
			members = append(members, experiment)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (s *memStore) DeleteExperiment(ctx context.Context, contentRef, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.experiments, key(contentRef, experimentID))
	return nil
}

func (s *memStore) MarkMilestone(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.milestones[name] {
		return false, nil
	}
	s.milestones[name] = true
	return true, nil
}

func (s *memStore) SeenMilestones(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.milestones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) eventsOfKind(kind domain.Kind) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Event
	for _, event := range s.events {
		if event.Kind == kind {
			matched = append(matched, event)
		}
	}
	return matched
}

// fakeDecider returns a scripted decision.
type fakeDecider struct {
	decision evaluator.Decision
	err      error
	calls    int
}

func (f *fakeDecider) Evaluate(ctx context.Context, contentRef, experimentID string) (evaluator.Decision, error) {
	f.calls++
	if f.err != nil {
		return evaluator.Decision{}, f.err
	}
	return f.decision, nil
}

// fakeApplier records winner applications.
type fakeApplier struct {
	applied map[string]string
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{applied: make(map[string]string)}
}

func (f *fakeApplier) ApplyWinner(ctx context.Context, experiment domain.Experiment, content string) error {
	f.applied[experiment.ID] = content
	return nil
}

func variantPayload(text string) string {
	return `{"text":"` + strings.ReplaceAll(text, `"`, ``) + `"}`
}
