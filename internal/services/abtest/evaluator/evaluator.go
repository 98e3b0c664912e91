// Package evaluator decides experiment outcomes from the behavioral event
// journal. It fits independent Beta posteriors to each variant's click-through
// rate and compares them with paired Monte Carlo draws.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/random"
	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/sampler"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

const (
	// priorStrength is the total pseudo-observation weight of the Beta(5,5)
	// prior, split evenly between successes and failures.
	priorStrength = 10
	// defaultSamples is the number of paired posterior draws per evaluation.
	defaultSamples = 50000

	// winnerThreshold is the posterior probability a variant must exceed,
	// together with a credible interval clear of zero, to be declared winner.
	winnerThreshold = 0.95
)

// Neutral decision messages for the low-data early exits.
const (
	MessageNoImpressions = "No impressions recorded yet."
	MessageOneVariant    = "Only one variant has impressions — test needs more data."
	MessageNoClicks      = "No clicks yet — defaulting to 50/50."
)

// Decision is the outcome of one evaluation. Insufficient data is not an
// error; it yields a neutral decision with a human-readable message.
type Decision struct {
	ProbA   float64
	ProbB   float64
	CILower float64
	CIUpper float64
	Winner  domain.Variant
	Message string
	Counts  storage.VariantCounts
}

// Conclusive reports whether a winner was declared.
func (d Decision) Conclusive() bool {
	return d.Winner.IsValid()
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSamples overrides the Monte Carlo draw count.
func WithSamples(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.samples = n
		}
	}
}

// WithSeedFn overrides the sampler seed source, fixing evaluations for tests.
func WithSeedFn(fn func() (int64, error)) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.seedFn = fn
		}
	}
}

// Evaluator computes experiment decisions from stored event counts.
type Evaluator struct {
	events      storage.EventStore
	experiments storage.ExperimentStore
	samples     int
	seedFn      func() (int64, error)
}

// New returns an Evaluator reading counts from events and conversion-source
// wiring from experiments. The experiments store may be nil; evaluation then
// skips conversion-source click merging.
func New(events storage.EventStore, experiments storage.ExperimentStore, opts ...Option) *Evaluator {
	e := &Evaluator{
		events:      events,
		experiments: experiments,
		samples:     defaultSamples,
		seedFn:      random.NewSeed,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate compares the two variants of one experiment and returns a
// Decision. Clicks recorded against the experiment's conversion sources are
// merged into its own click counts before any data-sufficiency check.
func (e *Evaluator) Evaluate(ctx context.Context, contentRef, experimentID string) (Decision, error) {
	if e == nil || e.events == nil {
		return Decision{}, fmt.Errorf("event store is not configured")
	}
	contentRef, experimentID, err := domain.NormalizeExperimentKey(contentRef, experimentID)
	if err != nil {
		code := apperrors.CodeExperimentIDEmpty
		if errors.Is(err, domain.ErrEmptyContentRef) {
			code = apperrors.CodeContentRefInvalid
		}
		return Decision{}, apperrors.Wrap(code, "invalid experiment key", err)
	}

	counts, err := e.events.CountEvents(ctx, contentRef, experimentID)
	if err != nil {
		return Decision{}, apperrors.Wrap(apperrors.CodeStorageFault, "count events", err)
	}

	counts, err = e.mergeConversionSources(ctx, contentRef, experimentID, counts)
	if err != nil {
		return Decision{}, err
	}

	impA, clkA := counts.A.Impressions, counts.A.Clicks
	impB, clkB := counts.B.Impressions, counts.B.Clicks

	if impA == 0 && impB == 0 {
		return neutralDecision(counts, MessageNoImpressions), nil
	}
	if impA == 0 || impB == 0 {
		return neutralDecision(counts, MessageOneVariant), nil
	}
	if clkA == 0 && clkB == 0 {
		return neutralDecision(counts, MessageNoClicks), nil
	}

	seed, err := e.seedFn()
	if err != nil {
		return Decision{}, fmt.Errorf("seed sampler: %w", err)
	}
	s := sampler.New(seed)

	alphaA := float64(priorStrength)/2 + float64(clkA)
	betaA := float64(priorStrength)/2 + float64(max64(0, impA-clkA))
	alphaB := float64(priorStrength)/2 + float64(clkB)
	betaB := float64(priorStrength)/2 + float64(max64(0, impB-clkB))

	countA := 0
	diffs := make([]float64, e.samples)
	for i := 0; i < e.samples; i++ {
		sampA := s.Beta(alphaA, betaA)
		sampB := s.Beta(alphaB, betaB)
		if sampA > sampB {
			countA++
		}
		diffs[i] = sampA - sampB
	}

	probA := float64(countA) / float64(e.samples)
	probB := 1 - probA
	sort.Float64s(diffs)
	ciLower := diffs[int(0.025*float64(e.samples))]
	ciUpper := diffs[int(0.975*float64(e.samples))]

	var winner domain.Variant
	switch {
	case probA > winnerThreshold && ciLower > 0:
		winner = domain.VariantA
	case probB > winnerThreshold && ciUpper < 0:
		winner = domain.VariantB
	}

	return Decision{
		ProbA:   round4(probA),
		ProbB:   round4(probB),
		CILower: round4(ciLower),
		CIUpper: round4(ciUpper),
		Winner:  winner,
		Counts:  counts,
	}, nil
}

// mergeConversionSources folds clicks from the experiment's conversion
// sources into its own per-variant click counts. Impressions stay the
// target's own: sources measure conversions, not exposure.
func (e *Evaluator) mergeConversionSources(ctx context.Context, contentRef, experimentID string, counts storage.VariantCounts) (storage.VariantCounts, error) {
	if e.experiments == nil {
		return counts, nil
	}
	experiment, err := e.experiments.GetExperiment(ctx, contentRef, experimentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return counts, nil
		}
		return storage.VariantCounts{}, apperrors.Wrap(apperrors.CodeStorageFault, "get experiment", err)
	}
	if len(experiment.ConversionSources) == 0 {
		return counts, nil
	}

	sourceCounts, err := e.events.CountEventsMany(ctx, contentRef, experiment.ConversionSources)
	if err != nil {
		return storage.VariantCounts{}, apperrors.Wrap(apperrors.CodeStorageFault, "count conversion sources", err)
	}
	for _, source := range sourceCounts {
		counts.A.Clicks += source.A.Clicks
		counts.B.Clicks += source.B.Clicks
	}
	return counts, nil
}

func neutralDecision(counts storage.VariantCounts, message string) Decision {
	return Decision{
		ProbA:   0.5,
		ProbB:   0.5,
		Message: message,
		Counts:  counts,
	}
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
