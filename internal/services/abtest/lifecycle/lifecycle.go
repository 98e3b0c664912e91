// Package lifecycle drives experiments through their state machine: enable,
// start, finish with a winner or as stale, apply the winner, and reset.
// Terminal transitions are exactly-once, guarded by the experiment's
// finishedAt stamp rather than a lock.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/evaluator"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

const (
	// staleImpressionCeiling ends a running experiment that gathered this
	// much exposure without a verdict.
	staleImpressionCeiling = 300
	// staleAgeCeiling ends a running experiment after this much wall time.
	staleAgeCeiling = 21 * 24 * time.Hour
	// winnerMinImpressions is the exposure floor below which no winner is
	// declared regardless of posterior probability.
	winnerMinImpressions = 50
)

// Milestone names recorded as one-shot onboarding flags.
const (
	MilestoneFirstEnable   = "first_enable"
	MilestoneFirstLaunch   = "first_launch"
	MilestoneFirstFinish   = "first_finish"
	MilestoneWinnerApplied = "winner_applied"
)

// Decider produces a Decision for one experiment. Satisfied by
// *evaluator.Evaluator.
type Decider interface {
	Evaluate(ctx context.Context, contentRef, experimentID string) (evaluator.Decision, error)
}

// ContentApplier copies winning variant content into the live content. The
// content system owns rendering; the controller only tells it what won.
type ContentApplier interface {
	ApplyWinner(ctx context.Context, experiment domain.Experiment, content string) error
}

// Progress is the outcome of one CheckProgress call.
type Progress struct {
	State    domain.State
	Winner   domain.Variant
	Decision evaluator.Decision
	// Transitioned reports whether this call performed the terminal
	// transition. Repeated checks after it return false.
	Transitioned bool
}

// Terminal reports whether the experiment has stopped collecting data.
func (p Progress) Terminal() bool {
	return p.State.Terminal()
}

// Controller applies lifecycle transitions.
type Controller struct {
	store   storage.Store
	decider Decider
	applier ContentApplier
	now     func() time.Time
}

// Config wires a Controller.
type Config struct {
	Store   storage.Store
	Decider Decider
	Applier ContentApplier
	Now     func() time.Time
}

// New returns a Controller for the given configuration.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		store:   cfg.Store,
		decider: cfg.Decider,
		applier: cfg.Applier,
		now:     cfg.Now,
	}, nil
}

// Enable registers or re-registers an experiment for authoring and clears
// any prior stats so a rerun starts fresh. Running and finished experiments
// must be unlocked or reset first.
func (c *Controller) Enable(ctx context.Context, experiment domain.Experiment) error {
	contentRef, experimentID, err := normalizeKey(experiment.ContentRef, experiment.ID)
	if err != nil {
		return err
	}
	experiment.ContentRef = contentRef
	experiment.ID = experimentID

	existing, err := c.store.GetExperiment(ctx, contentRef, experimentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeStorageFault, "get experiment", err)
	}
	if err == nil && (existing.State == domain.StateRunning || existing.State.Terminal()) {
		return apperrors.WithMetadata(apperrors.CodeInvalidStateTransition,
			"experiment must be unlocked before re-enabling",
			map[string]string{"State": string(existing.State)})
	}

	experiment.State = domain.StateEnabled
	experiment.Winner = domain.VariantNone
	experiment.StartedAt = time.Time{}
	experiment.FinishedAt = time.Time{}
	if err := c.store.PutExperiment(ctx, experiment); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "put experiment", err)
	}
	if _, err := c.store.PurgeEvents(ctx, contentRef, experimentID); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "purge prior events", err)
	}
	if _, err := c.store.MarkMilestone(ctx, MilestoneFirstEnable); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "mark milestone", err)
	}
	return nil
}

// Start locks an enabled experiment and begins data collection.
func (c *Controller) Start(ctx context.Context, contentRef, experimentID string) error {
	experiment, err := c.get(ctx, contentRef, experimentID)
	if err != nil {
		return err
	}
	if experiment.State != domain.StateEnabled {
		return apperrors.WithMetadata(apperrors.CodeInvalidStateTransition,
			"only enabled experiments can start",
			map[string]string{"State": string(experiment.State)})
	}
	if !experiment.VariantsComplete() {
		return apperrors.New(apperrors.CodeVariantsIncomplete, "both variants must be non-empty before starting")
	}
	if err := c.checkConversionPath(ctx, experiment); err != nil {
		return err
	}

	experiment.State = domain.StateRunning
	experiment.StartedAt = c.now().UTC()
	if err := c.store.PutExperiment(ctx, experiment); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "put experiment", err)
	}
	if _, err := c.store.MarkMilestone(ctx, MilestoneFirstLaunch); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "mark milestone", err)
	}
	return nil
}

// checkConversionPath verifies the experiment can ever observe a click.
// Ungrouped experiments need clickable content or a designated source;
// grouped experiments need at least one click-capable member.
func (c *Controller) checkConversionPath(ctx context.Context, experiment domain.Experiment) error {
	if experiment.GroupKey == "" {
		if experiment.ClickCapable || len(experiment.ConversionSources) > 0 {
			return nil
		}
		return apperrors.New(apperrors.CodeConversionSourceMissing,
			"experiment needs clickable content or a conversion source")
	}

	members, err := c.store.ListExperimentsByGroup(ctx, experiment.ContentRef, experiment.GroupKey)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "list group members", err)
	}
	for _, member := range members {
		if member.ClickCapable {
			return nil
		}
	}
	if experiment.ClickCapable {
		return nil
	}
	return apperrors.New(apperrors.CodeConversionSourceMissing,
		"group needs at least one click-capable member")
}

// CheckProgress evaluates a running experiment and applies the terminal
// transition when warranted. Calling it on an already finished experiment
// is a no-op reporting the recorded outcome.
func (c *Controller) CheckProgress(ctx context.Context, contentRef, experimentID string) (Progress, error) {
	experiment, err := c.get(ctx, contentRef, experimentID)
	if err != nil {
		return Progress{}, err
	}
	if experiment.Finished() {
		return Progress{State: experiment.State, Winner: experiment.Winner}, nil
	}
	if experiment.State != domain.StateRunning {
		return Progress{State: experiment.State}, nil
	}

	decision, err := c.decider.Evaluate(ctx, contentRef, experimentID)
	if err != nil {
		return Progress{}, err
	}

	now := c.now().UTC()
	totalImpressions := decision.Counts.Total()
	totalClicks := decision.Counts.TotalClicks()

	if decision.Winner.IsValid() && totalImpressions >= winnerMinImpressions && totalClicks > 0 {
		if err := c.finish(ctx, experiment, domain.StateFinishedWinner, decision.Winner, now); err != nil {
			return Progress{}, err
		}
		return Progress{State: domain.StateFinishedWinner, Winner: decision.Winner, Decision: decision, Transitioned: true}, nil
	}

	tooMuchData := totalImpressions >= staleImpressionCeiling
	tooOld := !experiment.StartedAt.IsZero() && now.Sub(experiment.StartedAt) >= staleAgeCeiling
	if tooMuchData || tooOld {
		if err := c.finish(ctx, experiment, domain.StateFinishedStale, domain.VariantNone, now); err != nil {
			return Progress{}, err
		}
		return Progress{State: domain.StateFinishedStale, Decision: decision, Transitioned: true}, nil
	}

	return Progress{State: domain.StateRunning, Decision: decision}, nil
}

// finish performs the exactly-once terminal transition: stamp finishedAt,
// persist the verdict, and append the single decision or stale event.
func (c *Controller) finish(ctx context.Context, experiment domain.Experiment, state domain.State, winner domain.Variant, now time.Time) error {
	experiment.State = state
	experiment.Winner = winner
	experiment.FinishedAt = now
	if err := c.store.PutExperiment(ctx, experiment); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "put experiment", err)
	}

	kind := domain.KindStale
	if state == domain.StateFinishedWinner {
		kind = domain.KindDecision
	}
	if _, err := c.store.AppendEvent(ctx, domain.Event{
		Time:         now,
		ContentRef:   experiment.ContentRef,
		ExperimentID: experiment.ID,
		Variant:      winner,
		Kind:         kind,
	}); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "append verdict event", err)
	}
	if _, err := c.store.MarkMilestone(ctx, MilestoneFirstFinish); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "mark milestone", err)
	}
	return nil
}

// Apply copies the winning variant's content into production for the
// experiment and every member of its group, then disables the experiment
// and purges its events so a rerun starts clean.
func (c *Controller) Apply(ctx context.Context, contentRef, experimentID string) error {
	experiment, err := c.get(ctx, contentRef, experimentID)
	if err != nil {
		return err
	}
	if experiment.State != domain.StateFinishedWinner || !experiment.Winner.IsValid() {
		return apperrors.WithMetadata(apperrors.CodeWinnerNotDecided,
			"experiment has no decided winner to apply",
			map[string]string{"State": string(experiment.State)})
	}
	winner := experiment.Winner

	members := []domain.Experiment{experiment}
	if experiment.GroupKey != "" {
		members, err = c.store.ListExperimentsByGroup(ctx, contentRef, experiment.GroupKey)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeStorageFault, "list group members", err)
		}
	}

	now := c.now().UTC()
	for _, member := range members {
		content := member.VariantA
		if winner == domain.VariantB {
			content = member.VariantB
		}
		if c.applier != nil {
			if err := c.applier.ApplyWinner(ctx, member, content); err != nil {
				return fmt.Errorf("apply winner to %s: %w", member.ID, err)
			}
		}
		member.State = domain.StateApplied
		member.Winner = winner
		if err := c.store.PutExperiment(ctx, member); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageFault, "put group member", err)
		}
		if _, err := c.store.PurgeEvents(ctx, contentRef, member.ID); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageFault, "purge member events", err)
		}
	}

	if _, err := c.store.AppendEvent(ctx, domain.Event{
		Time:         now,
		ContentRef:   contentRef,
		ExperimentID: experimentID,
		Variant:      winner,
		Kind:         domain.KindDecisionApplied,
	}); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "append applied event", err)
	}
	if _, err := c.store.MarkMilestone(ctx, MilestoneWinnerApplied); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFault, "mark milestone", err)
	}
	return nil
}

// Reset purges an experiment's events and returns it to enabled. The
// deleted event count is reported so authors see what was lost.
func (c *Controller) Reset(ctx context.Context, contentRef, experimentID string) (int64, error) {
	experiment, err := c.get(ctx, contentRef, experimentID)
	if err != nil {
		return 0, err
	}

	deleted, err := c.store.PurgeEvents(ctx, contentRef, experimentID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFault, "purge events", err)
	}

	experiment.State = domain.StateEnabled
	experiment.Winner = domain.VariantNone
	experiment.StartedAt = time.Time{}
	experiment.FinishedAt = time.Time{}
	if err := c.store.PutExperiment(ctx, experiment); err != nil {
		return deleted, apperrors.Wrap(apperrors.CodeStorageFault, "put experiment", err)
	}
	return deleted, nil
}

// Unlock returns a running or finished experiment to enabled, discarding
// its collected data.
func (c *Controller) Unlock(ctx context.Context, contentRef, experimentID string) error {
	experiment, err := c.get(ctx, contentRef, experimentID)
	if err != nil {
		return err
	}
	if experiment.State != domain.StateRunning && !experiment.State.Terminal() {
		return apperrors.WithMetadata(apperrors.CodeInvalidStateTransition,
			"only running or finished experiments can be unlocked",
			map[string]string{"State": string(experiment.State)})
	}
	_, err = c.Reset(ctx, contentRef, experimentID)
	return err
}

func (c *Controller) get(ctx context.Context, contentRef, experimentID string) (domain.Experiment, error) {
	contentRef, experimentID, err := normalizeKey(contentRef, experimentID)
	if err != nil {
		return domain.Experiment{}, err
	}
	experiment, err := c.store.GetExperiment(ctx, contentRef, experimentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Experiment{}, apperrors.New(apperrors.CodeExperimentUnknown, "unknown experiment on this content")
		}
		return domain.Experiment{}, apperrors.Wrap(apperrors.CodeStorageFault, "get experiment", err)
	}
	return experiment, nil
}

func normalizeKey(contentRef, experimentID string) (string, string, error) {
	contentRef, experimentID, err := domain.NormalizeExperimentKey(contentRef, experimentID)
	if err != nil {
		code := apperrors.CodeExperimentIDEmpty
		if errors.Is(err, domain.ErrEmptyContentRef) {
			code = apperrors.CodeContentRefInvalid
		}
		return "", "", apperrors.Wrap(code, "invalid experiment key", err)
	}
	return contentRef, experimentID, nil
}
