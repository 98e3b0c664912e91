package domain

import (
	"errors"
	"strings"
	"time"
)

// State is the lifecycle state of an experiment.
type State string

const (
	// StateIdle means the experiment is authored but not enabled.
	StateIdle State = "idle"
	// StateEnabled means variants are being authored; data collection has
	// not started.
	StateEnabled State = "enabled"
	// StateRunning means the experiment is locked and collecting data.
	StateRunning State = "running"
	// StateFinishedWinner means the evaluator declared a winning variant.
	StateFinishedWinner State = "finished_winner"
	// StateFinishedStale means the experiment hit its data or time ceiling
	// without statistical significance.
	StateFinishedStale State = "finished_stale"
	// StateApplied means the winner content was copied into production and
	// the experiment torn down.
	StateApplied State = "applied"
)

// IsValid reports whether the state is a known lifecycle state.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateEnabled, StateRunning, StateFinishedWinner, StateFinishedStale, StateApplied:
		return true
	}
	return false
}

// Terminal reports whether the state ends data collection.
func (s State) Terminal() bool {
	return s == StateFinishedWinner || s == StateFinishedStale || s == StateApplied
}

var (
	// ErrEmptyExperimentID indicates a missing experiment identifier.
	ErrEmptyExperimentID = errors.New("experiment id is required")
	// ErrEmptyContentRef indicates a missing content reference.
	ErrEmptyContentRef = errors.New("content ref is required")
)

// Experiment is the server-side record of one A/B comparison scoped to a
// single content reference. Variant payloads are opaque to the core.
type Experiment struct {
	// ID is the externally supplied identifier, sanitized to the safe charset.
	ID string
	// ContentRef identifies the owning content.
	ContentRef string
	// GroupKey, when set, forces this experiment to share one randomized
	// assignment with every experiment carrying the same key.
	GroupKey string
	// VariantA and VariantB are the content payloads under test.
	VariantA string
	VariantB string
	// ConversionSources lists experiment ids whose clicks are attributed to
	// this experiment's outcome.
	ConversionSources []string
	// ClickCapable marks experiments whose own rendered content can receive
	// clicks. Non-clickable content needs a conversion source to measure
	// anything.
	ClickCapable bool
	// State is the current lifecycle state.
	State State
	// Winner is set once a decision event is recorded.
	Winner Variant
	// StartedAt is when the experiment entered running.
	StartedAt time.Time
	// FinishedAt guards the exactly-once terminal transition.
	FinishedAt time.Time
}

// NormalizeExperimentKey validates and sanitizes the (contentRef, id) pair
// shared by every boundary operation.
func NormalizeExperimentKey(contentRef, id string) (string, string, error) {
	contentRef = strings.TrimSpace(contentRef)
	if contentRef == "" {
		return "", "", ErrEmptyContentRef
	}
	id = SanitizeExperimentID(id)
	if id == "" {
		return "", "", ErrEmptyExperimentID
	}
	return contentRef, id, nil
}

// VariantsComplete reports whether both payloads round-tripped non-empty.
// Running may not begin until this holds.
func (e Experiment) VariantsComplete() bool {
	return strings.TrimSpace(e.VariantA) != "" && strings.TrimSpace(e.VariantB) != ""
}

// Finished reports whether a terminal verdict has been recorded.
func (e Experiment) Finished() bool {
	return !e.FinishedAt.IsZero()
}

// WinnerContent returns the payload of the winning variant.
func (e Experiment) WinnerContent() (string, bool) {
	switch e.Winner {
	case VariantA:
		return e.VariantA, true
	case VariantB:
		return e.VariantB, true
	}
	return "", false
}
