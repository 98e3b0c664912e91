package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
)

type scriptedCheck struct {
	mu       sync.Mutex
	states   []domain.State
	calls    int
	perCheck map[string][]domain.State
}

func (s *scriptedCheck) check(ctx context.Context, contentRef, experimentID string) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := s.states
	if s.perCheck != nil {
		states = s.perCheck[experimentID]
	}
	idx := s.calls
	if idx >= len(states) {
		idx = len(states) - 1
	}
	s.calls++
	return Progress{State: states[idx]}, nil
}

func TestPollerStopsAtTerminalState(t *testing.T) {
	script := &scriptedCheck{states: []domain.State{
		domain.StateRunning,
		domain.StateRunning,
		domain.StateFinishedWinner,
	}}

	updates := make(chan Progress, 16)
	p := NewPoller(5*time.Millisecond, script.check, func(experimentID string, progress Progress) {
		updates <- progress
	})
	p.Watch(context.Background(), "42", "ab-1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case progress := <-updates:
			if progress.Terminal() {
				// Allow any in-flight tick, then confirm the loop stopped.
				time.Sleep(30 * time.Millisecond)
				script.mu.Lock()
				calls := script.calls
				script.mu.Unlock()
				if calls > len(script.states) {
					t.Fatalf("expected polling to stop at terminal state, got %d calls", calls)
				}
				return
			}
		case <-deadline:
			t.Fatal("expected a terminal update")
		}
	}
}

func TestPollerWatchSupersedesPrevious(t *testing.T) {
	script := &scriptedCheck{perCheck: map[string][]domain.State{
		"ab-1": {domain.StateRunning},
		"ab-2": {domain.StateRunning, domain.StateFinishedStale},
	}}

	var mu sync.Mutex
	var seen []string
	terminal := make(chan struct{})
	// A generous interval so the second Watch lands before the first tick.
	p := NewPoller(25*time.Millisecond, script.check, func(experimentID string, progress Progress) {
		mu.Lock()
		seen = append(seen, experimentID)
		mu.Unlock()
		if progress.Terminal() {
			close(terminal)
		}
	})

	p.Watch(context.Background(), "42", "ab-1")
	p.Watch(context.Background(), "42", "ab-2")
	defer p.Stop()

	select {
	case <-terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("expected second watch to reach terminal state")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range seen {
		if id != "ab-2" {
			t.Fatalf("expected updates only for the active experiment, got %v", seen)
		}
	}
}

func TestPollerStopEndsLoop(t *testing.T) {
	script := &scriptedCheck{states: []domain.State{domain.StateRunning}}
	p := NewPoller(5*time.Millisecond, script.check, nil)
	p.Watch(context.Background(), "42", "ab-1")

	time.Sleep(20 * time.Millisecond)
	p.Stop()

	script.mu.Lock()
	after := script.calls
	script.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	script.mu.Lock()
	final := script.calls
	script.mu.Unlock()
	if final != after {
		t.Fatalf("expected no checks after Stop, got %d then %d", after, final)
	}
}
