package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"
)

// CheckFunc runs one progress check. Satisfied by Controller.CheckProgress.
type CheckFunc func(ctx context.Context, contentRef, experimentID string) (Progress, error)

// UpdateFunc receives progress for the experiment named by experimentID.
type UpdateFunc func(experimentID string, progress Progress)

// Poller cooperatively polls one experiment's progress. Watching a new
// experiment tears the previous loop down, and updates from a superseded
// loop are discarded by comparing the active experiment id, so a slow
// check can never report against the wrong experiment.
type Poller struct {
	interval time.Duration
	check    CheckFunc
	onUpdate UpdateFunc

	mu       sync.Mutex
	activeID string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller returns a Poller calling check every interval and delivering
// results through onUpdate.
func NewPoller(interval time.Duration, check CheckFunc, onUpdate UpdateFunc) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		interval: interval,
		check:    check,
		onUpdate: onUpdate,
	}
}

// Watch starts polling the given experiment, replacing any previous watch.
// The loop stops on its own once a terminal state is observed, when ctx is
// canceled, or when a later Watch or Stop supersedes it.
func (p *Poller) Watch(ctx context.Context, contentRef, experimentID string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.activeID = experimentID
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.loop(loopCtx, contentRef, experimentID, done)
}

func (p *Poller) loop(ctx context.Context, contentRef, experimentID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress, err := p.check(ctx, contentRef, experimentID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("poll %s: %v", experimentID, err)
			continue
		}

		p.mu.Lock()
		stale := p.activeID != experimentID
		p.mu.Unlock()
		if stale {
			return
		}

		if p.onUpdate != nil {
			p.onUpdate(experimentID, progress)
		}
		if progress.Terminal() {
			return
		}
	}
}

// Stop tears down the active watch and waits for its loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.activeID = ""
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
