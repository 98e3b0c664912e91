package assign

import (
	"sync"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
)

const clickedKeyPrefix = "ab-clicked-"

// Sender delivers one tracking event to the ingestion endpoint. Delivery is
// fire-and-forget; the Tracker does not retry.
type Sender func(kind domain.Kind, experimentID string, variant domain.Variant)

// Tracker deduplicates outbound tracking events: one impression per
// experiment per page view, one click per experiment per browsing session.
type Tracker struct {
	mu      sync.Mutex
	session Store
	send    Sender
	seen    map[string]bool
}

// NewTracker returns a Tracker. The session store scopes click dedupe to a
// browsing session; impression dedupe lives only in the Tracker itself.
func NewTracker(session Store, send Sender) *Tracker {
	return &Tracker{
		session: session,
		send:    send,
		seen:    make(map[string]bool),
	}
}

// Impression reports an exposure. It returns true when the event was sent
// and false when this page view already reported the experiment.
func (t *Tracker) Impression(experimentID string, variant domain.Variant) bool {
	t.mu.Lock()
	if t.seen[experimentID] {
		t.mu.Unlock()
		return false
	}
	t.seen[experimentID] = true
	t.mu.Unlock()

	t.send(domain.KindImpression, experimentID, variant)
	return true
}

// Click reports an interaction. It returns true when the event was sent and
// false when this session already reported a click for the experiment.
func (t *Tracker) Click(experimentID string, variant domain.Variant) bool {
	key := clickedKeyPrefix + experimentID
	t.mu.Lock()
	if value, ok := t.session.Get(key); ok && value == "1" {
		t.mu.Unlock()
		return false
	}
	t.session.Set(key, "1")
	t.mu.Unlock()

	t.send(domain.KindClick, experimentID, variant)
	return true
}
