// Package assign is the client-resident variant assignment library. It
// decides which variant a visitor sees and keeps that choice sticky across
// page views through a pluggable key-value store, the server never learns
// or records assignments.
package assign

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
)

const (
	// groupKeyPrefix namespaces persisted group assignments.
	groupKeyPrefix = "abg_"
	// individualKeyPrefix namespaces persisted per-experiment assignments.
	individualKeyPrefix = "ab-"

	// previewParam forces per-experiment variants, "id:V" pairs separated
	// by commas.
	previewParam = "ab_preview"
	// groupParamPrefix forces a whole group, "abgroup__<key>=V".
	groupParamPrefix = "abgroup__"
)

// Store persists assignments across page views. Implementations mirror
// localStorage semantics: last write wins, reads of unknown keys miss.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemoryStore is an in-memory Store, used in tests and headless clients.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Set stores value under key.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Overrides are forced variant choices carried in the page URL. Forced
// choices are for previewing; they always win and are never persisted.
type Overrides struct {
	individual map[string]domain.Variant
	groups     map[string]domain.Variant
}

// ParseOverrides extracts forced assignments from URL query values.
func ParseOverrides(query url.Values) Overrides {
	o := Overrides{
		individual: make(map[string]domain.Variant),
		groups:     make(map[string]domain.Variant),
	}
	for _, pair := range strings.Split(query.Get(previewParam), ",") {
		id, variant, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		v := domain.Variant(variant)
		if id != "" && v.IsValid() {
			o.individual[id] = v
		}
	}
	for name, values := range query {
		key, ok := strings.CutPrefix(name, groupParamPrefix)
		if !ok || key == "" || len(values) == 0 {
			continue
		}
		v := domain.Variant(values[0])
		if v.IsValid() {
			o.groups[key] = v
		}
	}
	return o
}

// Manager resolves variant assignments with the precedence forced override,
// persisted group, persisted individual, fresh uniform draw.
type Manager struct {
	store     Store
	overrides Overrides
	randFn    func() float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithOverrides applies forced preview choices.
func WithOverrides(o Overrides) Option {
	return func(m *Manager) { m.overrides = o }
}

// WithRand overrides the uniform source, fixing draws for tests.
func WithRand(fn func() float64) Option {
	return func(m *Manager) {
		if fn != nil {
			m.randFn = fn
		}
	}
}

// NewManager returns a Manager persisting through store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		randFn: rand.Float64,
		overrides: Overrides{
			individual: make(map[string]domain.Variant),
			groups:     make(map[string]domain.Variant),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Assign resolves the variant for one experiment. When groupKey is set the
// whole group resolves as a unit: every member sharing the key gets the
// same variant, and the group's persisted choice beats any individual
// history an experiment carried before joining the group.
func (m *Manager) Assign(experimentID, groupKey string) domain.Variant {
	if groupKey != "" {
		return m.assignGroup(groupKey)
	}
	return m.assignIndividual(experimentID)
}

func (m *Manager) assignGroup(groupKey string) domain.Variant {
	if forced, ok := m.overrides.groups[groupKey]; ok {
		return forced
	}
	key := groupKeyPrefix + groupKey
	if stored, ok := m.store.Get(key); ok {
		if v := domain.Variant(stored); v.IsValid() {
			return v
		}
	}
	v := m.draw()
	m.store.Set(key, string(v))
	return v
}

func (m *Manager) assignIndividual(experimentID string) domain.Variant {
	if forced, ok := m.overrides.individual[experimentID]; ok {
		return forced
	}
	key := individualKeyPrefix + experimentID
	if stored, ok := m.store.Get(key); ok {
		if v := domain.Variant(stored); v.IsValid() {
			return v
		}
	}
	v := m.draw()
	m.store.Set(key, string(v))
	return v
}

func (m *Manager) draw() domain.Variant {
	if m.randFn() < 0.5 {
		return domain.VariantA
	}
	return domain.VariantB
}
