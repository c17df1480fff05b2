package experiment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagesplit/pagesplit/internal/store"
)

// memStore is an in-memory store.Store for service tests. Its assignment
// write path mirrors the real store's first-write-wins contract.
type memStore struct {
	mu          sync.Mutex
	experiments map[string]*store.Experiment
	assignments map[[2]string]*store.Assignment
	events      []*store.Event

	failPuts      bool
	failEvents    bool
	failCompletes bool
}

func newMemStore() *memStore {
	return &memStore{
		experiments: make(map[string]*store.Experiment),
		assignments: make(map[[2]string]*store.Assignment),
	}
}

func (m *memStore) CreateExperiment(ctx context.Context, exp *store.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.experiments {
		if existing.Name == exp.Name {
			return errors.New("duplicate name")
		}
	}
	m.experiments[exp.ID] = exp
	return nil
}

func (m *memStore) AddVariant(ctx context.Context, v *store.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[v.ExperimentID]
	if !ok {
		return store.ErrNotFound
	}
	v.Position = len(exp.Variants)
	exp.Variants = append(exp.Variants, v)
	return nil
}

func (m *memStore) GetExperiment(ctx context.Context, name string) (*store.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exp := range m.experiments {
		if exp.Name == name {
			return exp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetExperimentByID(ctx context.Context, id string) (*store.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return exp, nil
}

func (m *memStore) ListExperiments(ctx context.Context, status store.ExperimentStatus) ([]*store.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Experiment
	for _, exp := range m.experiments {
		if status == "" || exp.Status == status {
			out = append(out, exp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status store.ExperimentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[id]
	if !ok {
		return store.ErrNotFound
	}
	exp.Status = status
	return nil
}

func (m *memStore) CompleteExperiment(ctx context.Context, experimentID, winnerVariantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCompletes {
		return errors.New("store unavailable")
	}
	exp, ok := m.experiments[experimentID]
	if !ok {
		return store.ErrNotFound
	}
	if winnerVariantID != "" {
		found := false
		for _, v := range exp.Variants {
			v.IsWinner = v.ID == winnerVariantID
			found = found || v.IsWinner
		}
		if !found {
			return store.ErrNotFound
		}
	} else {
		for _, v := range exp.Variants {
			v.IsWinner = false
		}
	}
	exp.Status = store.StatusCompleted
	return nil
}

func (m *memStore) DeleteExperiment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.experiments, id)
	return nil
}

func (m *memStore) GetAssignment(ctx context.Context, visitorID, experimentID string) (*store.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[[2]string{visitorID, experimentID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *memStore) PutAssignment(ctx context.Context, visitorID, experimentID, variantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts {
		return "", errors.New("store unavailable")
	}
	key := [2]string{visitorID, experimentID}
	if existing, ok := m.assignments[key]; ok {
		return existing.VariantID, nil
	}
	m.assignments[key] = &store.Assignment{
		VisitorID:    visitorID,
		ExperimentID: experimentID,
		VariantID:    variantID,
		AssignedAt:   time.Now(),
	}
	return variantID, nil
}

func (m *memStore) RecordEvent(ctx context.Context, e *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvents {
		return errors.New("store unavailable")
	}
	// Same dedup rule as the unique index in sqlite.
	for _, existing := range m.events {
		if existing.ExperimentID == e.ExperimentID &&
			existing.VisitorID == e.VisitorID &&
			existing.EventType == e.EventType {
			return nil
		}
	}
	e.CreatedAt = time.Now()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) GetVariantCounts(ctx context.Context, experimentID string) ([]store.VariantCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct {
		variant string
		visitor string
		event   store.EventType
	}
	seen := make(map[key]bool)
	byVariant := make(map[string]*store.VariantCounts)
	for _, e := range m.events {
		if e.ExperimentID != experimentID {
			continue
		}
		k := key{e.VariantID, e.VisitorID, e.EventType}
		if seen[k] {
			continue
		}
		seen[k] = true
		c, ok := byVariant[e.VariantID]
		if !ok {
			c = &store.VariantCounts{VariantID: e.VariantID}
			byVariant[e.VariantID] = c
		}
		switch e.EventType {
		case store.EventVisit:
			c.Visitors++
		case store.EventConversion:
			c.Conversions++
		}
	}
	var out []store.VariantCounts
	for _, c := range byVariant {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) GetEvents(ctx context.Context, experimentID string) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Event
	for _, e := range m.events {
		if e.ExperimentID == experimentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

var _ store.Store = (*memStore)(nil)

// seedExperiment installs a two-variant experiment and returns it.
func seedExperiment(m *memStore, status store.ExperimentStatus) *store.Experiment {
	exp := &store.Experiment{
		ID:             "exp-1",
		Name:           "cta-color",
		Type:           store.TypeButtonColor,
		Status:         status,
		TrafficSplit:   100,
		TargetSelector: ".cta",
		Significance:   0.95,
		Variants: []*store.Variant{
			{ID: "v-blue", ExperimentID: "exp-1", Name: "blue", CSSClass: "btn-blue", Weight: 50, IsControl: true, Position: 0},
			{ID: "v-orange", ExperimentID: "exp-1", Name: "orange", CSSClass: "btn-orange", Weight: 50, Position: 1},
		},
	}
	m.experiments[exp.ID] = exp
	return exp
}
