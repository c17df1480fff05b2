package experiment

import (
	"context"
	"errors"

	"github.com/pagesplit/pagesplit/internal/metrics"
	"github.com/pagesplit/pagesplit/internal/store"
)

// AssignOrGet resolves the visitor's variant for an experiment, creating a
// durable assignment the first time a qualifying visitor shows up.
//
// Repeat calls are idempotent once the first write lands: the existing
// assignment is returned untouched, including for paused experiments. New
// enrollment only happens while the experiment is running; every other
// path falls back to the control variant without persisting anything.
func (s *Service) AssignOrGet(ctx context.Context, visitorID, experimentID string) (*store.Variant, error) {
	exp, err := s.store.GetExperimentByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if len(exp.Variants) == 0 {
		return nil, ErrNoVariants
	}

	// Completed experiments serve the winner to everyone.
	if exp.Status == store.StatusCompleted {
		if w := exp.Winner(); w != nil {
			return w, nil
		}
		return exp.Control(), nil
	}

	// No visitor identity: best-effort default, never persisted.
	if visitorID == "" {
		return exp.Control(), nil
	}

	// Existing assignments are honored regardless of pause state.
	if a, err := s.store.GetAssignment(ctx, visitorID, experimentID); err == nil {
		if v := variantByID(exp, a.VariantID); v != nil {
			return v, nil
		}
		// Assignment points at a removed variant; fall through and treat
		// the visitor as unassigned.
	} else if !errors.Is(err, store.ErrNotFound) {
		// Read failure: serve the control rather than breaking the page.
		s.logger.Printf("assignment lookup failed for %s/%s: %v", visitorID, exp.Name, err)
		return exp.Control(), nil
	}

	// Only running experiments enroll new visitors.
	if exp.Status != store.StatusRunning {
		return exp.Control(), nil
	}

	// Traffic split gates enrollment: visitors outside the split see the
	// control and are never assigned.
	if exp.TrafficSplit < 100 && s.draw()*100 >= exp.TrafficSplit {
		return exp.Control(), nil
	}

	picked := s.pickWeighted(exp.Variants)

	persistedID, err := s.store.PutAssignment(ctx, visitorID, experimentID, picked.ID)
	if err != nil {
		// Non-fatal: the visitor still gets the picked variant for this
		// page view, durability is best-effort.
		s.logger.Printf("assignment write failed for %s/%s: %v", visitorID, exp.Name, err)
		metrics.AssignmentFailures.Inc()
		return picked, nil
	}
	if persistedID != picked.ID {
		// A concurrent first assignment won the race; converge on it.
		if v := variantByID(exp, persistedID); v != nil {
			return v, nil
		}
	}

	metrics.AssignmentsCreated.WithLabelValues(exp.Name).Inc()
	return picked, nil
}

// pickWeighted walks the variant list accumulating each variant's share of
// 100 against a uniform draw. Variants without weights get an equal split.
// Floating-point shortfall at the tail falls back to the last variant.
func (s *Service) pickWeighted(variants []*store.Variant) *store.Variant {
	draw := s.draw()

	weighted := false
	for _, v := range variants {
		if v.Weight > 0 {
			weighted = true
			break
		}
	}

	equal := 1.0 / float64(len(variants))
	cumulative := 0.0
	for _, v := range variants {
		if weighted {
			cumulative += v.Weight / 100
		} else {
			cumulative += equal
		}
		if draw < cumulative {
			return v
		}
	}
	return variants[len(variants)-1]
}

func variantByID(exp *store.Experiment, id string) *store.Variant {
	for _, v := range exp.Variants {
		if v.ID == id {
			return v
		}
	}
	return nil
}
