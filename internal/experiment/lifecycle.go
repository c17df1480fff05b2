package experiment

import (
	"context"
	"fmt"
	"math"

	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

// validTransitions encodes the experiment state machine:
// draft -> running <-> paused -> completed, with completed terminal.
var validTransitions = map[store.ExperimentStatus][]store.ExperimentStatus{
	store.StatusDraft:     {store.StatusRunning},
	store.StatusRunning:   {store.StatusPaused, store.StatusCompleted},
	store.StatusPaused:    {store.StatusRunning, store.StatusCompleted},
	store.StatusCompleted: {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to store.ExperimentStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves an experiment to a new status, enforcing the state
// machine and the activation requirements. Completing an experiment runs
// the winner computation before the status flips; afterwards assignment
// and tracking writes are frozen.
func (s *Service) Transition(ctx context.Context, experimentID string, to store.ExperimentStatus) (*store.Experiment, error) {
	exp, err := s.store.GetExperimentByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(exp.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, to)
	}

	if exp.Status == store.StatusDraft && to == store.StatusRunning {
		if len(exp.Variants) == 0 {
			return nil, fmt.Errorf("cannot start %q: %w", exp.Name, ErrNoVariants)
		}
		if exp.TargetSelector == "" {
			return nil, fmt.Errorf("cannot start %q: %w", exp.Name, ErrNoTargetSelector)
		}
		if err := checkWeights(exp.Variants); err != nil {
			return nil, fmt.Errorf("cannot start %q: %w", exp.Name, err)
		}
	}

	if to == store.StatusCompleted {
		winnerID, err := s.computeWinner(ctx, exp)
		if err != nil {
			return nil, err
		}
		// One transaction: either the experiment is completed with its
		// winner flagged, or nothing changed.
		if err := s.store.CompleteExperiment(ctx, exp.ID, winnerID); err != nil {
			return nil, fmt.Errorf("failed to complete %q: %w", exp.Name, err)
		}
		return s.store.GetExperimentByID(ctx, experimentID)
	}

	if err := s.store.UpdateStatus(ctx, exp.ID, to); err != nil {
		return nil, err
	}

	return s.store.GetExperimentByID(ctx, experimentID)
}

// computeWinner returns the id of the variant to flag on completion, or ""
// when no challenger clears the experiment's significance threshold against
// the control. Pure analysis; it writes nothing.
func (s *Service) computeWinner(ctx context.Context, exp *store.Experiment) (string, error) {
	counts, err := s.store.GetVariantCounts(ctx, exp.ID)
	if err != nil {
		return "", fmt.Errorf("failed to aggregate counts for %q: %w", exp.Name, err)
	}
	return stats.Analyze(exp, counts).WinnerID, nil
}

// checkWeights rejects weight sets that cannot drive the cumulative-share
// walk: once any variant carries a weight, the weights must sum to 100.
func checkWeights(variants []*store.Variant) error {
	weighted := false
	sum := 0.0
	for _, v := range variants {
		if v.Weight > 0 {
			weighted = true
		}
		sum += v.Weight
	}
	if weighted && math.Abs(sum-100) > 0.01 {
		return fmt.Errorf("%w, got %.2f", ErrUnbalancedWeights, sum)
	}
	return nil
}

// Stats aggregates the experiment's metrics from the event log.
func (s *Service) Stats(ctx context.Context, experimentID string) (*store.Experiment, *stats.Result, error) {
	exp, err := s.store.GetExperimentByID(ctx, experimentID)
	if err != nil {
		return nil, nil, err
	}
	counts, err := s.store.GetVariantCounts(ctx, experimentID)
	if err != nil {
		return nil, nil, err
	}
	return exp, stats.Analyze(exp, counts), nil
}
