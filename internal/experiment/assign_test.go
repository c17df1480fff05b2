package experiment

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagesplit/pagesplit/internal/store"
)

func TestAssignOrGet_NoVisitorReturnsControlWithoutPersisting(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusRunning)
	svc := NewService(m)

	v, err := svc.AssignOrGet(context.Background(), "", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-blue", v.ID)
	require.Empty(t, m.assignments)
}

func TestAssignOrGet_IdempotentAcrossCalls(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusRunning)
	svc := NewService(m)
	ctx := context.Background()

	first, err := svc.AssignOrGet(ctx, "visitor-1", "exp-1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := svc.AssignOrGet(ctx, "visitor-1", "exp-1")
		require.NoError(t, err)
		require.Equal(t, first.ID, again.ID)
	}
	require.Len(t, m.assignments, 1)
}

func TestAssignOrGet_ExistingAssignmentWinsOverDraw(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusRunning)
	svc := NewService(m)
	ctx := context.Background()

	_, err := m.PutAssignment(ctx, "visitor-1", "exp-1", "v-orange")
	require.NoError(t, err)

	// A draw that would land on the control must not matter.
	svc.draw = func() float64 { return 0.0 }

	v, err := svc.AssignOrGet(ctx, "visitor-1", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-orange", v.ID)
}

func TestAssignOrGet_PausedHonorsExistingButStopsEnrollment(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusPaused)
	svc := NewService(m)
	ctx := context.Background()

	_, err := m.PutAssignment(ctx, "assigned", "exp-1", "v-orange")
	require.NoError(t, err)

	v, err := svc.AssignOrGet(ctx, "assigned", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-orange", v.ID)

	v, err = svc.AssignOrGet(ctx, "newcomer", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-blue", v.ID, "new visitors see the control while paused")
	require.Len(t, m.assignments, 1, "no new assignment while paused")
}

func TestAssignOrGet_DraftDoesNotAssign(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusDraft)
	svc := NewService(m)

	v, err := svc.AssignOrGet(context.Background(), "visitor-1", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-blue", v.ID)
	require.Empty(t, m.assignments)
}

func TestAssignOrGet_CompletedServesWinner(t *testing.T) {
	m := newMemStore()
	exp := seedExperiment(m, store.StatusCompleted)
	exp.Variants[1].IsWinner = true
	svc := NewService(m)

	v, err := svc.AssignOrGet(context.Background(), "anyone", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-orange", v.ID)
	require.Empty(t, m.assignments)
}

func TestAssignOrGet_TrafficSplitGatesEnrollment(t *testing.T) {
	m := newMemStore()
	exp := seedExperiment(m, store.StatusRunning)
	exp.TrafficSplit = 40

	svc := NewService(m)
	svc.draw = func() float64 { return 0.5 } // 50 >= 40: outside the split

	v, err := svc.AssignOrGet(context.Background(), "visitor-1", "exp-1")
	require.NoError(t, err)
	require.Equal(t, "v-blue", v.ID)
	require.Empty(t, m.assignments)
}

func TestAssignOrGet_PersistFailureStillServesVariant(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusRunning)
	m.failPuts = true
	svc := NewService(m)

	v, err := svc.AssignOrGet(context.Background(), "visitor-1", "exp-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Empty(t, m.assignments)
}

func TestAssignOrGet_NoVariants(t *testing.T) {
	m := newMemStore()
	m.experiments["empty"] = &store.Experiment{
		ID: "empty", Name: "empty", Type: store.TypeHeadlineText, Status: store.StatusRunning,
	}
	svc := NewService(m)

	_, err := svc.AssignOrGet(context.Background(), "visitor-1", "empty")
	require.ErrorIs(t, err, ErrNoVariants)
}

func TestAssignOrGet_ConcurrentFirstAssignmentConverges(t *testing.T) {
	m := newMemStore()
	seedExperiment(m, store.StatusRunning)
	svc := NewService(m)
	ctx := context.Background()

	const callers = 16
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.AssignOrGet(ctx, "visitor-racy", "exp-1")
			if err == nil {
				results[i] = v.ID
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, m.assignments, 1, "exactly one persisted assignment")
	persisted := m.assignments[[2]string{"visitor-racy", "exp-1"}].VariantID
	for i, got := range results {
		require.Equal(t, persisted, got, "caller %d observed a different variant", i)
	}
}

func TestPickWeighted_Converges(t *testing.T) {
	variants := []*store.Variant{
		{ID: "a", Weight: 70},
		{ID: "b", Weight: 30},
	}

	svc := NewService(newMemStore())
	rng := rand.New(rand.NewSource(42))
	svc.draw = rng.Float64

	const n = 100_000
	hits := map[string]int{}
	for i := 0; i < n; i++ {
		hits[svc.pickWeighted(variants).ID]++
	}

	shareA := float64(hits["a"]) / n * 100
	require.InDelta(t, 70, shareA, 2, "observed split %.2f%% for the 70%% variant", shareA)
}

func TestPickWeighted_EqualSplitWhenUnweighted(t *testing.T) {
	variants := []*store.Variant{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}

	svc := NewService(newMemStore())
	rng := rand.New(rand.NewSource(7))
	svc.draw = rng.Float64

	const n = 90_000
	hits := map[string]int{}
	for i := 0; i < n; i++ {
		hits[svc.pickWeighted(variants).ID]++
	}

	for _, id := range []string{"a", "b", "c"} {
		share := float64(hits[id]) / n * 100
		require.InDelta(t, 33.33, share, 2)
	}
}

func TestPickWeighted_TailFallback(t *testing.T) {
	// Weights that accumulate just short of the draw still resolve to the
	// last variant instead of falling off the list.
	variants := []*store.Variant{
		{ID: "a", Weight: 33.33},
		{ID: "b", Weight: 33.33},
		{ID: "c", Weight: 33.33},
	}

	svc := NewService(newMemStore())
	svc.draw = func() float64 { return 0.99999 }

	require.Equal(t, "c", svc.pickWeighted(variants).ID)
}
