package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/vary/internal/experiment"
	"github.com/rzbill/vary/internal/store"
)

func newCatalog(t *testing.T, exps ...*experiment.Experiment) *experiment.Catalog {
	t.Helper()
	cat := experiment.NewCatalog()
	require.NoError(t, cat.Load(exps))
	return cat
}

func activeExperiment(id string, variants ...experiment.Variant) *experiment.Experiment {
	return &experiment.Experiment{ID: id, Status: experiment.StatusActive, Variants: variants}
}

// failingStore reports every operation as unavailable.
type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (store.Assignment, bool, error) {
	return store.Assignment{}, false, errors.New("store unavailable")
}
func (failingStore) Set(context.Context, store.Assignment) error {
	return errors.New("store unavailable")
}
func (failingStore) Clear(context.Context, string, string) error {
	return errors.New("store unavailable")
}

func TestAssignDeterministic(t *testing.T) {
	cat := newCatalog(t, activeExperiment("exp-1",
		experiment.Variant{ID: "control", Allocation: 50},
		experiment.Variant{ID: "treatment", Allocation: 50},
	))
	e := New(cat, store.NewMemory(), Options{})

	first, ok := e.Assign(context.Background(), "exp-1", "subject-1", Context{})
	require.True(t, ok)
	second, ok := e.Assign(context.Background(), "exp-1", "subject-1", Context{})
	require.True(t, ok)
	require.Equal(t, first, second)

	// A second engine over a fresh store computes the same variant.
	e2 := New(cat, store.NewMemory(), Options{})
	third, ok := e2.Assign(context.Background(), "exp-1", "subject-1", Context{})
	require.True(t, ok)
	require.Equal(t, first, third)
}

func TestAssignUnknownOrInactive(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	cat := newCatalog(t,
		&experiment.Experiment{ID: "draft", Status: experiment.StatusDraft, Variants: []experiment.Variant{{ID: "a", Allocation: 100}}},
		&experiment.Experiment{ID: "ended", Status: experiment.StatusActive, EndAt: &past, Variants: []experiment.Variant{{ID: "a", Allocation: 100}}},
	)
	e := New(cat, store.NewMemory(), Options{})

	for _, id := range []string{"missing", "draft", "ended"} {
		if _, ok := e.Assign(context.Background(), id, "s1", Context{}); ok {
			t.Fatalf("experiment %q should yield no assignment", id)
		}
	}
}

func TestCumulativeAllocationSelection(t *testing.T) {
	cat := newCatalog(t, activeExperiment("exp-1",
		experiment.Variant{ID: "A", Allocation: 30},
		experiment.Variant{ID: "B", Allocation: 30},
		experiment.Variant{ID: "C", Allocation: 40},
	))
	cases := []struct {
		bucket int
		want   string
	}{
		{29, "A"}, {30, "B"}, {59, "B"}, {60, "C"}, {99, "C"},
	}
	for _, tc := range cases {
		e := New(cat, store.NewMemory(), Options{Bucket: func(string) int { return tc.bucket }})
		got, ok := e.Assign(context.Background(), "exp-1", fmt.Sprintf("s-%d", tc.bucket), Context{})
		require.True(t, ok)
		require.Equal(t, tc.want, got, "bucket %d", tc.bucket)
	}
}

func TestUnderAllocationFallsBackToLastVariant(t *testing.T) {
	// Allocations sum to 70; bucket 85 lands in the gap and is awarded to
	// the last variant so assignment never fails on a misconfigured split.
	cat := newCatalog(t, activeExperiment("exp-1",
		experiment.Variant{ID: "A", Allocation: 40},
		experiment.Variant{ID: "B", Allocation: 30},
	))
	e := New(cat, store.NewMemory(), Options{Bucket: func(string) int { return 85 }})
	got, ok := e.Assign(context.Background(), "exp-1", "s1", Context{})
	require.True(t, ok)
	require.Equal(t, "B", got)
}

func TestStickinessOverridesReallocation(t *testing.T) {
	cat := newCatalog(t, activeExperiment("exp-1",
		experiment.Variant{ID: "A", Allocation: 100},
		experiment.Variant{ID: "B", Allocation: 0},
	))
	st := store.NewMemory()
	e := New(cat, st, Options{})

	got, ok := e.Assign(context.Background(), "exp-1", "s1", Context{})
	require.True(t, ok)
	require.Equal(t, "A", got)

	// Flip all traffic to B; the persisted assignment must win.
	require.NoError(t, cat.Update(activeExperiment("exp-1",
		experiment.Variant{ID: "A", Allocation: 0},
		experiment.Variant{ID: "B", Allocation: 100},
	)))
	again, ok := e.Assign(context.Background(), "exp-1", "s1", Context{})
	require.True(t, ok)
	require.Equal(t, "A", again)

	// A new subject follows the new allocations.
	fresh, ok := e.Assign(context.Background(), "exp-1", "s2", Context{})
	require.True(t, ok)
	require.Equal(t, "B", fresh)
}

func TestEligibilityGating(t *testing.T) {
	cat := newCatalog(t, &experiment.Experiment{
		ID: "exp-1", Status: experiment.StatusActive,
		Variants:       []experiment.Variant{{ID: "A", Allocation: 100}},
		TargetAudience: &experiment.TargetAudience{UserTypes: []string{"admin"}, Percentage: 100},
	})
	e := New(cat, store.NewMemory(), Options{})

	if _, ok := e.Assign(context.Background(), "exp-1", "s1", Context{UserType: "student"}); ok {
		t.Fatalf("student should be ineligible")
	}
	if _, ok := e.Assign(context.Background(), "exp-1", "s1", Context{UserType: "admin"}); !ok {
		t.Fatalf("admin should be assigned")
	}
	// Membership filters only apply when the context supplies a value.
	if _, ok := e.Assign(context.Background(), "exp-1", "s2", Context{}); !ok {
		t.Fatalf("absent userType should pass the membership filter")
	}
}

func TestLocationGating(t *testing.T) {
	cat := newCatalog(t, &experiment.Experiment{
		ID: "exp-1", Status: experiment.StatusActive,
		Variants:       []experiment.Variant{{ID: "A", Allocation: 100}},
		TargetAudience: &experiment.TargetAudience{Locations: []string{"US", "CA"}, Percentage: 100},
	})
	e := New(cat, store.NewMemory(), Options{})
	if _, ok := e.Assign(context.Background(), "exp-1", "s1", Context{Location: "FR"}); ok {
		t.Fatalf("FR should be ineligible")
	}
	if _, ok := e.Assign(context.Background(), "exp-1", "s1", Context{Location: "CA"}); !ok {
		t.Fatalf("CA should be assigned")
	}
}

func TestRolloutPercentageDistribution(t *testing.T) {
	cat := newCatalog(t, &experiment.Experiment{
		ID: "exp-1", Status: experiment.StatusActive,
		Variants:       []experiment.Variant{{ID: "A", Allocation: 100}},
		TargetAudience: &experiment.TargetAudience{Percentage: 50},
	})
	e := New(cat, store.NewMemory(), Options{})

	assigned := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if _, ok := e.Assign(context.Background(), "exp-1", fmt.Sprintf("subject-%d", i), Context{}); ok {
			assigned++
		}
	}
	frac := float64(assigned) / n
	require.InDelta(t, 0.50, frac, 0.03, "rollout fraction %f", frac)
}

func TestRolloutUsesRolloutKey(t *testing.T) {
	cat := newCatalog(t, &experiment.Experiment{
		ID: "exp-1", Status: experiment.StatusActive,
		Variants:       []experiment.Variant{{ID: "A", Allocation: 100}},
		TargetAudience: &experiment.TargetAudience{Percentage: 50},
	})
	var keys []string
	e := New(cat, store.NewMemory(), Options{Bucket: func(key string) int {
		keys = append(keys, key)
		return 0
	}})
	_, ok := e.Assign(context.Background(), "exp-1", "subject-1", Context{RolloutKey: "session-9"})
	require.True(t, ok)
	require.Contains(t, keys, "exp-1-session-9")
}

func TestKillSwitch(t *testing.T) {
	cat := newCatalog(t, activeExperiment("exp-1", experiment.Variant{ID: "A", Allocation: 100}))
	e := New(cat, store.NewMemory(), Options{Disabled: true})
	if _, ok := e.Assign(context.Background(), "exp-1", "s1", Context{}); ok {
		t.Fatalf("disabled engine must never assign")
	}
}

func TestStoreFailureFailsSoft(t *testing.T) {
	cat := newCatalog(t, activeExperiment("exp-1",
		experiment.Variant{ID: "A", Allocation: 50},
		experiment.Variant{ID: "B", Allocation: 50},
	))
	e := New(cat, failingStore{}, Options{})

	got, ok := e.Assign(context.Background(), "exp-1", "s1", Context{})
	require.True(t, ok, "store unavailability must not surface")

	// Unpersisted, but the hash keeps recomputation identical.
	again, ok := e.Assign(context.Background(), "exp-1", "s1", Context{})
	require.True(t, ok)
	require.Equal(t, got, again)
}

func TestVariantConfig(t *testing.T) {
	cat := newCatalog(t, activeExperiment("exp-1",
		experiment.Variant{ID: "A", Allocation: 100, Config: map[string]interface{}{"color": "green", "size": 2}},
	))
	e := New(cat, store.NewMemory(), Options{})

	cfg, ok := e.VariantConfig("exp-1", "A")
	require.True(t, ok)
	require.Equal(t, "green", cfg["color"])

	_, ok = e.VariantConfig("exp-1", "missing")
	require.False(t, ok)
	_, ok = e.VariantConfig("missing", "A")
	require.False(t, ok)
}

func TestResolveRecordFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cat := newCatalog(t, activeExperiment("exp-1", experiment.Variant{ID: "A", Allocation: 100}))
	e := New(cat, store.NewMemory(), Options{TTL: 24 * time.Hour, Now: func() time.Time { return now }})

	a, ok := e.Resolve(context.Background(), "exp-1", "s1", Context{})
	require.True(t, ok)
	require.Equal(t, "exp-1", a.ExperimentID)
	require.Equal(t, "s1", a.SubjectID)
	require.Equal(t, now, a.AssignedAt)
	require.Equal(t, now.Add(24*time.Hour), a.ExpiresAt)
}
