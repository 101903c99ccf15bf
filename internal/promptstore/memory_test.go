package promptstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitroom/tryon-engine/internal/models"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(7.0)
	require.NoError(t, s.SeedDefaults(context.Background(), DefaultPrompts))
	return s
}

func TestSeedDefaultsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	first, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)

	require.NoError(t, s.SeedDefaults(ctx, DefaultPrompts))
	require.NoError(t, s.SeedDefaults(ctx, DefaultPrompts))

	again, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, again.Version)

	lineage, err := s.History(ctx, models.CategoryTop)
	require.NoError(t, err)
	assert.Len(t, lineage, 1)
}

func TestGetActiveFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(7.0)
	require.NoError(t, s.SeedDefaults(ctx, map[models.Category]string{
		models.CategoryDefault: "base prompt",
	}))

	p, err := s.GetActive(ctx, models.CategoryShoes)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryDefault, p.Category)
	assert.Equal(t, "base prompt", p.Body)
}

func TestGetActiveNotFound(t *testing.T) {
	s := NewMemoryStore(7.0)

	_, err := s.GetActive(context.Background(), models.CategoryTop)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordUsageRunningAverage(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	p, err := s.GetActive(ctx, models.CategoryDress)
	require.NoError(t, err)

	for _, score := range []float64{4, 8, 3} {
		require.NoError(t, s.RecordUsage(ctx, p.ID, Usage{OverallScore: score, CategoryMatch: score}))
	}

	updated, err := s.GetActive(ctx, models.CategoryDress)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.TotalUses)
	assert.Equal(t, int64(1), updated.SuccessfulUses) // only the 8 clears the threshold
	assert.InDelta(t, 5.0, updated.AvgScore, 1e-9)
	assert.InDelta(t, 5.0, updated.AvgCategoryMatch, 1e-9)
}

func TestRecordUsageUnknownPromptIsNoop(t *testing.T) {
	s := seededStore(t)
	assert.NoError(t, s.RecordUsage(context.Background(), 99999, Usage{OverallScore: 9}))
}

func TestRecordUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	p, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = s.RecordUsage(ctx, p.ID, Usage{OverallScore: 6, CategoryMatch: 6})
		}()
	}
	wg.Wait()

	updated, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), updated.TotalUses)
	assert.InDelta(t, 6.0, updated.AvgScore, 1e-6)
	assert.Equal(t, int64(0), updated.SuccessfulUses)
}

func TestPromoteCreatesNextVersion(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	parent, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)

	child, err := s.Promote(ctx, PromoteRequest{
		Category:     models.CategoryTop,
		Body:         "revised prompt",
		ParentID:     parent.ID,
		Reason:       "revision scored 8.5",
		InitialScore: 8.5,
	})
	require.NoError(t, err)

	assert.Equal(t, parent.Version+1, child.Version)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, int64(1), child.TotalUses)
	assert.Equal(t, int64(1), child.SuccessfulUses)
	assert.InDelta(t, 8.5, child.AvgScore, 1e-9)
	assert.True(t, child.Active)

	// exactly one active prompt remains in the lineage
	active, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)
	assert.Equal(t, child.ID, active.ID)

	lineage, err := s.History(ctx, models.CategoryTop)
	require.NoError(t, err)
	activeCount := 0
	for _, p := range lineage {
		if p.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestPromoteConflict(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	parent, err := s.GetActive(ctx, models.CategoryTop)
	require.NoError(t, err)

	_, err = s.Promote(ctx, PromoteRequest{
		Category: models.CategoryTop, Body: "first revision",
		ParentID: parent.ID, InitialScore: 8.2,
	})
	require.NoError(t, err)

	// the second session still holds the now-retired parent
	_, err = s.Promote(ctx, PromoteRequest{
		Category: models.CategoryTop, Body: "second revision",
		ParentID: parent.ID, InitialScore: 9.0,
	})
	assert.ErrorIs(t, err, ErrPromotionConflict)

	lineage, err := s.History(ctx, models.CategoryTop)
	require.NoError(t, err)
	assert.Len(t, lineage, 2)
}

func TestPromoteChainVersions(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	for want := 2; want <= 4; want++ {
		parent, err := s.GetActive(ctx, models.CategoryBottom)
		require.NoError(t, err)

		child, err := s.Promote(ctx, PromoteRequest{
			Category: models.CategoryBottom, Body: "revision",
			ParentID: parent.ID, InitialScore: 8.0,
		})
		require.NoError(t, err)
		assert.Equal(t, want, child.Version)
	}

	lineage, err := s.History(ctx, models.CategoryBottom)
	require.NoError(t, err)
	require.Len(t, lineage, 4)
	for i, p := range lineage {
		assert.Equal(t, i+1, p.Version)
	}
}

func TestHistoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	lineage, err := s.History(ctx, models.CategoryTop)
	require.NoError(t, err)
	require.NotEmpty(t, lineage)

	lineage[0].Body = "mutated"

	again, err := s.History(ctx, models.CategoryTop)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].Body)
}
