package tryon

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitroom/tryon-engine/internal/config"
	"github.com/fitroom/tryon-engine/internal/evaluator"
	"github.com/fitroom/tryon-engine/internal/generator"
	"github.com/fitroom/tryon-engine/internal/models"
	"github.com/fitroom/tryon-engine/internal/promptstore"
)

func testConfig() config.TryonConfig {
	return config.TryonConfig{
		MaxIterations:   3,
		AcceptScore:     7.0,
		PromoteScore:    8.0,
		GenerateRetries: 2,
		GenerateTimeout: time.Second,
		EvaluateTimeout: time.Second,
		ClassifyTimeout: time.Second,
		OptimizeTimeout: time.Second,
	}
}

type stubClassifier struct {
	category models.Category
}

func (s *stubClassifier) Classify(ctx context.Context, garmentPath string) models.Category {
	return s.category
}

// stubGenerator returns one scripted outcome per call.
type stubGenerator struct {
	calls    int
	failures []error // nil entry means success
}

func (s *stubGenerator) Generate(ctx context.Context, subjectPath, garmentPath, prompt string) ([]byte, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.failures) && s.failures[idx] != nil {
		return nil, s.failures[idx]
	}
	return []byte(fmt.Sprintf("image-%d", idx)), nil
}

// stubEvaluator returns scripted scores in order, repeating the last one.
type stubEvaluator struct {
	scores []float64
	calls  int
}

func (s *stubEvaluator) Evaluate(ctx context.Context, generated []byte, subjectPath, garmentPath string) evaluator.Evaluation {
	idx := s.calls
	s.calls++
	if idx >= len(s.scores) {
		idx = len(s.scores) - 1
	}
	score := s.scores[idx]
	return evaluator.Evaluation{
		OverallScore:       score,
		CategoryMatchScore: score,
		FitScore:           score,
		Feedback:           "scripted",
	}
}

type stubOptimizer struct {
	calls int
}

func (s *stubOptimizer) Optimize(ctx context.Context, previousPrompt string, eval evaluator.Evaluation, targetScore float64) string {
	s.calls++
	return fmt.Sprintf("%s [revision %d]", previousPrompt, s.calls)
}

// recordingStore wraps a MemoryStore and counts the writes that reach it.
type recordingStore struct {
	promptstore.Store
	usages   []promptstore.Usage
	usageIDs []int64
	promotes []promptstore.PromoteRequest
	getErr   error
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	mem := promptstore.NewMemoryStore(7.0)
	require.NoError(t, mem.SeedDefaults(context.Background(), promptstore.DefaultPrompts))
	return &recordingStore{Store: mem}
}

func (s *recordingStore) GetActive(ctx context.Context, category models.Category) (*models.Prompt, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.GetActive(ctx, category)
}

func (s *recordingStore) RecordUsage(ctx context.Context, promptID int64, usage promptstore.Usage) error {
	s.usages = append(s.usages, usage)
	s.usageIDs = append(s.usageIDs, promptID)
	return s.Store.RecordUsage(ctx, promptID, usage)
}

func (s *recordingStore) Promote(ctx context.Context, req promptstore.PromoteRequest) (*models.Prompt, error) {
	s.promotes = append(s.promotes, req)
	return s.Store.Promote(ctx, req)
}

func newTestOrchestrator(store promptstore.Store, gen generator.Generator, scores []float64) (*Orchestrator, *stubOptimizer) {
	opt := &stubOptimizer{}
	o := NewOrchestrator(
		&stubClassifier{category: models.CategoryTop},
		gen,
		&stubEvaluator{scores: scores},
		opt,
		store,
		testConfig(),
	)
	return o, opt
}

func TestProcessAcceptsFirstPass(t *testing.T) {
	store := newRecordingStore(t)
	o, opt := newTestOrchestrator(store, &stubGenerator{}, []float64{9})

	res, err := o.Process(context.Background(), Request{TryonID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, StateAccepted, res.State)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.IterationsUsed)
	assert.Equal(t, []byte("image-0"), res.Image)
	assert.InDelta(t, 9.0, res.FinalScore, 1e-9)

	require.Len(t, store.usages, 1)
	assert.InDelta(t, 9.0, store.usages[0].OverallScore, 1e-9)
	// a first-pass success never touches the optimizer, so nothing to promote
	assert.Zero(t, opt.calls)
	assert.Empty(t, store.promotes)
}

func TestProcessKeepsBestAttempt(t *testing.T) {
	store := newRecordingStore(t)
	o, opt := newTestOrchestrator(store, &stubGenerator{}, []float64{4, 6, 3})

	res, err := o.Process(context.Background(), Request{TryonID: "t2"})
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.False(t, res.Accepted)
	assert.Equal(t, 3, res.IterationsUsed)
	assert.Equal(t, []byte("image-1"), res.Image) // second attempt scored highest
	assert.InDelta(t, 6.0, res.FinalScore, 1e-9)
	assert.Equal(t, 2, opt.calls) // no rewrite after the final iteration

	require.Len(t, store.usages, 1)
	assert.InDelta(t, 6.0, store.usages[0].OverallScore, 1e-9)
	assert.Empty(t, store.promotes) // 6.0 is below the promotion threshold
}

func TestProcessPromotesStrongRevision(t *testing.T) {
	store := newRecordingStore(t)
	original, err := store.GetActive(context.Background(), models.CategoryTop)
	require.NoError(t, err)

	o, _ := newTestOrchestrator(store, &stubGenerator{}, []float64{5, 8.5})

	res, err := o.Process(context.Background(), Request{TryonID: "t3"})
	require.NoError(t, err)

	assert.Equal(t, StateAccepted, res.State)
	assert.Equal(t, 2, res.IterationsUsed)

	require.Len(t, store.promotes, 1)
	promo := store.promotes[0]
	assert.Equal(t, original.ID, promo.ParentID)
	assert.Contains(t, promo.Body, "[revision 1]")
	assert.InDelta(t, 8.5, promo.InitialScore, 1e-9)

	// usage is recorded against the original prompt, not the promoted child
	require.Len(t, store.usageIDs, 1)
	assert.Equal(t, original.ID, store.usageIDs[0])

	active, err := store.GetActive(context.Background(), models.CategoryTop)
	require.NoError(t, err)
	assert.Equal(t, original.Version+1, active.Version)
}

func TestProcessAcceptedBelowPromoteScoreDoesNotPromote(t *testing.T) {
	store := newRecordingStore(t)
	o, _ := newTestOrchestrator(store, &stubGenerator{}, []float64{5, 7.5})

	res, err := o.Process(context.Background(), Request{TryonID: "t4"})
	require.NoError(t, err)

	assert.Equal(t, StateAccepted, res.State)
	assert.Empty(t, store.promotes)
}

func TestProcessBlockedGenerationFailsImmediately(t *testing.T) {
	store := newRecordingStore(t)
	blocked := &generator.Error{Kind: generator.KindBlocked, Message: "try a different garment photo"}
	gen := &stubGenerator{failures: []error{blocked, blocked, blocked, blocked}}
	o, _ := newTestOrchestrator(store, gen, []float64{9})

	res, err := o.Process(context.Background(), Request{TryonID: "t5"})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "try a different garment photo", res.Error)
	assert.Empty(t, res.Image)
	assert.Equal(t, 1, gen.calls) // blocked is never retried

	assert.Empty(t, store.usages)
	assert.Empty(t, store.promotes)
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	store := newRecordingStore(t)
	transient := &generator.Error{Kind: generator.KindTransient, Message: "backend unavailable"}
	gen := &stubGenerator{failures: []error{transient, transient, nil}}
	o, _ := newTestOrchestrator(store, gen, []float64{9})

	res, err := o.Process(context.Background(), Request{TryonID: "t6"})
	require.NoError(t, err)

	assert.Equal(t, StateAccepted, res.State)
	assert.Equal(t, 3, gen.calls)
}

func TestProcessMalformedRetriedOnce(t *testing.T) {
	store := newRecordingStore(t)
	malformed := &generator.Error{Kind: generator.KindMalformed, Message: "no image in response"}
	gen := &stubGenerator{failures: []error{malformed, malformed, malformed, malformed}}
	o, _ := newTestOrchestrator(store, gen, []float64{9})

	res, err := o.Process(context.Background(), Request{TryonID: "t7"})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, gen.calls)
}

func TestProcessMidLoopFailureKeepsBest(t *testing.T) {
	store := newRecordingStore(t)
	blocked := &generator.Error{Kind: generator.KindBlocked, Message: "blocked"}
	gen := &stubGenerator{failures: []error{nil, blocked}}
	o, _ := newTestOrchestrator(store, gen, []float64{5})

	res, err := o.Process(context.Background(), Request{TryonID: "t8"})
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, []byte("image-0"), res.Image)
	assert.InDelta(t, 5.0, res.FinalScore, 1e-9)
	require.Len(t, store.usages, 1)
}

func TestProcessStoreOutageUsesBuiltinAndSkipsWrites(t *testing.T) {
	store := newRecordingStore(t)
	store.getErr = errors.New("connection refused")
	o, _ := newTestOrchestrator(store, &stubGenerator{}, []float64{5, 9})

	res, err := o.Process(context.Background(), Request{TryonID: "t9"})
	require.NoError(t, err)

	assert.Equal(t, StateAccepted, res.State)
	assert.Empty(t, store.usages)
	assert.Empty(t, store.promotes)
}

func TestProcessTerminatesWithinIterationCap(t *testing.T) {
	store := newRecordingStore(t)
	ev := &stubEvaluator{scores: []float64{2}}
	opt := &stubOptimizer{}
	o := NewOrchestrator(
		&stubClassifier{category: models.CategoryDress},
		&stubGenerator{},
		ev,
		opt,
		store,
		testConfig(),
	)

	res, err := o.Process(context.Background(), Request{TryonID: "t10"})
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, res.IterationsUsed)
	assert.Len(t, res.Attempts, 3)
	assert.Equal(t, 3, ev.calls)
}

func TestProcessProgressPanicsAreContained(t *testing.T) {
	store := newRecordingStore(t)
	o, _ := newTestOrchestrator(store, &stubGenerator{}, []float64{9})

	res, err := o.Process(context.Background(), Request{
		TryonID:  "t11",
		Progress: func(string) { panic("listener gone") },
	})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, res.State)
}
