package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fitroom/tryon-engine/internal/evaluator"
	"github.com/fitroom/tryon-engine/internal/llm"
	"github.com/fitroom/tryon-engine/internal/models"
)

type stubGateway struct {
	content string
	err     error
}

func (s *stubGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.content}, nil
}

func (s *stubGateway) Provider(name string) (llm.Provider, error) { return nil, errors.New("none") }
func (s *stubGateway) ListModels() []llm.ModelInfo                { return nil }

func TestOptimizeReturnsRewrittenPrompt(t *testing.T) {
	o := NewOptimizer(&stubGateway{content: "a better prompt"}, "gpt-4o-mini")

	got := o.Optimize(context.Background(), "original prompt", evaluator.Evaluation{
		Issues: []string{"wrong color"},
	}, 7.0)

	assert.Equal(t, "a better prompt", got)
}

func TestOptimizeFallbackOnCallFailure(t *testing.T) {
	o := NewOptimizer(&stubGateway{err: errors.New("provider down")}, "gpt-4o-mini")

	got := o.Optimize(context.Background(), "original prompt", evaluator.Evaluation{}, 7.0)

	assert.NotEqual(t, "original prompt", got)
	assert.Contains(t, got, "original prompt")
	assert.Contains(t, got, "IDENTICAL")
}

func TestOptimizeNeverReturnsInputUnchanged(t *testing.T) {
	cases := map[string]string{
		"echoed":      "original prompt",
		"empty":       "",
		"only fences": "``````",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			o := NewOptimizer(&stubGateway{content: content}, "gpt-4o-mini")
			got := o.Optimize(context.Background(), "original prompt", evaluator.Evaluation{}, 7.0)
			assert.NotEqual(t, "original prompt", got)
			assert.NotEmpty(t, got)
		})
	}
}

func TestOptimizeStripsFences(t *testing.T) {
	o := NewOptimizer(&stubGateway{content: "```\nrewritten\n```"}, "gpt-4o-mini")

	got := o.Optimize(context.Background(), "original prompt", evaluator.Evaluation{}, 7.0)
	assert.Equal(t, "rewritten", got)
}

func TestSeedPromptCategoryAdditions(t *testing.T) {
	top := SeedPrompt(models.CategoryTop, "")
	assert.Contains(t, top, "sleeve length")

	swim := SeedPrompt(models.CategorySwimwear, "")
	assert.NotContains(t, swim, "sleeve length")

	withCtx := SeedPrompt(models.CategoryDress, "knee-length")
	assert.Contains(t, withCtx, "knee-length")
}
