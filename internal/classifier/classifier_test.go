package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func garmentFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "garment.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o644))
	return path
}

func TestClassifyKnownLabel(t *testing.T) {
	c := NewClassifier(&stubGateway{content: "dress"}, "gpt-4o")

	got := c.Classify(context.Background(), garmentFile(t))
	assert.Equal(t, models.CategoryDress, got)
}

func TestClassifyNormalizesAnswer(t *testing.T) {
	c := NewClassifier(&stubGateway{content: "  Outerwear \n"}, "gpt-4o")

	got := c.Classify(context.Background(), garmentFile(t))
	assert.Equal(t, models.CategoryOuterwear, got)
}

func TestClassifySalvagesLabelFromSentence(t *testing.T) {
	c := NewClassifier(&stubGateway{content: "This looks like a swimwear item."}, "gpt-4o")

	got := c.Classify(context.Background(), garmentFile(t))
	assert.Equal(t, models.CategorySwimwear, got)
}

func TestClassifyFallbackOnUnknownAnswer(t *testing.T) {
	c := NewClassifier(&stubGateway{content: "a hat, probably"}, "gpt-4o")

	got := c.Classify(context.Background(), garmentFile(t))
	assert.Equal(t, models.CategoryTop, got)
}

func TestClassifyFallbackOnCallFailure(t *testing.T) {
	c := NewClassifier(&stubGateway{err: errors.New("provider down")}, "gpt-4o")

	got := c.Classify(context.Background(), garmentFile(t))
	assert.Equal(t, models.CategoryTop, got)
}

func TestClassifyFallbackOnUnreadablePhoto(t *testing.T) {
	c := NewClassifier(&stubGateway{content: "dress"}, "gpt-4o")

	got := c.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Equal(t, models.CategoryTop, got)
}
