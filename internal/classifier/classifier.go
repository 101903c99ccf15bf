// Package classifier determines a garment's category from its photo.
package classifier

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fitroom/tryon-engine/internal/llm"
	"github.com/fitroom/tryon-engine/internal/models"
)

const classifyPrompt = `Determine the type of clothing in the image. Answer with ONE word from this list: top, bottom, dress, outerwear, swimwear, underwear, accessory, shoes. If unsure, answer top or bottom.`

// Classifier labels garment photos. The category only selects which prompt
// lineage a session draws from, so classification never fails: any model
// error or unknown answer degrades to the fallback category.
type Classifier struct {
	gateway  llm.Gateway
	model    string // must be vision-capable
	fallback models.Category
}

func NewClassifier(gw llm.Gateway, model string) *Classifier {
	if model == "" {
		model = "gpt-4o"
	}
	return &Classifier{gateway: gw, model: model, fallback: models.CategoryTop}
}

// Classify returns a label from the known category set, never an error.
func (c *Classifier) Classify(ctx context.Context, garmentPath string) models.Category {
	data, err := os.ReadFile(garmentPath)
	if err != nil {
		slog.Warn("could not read garment photo for classification", "path", garmentPath, "error", err)
		return c.fallback
	}

	resp, err := c.gateway.Chat(ctx, llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{
				Role:    "user",
				Content: classifyPrompt,
				Images: []llm.ImageAttachment{
					{MimeType: mimeFromExtension(filepath.Ext(garmentPath)), Data: data},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		slog.Warn("garment classification failed", "error", err)
		return c.fallback
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	if cat := models.Category(answer); cat.Valid() && cat != models.CategoryDefault {
		return cat
	}

	// The model sometimes wraps the label in a sentence; salvage it.
	for _, cat := range models.KnownCategories {
		if strings.Contains(answer, string(cat)) {
			return cat
		}
	}

	slog.Warn("unrecognized garment category, using fallback", "answer", answer)
	return c.fallback
}

func mimeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
