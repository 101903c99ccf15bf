// Package optimizer rewrites generation prompts based on evaluation feedback.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fitroom/tryon-engine/internal/evaluator"
	"github.com/fitroom/tryon-engine/internal/llm"
	"github.com/fitroom/tryon-engine/internal/models"
)

const rewriteSystem = `You are an expert at prompts for virtual try-on image generation.
You will receive a prompt that produced a flawed result, together with the evaluation feedback.
Create an IMPROVED prompt that:
1. Fixes the listed problems
2. Especially emphasizes garment IDENTITY (same color, pattern, texture)
3. Stays simple and direct

Reply with ONLY the new prompt, no explanations.`

// fallbackClause is appended when the rewrite call fails or returns the input
// unchanged. Deterministic so the loop always has a next candidate.
const fallbackClause = " IMPORTANT: the clothing must be IDENTICAL to the original - exact color, pattern, texture!"

// Optimizer produces prompt revisions. It never returns an error and never
// returns its input unchanged: a stalled revision would deadlock the
// generate/evaluate loop on the same failing prompt.
type Optimizer struct {
	gateway llm.Gateway
	model   string
}

func NewOptimizer(gw llm.Gateway, model string) *Optimizer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Optimizer{gateway: gw, model: model}
}

// Optimize rewrites previousPrompt to address the evaluation's issues.
func (o *Optimizer) Optimize(ctx context.Context, previousPrompt string, eval evaluator.Evaluation, targetScore float64) string {
	issues := "None"
	if len(eval.Issues) > 0 {
		var b strings.Builder
		for _, issue := range eval.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		issues = b.String()
	}

	user := fmt.Sprintf(`Problems with the previous result:
%s
Assessment: %s
Garment match vs original: %.1f/10
Fit quality: %.1f/10
Target score: %.1f/10

Previous prompt:
%s`,
		issues, eval.Feedback, eval.CategoryMatchScore, eval.FitScore, targetScore, previousPrompt)

	resp, err := o.gateway.Chat(ctx, llm.ChatRequest{
		Model: o.model,
		Messages: []llm.Message{
			{Role: "system", Content: rewriteSystem},
			{Role: "user", Content: user},
		},
		Temperature: 0.4,
	})
	if err != nil {
		slog.Warn("prompt optimization failed, using fallback revision", "error", err)
		return previousPrompt + fallbackClause
	}

	revised := strings.TrimSpace(resp.Content)
	revised = strings.TrimPrefix(revised, "```")
	revised = strings.TrimSuffix(revised, "```")
	revised = strings.TrimSpace(revised)

	if revised == "" || revised == strings.TrimSpace(previousPrompt) {
		slog.Warn("prompt optimization returned no change, using fallback revision")
		return previousPrompt + fallbackClause
	}
	return revised
}

// SeedPrompt builds an initial instruction for a category, used when a brand
// new lineage has to start from something better than the bare base.
func SeedPrompt(category models.Category, extraContext string) string {
	base := "Put this clothing item on this person. The clothing must look exactly as in the source photo - same color, texture, pattern and details. Preserve the person's pose and appearance."

	additions := map[models.Category]string{
		models.CategoryTop:       " Pay attention to the shoulder fit and sleeve length.",
		models.CategoryBottom:    " Pay attention to the waist fit and the length.",
		models.CategoryDress:     " Pay attention to the full dress length and silhouette.",
		models.CategoryOuterwear: " Show how the outerwear sits over the other clothes.",
	}

	prompt := base + additions[category]
	if extraContext != "" {
		prompt += " " + extraContext
	}
	return prompt
}
