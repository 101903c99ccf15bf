// Package evaluator scores generated try-on images with a vision judge.
package evaluator

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fitroom/tryon-engine/internal/llm"
)

// Evaluation is the judgment of one generated image. Scores are 0-10.
type Evaluation struct {
	OverallScore       float64  `json:"score"`
	CategoryMatchScore float64  `json:"category_match_score"`
	FitScore           float64  `json:"fit_score"`
	Feedback           string   `json:"feedback"`
	Issues             []string `json:"issues"`
	Suggestions        []string `json:"suggestions"`
}

const judgePrompt = `You are an expert judge of virtual try-on results. Evaluate the generated image.

CRITICAL: the clothing in the result must look IDENTICAL to the original garment - same color, pattern, texture and details.

Score on a 0-10 scale:
1. category_match_score - how IDENTICAL is the clothing in the result to the original garment? (color, pattern, details, shape)
2. fit_score - how naturally does the clothing sit on the person?
3. score - overall quality (average of the two above)

Reply with ONLY a JSON object:
{
    "score": <0-10>,
    "category_match_score": <0-10>,
    "fit_score": <0-10>,
    "feedback": "<short assessment>",
    "issues": ["problem 1", "problem 2"],
    "suggestions": ["how to fix 1", "how to fix 2"]
}`

// Evaluator never returns an error: when the judgment call or its parsing
// fails it falls back to a neutral mid-scale Evaluation so the orchestrator's
// accept/iterate decision stays well-defined.
type Evaluator struct {
	gateway llm.Gateway
	model   string // must be vision-capable
}

func NewEvaluator(gw llm.Gateway, model string) *Evaluator {
	if model == "" {
		model = "gpt-4o"
	}
	return &Evaluator{gateway: gw, model: model}
}

// Evaluate judges the generated image against the original garment and
// subject photos. Either original path may be empty.
func (e *Evaluator) Evaluate(ctx context.Context, generated []byte, subjectPath, garmentPath string) Evaluation {
	var images []llm.ImageAttachment
	var labels []string

	if garmentPath != "" {
		if img, err := attachFile(garmentPath); err == nil {
			images = append(images, img)
			labels = append(labels, "Image 1: the ORIGINAL GARMENT (the result must match it exactly).")
		} else {
			slog.Warn("evaluator could not read garment photo", "path", garmentPath, "error", err)
		}
	}
	if subjectPath != "" {
		if img, err := attachFile(subjectPath); err == nil {
			images = append(images, img)
			labels = append(labels, "Next image: the original photo of the person.")
		} else {
			slog.Warn("evaluator could not read subject photo", "path", subjectPath, "error", err)
		}
	}
	images = append(images, llm.ImageAttachment{MimeType: "image/png", Data: generated})
	labels = append(labels, "Last image: the TRY-ON RESULT to evaluate.")

	resp, err := e.gateway.Chat(ctx, llm.ChatRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "system", Content: judgePrompt},
			{Role: "user", Content: strings.Join(labels, "\n"), Images: images},
		},
		Temperature: 0,
	})
	if err != nil {
		slog.Error("evaluation call failed", "error", err)
		return neutralEvaluation("evaluation call failed: " + err.Error())
	}

	ev, ok := parseEvaluation(resp.Content)
	if !ok {
		slog.Warn("evaluation response unparseable", "content_preview", preview(resp.Content))
		return neutralEvaluation("evaluation response could not be parsed")
	}
	return ev
}

// parseEvaluation extracts an Evaluation from judge output, tolerating
// markdown fences around the JSON. Scores are clamped to [0,10].
func parseEvaluation(content string) (Evaluation, bool) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var ev Evaluation
	if err := json.Unmarshal([]byte(content), &ev); err != nil {
		return Evaluation{}, false
	}

	ev.OverallScore = clamp(ev.OverallScore)
	ev.CategoryMatchScore = clamp(ev.CategoryMatchScore)
	ev.FitScore = clamp(ev.FitScore)
	return ev, true
}

// neutralEvaluation is the degraded-judgment fallback: mid-scale on every
// axis, tagged so the failure is visible downstream.
func neutralEvaluation(reason string) Evaluation {
	return Evaluation{
		OverallScore:       5.0,
		CategoryMatchScore: 5.0,
		FitScore:           5.0,
		Feedback:           reason,
		Issues:             []string{"evaluation failed"},
		Suggestions:        []string{"retry the evaluation"},
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func attachFile(path string) (llm.ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.ImageAttachment{}, err
	}
	return llm.ImageAttachment{MimeType: mimeFromExtension(filepath.Ext(path)), Data: data}, nil
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

func preview(s string) string {
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
