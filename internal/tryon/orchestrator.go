// Package tryon coordinates the closed prompt-evolution loop: generate,
// evaluate, optimize, promote. One Orchestrator serves any number of
// concurrent sessions; all shared state lives behind the prompt store.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitroom/tryon-engine/internal/config"
	"github.com/fitroom/tryon-engine/internal/evaluator"
	"github.com/fitroom/tryon-engine/internal/generator"
	"github.com/fitroom/tryon-engine/internal/models"
	"github.com/fitroom/tryon-engine/internal/promptstore"
)

// Collaborator contracts, satisfied by the concrete services. The classifier,
// evaluator and optimizer are infallible by design; only generation can fail.
type Classifier interface {
	Classify(ctx context.Context, garmentPath string) models.Category
}

type Evaluator interface {
	Evaluate(ctx context.Context, generated []byte, subjectPath, garmentPath string) evaluator.Evaluation
}

type Optimizer interface {
	Optimize(ctx context.Context, previousPrompt string, eval evaluator.Evaluation, targetScore float64) string
}

type Orchestrator struct {
	classifier Classifier
	generator  generator.Generator
	evaluator  Evaluator
	optimizer  Optimizer
	store      promptstore.Store
	cfg        config.TryonConfig
}

func NewOrchestrator(
	cl Classifier,
	gen generator.Generator,
	ev Evaluator,
	opt Optimizer,
	store promptstore.Store,
	cfg config.TryonConfig,
) *Orchestrator {
	return &Orchestrator{
		classifier: cl,
		generator:  gen,
		evaluator:  ev,
		optimizer:  opt,
		store:      store,
		cfg:        cfg,
	}
}

var categoryNames = map[models.Category]string{
	models.CategoryTop:       "top (t-shirt/shirt)",
	models.CategoryBottom:    "bottom (pants/skirt)",
	models.CategoryDress:     "dress",
	models.CategoryOuterwear: "outerwear",
	models.CategorySwimwear:  "swimwear",
	models.CategoryUnderwear: "underwear",
	models.CategoryAccessory: "accessory",
	models.CategoryShoes:     "shoes",
}

// Process runs one try-on session to a terminal state. It returns an error
// only when the context is canceled before any work completes; every other
// outcome, including outright generation failure, is reported in the Result.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	log := slog.With("tryon_id", req.TryonID)
	progress := safeProgress(req.Progress)

	// CLASSIFYING
	progress("Detecting the clothing type...")
	classifyCtx, cancel := context.WithTimeout(ctx, o.cfg.ClassifyTimeout)
	category := o.classifier.Classify(classifyCtx, req.GarmentPath)
	cancel()
	log.Info("classified garment", "category", category)

	name := categoryNames[category]
	if name == "" {
		name = "clothing"
	}
	progress(fmt.Sprintf("Detected: %s. Generating the try-on...", name))

	// The session records usage against the prompt it started with, never
	// against intermediate revisions. A store outage degrades to the builtin
	// prompt; usage is then not recordable and promotion is skipped.
	original, err := o.store.GetActive(ctx, category)
	if err != nil {
		if !errors.Is(err, promptstore.ErrNotFound) {
			log.Warn("prompt store unavailable, using builtin prompt", "error", err)
		}
		original = nil
	}

	prompt := promptstore.Builtin(category)
	if original != nil {
		prompt = original.Body
		log.Info("using stored prompt", "category", original.Category, "version", original.Version)
	}

	res := &Result{Category: category, FinalPrompt: prompt}

	bestIdx := -1
	revised := false

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		// GENERATING
		image, genErr := o.generateWithRetry(ctx, log, req, prompt)
		if genErr != nil {
			if bestIdx >= 0 {
				// A usable attempt exists; a mid-loop failure must not turn
				// the whole session into an error.
				log.Warn("generation failed mid-session, keeping best attempt",
					"iteration", iteration, "error", genErr)
				res.State = StateExhausted
				break
			}
			res.State = StateFailed
			res.Error = generator.UserMessage(genErr)
			res.IterationsUsed = iteration
			log.Error("session failed, no image generated", "error", genErr)
			return res, nil
		}

		// EVALUATING
		progress(fmt.Sprintf("Checking the result (pass %d)...", iteration))
		evalCtx, cancel := context.WithTimeout(ctx, o.cfg.EvaluateTimeout)
		eval := o.evaluator.Evaluate(evalCtx, image, req.SubjectPath, req.GarmentPath)
		cancel()
		log.Info("evaluated attempt",
			"iteration", iteration,
			"score", eval.OverallScore,
			"category_match", eval.CategoryMatchScore,
			"fit", eval.FitScore,
		)

		attempt := Attempt{
			Iteration:  iteration,
			Prompt:     prompt,
			Revised:    iteration > 1,
			Image:      image,
			Evaluation: eval,
		}
		res.Attempts = append(res.Attempts, attempt)
		res.IterationsUsed = iteration

		if bestIdx < 0 || attempt.Evaluation.OverallScore > res.Attempts[bestIdx].Evaluation.OverallScore {
			bestIdx = len(res.Attempts) - 1
		}

		if eval.OverallScore >= o.cfg.AcceptScore {
			res.State = StateAccepted
			res.Accepted = true
			break
		}

		if iteration == o.cfg.MaxIterations {
			res.State = StateExhausted
			break
		}

		// OPTIMIZING
		progress("Improving the instructions and retrying...")
		optCtx, cancel := context.WithTimeout(ctx, o.cfg.OptimizeTimeout)
		prompt = o.optimizer.Optimize(optCtx, prompt, eval, o.cfg.AcceptScore)
		cancel()
		revised = true
	}

	// Terminal bookkeeping. Store writes run on a cancel-free context: a
	// client that disconnected mid-session must not leave a half-applied
	// usage record or promotion behind.
	best := res.Attempts[bestIdx]
	res.Image = best.Image
	res.FinalScore = best.Evaluation.OverallScore
	res.CategoryMatchScore = best.Evaluation.CategoryMatchScore
	res.FinalPrompt = best.Prompt

	storeCtx := context.WithoutCancel(ctx)
	if original != nil {
		if err := o.store.RecordUsage(storeCtx, original.ID, promptstore.Usage{
			OverallScore:  best.Evaluation.OverallScore,
			CategoryMatch: best.Evaluation.CategoryMatchScore,
		}); err != nil {
			log.Warn("could not record prompt usage", "error", err)
		}
	}

	if revised && original != nil {
		o.maybePromote(storeCtx, log, category, original, res.Attempts)
	}

	log.Info("session finished",
		"state", res.State.String(),
		"score", res.FinalScore,
		"iterations", res.IterationsUsed,
	)
	return res, nil
}

// generateWithRetry retries transient failures a small fixed number of times
// and a malformed response exactly once. Blocked failures return immediately.
func (o *Orchestrator) generateWithRetry(ctx context.Context, log *slog.Logger, req Request, prompt string) ([]byte, error) {
	var lastErr error
	malformedRetried := false

	for attempt := 0; attempt <= o.cfg.GenerateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
			log.Debug("retrying generation", "attempt", attempt)
		}

		genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
		image, err := o.generator.Generate(genCtx, req.SubjectPath, req.GarmentPath, prompt)
		cancel()
		if err == nil {
			return image, nil
		}
		lastErr = err

		if generator.IsBlocked(err) {
			return nil, err
		}
		if generator.IsMalformed(err) {
			if malformedRetried {
				return nil, err
			}
			malformedRetried = true
		}
	}
	return nil, lastErr
}

// maybePromote shares a successful revision with every user of the category.
// Only the best revised attempt is considered, and only when it clears the
// promotion threshold, which is stricter than acceptance so a single lucky
// sample does not churn the lineage.
func (o *Orchestrator) maybePromote(ctx context.Context, log *slog.Logger, category models.Category, original *models.Prompt, attempts []Attempt) {
	var bestRevised *Attempt
	for i := range attempts {
		a := &attempts[i]
		if !a.Revised {
			continue
		}
		if bestRevised == nil || a.Evaluation.OverallScore > bestRevised.Evaluation.OverallScore {
			bestRevised = a
		}
	}
	if bestRevised == nil || bestRevised.Evaluation.OverallScore < o.cfg.PromoteScore {
		return
	}

	reason := fmt.Sprintf("revision scored %.1f (threshold %.1f) after %d iterations",
		bestRevised.Evaluation.OverallScore, o.cfg.PromoteScore, bestRevised.Iteration)

	_, err := o.store.Promote(ctx, promptstore.PromoteRequest{
		Category:     original.Category,
		Body:         bestRevised.Prompt,
		ParentID:     original.ID,
		Reason:       reason,
		InitialScore: bestRevised.Evaluation.OverallScore,
	})
	switch {
	case errors.Is(err, promptstore.ErrPromotionConflict):
		// Another session promoted first; this revision's learnings are
		// dropped, which is fine.
		log.Info("promotion lost to a concurrent session", "category", category)
	case err != nil:
		log.Warn("could not promote revised prompt", "error", err)
	}
}

// safeProgress wraps the caller's callback so a panicking or slow callback
// can never take the session down.
func safeProgress(fn func(string)) func(string) {
	if fn == nil {
		return func(string) {}
	}
	return func(status string) {
		defer func() {
			if r := recover(); r != nil {
				slog.Debug("progress callback panicked", "panic", r)
			}
		}()
		fn(status)
	}
}
