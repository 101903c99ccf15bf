package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fitroom/tryon-engine/internal/cache"
	"github.com/fitroom/tryon-engine/internal/history"
	"github.com/fitroom/tryon-engine/internal/imagestore"
	"github.com/fitroom/tryon-engine/internal/models"
	"github.com/fitroom/tryon-engine/internal/queue"
	"github.com/fitroom/tryon-engine/internal/tryon"
)

// TryonWorker runs one full try-on session per task: classify, generate,
// evaluate, optimize until accepted or the iteration cap is hit.
type TryonWorker struct {
	orchestrator *tryon.Orchestrator
	history      *history.Service
	images       *imagestore.Local
	cache        *cache.Cache
}

func NewTryonWorker(orch *tryon.Orchestrator, hist *history.Service, images *imagestore.Local, c *cache.Cache) *TryonWorker {
	return &TryonWorker{
		orchestrator: orch,
		history:      hist,
		images:       images,
		cache:        c,
	}
}

func (w *TryonWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TryonProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	tryonID, err := uuid.Parse(payload.TryonID)
	if err != nil {
		return fmt.Errorf("parse tryon ID: %w", err)
	}

	log := slog.With("tryon_id", tryonID)
	log.Info("processing tryon")

	if err := w.history.MarkProcessing(ctx, tryonID); err != nil {
		log.Warn("failed to mark tryon processing", "error", err)
	}
	w.setProgress(ctx, payload.TryonID, "processing")

	result, err := w.orchestrator.Process(ctx, tryon.Request{
		SubjectPath: payload.SubjectPath,
		GarmentPath: payload.GarmentPath,
		TryonID:     payload.TryonID,
		Progress: func(status string) {
			w.setProgress(ctx, payload.TryonID, status)
		},
	})
	if err != nil {
		w.recordFailure(ctx, log, tryonID, result, err.Error())
		// The session already exhausted its own retries; requeueing would
		// just replay the same failure.
		return nil
	}

	w.recordIterations(ctx, log, tryonID, result)

	if result.State == tryon.StateFailed || len(result.Image) == 0 {
		w.recordFailure(ctx, log, tryonID, result, result.Error)
		return nil
	}

	resultPath, err := w.images.SaveResult(payload.TryonID, result.Image)
	if err != nil {
		w.recordFailure(ctx, log, tryonID, result, "failed to store result image")
		return fmt.Errorf("save result image: %w", err)
	}

	if err := w.history.Complete(ctx, tryonID, result.Category, resultPath, result.FinalPrompt, result.FinalScore, result.IterationsUsed); err != nil {
		log.Warn("failed to record completion", "error", err)
	}
	w.setProgress(ctx, payload.TryonID, "completed")

	log.Info("tryon completed",
		"state", result.State.String(),
		"accepted", result.Accepted,
		"score", result.FinalScore,
		"iterations", result.IterationsUsed,
	)
	return nil
}

func (w *TryonWorker) recordIterations(ctx context.Context, log *slog.Logger, tryonID uuid.UUID, result *tryon.Result) {
	if result == nil {
		return
	}
	for _, a := range result.Attempts {
		it := &models.TryonIteration{
			TryonID:   tryonID,
			Iteration: a.Iteration,
			Prompt:    a.Prompt,
			Score:     a.Evaluation.OverallScore,
			Feedback:  a.Evaluation.Feedback,
		}
		if err := w.history.AddIteration(ctx, it); err != nil {
			log.Warn("failed to record iteration", "iteration", a.Iteration, "error", err)
		}
	}
}

func (w *TryonWorker) recordFailure(ctx context.Context, log *slog.Logger, tryonID uuid.UUID, result *tryon.Result, reason string) {
	category := models.CategoryDefault
	iterations := 0
	if result != nil {
		if result.Category != "" {
			category = result.Category
		}
		iterations = result.IterationsUsed
	}
	if err := w.history.Fail(ctx, tryonID, category, reason, iterations); err != nil {
		log.Warn("failed to record failure", "error", err)
	}
	w.setProgress(ctx, tryonID.String(), "failed")
	log.Warn("tryon failed", "reason", reason)
}

func (w *TryonWorker) setProgress(ctx context.Context, tryonID, status string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.SetProgress(ctx, tryonID, status); err != nil {
		slog.Debug("failed to update progress", "tryon_id", tryonID, "error", err)
	}
}
