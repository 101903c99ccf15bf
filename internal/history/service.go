// Package history persists try-on records and their per-iteration audit
// trail. Everything here is best-effort telemetry: callers log write failures
// and move on.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitroom/tryon-engine/internal/models"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Enabled reports whether a database is wired in. Without one the engine
// still runs; it just keeps no records.
func (s *Service) Enabled() bool { return s != nil && s.db != nil }

func (s *Service) Create(ctx context.Context, t *models.Tryon) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO tryons (id, subject_path, garment_path, status)
		 VALUES ($1, $2, $3, $4)`,
		t.ID, t.SubjectPath, t.GarmentPath, models.TryonPending,
	)
	if err != nil {
		return fmt.Errorf("insert tryon: %w", err)
	}
	return nil
}

func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE tryons SET status = $2 WHERE id = $1`,
		id, models.TryonProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark tryon processing: %w", err)
	}
	return nil
}

// Complete records a finished session, accepted or exhausted.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, category models.Category, resultPath, promptUsed string, score float64, iterations int) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE tryons SET
			status = $2, category = $3, result_path = $4, prompt_used = $5,
			quality_score = $6, iterations_count = $7, completed_at = $8
		 WHERE id = $1`,
		id, models.TryonCompleted, category, resultPath, promptUsed, score, iterations, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("complete tryon: %w", err)
	}
	return nil
}

func (s *Service) Fail(ctx context.Context, id uuid.UUID, category models.Category, reason string, iterations int) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE tryons SET
			status = $2, category = $3, error = $4, iterations_count = $5, completed_at = $6
		 WHERE id = $1`,
		id, models.TryonFailed, category, reason, iterations, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("fail tryon: %w", err)
	}
	return nil
}

// AddIteration appends one generate/evaluate pass to the audit trail.
func (s *Service) AddIteration(ctx context.Context, it *models.TryonIteration) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO tryon_iterations (tryon_id, iteration, prompt, score, feedback)
		 VALUES ($1, $2, $3, $4, $5)`,
		it.TryonID, it.Iteration, it.Prompt, it.Score, it.Feedback,
	)
	if err != nil {
		return fmt.Errorf("insert tryon iteration: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Tryon, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("history disabled: no database configured")
	}
	var t models.Tryon
	err := s.db.QueryRow(ctx,
		`SELECT id, subject_path, garment_path, COALESCE(category, ''), status,
			COALESCE(result_path, ''), COALESCE(prompt_used, ''),
			COALESCE(quality_score, 0), iterations_count, COALESCE(error, ''),
			created_at, completed_at
		 FROM tryons WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.SubjectPath, &t.GarmentPath, &t.Category, &t.Status,
		&t.ResultPath, &t.PromptUsed, &t.QualityScore, &t.IterationsCount,
		&t.Error, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get tryon: %w", err)
	}
	return &t, nil
}

func (s *Service) Iterations(ctx context.Context, id uuid.UUID) ([]models.TryonIteration, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("history disabled: no database configured")
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, tryon_id, iteration, prompt, score, COALESCE(feedback, ''), created_at
		 FROM tryon_iterations WHERE tryon_id = $1 ORDER BY iteration ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list tryon iterations: %w", err)
	}
	defer rows.Close()

	var out []models.TryonIteration
	for rows.Next() {
		var it models.TryonIteration
		if err := rows.Scan(&it.ID, &it.TryonID, &it.Iteration, &it.Prompt, &it.Score, &it.Feedback, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
