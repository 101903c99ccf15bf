package models

import (
	"time"

	"github.com/google/uuid"
)

type TryonStatus string

const (
	TryonPending    TryonStatus = "pending"
	TryonProcessing TryonStatus = "processing"
	TryonCompleted  TryonStatus = "completed"
	TryonFailed     TryonStatus = "failed"
)

// Tryon is the durable record of one end-to-end try-on request.
type Tryon struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	SubjectPath     string      `json:"subject_path" db:"subject_path"`
	GarmentPath     string      `json:"garment_path" db:"garment_path"`
	Category        Category    `json:"category,omitempty" db:"category"`
	Status          TryonStatus `json:"status" db:"status"`
	ResultPath      string      `json:"result_path,omitempty" db:"result_path"`
	PromptUsed      string      `json:"prompt_used,omitempty" db:"prompt_used"`
	QualityScore    float64     `json:"quality_score" db:"quality_score"`
	IterationsCount int         `json:"iterations_count" db:"iterations_count"`
	Error           string      `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// TryonIteration is one generate/evaluate pass inside a session, kept for
// prompt-evolution audit.
type TryonIteration struct {
	ID        int64     `json:"id" db:"id"`
	TryonID   uuid.UUID `json:"tryon_id" db:"tryon_id"`
	Iteration int       `json:"iteration" db:"iteration"`
	Prompt    string    `json:"prompt" db:"prompt"`
	Score     float64   `json:"score" db:"score"`
	Feedback  string    `json:"feedback,omitempty" db:"feedback"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
