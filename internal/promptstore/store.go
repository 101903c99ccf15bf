// Package promptstore holds the shared, versioned prompt knowledge base keyed
// by garment category. It is the only stateful component of the try-on engine:
// every session reads the active prompt from here and writes its performance
// feedback back, so all correctness-critical concurrency control lives in the
// two implementations (postgres, memory).
package promptstore

import (
	"context"
	"errors"

	"github.com/fitroom/tryon-engine/internal/models"
)

var (
	// ErrNotFound means neither the category nor the default lineage has an
	// active prompt.
	ErrNotFound = errors.New("promptstore: no active prompt")

	// ErrPromotionConflict means the parent version was already superseded by
	// a concurrent promotion. The caller's revision is simply dropped.
	ErrPromotionConflict = errors.New("promptstore: parent prompt no longer active")
)

// Usage is the per-session feedback folded into a prompt's running metrics.
type Usage struct {
	OverallScore  float64
	CategoryMatch float64
}

// PromoteRequest describes a revision taking over a lineage. Version is
// assigned by the store (parent version + 1).
type PromoteRequest struct {
	Category     models.Category
	Body         string
	ParentID     int64
	Reason       string
	InitialScore float64
}

// Store is the prompt knowledge base contract.
//
// Implementations must guarantee, under arbitrary concurrency:
//   - at most one active prompt per category at any instant,
//   - RecordUsage never loses an update (read-modify-write is atomic),
//   - Promote deactivates the parent and inserts the child as one atomic unit,
//     rejecting the second of two concurrent promotions from the same parent.
type Store interface {
	// GetActive returns the active prompt for the category, falling back to
	// the "default" lineage. ErrNotFound when neither exists.
	GetActive(ctx context.Context, category models.Category) (*models.Prompt, error)

	// RecordUsage folds one evaluation into the prompt's running averages and
	// increments successful_uses when the score clears the acceptance
	// threshold. Unknown IDs are a silent no-op: usage is telemetry, not
	// load-bearing state.
	RecordUsage(ctx context.Context, promptID int64, usage Usage) error

	// Promote atomically retires the parent and activates the revision as the
	// next version of the lineage.
	Promote(ctx context.Context, req PromoteRequest) (*models.Prompt, error)

	// SeedDefaults inserts a version-1 active root for each category that has
	// no prompts yet. Idempotent; called once at process start.
	SeedDefaults(ctx context.Context, defaults map[models.Category]string) error

	// History returns a category's full lineage, oldest version first.
	// Prompts are never deleted, so this is the complete audit trail.
	History(ctx context.Context, category models.Category) ([]*models.Prompt, error)
}
