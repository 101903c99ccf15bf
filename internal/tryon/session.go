package tryon

import (
	"github.com/fitroom/tryon-engine/internal/evaluator"
	"github.com/fitroom/tryon-engine/internal/models"
)

// State tracks where a session is in its lifecycle. Terminal states are
// StateAccepted, StateExhausted and StateFailed.
type State int

const (
	StateClassifying State = iota
	StateGenerating
	StateEvaluating
	StateOptimizing
	StateAccepted
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClassifying:
		return "classifying"
	case StateGenerating:
		return "generating"
	case StateEvaluating:
		return "evaluating"
	case StateOptimizing:
		return "optimizing"
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attempt is one generate/evaluate pass.
type Attempt struct {
	Iteration  int
	Prompt     string
	Revised    bool // prompt came from the optimizer, not the store
	Image      []byte
	Evaluation evaluator.Evaluation
}

// Request describes one end-to-end try-on.
type Request struct {
	SubjectPath string
	GarmentPath string
	TryonID     string
	// Progress, when set, receives human-readable status updates. Its own
	// panics and errors are swallowed; it can never abort the session.
	Progress func(status string)
}

// Result is what the caller gets back. Exactly one of Image/Error is
// meaningful: a session that generated at least one image always returns the
// best attempt, even below the acceptance threshold.
type Result struct {
	State              State
	Accepted           bool
	Category           models.Category
	Image              []byte
	FinalScore         float64
	CategoryMatchScore float64
	IterationsUsed     int
	FinalPrompt        string
	Attempts           []Attempt
	Error              string
}
