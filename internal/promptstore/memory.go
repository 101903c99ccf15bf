package promptstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fitroom/tryon-engine/internal/models"
)

// MemoryStore keeps prompt lineages in process memory under one mutex. It
// backs the engine when no DATABASE_URL is configured and is the store used
// throughout the tests. Semantics mirror PostgresStore exactly.
type MemoryStore struct {
	mu           sync.Mutex
	byCategory   map[models.Category][]*models.Prompt
	nextID       int64
	successScore float64
}

func NewMemoryStore(successScore float64) *MemoryStore {
	return &MemoryStore{
		byCategory:   make(map[models.Category][]*models.Prompt),
		nextID:       1,
		successScore: successScore,
	}
}

func (s *MemoryStore) GetActive(ctx context.Context, category models.Category) (*models.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.activeLocked(category); p != nil {
		return copyPrompt(p), nil
	}
	if category != models.CategoryDefault {
		if p := s.activeLocked(models.CategoryDefault); p != nil {
			return copyPrompt(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) RecordUsage(ctx context.Context, promptID int64, usage Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.byIDLocked(promptID)
	if p == nil {
		slog.Debug("usage recorded against unknown prompt, skipped", "prompt_id", promptID)
		return nil
	}

	p.TotalUses++
	n := float64(p.TotalUses)
	p.AvgScore += (usage.OverallScore - p.AvgScore) / n
	p.AvgCategoryMatch += (usage.CategoryMatch - p.AvgCategoryMatch) / n
	if usage.OverallScore >= s.successScore {
		p.SuccessfulUses++
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Promote(ctx context.Context, req PromoteRequest) (*models.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.byIDLocked(req.ParentID)
	if parent == nil || !parent.Active {
		return nil, ErrPromotionConflict
	}
	parent.Active = false
	parent.UpdatedAt = time.Now()

	successful := int64(0)
	if req.InitialScore >= s.successScore {
		successful = 1
	}

	parentID := parent.ID
	child := &models.Prompt{
		ID:               s.nextID,
		Category:         parent.Category,
		Body:             req.Body,
		Version:          parent.Version + 1,
		ParentID:         &parentID,
		PromotionReason:  req.Reason,
		TotalUses:        1,
		SuccessfulUses:   successful,
		AvgScore:         req.InitialScore,
		AvgCategoryMatch: req.InitialScore,
		Active:           true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	s.nextID++
	s.byCategory[parent.Category] = append(s.byCategory[parent.Category], child)

	slog.Info("promoted prompt",
		"category", child.Category,
		"version", child.Version,
		"parent_id", parentID,
		"initial_score", req.InitialScore,
	)
	return copyPrompt(child), nil
}

func (s *MemoryStore) SeedDefaults(ctx context.Context, defaults map[models.Category]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for category, body := range defaults {
		if len(s.byCategory[category]) > 0 {
			continue
		}
		root := &models.Prompt{
			ID:        s.nextID,
			Category:  category,
			Body:      body,
			Version:   1,
			Active:    true,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		s.nextID++
		s.byCategory[category] = append(s.byCategory[category], root)
	}
	return nil
}

func (s *MemoryStore) History(ctx context.Context, category models.Category) ([]*models.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lineage := s.byCategory[category]
	out := make([]*models.Prompt, len(lineage))
	for i, p := range lineage {
		out[i] = copyPrompt(p)
	}
	return out, nil
}

func (s *MemoryStore) activeLocked(category models.Category) *models.Prompt {
	for _, p := range s.byCategory[category] {
		if p.Active {
			return p
		}
	}
	return nil
}

func (s *MemoryStore) byIDLocked(id int64) *models.Prompt {
	for _, lineage := range s.byCategory {
		for _, p := range lineage {
			if p.ID == id {
				return p
			}
		}
	}
	return nil
}

// copyPrompt shields internal state from callers holding returned pointers.
func copyPrompt(p *models.Prompt) *models.Prompt {
	cp := *p
	if p.ParentID != nil {
		parentID := *p.ParentID
		cp.ParentID = &parentID
	}
	return &cp
}
