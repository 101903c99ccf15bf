package promptstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitroom/tryon-engine/internal/models"
)

const promptColumns = `id, category, body, version, parent_id,
	COALESCE(promotion_reason, ''), total_uses, successful_uses,
	avg_score, avg_category_match, is_active, created_at, updated_at`

// PostgresStore persists prompt lineages in the garment_prompts table. The
// single-active invariant is enforced twice: by the guarded UPDATE inside
// Promote and by a partial unique index on (category) WHERE is_active.
type PostgresStore struct {
	db           *pgxpool.Pool
	successScore float64 // acceptance threshold for successful_uses
}

func NewPostgresStore(db *pgxpool.Pool, successScore float64) *PostgresStore {
	return &PostgresStore{db: db, successScore: successScore}
}

func (s *PostgresStore) GetActive(ctx context.Context, category models.Category) (*models.Prompt, error) {
	p, err := s.getActive(ctx, category)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get active prompt: %w", err)
	}
	if category == models.CategoryDefault {
		return nil, ErrNotFound
	}

	p, err = s.getActive(ctx, models.CategoryDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default prompt: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) getActive(ctx context.Context, category models.Category) (*models.Prompt, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+promptColumns+`
		 FROM garment_prompts
		 WHERE category = $1 AND is_active
		 ORDER BY version DESC LIMIT 1`,
		category,
	)
	return scanPrompt(row)
}

func (s *PostgresStore) RecordUsage(ctx context.Context, promptID int64, usage Usage) error {
	// Single statement: every SET expression reads the pre-update row, so both
	// running means divide by the incremented count and two concurrent updates
	// serialize on the row lock instead of losing one another.
	tag, err := s.db.Exec(ctx,
		`UPDATE garment_prompts SET
			total_uses = total_uses + 1,
			successful_uses = successful_uses + CASE WHEN $2::float8 >= $4 THEN 1 ELSE 0 END,
			avg_score = avg_score + ($2 - avg_score) / (total_uses + 1),
			avg_category_match = avg_category_match + ($3 - avg_category_match) / (total_uses + 1),
			updated_at = now()
		 WHERE id = $1`,
		promptID, usage.OverallScore, usage.CategoryMatch, s.successScore,
	)
	if err != nil {
		return fmt.Errorf("record prompt usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Debug("usage recorded against unknown prompt, skipped", "prompt_id", promptID)
	}
	return nil
}

func (s *PostgresStore) Promote(ctx context.Context, req PromoteRequest) (*models.Prompt, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the parent row; concurrent promotions from the same parent queue up
	// here and the loser then fails the is_active guard below.
	var parentCategory models.Category
	var parentVersion int
	err = tx.QueryRow(ctx,
		`SELECT category, version FROM garment_prompts WHERE id = $1 FOR UPDATE`,
		req.ParentID,
	).Scan(&parentCategory, &parentVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPromotionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("lock parent prompt: %w", err)
	}
	if req.Category != "" && req.Category != parentCategory {
		return nil, fmt.Errorf("promote: category %q does not match parent lineage %q", req.Category, parentCategory)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE garment_prompts SET is_active = false, updated_at = now()
		 WHERE id = $1 AND is_active`,
		req.ParentID,
	)
	if err != nil {
		return nil, fmt.Errorf("deactivate parent prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrPromotionConflict
	}

	successful := 0
	if req.InitialScore >= s.successScore {
		successful = 1
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO garment_prompts
			(category, body, version, parent_id, promotion_reason,
			 total_uses, successful_uses, avg_score, avg_category_match, is_active)
		 VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $7, true)
		 RETURNING `+promptColumns,
		parentCategory, req.Body, parentVersion+1, req.ParentID, req.Reason,
		successful, req.InitialScore,
	)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, fmt.Errorf("insert promoted prompt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", err)
	}

	slog.Info("promoted prompt",
		"category", p.Category,
		"version", p.Version,
		"parent_id", req.ParentID,
		"initial_score", req.InitialScore,
	)
	return p, nil
}

func (s *PostgresStore) SeedDefaults(ctx context.Context, defaults map[models.Category]string) error {
	for category, body := range defaults {
		tag, err := s.db.Exec(ctx,
			`INSERT INTO garment_prompts (category, body, version, is_active)
			 SELECT $1, $2, 1, true
			 WHERE NOT EXISTS (SELECT 1 FROM garment_prompts WHERE category = $1)`,
			category, body,
		)
		if err != nil {
			return fmt.Errorf("seed prompt for %s: %w", category, err)
		}
		if tag.RowsAffected() > 0 {
			slog.Info("seeded default prompt", "category", category)
		}
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, category models.Category) ([]*models.Prompt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+promptColumns+`
		 FROM garment_prompts
		 WHERE category = $1
		 ORDER BY version ASC`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("list prompt history: %w", err)
	}
	defer rows.Close()

	var out []*models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(
		&p.ID, &p.Category, &p.Body, &p.Version, &p.ParentID,
		&p.PromotionReason, &p.TotalUses, &p.SuccessfulUses,
		&p.AvgScore, &p.AvgCategoryMatch, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
