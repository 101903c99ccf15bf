package models

import "time"

// Prompt is one versioned instruction in a category's lineage. Rows are never
// deleted; promotion deactivates the parent and inserts the next version, so
// history stays auditable. At most one row per category is active at a time.
type Prompt struct {
	ID              int64     `json:"id" db:"id"`
	Category        Category  `json:"category" db:"category"`
	Body            string    `json:"body" db:"body"`
	Version         int       `json:"version" db:"version"`
	ParentID        *int64    `json:"parent_id,omitempty" db:"parent_id"`
	PromotionReason string    `json:"promotion_reason,omitempty" db:"promotion_reason"`
	TotalUses       int64     `json:"total_uses" db:"total_uses"`
	SuccessfulUses  int64     `json:"successful_uses" db:"successful_uses"`
	AvgScore        float64   `json:"avg_score" db:"avg_score"`
	AvgCategoryMatch float64  `json:"avg_category_match" db:"avg_category_match"`
	Active          bool      `json:"active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// SuccessRate is the fraction of recorded uses that cleared the acceptance
// threshold. Zero uses yields zero.
func (p *Prompt) SuccessRate() float64 {
	if p.TotalUses == 0 {
		return 0
	}
	return float64(p.SuccessfulUses) / float64(p.TotalUses)
}
