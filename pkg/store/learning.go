package store

import (
	"context"
	"fmt"

	"github.com/growthlabs/campaignd/pkg/models"
)

// TopLearningMemories returns up to limit rows matching filter, newest
// first. Zero-value fields in filter are not applied (spec.md §4.6).
func (s *Store) TopLearningMemories(ctx context.Context, filter models.LearningFilter, limit int) ([]models.LearningMemory, error) {
	q := `SELECT * FROM learning_memories WHERE user_id = $1`
	args := []any{filter.UserID}

	if filter.GoalType != "" {
		args = append(args, filter.GoalType)
		q += fmt.Sprintf(" AND goal_type = $%d", len(args))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		q += fmt.Sprintf(" AND platform = $%d", len(args))
	}
	if filter.Niche != "" {
		args = append(args, filter.Niche)
		q += fmt.Sprintf(" AND niche = $%d", len(args))
	}

	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var out []models.LearningMemory
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("query top learning memories: %w", err)
	}
	return out, nil
}
