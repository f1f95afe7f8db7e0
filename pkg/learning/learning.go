// Package learning implements the read side of the LearningStore (spec.md
// §4.6, C6): retrieval of up to the top 3 most recent LearningMemory rows
// matching a filter for the Strategy/Planner stages to consult. The write
// side lives in store.CompleteOutcome, which inserts the LearningMemory row
// in the same transaction as the owning campaign's status -> completed
// (spec.md invariant I6); this package never writes a row itself, so there
// is no second, non-atomic path that could violate that invariant.
// Grounded in original_source's LearningMemory pydantic model.
package learning

import (
	"context"
	"log/slog"

	"github.com/growthlabs/campaignd/pkg/models"
)

const topN = 3

// db is the minimal surface learning.Store needs from pkg/store, kept as
// an interface so orchestrator tests can fake a failing query without a
// real database (spec.md §4.6: "a learnings query failure must never fail
// the outer workflow").
type db interface {
	TopLearningMemories(ctx context.Context, filter models.LearningFilter, limit int) ([]models.LearningMemory, error)
}

// Store wraps pkg/store's learning-memory query with the failure
// tolerance the orchestrator's read path requires.
type Store struct {
	db     db
	logger *slog.Logger
}

// New builds a Store over anything satisfying db (normally *store.Store).
func New(d db, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: d, logger: logger}
}

// TopMatches returns up to topN most recent learnings matching filter.
// Any query failure is logged and swallowed: the orchestrator proceeds
// with an empty slice rather than fail the Strategy/Planner stage
// (spec.md §4.6).
func (s *Store) TopMatches(ctx context.Context, filter models.LearningFilter) []models.LearningMemory {
	results, err := s.db.TopLearningMemories(ctx, filter, topN)
	if err != nil {
		s.logger.Warn("learning memory lookup failed, proceeding without past learnings",
			"error", err, "user_id", filter.UserID, "goal_type", filter.GoalType)
		return nil
	}
	return results
}
