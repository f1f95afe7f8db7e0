// Package store is the StateStore (spec.md §4, C4): the single
// transactional gateway onto users, creator profiles, campaigns, daily
// content, and daily execution rows. It replaces the teacher's ent-backed
// services package with hand-written sqlx queries, since the generated
// ent client this module would depend on is not present in the source
// pack and cannot be produced without running `ent generate`.
package store

import (
	"github.com/jmoiron/sqlx"
)

// Store is the shared handle every sub-store embeds. It is safe for
// concurrent use; callers needing a transaction call BeginTxx directly
// the way session_service.go does for multi-statement writes.
type Store struct {
	db *sqlx.DB
}

// New wraps a ready-to-use *sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components (taskqueue, cleanup)
// that need raw transactions spanning more than one sub-store.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
