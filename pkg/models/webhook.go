package models

import "time"

// WebhookEvent is an append-only idempotency ledger row keyed by the
// external event ID (spec.md §3, invariant I7).
type WebhookEvent struct {
	EventID         string    `db:"event_id" json:"event_id"`
	EventType       string    `db:"event_type" json:"event_type"`
	ExternalUserID  *string   `db:"external_user_id" json:"external_user_id,omitempty"`
	Payload         JSONMap   `db:"payload" json:"payload"`
	ProcessedAt     time.Time `db:"processed_at" json:"processed_at"`
}
