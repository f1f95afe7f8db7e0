package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/growthlabs/campaignd/pkg/apperr"
	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/jmoiron/sqlx"
)

// GetWebhookEvent looks up a ledger row by its external event_id, the
// primary idempotency key (spec.md §4.5).
func (s *Store) GetWebhookEvent(ctx context.Context, eventID string) (models.WebhookEvent, error) {
	const q = `SELECT * FROM webhook_events WHERE event_id = $1`
	var out models.WebhookEvent
	err := s.db.GetContext(ctx, &out, q, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WebhookEvent{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.WebhookEvent{}, fmt.Errorf("get webhook event: %w", err)
	}
	return out, nil
}

// RecentWebhookEvent reports whether a (external_user_id, event_type) pair
// was processed within window, the secondary near-duplicate guard.
func (s *Store) RecentWebhookEvent(ctx context.Context, externalUserID, eventType string, window time.Duration) (bool, error) {
	const q = `
		SELECT EXISTS(
			SELECT 1 FROM webhook_events
			WHERE external_user_id = $1 AND event_type = $2 AND processed_at >= $3
		)`
	var exists bool
	cutoff := time.Now().Add(-window)
	if err := s.db.GetContext(ctx, &exists, q, externalUserID, eventType, cutoff); err != nil {
		return false, fmt.Errorf("check recent webhook event: %w", err)
	}
	return exists, nil
}

// InsertWebhookEventTx records the ledger row inside the same transaction
// as the user mutation it caused (spec.md §4.5 invariant).
func (s *Store) InsertWebhookEventTx(ctx context.Context, tx *sqlx.Tx, evt models.WebhookEvent) error {
	const q = `
		INSERT INTO webhook_events (event_id, event_type, external_user_id, payload, processed_at)
		VALUES ($1, $2, $3, $4, now())`
	_, err := tx.ExecContext(ctx, q, evt.EventID, evt.EventType, evt.ExternalUserID, evt.Payload)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ArchiveAllForUserTx archives every non-terminal campaign owned by userID
// inside an existing transaction, used by the user.deleted webhook handler
// so the campaign archival and the user row delete commit atomically.
// userID is the internal primary key, not the external identity provider's
// ID — the caller resolves that first (GetUserByExternalIDTx).
func (s *Store) ArchiveAllForUserTx(ctx context.Context, tx *sqlx.Tx, userID, reason string) error {
	const q = `
		UPDATE campaigns
		SET status = $2, archived_at = now(), archived_reason = $3, updated_at = now()
		WHERE user_id = $1 AND status NOT IN ($4, $5, $6)`
	_, err := tx.ExecContext(ctx, q, userID, models.StatusArchivedUserDeleted, reason,
		models.StatusCompleted, models.StatusFailed, models.StatusArchivedUserDeleted,
	)
	if err != nil {
		return fmt.Errorf("archive campaigns for deleted user: %w", err)
	}
	return nil
}
