// Package webhook implements the inbound identity-provider webhook
// ledger (spec.md §4.5, C5): HMAC signature verification, two-stage
// idempotency (exact event_id, then a time-windowed near-duplicate
// check), and the three supported event handlers, all applied in one
// database transaction per spec.md invariant I-webhook. Grounded in
// original_source/backend/api/webhooks.py's Svix-verified Clerk handler.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/growthlabs/campaignd/pkg/apperr"
	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/growthlabs/campaignd/pkg/store"
	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"
)

// recentEventWindow is the near-duplicate protection window
// (spec.md §4.5: same external_user_id + event_type within 5 minutes is
// treated as a duplicate even with a different event_id).
const recentEventWindow = 5 * time.Minute

// Result reports how a webhook delivery was handled, mirroring the
// {"status": "..."} shape the Python source returns to the caller.
type Result string

const (
	ResultSuccess             Result = "success"
	ResultDuplicateSkipped    Result = "duplicate_skipped"
	ResultDuplicateRecentSkip Result = "duplicate_recent_skipped"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Event is the parsed, signature-verified webhook body.
type Event struct {
	ID             string
	Type           string
	ExternalUserID string
	Email          string
	Raw            map[string]any
}

// Ledger verifies, dedups, and applies identity-provider webhooks.
type Ledger struct {
	store  *store.Store
	secret string
	dedupe *cache.Cache
	logger *slog.Logger
}

// NewLedger builds a Ledger. secret is the shared HMAC signing secret
// configured on the identity provider's webhook dashboard.
func NewLedger(st *store.Store, secret string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store: st,
		secret: secret,
		// Fast-path cache of recently processed (external_user_id, event_type)
		// pairs; the database check in eventAlreadyProcessed is still
		// authoritative across process restarts.
		dedupe: cache.New(recentEventWindow, recentEventWindow),
		logger: logger,
	}
}

// VerifySignature recomputes the HMAC-SHA256 over "timestamp.raw_body" and
// compares it (constant-time) against the provided signature header
// (spec.md §4.5). signatureHeader may carry several comma-delimited
// "v1,<base64>" candidates; only the first element is checked per spec.
func (l *Ledger) VerifySignature(payload []byte, timestamp, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(l.secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	first := signatureHeader
	if idx := strings.Index(signatureHeader, ","); idx >= 0 {
		first = signatureHeader[:idx]
	}
	if idx := strings.Index(first, "="); idx >= 0 {
		first = first[idx+1:]
	}
	return hmac.Equal([]byte(first), []byte(expected))
}

// ParseEvent decodes the verified payload into an Event.
func ParseEvent(payload []byte, eventID string) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	eventType, _ := raw["type"].(string)
	data, _ := raw["data"].(map[string]any)

	externalUserID, _ := data["id"].(string)
	email := extractPrimaryEmail(data)

	return Event{
		ID:             eventID,
		Type:           eventType,
		ExternalUserID: externalUserID,
		Email:          email,
		Raw:            raw,
	}, nil
}

func extractPrimaryEmail(data map[string]any) string {
	addresses, _ := data["email_addresses"].([]any)
	if len(addresses) == 0 {
		return ""
	}
	first, _ := addresses[0].(map[string]any)
	email, _ := first["email_address"].(string)
	return email
}

// Apply verifies idempotency and dispatches the event to its handler inside
// a single transaction alongside the ledger insert (spec.md §4.5).
func (l *Ledger) Apply(ctx context.Context, evt Event) (Result, error) {
	dedupeKey := evt.ExternalUserID + "|" + evt.Type
	if _, hit := l.dedupe.Get(dedupeKey); hit {
		l.logger.Info("webhook deduped by in-process cache", "event_id", evt.ID, "type", evt.Type)
		return ResultDuplicateRecentSkip, nil
	}

	if result, err := l.eventAlreadyProcessed(ctx, evt); err != nil {
		return "", err
	} else if result != "" {
		return result, nil
	}

	tx, err := l.store.DB().BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin webhook transaction: %w", err)
	}
	defer tx.Rollback()

	switch evt.Type {
	case EventUserCreated:
		if err := l.applyUserCreated(ctx, tx, evt); err != nil {
			return "", fmt.Errorf("apply user.created: %w", err)
		}
	case EventUserUpdated:
		if err := l.store.UpdateUser(ctx, tx, evt.ExternalUserID, evt.Email); err != nil && !isNotFound(err) {
			return "", fmt.Errorf("apply user.updated: %w", err)
		}
	case EventUserDeleted:
		if err := l.applyUserDeleted(ctx, tx, evt); err != nil {
			return "", fmt.Errorf("apply user.deleted: %w", err)
		}
	default:
		l.logger.Info("ignoring unrecognized webhook event type", "type", evt.Type, "event_id", evt.ID)
	}

	if err := l.store.InsertWebhookEventTx(ctx, tx, models.WebhookEvent{
		EventID:        evt.ID,
		EventType:      evt.Type,
		ExternalUserID: evt.ExternalUserID,
		Payload:        evt.Raw,
	}); err != nil {
		return "", fmt.Errorf("record webhook event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit webhook transaction: %w", err)
	}

	l.dedupe.SetDefault(dedupeKey, struct{}{})
	return ResultSuccess, nil
}

// applyUserCreated implements the user.created race-handling path: if a
// user already exists by external_id or email, just reconcile the external
// id; otherwise create the user (spec.md §4.5). Subscription/UsageMetric
// rows the Python source also creates here are dropped — billing/quota
// bookkeeping is an explicit Non-goal (spec.md §1).
func (l *Ledger) applyUserCreated(ctx context.Context, tx *sqlx.Tx, evt Event) error {
	existing, err := l.store.FindUserByExternalIDOrEmail(ctx, tx, evt.ExternalUserID, evt.Email)
	switch {
	case err == nil:
		if existing.ExternalIdentityID == nil || *existing.ExternalIdentityID != evt.ExternalUserID {
			return l.store.SetExternalIdentityID(ctx, tx, existing.UserID, evt.ExternalUserID)
		}
		return nil
	case isNotFound(err):
		_, createErr := l.store.CreateUser(ctx, tx, models.User{
			Email:              evt.Email,
			ExternalIdentityID: &evt.ExternalUserID,
		})
		if createErr != nil && !isAlreadyExists(createErr) {
			return createErr
		}
		return nil
	default:
		return err
	}
}

// applyUserDeleted archives the user's campaigns by their internal user_id
// (resolved from the external identity provider's ID, which is all the
// webhook payload carries) and then deletes the user row. Archival must
// happen first and by the resolved internal ID: campaigns.user_id is an
// internal UUID foreign key, never the provider's external_identity_id, and
// the lookup row disappears once the user is deleted.
func (l *Ledger) applyUserDeleted(ctx context.Context, tx *sqlx.Tx, evt Event) error {
	user, err := l.store.GetUserByExternalIDTx(ctx, tx, evt.ExternalUserID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := l.store.ArchiveAllForUserTx(ctx, tx, user.UserID, "owning user deleted"); err != nil {
		return fmt.Errorf("archive campaigns: %w", err)
	}
	if err := l.store.DeleteUser(ctx, tx, evt.ExternalUserID); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete user row: %w", err)
	}
	return nil
}

func (l *Ledger) eventAlreadyProcessed(ctx context.Context, evt Event) (Result, error) {
	if _, err := l.store.GetWebhookEvent(ctx, evt.ID); err == nil {
		return ResultDuplicateSkipped, nil
	} else if !isNotFound(err) {
		return "", err
	}

	recent, err := l.store.RecentWebhookEvent(ctx, evt.ExternalUserID, evt.Type, recentEventWindow)
	if err != nil {
		return "", err
	}
	if recent {
		return ResultDuplicateRecentSkip, nil
	}
	return "", nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, apperr.ErrAlreadyExists)
}
