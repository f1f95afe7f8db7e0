package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/growthlabs/campaignd/pkg/models"
)

// ConfirmDay marks a (campaign, day, platform) as posted, supplying
// whatever metrics the caller provided via PATCH /campaigns/{id}/day/{n}/confirm.
// Idempotent: confirming an already-posted day just refreshes metrics.
func (s *Store) ConfirmDay(ctx context.Context, campaignID string, dayNumber int, platform string, metrics models.JSONMap) (models.DailyExecution, error) {
	const q = `
		INSERT INTO daily_executions (execution_id, campaign_id, day_number, platform, posted, posted_at, metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, now(), $5, now(), now())
		ON CONFLICT (campaign_id, day_number, platform) DO UPDATE SET
			posted = true, posted_at = COALESCE(daily_executions.posted_at, now()),
			metrics = EXCLUDED.metrics, updated_at = now()
		RETURNING *`
	var out models.DailyExecution
	err := s.db.GetContext(ctx, &out, q, uuid.New().String(), campaignID, dayNumber, platform, metrics)
	if err != nil {
		return models.DailyExecution{}, fmt.Errorf("confirm day: %w", err)
	}
	return out, nil
}

// ListExecutionsForCampaign returns every recorded execution for a campaign.
func (s *Store) ListExecutionsForCampaign(ctx context.Context, campaignID string) ([]models.DailyExecution, error) {
	const q = `SELECT * FROM daily_executions WHERE campaign_id = $1 ORDER BY day_number, platform`
	var out []models.DailyExecution
	if err := s.db.SelectContext(ctx, &out, q, campaignID); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return out, nil
}

// AllDaysConfirmed reports whether every planned (day, platform) pair up to
// durationDays has a posted=true execution row, used by the orchestrator to
// decide when to move in_progress -> generating_report.
func (s *Store) AllDaysConfirmed(ctx context.Context, campaignID string, durationDays int) (bool, error) {
	const q = `
		SELECT count(*) FROM daily_content dc
		WHERE dc.campaign_id = $1 AND dc.day_number <= $2
		AND NOT EXISTS (
			SELECT 1 FROM daily_executions de
			WHERE de.campaign_id = dc.campaign_id
			AND de.day_number = dc.day_number
			AND de.platform = dc.platform
			AND de.posted
		)`
	var unconfirmed int
	if err := s.db.GetContext(ctx, &unconfirmed, q, campaignID, durationDays); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("all days confirmed: %w", err)
	}
	return unconfirmed == 0, nil
}

