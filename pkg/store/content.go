package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/growthlabs/campaignd/pkg/models"
)

// UpsertDailyContent inserts or replaces the generated content for one
// (campaign, day, platform) triple (spec.md I2: unique per that triple).
func (s *Store) UpsertDailyContent(ctx context.Context, c models.DailyContent) (models.DailyContent, error) {
	if c.ContentID == "" {
		c.ContentID = uuid.New().String()
	}
	const q = `
		INSERT INTO daily_content (
			content_id, campaign_id, day_number, platform,
			script, title, tags, cta, tweet, thread, thumbnails, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (campaign_id, day_number, platform) DO UPDATE SET
			script = EXCLUDED.script, title = EXCLUDED.title, tags = EXCLUDED.tags,
			cta = EXCLUDED.cta, tweet = EXCLUDED.tweet, thread = EXCLUDED.thread,
			thumbnails = EXCLUDED.thumbnails, updated_at = now()
		RETURNING *`
	var out models.DailyContent
	err := s.db.GetContext(ctx, &out, q,
		c.ContentID, c.CampaignID, c.DayNumber, c.Platform,
		c.Script, c.Title, c.Tags, c.CTA, c.Tweet, c.Thread, c.Thumbnails,
	)
	if err != nil {
		return models.DailyContent{}, fmt.Errorf("upsert daily content: %w", err)
	}
	return out, nil
}

// ListDailyContentForCampaign returns all generated content rows, ordered
// by day then platform, for GET /campaigns/{id}/schedule.
func (s *Store) ListDailyContentForCampaign(ctx context.Context, campaignID string) ([]models.DailyContent, error) {
	const q = `
		SELECT * FROM daily_content
		WHERE campaign_id = $1 ORDER BY day_number, platform`
	var out []models.DailyContent
	if err := s.db.SelectContext(ctx, &out, q, campaignID); err != nil {
		return nil, fmt.Errorf("list daily content: %w", err)
	}
	return out, nil
}
