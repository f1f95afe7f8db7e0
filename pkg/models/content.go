package models

import "time"

// DailyContent is generated content for one (campaign, day, platform)
// triple, unique per spec.md invariant I2/§3.
type DailyContent struct {
	ContentID  string `db:"content_id" json:"content_id"`
	CampaignID string `db:"campaign_id" json:"campaign_id"`
	DayNumber  int    `db:"day_number" json:"day_number"`
	Platform   string `db:"platform" json:"platform"`

	Script *string     `db:"script" json:"script,omitempty"`
	Title  *string     `db:"title" json:"title,omitempty"`
	Tags   StringSlice `db:"tags" json:"tags"`
	CTA    *string     `db:"cta" json:"cta,omitempty"`

	Tweet  *string     `db:"tweet" json:"tweet,omitempty"`
	Thread StringSlice `db:"thread" json:"thread,omitempty"`

	Thumbnails JSONMap `db:"thumbnails" json:"thumbnails"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DailyExecution records whether a day's content was actually posted, plus
// optional user-supplied engagement metrics (spec.md §3).
type DailyExecution struct {
	ExecutionID string `db:"execution_id" json:"execution_id"`
	CampaignID  string `db:"campaign_id" json:"campaign_id"`
	DayNumber   int    `db:"day_number" json:"day_number"`
	Platform    string `db:"platform" json:"platform"`

	Posted   bool       `db:"posted" json:"posted"`
	PostedAt *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	Metrics  JSONMap    `db:"metrics" json:"metrics"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
