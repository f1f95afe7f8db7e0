package models

import "time"

// LearningMemory is an immutable record of what worked/failed in a past
// campaign, keyed for retrieval by (user, goal_type, platform, niche)
// (spec.md §3, §4.6).
type LearningMemory struct {
	MemoryID   string  `db:"memory_id" json:"memory_id"`
	// UserID is nil once the owning user has been deleted; the memory row
	// still counts toward historical audit but drops out of future
	// TopMatches retrieval (which filters by user_id).
	UserID     *string `db:"user_id" json:"user_id,omitempty"`
	CampaignID string  `db:"campaign_id" json:"campaign_id"`

	GoalType             string `db:"goal_type" json:"goal_type"`
	Platform             string `db:"platform" json:"platform"`
	Niche                string `db:"niche" json:"niche"`
	CampaignDurationDays int    `db:"campaign_duration_days" json:"campaign_duration_days"`
	PostingFrequency     string `db:"posting_frequency" json:"posting_frequency"`

	WhatWorked             StringSlice `db:"what_worked" json:"what_worked"`
	WhatFailed             StringSlice `db:"what_failed" json:"what_failed"`
	Recommendations        StringSlice `db:"recommendations" json:"recommendations"`
	GoalAchievementSummary string      `db:"goal_achievement_summary" json:"goal_achievement_summary"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LearningFilter narrows a learnings query. Missing (zero-value) filters
// are not applied — spec.md §4.6 "Missing filters are not applied."
type LearningFilter struct {
	UserID   string
	GoalType string
	Platform string
	Niche    string
}
