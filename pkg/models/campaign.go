package models

import "time"

// CompetitorURL is one competitor link plus a free-text note, matching the
// shape original_source/backend/models/campaign/campaign.py carries
// (`{'url': '...', 'desc': '...'}`) even though spec.md's testable
// properties only ever exercise the bare URL.
type CompetitorURL struct {
	URL  string `json:"url"`
	Desc string `json:"desc,omitempty"`
}

// CompetitorPlatform groups competitor URLs under one platform.
type CompetitorPlatform struct {
	Platform string          `json:"platform"`
	URLs     []CompetitorURL `json:"urls"`
}

// CampaignCompetitors is the full competitor list across platforms.
type CampaignCompetitors struct {
	Platforms []CompetitorPlatform `json:"platforms"`
}

// CampaignMetric is a single target metric (e.g. {"type":"subscribers","target":100}).
type CampaignMetric struct {
	Type   string `json:"type"`
	Target int    `json:"target"`
}

// CampaignGoal is the user-declared growth objective (spec.md §3).
type CampaignGoal struct {
	GoalAim      string           `json:"goal_aim"`
	GoalType     string           `json:"goal_type"`
	Platforms    []string         `json:"platforms"`
	Metrics      []CampaignMetric `json:"metrics"`
	DurationDays int              `json:"duration_days"`
	Intensity    string           `json:"intensity"`
}

// AgentConfig toggles the one skippable stage and the two content
// enrichers. Strategy/Planner/Content/Outcome are always run regardless of
// what this struct says (spec.md §4.1 "Toggle semantics").
type AgentConfig struct {
	RunForensics bool `json:"run_forensics"`
}

// OnboardingData is the full campaign onboarding payload accumulated
// across PATCH /campaigns/{id}/onboarding calls.
type OnboardingData struct {
	Name                    string               `json:"name"`
	Description             string               `json:"description"`
	Goal                    CampaignGoal         `json:"goal"`
	Competitors             CampaignCompetitors  `json:"competitors"`
	AgentConfig             AgentConfig          `json:"agent_config"`
	ImageGenerationEnabled  bool                 `json:"image_generation_enabled"`
	SEOOptimizationEnabled  bool                 `json:"seo_optimization_enabled"`
}

// DayPlan is the per-day, per-platform action string produced by Planner.
type DayPlan struct {
	YouTube *string `json:"youtube,omitempty"`
	Twitter *string `json:"twitter,omitempty"`
}

// CampaignPlan is the Planner stage's output (spec.md §6 persisted layout).
type CampaignPlan struct {
	Day1          DayPlan         `json:"day_1"`
	Day2          DayPlan         `json:"day_2"`
	Day3          DayPlan         `json:"day_3"`
	ExtraDays     map[int]DayPlan `json:"extra_days"`
	Hypothesis    string          `json:"hypothesis"`
	PlatformFocus []string        `json:"platform_focus"`
}

// OutcomeReport is the Outcome stage's output.
type OutcomeReport struct {
	GoalVsResult             map[string]any `json:"goal_vs_result"`
	WhatWorked               []string       `json:"what_worked"`
	WhatFailed               []string       `json:"what_failed"`
	NextCampaignSuggestions  []string       `json:"next_campaign_suggestions"`
	ActualMetrics            map[string]any `json:"actual_metrics"`
}

// Campaign is the central aggregate the orchestrator drives through the
// state machine in spec.md §4.1.
type Campaign struct {
	CampaignID         string         `db:"campaign_id" json:"campaign_id"`
	// UserID is nil once the owning user has been deleted (user.deleted
	// webhook, status archived_user_deleted) — the row survives, orphaned,
	// as an audit trail (SPEC_FULL.md decided open question #5).
	UserID             *string        `db:"user_id" json:"user_id,omitempty"`
	Status             CampaignStatus `db:"status" json:"status"`
	LastAttemptedPhase *string        `db:"last_attempted_phase" json:"last_attempted_phase,omitempty"`

	OnboardingData   JSONB[OnboardingData] `db:"onboarding_data" json:"onboarding_data"`
	ProfileSnapshot  JSONMap               `db:"profile_snapshot" json:"profile_snapshot"`
	StrategyOutput   JSONMap               `db:"strategy_output" json:"strategy_output"`
	ForensicsOutput  JSONMap               `db:"forensics_output" json:"forensics_output"`
	CampaignPlan     JSONB[CampaignPlan]   `db:"campaign_plan" json:"campaign_plan"`
	ContentWarnings  JSONMap               `db:"content_warnings" json:"content_warnings"`
	OutcomeReport    JSONB[OutcomeReport]  `db:"outcome_report" json:"outcome_report"`
	LearningInsights JSONMap               `db:"learning_insights" json:"learning_insights"`

	PlanApproved     bool `db:"plan_approved" json:"plan_approved"`
	LearningApproved bool `db:"learning_approved" json:"learning_approved"`

	TaskID *string `db:"task_id" json:"task_id,omitempty"`

	ArchivedAt     *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	ArchivedReason *string    `db:"archived_reason" json:"archived_reason,omitempty"`

	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	OnboardingCompletedAt *time.Time `db:"onboarding_completed_at" json:"onboarding_completed_at,omitempty"`
	StartedAt             *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}
