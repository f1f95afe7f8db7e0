package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/growthlabs/campaignd/pkg/apperr"
	"github.com/growthlabs/campaignd/pkg/models"
)

// CreateCampaign inserts a new campaign in onboarding_incomplete state.
func (s *Store) CreateCampaign(ctx context.Context, userID string) (models.Campaign, error) {
	const q = `
		INSERT INTO campaigns (campaign_id, user_id, status, onboarding_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q,
		uuid.New().String(), userID, models.StatusOnboardingIncomplete,
		models.NewJSONB(models.OnboardingData{}),
	)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return out, nil
}

// GetCampaign fetches a campaign by ID.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (models.Campaign, error) {
	const q = `SELECT * FROM campaigns WHERE campaign_id = $1`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return out, nil
}

// ListCampaignsForUser lists a user's campaigns, newest first.
func (s *Store) ListCampaignsForUser(ctx context.Context, userID string) ([]models.Campaign, error) {
	const q = `SELECT * FROM campaigns WHERE user_id = $1 ORDER BY created_at DESC`
	var out []models.Campaign
	if err := s.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return out, nil
}

// UpdateOnboarding merges a partial onboarding payload into onboarding_data.
// Only called while status == onboarding_incomplete; the caller enforces
// that guard (spec.md §4.1: onboarding edits are rejected once the
// campaign has moved past ready_to_start).
func (s *Store) UpdateOnboarding(ctx context.Context, campaignID string, data models.OnboardingData) (models.Campaign, error) {
	const q = `
		UPDATE campaigns
		SET onboarding_data = $2, updated_at = now()
		WHERE campaign_id = $1 AND status = $3
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q, campaignID, models.NewJSONB(data), models.StatusOnboardingIncomplete)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrInvalidStateTransition
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("update onboarding: %w", err)
	}
	return out, nil
}

// CompleteOnboarding transitions onboarding_incomplete -> ready_to_start and
// stamps onboarding_completed_at. Returns apperr.ErrInvalidStateTransition
// if the campaign isn't currently onboarding_incomplete.
func (s *Store) CompleteOnboarding(ctx context.Context, campaignID string) (models.Campaign, error) {
	const q = `
		UPDATE campaigns
		SET status = $3, onboarding_completed_at = now(), updated_at = now()
		WHERE campaign_id = $1 AND status = $2
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q, campaignID, models.StatusOnboardingIncomplete, models.StatusReadyToStart)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrInvalidStateTransition
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("complete onboarding: %w", err)
	}
	return out, nil
}

// StartProcessing transitions ready_to_start (or processing_failed, for a
// retry) -> processing and binds the task_id that owns the run. The
// conditional WHERE mirrors session_service.go's ClaimNextPendingSession:
// a zero-row update means another request already claimed the transition.
func (s *Store) StartProcessing(ctx context.Context, campaignID, taskID string) (models.Campaign, error) {
	const q = `
		UPDATE campaigns
		SET status = $2, task_id = $3, started_at = COALESCE(started_at, now()), updated_at = now()
		WHERE campaign_id = $1 AND status IN ($4, $5)
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q,
		campaignID, models.StatusProcessing, taskID,
		models.StatusReadyToStart, models.StatusProcessingFailed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrInvalidStateTransition
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("start processing: %w", err)
	}
	return out, nil
}

// SaveContextStage persists the Context stage's output. Does not change status.
func (s *Store) SaveContextStage(ctx context.Context, campaignID string, profileSnapshot models.JSONMap) error {
	return s.setAndStampPhase(ctx, campaignID, models.PhaseContext, `
		UPDATE campaigns SET profile_snapshot = $2, last_attempted_phase = $3, updated_at = now()
		WHERE campaign_id = $1`, profileSnapshot)
}

// SaveStrategyStage persists the Strategy stage's output, optionally
// appending a reality-check warning to content_warnings (spec.md §4.1).
func (s *Store) SaveStrategyStage(ctx context.Context, campaignID string, strategyOutput models.JSONMap, warning string) error {
	const q = `
		UPDATE campaigns
		SET strategy_output = $2, last_attempted_phase = $3,
			content_warnings = CASE WHEN $4 = '' THEN content_warnings
				ELSE content_warnings || jsonb_build_object('reality_check', $4::text) END,
			updated_at = now()
		WHERE campaign_id = $1`
	res, err := s.db.ExecContext(ctx, q, campaignID, strategyOutput, models.PhaseStrategy, warning)
	if err != nil {
		return fmt.Errorf("save strategy stage: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// SaveForensicsStage persists the Forensics stage's output (may be skipped
// entirely by the orchestrator per agent_config.run_forensics).
func (s *Store) SaveForensicsStage(ctx context.Context, campaignID string, forensicsOutput models.JSONMap) error {
	return s.setAndStampPhase(ctx, campaignID, models.PhaseForensics, `
		UPDATE campaigns SET forensics_output = $2, last_attempted_phase = $3, updated_at = now()
		WHERE campaign_id = $1`, forensicsOutput)
}

// SavePlannerStage persists the generated plan and moves processing -> in_progress.
func (s *Store) SavePlannerStage(ctx context.Context, campaignID string, plan models.CampaignPlan) (models.Campaign, error) {
	const q = `
		UPDATE campaigns
		SET campaign_plan = $2, last_attempted_phase = $3, status = $4, updated_at = now()
		WHERE campaign_id = $1 AND status = $5
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q,
		campaignID, models.NewJSONB(plan), models.PhasePlanner,
		models.StatusInProgress, models.StatusProcessing,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrInvalidStateTransition
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("save planner stage: %w", err)
	}
	return out, nil
}

// BeginOutcomeGeneration moves in_progress -> generating_report, called once
// the final day's execution is confirmed (spec.md §4.1).
func (s *Store) BeginOutcomeGeneration(ctx context.Context, campaignID string) (models.Campaign, error) {
	const q = `
		UPDATE campaigns
		SET status = $2, last_attempted_phase = $3, updated_at = now()
		WHERE campaign_id = $1 AND status = $4
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q,
		campaignID, models.StatusGeneratingReport, models.PhaseContent, models.StatusInProgress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrInvalidStateTransition
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("begin outcome generation: %w", err)
	}
	return out, nil
}

// CompleteOutcome persists the outcome report, moves
// generating_report -> completed, and writes the campaign's LearningMemory
// row, all in one transaction — spec.md invariant I6: "every completed
// Campaign has exactly one LearningMemory written in the same transaction
// as status -> completed."
func (s *Store) CompleteOutcome(ctx context.Context, campaignID string, report models.OutcomeReport, learningInsights models.JSONMap, memory models.LearningMemory) (models.Campaign, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("begin complete-outcome transaction: %w", err)
	}
	defer tx.Rollback()

	const updateQ = `
		UPDATE campaigns
		SET outcome_report = $2, learning_insights = $3, last_attempted_phase = $4,
			status = $5, task_id = NULL, completed_at = now(), updated_at = now()
		WHERE campaign_id = $1 AND status = $6
		RETURNING *`
	var out models.Campaign
	row := tx.QueryRowxContext(ctx, updateQ,
		campaignID, models.NewJSONB(report), learningInsights, models.PhaseOutcome,
		models.StatusCompleted, models.StatusGeneratingReport,
	)
	if err := row.StructScan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Campaign{}, apperr.ErrInvalidStateTransition
		}
		return models.Campaign{}, fmt.Errorf("complete outcome: %w", err)
	}

	if memory.MemoryID == "" {
		memory.MemoryID = uuid.New().String()
	}
	const learningQ = `
		INSERT INTO learning_memories (
			memory_id, user_id, campaign_id, goal_type, platform, niche,
			campaign_duration_days, posting_frequency, what_worked, what_failed,
			recommendations, goal_achievement_summary, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())`
	if _, err := tx.ExecContext(ctx, learningQ,
		memory.MemoryID, memory.UserID, campaignID, memory.GoalType, memory.Platform, memory.Niche,
		memory.CampaignDurationDays, memory.PostingFrequency, memory.WhatWorked, memory.WhatFailed,
		memory.Recommendations, memory.GoalAchievementSummary,
	); err != nil {
		return models.Campaign{}, fmt.Errorf("write learning memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Campaign{}, fmt.Errorf("commit complete-outcome transaction: %w", err)
	}
	return out, nil
}

// FailStage records a stage failure: status -> processing_failed, task_id
// cleared so a subsequent POST /campaigns/{id}/start can re-claim it, and
// last_attempted_phase stamped so the retry resumes from the right stage
// (spec.md §4.1, §7 "partial-completion tolerance").
func (s *Store) FailStage(ctx context.Context, campaignID string, phase models.Phase) (models.Campaign, error) {
	const q = `
		UPDATE campaigns
		SET status = $2, last_attempted_phase = $3, task_id = NULL, updated_at = now()
		WHERE campaign_id = $1
		RETURNING *`
	var out models.Campaign
	err := s.db.GetContext(ctx, &out, q, campaignID, models.StatusProcessingFailed, phase)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("fail stage: %w", err)
	}
	return out, nil
}

// SetPlanApproved flips plan_approved. The Python source models this flag
// with no incoming HTTP transition (see SPEC_FULL.md's decided open
// questions); it is set internally once the Planner stage completes
// without a reality-check warning.
func (s *Store) SetPlanApproved(ctx context.Context, campaignID string, approved bool) error {
	const q = `UPDATE campaigns SET plan_approved = $2, updated_at = now() WHERE campaign_id = $1`
	res, err := s.db.ExecContext(ctx, q, campaignID, approved)
	if err != nil {
		return fmt.Errorf("set plan approved: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// ArchiveCampaign moves any non-terminal campaign into one of the two
// archived states (plan expiry or the owning user's deletion).
func (s *Store) ArchiveCampaign(ctx context.Context, campaignID string, status models.CampaignStatus, reason string) error {
	const q = `
		UPDATE campaigns
		SET status = $2, archived_at = now(), archived_reason = $3, updated_at = now()
		WHERE campaign_id = $1`
	res, err := s.db.ExecContext(ctx, q, campaignID, status, reason)
	if err != nil {
		return fmt.Errorf("archive campaign: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// FindExpiredReadyToStart finds ready_to_start campaigns whose onboarding
// completed more than maxAge ago, for the plan-expiry retention sweep.
func (s *Store) FindExpiredReadyToStart(ctx context.Context, maxAge time.Duration) ([]models.Campaign, error) {
	const q = `
		SELECT * FROM campaigns
		WHERE status = $1 AND onboarding_completed_at IS NOT NULL AND onboarding_completed_at < $2`
	var out []models.Campaign
	if err := s.db.SelectContext(ctx, &out, q, models.StatusReadyToStart, time.Now().Add(-maxAge)); err != nil {
		return nil, fmt.Errorf("find expired campaigns: %w", err)
	}
	return out, nil
}

func (s *Store) setAndStampPhase(ctx context.Context, campaignID string, phase models.Phase, query string, arg models.JSONMap) error {
	res, err := s.db.ExecContext(ctx, query, campaignID, arg, phase)
	if err != nil {
		return fmt.Errorf("save %s stage: %w", phase, err)
	}
	return rowsAffectedOrNotFound(res)
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
