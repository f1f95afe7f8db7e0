package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/growthlabs/campaignd/pkg/apperr"
	"github.com/growthlabs/campaignd/pkg/models"
)

// CreateProfile inserts the Phase-1 creator profile captured at onboarding.
func (s *Store) CreateProfile(ctx context.Context, p models.CreatorProfile) (models.CreatorProfile, error) {
	const q = `
		INSERT INTO creator_profiles (
			user_id, name, creator_type, niche, target_audience_niche,
			existing_platforms, platform_urls, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING *`
	var out models.CreatorProfile
	err := s.db.GetContext(ctx, &out, q,
		p.UserID, p.Name, p.CreatorType, p.Niche, p.TargetAudienceNiche,
		p.ExistingPlatforms, p.PlatformURLs,
	)
	if isUniqueViolation(err) {
		return models.CreatorProfile{}, apperr.ErrAlreadyExists
	}
	if err != nil {
		return models.CreatorProfile{}, fmt.Errorf("create profile: %w", err)
	}
	return out, nil
}

// GetProfileByUserID fetches the creator profile for a user.
func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (models.CreatorProfile, error) {
	const q = `SELECT * FROM creator_profiles WHERE user_id = $1`
	var out models.CreatorProfile
	err := s.db.GetContext(ctx, &out, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CreatorProfile{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.CreatorProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return out, nil
}

// Phase2Update carries the optional fields the Phase-2 profile PATCH may set.
// Pointer fields left nil are not modified (spec.md §6: partial update).
type Phase2Update struct {
	UniqueAngle           *string
	Purpose               *string
	Strengths             *models.StringSlice
	TargetPlatforms       *models.StringSlice
	Topics                *models.StringSlice
	AudienceDemographics  *models.JSONMap
	CompetitorAccounts    *models.JSONMap
	ExistingAssets        *models.StringSlice
	Motivation            *string
}

// UpdateProfilePhase2 applies a partial Phase-2 update and recomputes
// phase2_completed once every Phase-2 field has a value (spec.md I-profile).
func (s *Store) UpdateProfilePhase2(ctx context.Context, userID string, upd Phase2Update) (models.CreatorProfile, error) {
	current, err := s.GetProfileByUserID(ctx, userID)
	if err != nil {
		return models.CreatorProfile{}, err
	}

	if upd.UniqueAngle != nil {
		current.UniqueAngle = upd.UniqueAngle
	}
	if upd.Purpose != nil {
		current.Purpose = upd.Purpose
	}
	if upd.Strengths != nil {
		current.Strengths = *upd.Strengths
	}
	if upd.TargetPlatforms != nil {
		current.TargetPlatforms = *upd.TargetPlatforms
	}
	if upd.Topics != nil {
		current.Topics = *upd.Topics
	}
	if upd.AudienceDemographics != nil {
		current.AudienceDemographics = *upd.AudienceDemographics
	}
	if upd.CompetitorAccounts != nil {
		current.CompetitorAccounts = *upd.CompetitorAccounts
	}
	if upd.ExistingAssets != nil {
		current.ExistingAssets = *upd.ExistingAssets
	}
	if upd.Motivation != nil {
		current.Motivation = upd.Motivation
	}
	current.Phase2Completed = current.Phase2FieldsCompleted() == models.Phase2FieldCount

	const q = `
		UPDATE creator_profiles SET
			unique_angle = $2, purpose = $3, strengths = $4, target_platforms = $5,
			topics = $6, audience_demographics = $7, competitor_accounts = $8,
			existing_assets = $9, motivation = $10, phase2_completed = $11,
			updated_at = now()
		WHERE user_id = $1
		RETURNING *`
	var out models.CreatorProfile
	err = s.db.GetContext(ctx, &out, q,
		userID, current.UniqueAngle, current.Purpose, current.Strengths,
		current.TargetPlatforms, current.Topics, current.AudienceDemographics,
		current.CompetitorAccounts, current.ExistingAssets, current.Motivation,
		current.Phase2Completed,
	)
	if err != nil {
		return models.CreatorProfile{}, fmt.Errorf("update profile phase2: %w", err)
	}
	return out, nil
}

// SetAgentContext stores the derived agent_context and recommended posting
// frequency produced by the Context reasoning stage.
func (s *Store) SetAgentContext(ctx context.Context, userID string, agentContext models.JSONMap, recommendedFrequency string) error {
	const q = `
		UPDATE creator_profiles
		SET agent_context = $2, recommended_frequency = $3, updated_at = now()
		WHERE user_id = $1`
	res, err := s.db.ExecContext(ctx, q, userID, agentContext, &recommendedFrequency)
	if err != nil {
		return fmt.Errorf("set agent context: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
