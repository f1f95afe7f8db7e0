package models

import "time"

// CreatorProfile is owned by exactly one User, keyed by the same user_id
// (spec.md §3). Phase-1 fields are required at creation; Phase-2 fields
// are optional and filled in later via PATCH /profile/phase2.
type CreatorProfile struct {
	UserID string `db:"user_id" json:"user_id"`

	// Phase 1 (required).
	Name                string      `db:"name" json:"name"`
	CreatorType         string      `db:"creator_type" json:"creator_type"`
	Niche               string      `db:"niche" json:"niche"`
	TargetAudienceNiche string      `db:"target_audience_niche" json:"target_audience_niche"`
	ExistingPlatforms   StringSlice `db:"existing_platforms" json:"existing_platforms"`
	PlatformURLs        JSONMap     `db:"platform_urls" json:"platform_urls"`

	// Phase 2 (optional).
	UniqueAngle           *string     `db:"unique_angle" json:"unique_angle,omitempty"`
	Purpose               *string     `db:"purpose" json:"purpose,omitempty"`
	Strengths             StringSlice `db:"strengths" json:"strengths"`
	TargetPlatforms       StringSlice `db:"target_platforms" json:"target_platforms"`
	Topics                StringSlice `db:"topics" json:"topics"`
	AudienceDemographics  JSONMap     `db:"audience_demographics" json:"audience_demographics"`
	CompetitorAccounts    JSONMap     `db:"competitor_accounts" json:"competitor_accounts"`
	ExistingAssets        StringSlice `db:"existing_assets" json:"existing_assets"`
	Motivation            *string     `db:"motivation" json:"motivation,omitempty"`
	Phase2Completed       bool        `db:"phase2_completed" json:"phase2_completed"`

	// Derived by the Context stage.
	AgentContext         JSONMap `db:"agent_context" json:"agent_context"`
	RecommendedFrequency *string `db:"recommended_frequency" json:"recommended_frequency,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Phase2FieldCount is the number of optional Phase-2 fields that must all
// be non-empty before phase2_completed flips to true.
const Phase2FieldCount = 9

// Phase2FieldsCompleted counts how many of the Phase2FieldCount optional
// Phase-2 fields are filled in, used by GET /profile/completion.
func (p *CreatorProfile) Phase2FieldsCompleted() int {
	n := 0
	if p.UniqueAngle != nil && *p.UniqueAngle != "" {
		n++
	}
	if p.Purpose != nil && *p.Purpose != "" {
		n++
	}
	if len(p.Strengths) > 0 {
		n++
	}
	if len(p.TargetPlatforms) > 0 {
		n++
	}
	if len(p.Topics) > 0 {
		n++
	}
	if len(p.AudienceDemographics) > 0 {
		n++
	}
	if len(p.CompetitorAccounts) > 0 {
		n++
	}
	if len(p.ExistingAssets) > 0 {
		n++
	}
	if p.Motivation != nil && *p.Motivation != "" {
		n++
	}
	return n
}
