package models

// CampaignStatus is the campaign lifecycle state machine value (spec.md §4.1).
// The zero value is intentionally invalid; campaigns are always created with
// StatusOnboardingIncomplete.
type CampaignStatus string

const (
	StatusOnboardingIncomplete CampaignStatus = "onboarding_incomplete"
	StatusReadyToStart         CampaignStatus = "ready_to_start"
	StatusProcessing           CampaignStatus = "processing"
	StatusInProgress           CampaignStatus = "in_progress"
	StatusGeneratingReport     CampaignStatus = "generating_report"
	StatusCompleted            CampaignStatus = "completed"
	StatusProcessingFailed     CampaignStatus = "processing_failed"
	StatusFailed               CampaignStatus = "failed"
	StatusArchivedPlanExpired  CampaignStatus = "archived_plan_expired"
	StatusArchivedUserDeleted  CampaignStatus = "archived_user_deleted"
)

// Intensity is the posting cadence the user chose during onboarding.
type Intensity string

const (
	IntensityLight    Intensity = "light"
	IntensityModerate Intensity = "moderate"
	IntensityIntense  Intensity = "intense"
)

// Platform identifies a supported social platform. The classifier and
// fetcher only implement YouTube and Twitter; other values may appear in
// onboarding data (e.g. a competitor list) but are inert elsewhere.
type Platform string

const (
	PlatformYouTube   Platform = "YouTube"
	PlatformTwitter   Platform = "Twitter"
	PlatformInstagram Platform = "Instagram"
	PlatformTikTok    Platform = "TikTok"
)

// Phase names the last attempted orchestrator phase, recorded on a
// processing_failed campaign so a retry resumes from the right point
// (spec.md §4.1, "Retry of processing_failed").
type Phase string

const (
	PhaseContext   Phase = "context"
	PhaseStrategy  Phase = "strategy"
	PhaseForensics Phase = "forensics"
	PhasePlanner   Phase = "planner"
	PhaseContent   Phase = "content"
	PhaseOutcome   Phase = "outcome"
)
