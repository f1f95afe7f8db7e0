package orchestrator

import (
	"context"
	"fmt"

	"github.com/growthlabs/campaignd/pkg/apperr"
	"github.com/growthlabs/campaignd/pkg/classifier"
	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/growthlabs/campaignd/pkg/platform"
	"github.com/growthlabs/campaignd/pkg/reasoning"
)

// stageBounds reports the [start, end] progress percentage a stage owns
// (spec.md §4.1's "share of progress" column).
var stageBounds = map[models.Phase][2]int{
	models.PhaseContext:   {0, 16},
	models.PhaseStrategy:  {16, 33},
	models.PhaseForensics: {33, 50},
	models.PhasePlanner:   {50, 66},
	models.PhaseContent:   {66, 100},
}

// realityCheckMinDays is the duration below which the Strategy stage
// attaches a warning, not an error (spec.md §4.1).
const realityCheckMinDays = 7

// RunWorkflow drives campaignID through the Context/Strategy/Forensics
// /Planner/Content stages, resuming at the campaign's last_attempted_phase
// rather than always restarting at Context (spec.md §8 scenario 3). Each
// stage's artifact is persisted before progress is published, so a crash
// never reports progress the store can't substantiate.
func (o *Orchestrator) RunWorkflow(ctx context.Context, campaignID string, reporter ProgressReporter) error {
	campaign, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status != models.StatusProcessing {
		o.logger.Info("workflow task found campaign already past processing, exiting silently",
			"campaign_id", campaignID, "status", campaign.Status)
		return nil
	}

	goal := campaign.OnboardingData.Val.Goal
	startIdx := resumeIndex(campaign.LastAttemptedPhase)

	for _, phase := range stageOrder[startIdx:] {
		var stageErr error
		switch phase {
		case models.PhaseContext:
			stageErr = o.runContext(ctx, &campaign)
		case models.PhaseStrategy:
			stageErr = o.runStrategy(ctx, &campaign, goal)
		case models.PhaseForensics:
			stageErr = o.runForensics(ctx, &campaign, goal)
		case models.PhasePlanner:
			stageErr = o.runPlanner(ctx, &campaign, goal)
		case models.PhaseContent:
			stageErr = o.runContent(ctx, &campaign, goal)
		}

		if stageErr != nil {
			if _, failErr := o.store.FailStage(ctx, campaignID, phase); failErr != nil {
				o.logger.Error("failed to record stage failure on campaign",
					"campaign_id", campaignID, "phase", phase, "error", failErr)
			}
			return apperr.NewStageError(string(phase), stageErr)
		}

		bounds := stageBounds[phase]
		if reportErr := reporter.Report(ctx, bounds[1], fmt.Sprintf("%s complete", phase)); reportErr != nil {
			o.logger.Warn("progress report failed, continuing workflow", "phase", phase, "error", reportErr)
		}
	}

	return nil
}

// resumeIndex maps a campaign's last_attempted_phase to the stageOrder
// index to resume AT (re-attempting that stage, not skipping past it,
// since it's the one last_attempted_phase named on failure).
func resumeIndex(lastPhase *string) int {
	if lastPhase == nil {
		return 0
	}
	for i, p := range stageOrder {
		if string(p) == *lastPhase {
			return i
		}
	}
	return 0
}

// runContext executes the Context stage: derive agent_context and a
// recommended posting frequency from the profile snapshot.
func (o *Orchestrator) runContext(ctx context.Context, campaign *models.Campaign) error {
	profile, err := o.store.GetProfileByUserID(ctx, userIDOf(campaign))
	if err != nil {
		return fmt.Errorf("load creator profile: %w", err)
	}

	result, err := o.reason.Context(ctx, reasoning.ContextRequest{
		ProfileSnapshot: profileToMap(profile),
	})
	if err != nil {
		return fmt.Errorf("context stage: %w", err)
	}

	if err := o.store.SaveContextStage(ctx, campaign.CampaignID, result.AgentContext); err != nil {
		return fmt.Errorf("persist context stage: %w", err)
	}
	if err := o.store.SetAgentContext(ctx, userIDOf(campaign), result.AgentContext, result.RecommendedFrequency); err != nil {
		return fmt.Errorf("persist agent context on profile: %w", err)
	}
	campaign.ProfileSnapshot = result.AgentContext
	return nil
}

// runStrategy executes the Strategy stage and attaches the reality-check
// warning (duration_days < 7) without failing the stage.
func (o *Orchestrator) runStrategy(ctx context.Context, campaign *models.Campaign, goal models.CampaignGoal) error {
	pastLearnings := o.pastLearningsFor(ctx, campaign, goal)

	result, err := o.reason.Strategy(ctx, reasoning.StrategyRequest{
		Goal:          goalToMap(goal),
		AgentContext:  campaign.ProfileSnapshot,
		PastLearnings: pastLearnings,
	})
	if err != nil {
		return fmt.Errorf("strategy stage: %w", err)
	}

	warning := result.RealityWarning
	if goal.DurationDays < realityCheckMinDays && warning == "" {
		warning = fmt.Sprintf("campaign duration %d days is below the %d-day recommended floor for measurable results",
			goal.DurationDays, realityCheckMinDays)
	}

	if err := o.store.SaveStrategyStage(ctx, campaign.CampaignID, result.StrategyOutput, warning); err != nil {
		return fmt.Errorf("persist strategy stage: %w", err)
	}
	campaign.StrategyOutput = result.StrategyOutput
	return nil
}

// runForensics executes the Forensics stage: per requested platform, per
// competitor URL, fetch → classify → reason. Skipped entirely (not
// failed) when the toggle is off or there are no competitors to analyze.
// Fails only if every competitor on every platform failed to fetch
// (spec.md §4.1, §8 "zero successful competitor fetches... does not fail
// the workflow" — that's the zero-competitors case; this is the stricter
// all-attempted-and-all-failed case).
func (o *Orchestrator) runForensics(ctx context.Context, campaign *models.Campaign, goal models.CampaignGoal) error {
	onboarding := campaign.OnboardingData.Val
	output := models.JSONMap{}

	if !onboarding.AgentConfig.RunForensics {
		o.logger.Info("forensics stage disabled by agent_config, skipping", "campaign_id", campaign.CampaignID)
		return o.store.SaveForensicsStage(ctx, campaign.CampaignID, output)
	}

	attempted, succeeded := 0, 0
	for _, platformName := range goal.Platforms {
		competitors := competitorURLsFor(onboarding.Competitors, platformName)
		if len(competitors) == 0 {
			continue
		}

		var inputs []reasoning.CompetitorInput
		for _, c := range competitors {
			attempted++
			input, err := o.fetchAndClassifyCompetitor(ctx, platformName, c.URL)
			if err != nil {
				o.logger.Warn("competitor fetch/classify failed, skipping",
					"campaign_id", campaign.CampaignID, "platform", platformName, "url", c.URL, "error", err)
				continue
			}
			succeeded++
			inputs = append(inputs, input)
		}
		if len(inputs) == 0 {
			continue
		}

		result, err := o.reason.Forensics(ctx, reasoning.ForensicsRequest{Platform: platformName, Competitors: inputs})
		if err != nil {
			o.logger.Warn("forensics reasoning call failed for platform, skipping",
				"campaign_id", campaign.CampaignID, "platform", platformName, "error", err)
			continue
		}
		output[platformName] = map[string]any{
			"patterns_that_worked": result.PatternsThatWorked,
			"patterns_that_failed": result.PatternsThatFailed,
			"transferable_rules":   result.TransferableRules,
		}
	}

	if attempted > 0 && succeeded == 0 {
		return fmt.Errorf("all %d competitor fetches failed across %d platform(s)", attempted, len(goal.Platforms))
	}

	if err := o.store.SaveForensicsStage(ctx, campaign.CampaignID, output); err != nil {
		return fmt.Errorf("persist forensics stage: %w", err)
	}
	campaign.ForensicsOutput = output
	return nil
}

// fetchAndClassifyCompetitor fetches and classifies one competitor's
// recent content for platformName, returning the CompetitorInput the
// Forensics reasoning call consumes.
func (o *Orchestrator) fetchAndClassifyCompetitor(ctx context.Context, platformName, competitorURL string) (reasoning.CompetitorInput, error) {
	switch platformName {
	case string(models.PlatformYouTube):
		if o.youtube == nil {
			return reasoning.CompetitorInput{}, fmt.Errorf("no YouTube fetcher configured")
		}
		videos, warn := o.youtube.FetchRecentVideos(ctx, competitorURL, 0)
		if warn != nil {
			return reasoning.CompetitorInput{}, fmt.Errorf("%s", warn.Message)
		}
		high, low := classifier.ClassifyYouTube(toClassifierVideos(videos))
		return reasoning.CompetitorInput{CompetitorURL: competitorURL, HighViews: high, LowViews: low}, nil

	case string(models.PlatformTwitter):
		if o.twitter == nil {
			return reasoning.CompetitorInput{}, fmt.Errorf("no Twitter fetcher configured")
		}
		tweets, warn := o.twitter.FetchRecentTweets(ctx, competitorURL, 0)
		if warn != nil {
			return reasoning.CompetitorInput{}, fmt.Errorf("%s", warn.Message)
		}
		high, low, ok := classifier.ClassifyTwitter(toClassifierTweets(tweets))
		if !ok {
			return reasoning.CompetitorInput{}, fmt.Errorf("fewer than 4 tweets fetched, below classification floor")
		}
		return reasoning.CompetitorInput{CompetitorURL: competitorURL, HighTweets: high, LowTweets: low}, nil

	default:
		return reasoning.CompetitorInput{}, fmt.Errorf("unsupported platform for forensics: %s", platformName)
	}
}

// runPlanner executes the Planner stage, producing the multi-day plan
// (spec.md §8 boundary behavior: duration_days 3 → day_1..day_3 only,
// duration_days 30 → day_1..day_3 plus extra_days[4..30]).
func (o *Orchestrator) runPlanner(ctx context.Context, campaign *models.Campaign, goal models.CampaignGoal) error {
	pastLearnings := o.pastLearningsFor(ctx, campaign, goal)

	result, err := o.reason.Planner(ctx, reasoning.PlannerRequest{
		Goal:            goalToMap(goal),
		StrategyOutput:  campaign.StrategyOutput,
		ForensicsOutput: campaign.ForensicsOutput,
		Intensity:       goal.Intensity,
		DurationDays:    goal.DurationDays,
		PastLearnings:   pastLearnings,
	})
	if err != nil {
		return fmt.Errorf("planner stage: %w", err)
	}

	plan := models.CampaignPlan{
		Day1:          dayPlanToModel(result.Day1),
		Day2:          dayPlanToModel(result.Day2),
		Day3:          dayPlanToModel(result.Day3),
		ExtraDays:     extraDaysToModel(result.ExtraDays),
		Hypothesis:    result.Hypothesis,
		PlatformFocus: result.PlatformFocus,
	}

	updated, err := o.store.SavePlannerStage(ctx, campaign.CampaignID, plan)
	if err != nil {
		return fmt.Errorf("persist planner stage: %w", err)
	}
	campaign.CampaignPlan = updated.CampaignPlan
	campaign.Status = updated.Status
	return nil
}

func extraDaysToModel(in map[int]reasoning.DayPlan) map[int]models.DayPlan {
	out := make(map[int]models.DayPlan, len(in))
	for day, plan := range in {
		out[day] = dayPlanToModel(plan)
	}
	return out
}

// dayPlanToModel converts the reasoning boundary's plain-string DayPlan
// into the storage layer's shape, where an unset platform for that day is
// nil rather than an empty string.
func dayPlanToModel(plan reasoning.DayPlan) models.DayPlan {
	var out models.DayPlan
	if plan.YouTube != "" {
		out.YouTube = &plan.YouTube
	}
	if plan.Twitter != "" {
		out.Twitter = &plan.Twitter
	}
	return out
}

func userIDOf(campaign *models.Campaign) string {
	if campaign.UserID == nil {
		return ""
	}
	return *campaign.UserID
}

func profileToMap(p models.CreatorProfile) map[string]any {
	return map[string]any{
		"name":                   p.Name,
		"creator_type":           p.CreatorType,
		"niche":                  p.Niche,
		"target_audience_niche":  p.TargetAudienceNiche,
		"existing_platforms":     []string(p.ExistingPlatforms),
		"platform_urls":          map[string]any(p.PlatformURLs),
		"unique_angle":           derefOrEmpty(p.UniqueAngle),
		"purpose":                derefOrEmpty(p.Purpose),
		"strengths":              []string(p.Strengths),
		"target_platforms":       []string(p.TargetPlatforms),
		"topics":                 []string(p.Topics),
		"audience_demographics":  map[string]any(p.AudienceDemographics),
		"competitor_accounts":    map[string]any(p.CompetitorAccounts),
		"existing_assets":        []string(p.ExistingAssets),
		"motivation":             derefOrEmpty(p.Motivation),
	}
}

func goalToMap(g models.CampaignGoal) map[string]any {
	return map[string]any{
		"goal_aim":      g.GoalAim,
		"goal_type":     g.GoalType,
		"platforms":     g.Platforms,
		"duration_days": g.DurationDays,
		"intensity":     g.Intensity,
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func competitorURLsFor(competitors models.CampaignCompetitors, platformName string) []models.CompetitorURL {
	for _, p := range competitors.Platforms {
		if p.Platform == platformName {
			return p.URLs
		}
	}
	return nil
}

func toClassifierVideos(videos []platform.NormalizedVideo) []classifier.Video {
	out := make([]classifier.Video, len(videos))
	for i, v := range videos {
		views := v.Views
		out[i] = classifier.Video{VideoID: v.VideoID, Views: &views}
	}
	return out
}

func toClassifierTweets(tweets []platform.NormalizedTweet) []classifier.Tweet {
	out := make([]classifier.Tweet, len(tweets))
	for i, tw := range tweets {
		out[i] = classifier.Tweet{
			TweetID:   tw.TweetID,
			Likes:     tw.LikeCount,
			Retweets:  tw.RetweetCount,
			Replies:   tw.ReplyCount,
			Bookmarks: tw.BookmarkCount,
			Views:     tw.ViewCount,
		}
	}
	return out
}
