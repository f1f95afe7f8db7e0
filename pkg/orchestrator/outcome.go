package orchestrator

import (
	"context"
	"fmt"

	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/growthlabs/campaignd/pkg/reasoning"
)

// RunOutcome executes the Outcome stage for a campaign already in
// generating_report (moved there by POST /campaigns/{id}/complete), and
// is the only code path that writes a LearningMemory row — always in the
// same transaction as the campaign's status -> completed, via
// store.CompleteOutcome, satisfying invariant I6.
func (o *Orchestrator) RunOutcome(ctx context.Context, campaignID string, actualMetrics models.JSONMap) error {
	campaign, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status != models.StatusGeneratingReport {
		o.logger.Info("outcome task found campaign already past generating_report, exiting silently",
			"campaign_id", campaignID, "status", campaign.Status)
		return nil
	}

	goal := campaign.OnboardingData.Val.Goal
	executions, err := o.store.ListExecutionsForCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load executions: %w", err)
	}
	dailyExecution := executionsToMap(executions)

	result, err := o.reason.Outcome(ctx, reasoning.OutcomeRequest{
		Goal:           goalToMap(goal),
		Plan:           campaignPlanToMap(campaign.CampaignPlan.Val),
		ActualMetrics:  actualMetrics,
		DailyExecution: dailyExecution,
	})
	if err != nil {
		if _, failErr := o.store.FailStage(ctx, campaignID, models.PhaseOutcome); failErr != nil {
			o.logger.Error("failed to record outcome stage failure", "campaign_id", campaignID, "error", failErr)
		}
		return fmt.Errorf("outcome stage: %w", err)
	}

	report := models.OutcomeReport{
		GoalVsResult:            result.GoalVsResult,
		WhatWorked:              result.WhatWorked,
		WhatFailed:              result.WhatFailed,
		NextCampaignSuggestions: result.NextCampaignSuggestions,
		ActualMetrics:           actualMetrics,
	}

	profile, err := o.store.GetProfileByUserID(ctx, userIDOf(&campaign))
	if err != nil {
		return fmt.Errorf("load creator profile for learning memory: %w", err)
	}

	var primaryPlatform string
	if len(goal.Platforms) > 0 {
		primaryPlatform = goal.Platforms[0]
	}

	memory := models.LearningMemory{
		UserID:                 campaign.UserID,
		CampaignID:             campaignID,
		GoalType:               goal.GoalType,
		Platform:               primaryPlatform,
		Niche:                  profile.Niche,
		CampaignDurationDays:   goal.DurationDays,
		PostingFrequency:       derefOrEmpty(profile.RecommendedFrequency),
		WhatWorked:             models.StringSlice(result.WhatWorked),
		WhatFailed:             models.StringSlice(result.WhatFailed),
		Recommendations:        models.StringSlice(result.NextCampaignSuggestions),
		GoalAchievementSummary: summarize(result.GoalVsResult),
	}

	learningInsights := models.JSONMap{
		"what_worked":              result.WhatWorked,
		"what_failed":              result.WhatFailed,
		"next_campaign_suggestions": result.NextCampaignSuggestions,
	}

	if _, err := o.store.CompleteOutcome(ctx, campaignID, report, learningInsights, memory); err != nil {
		return fmt.Errorf("complete outcome: %w", err)
	}
	return nil
}

func executionsToMap(executions []models.DailyExecution) map[int]map[string]any {
	out := make(map[int]map[string]any, len(executions))
	for _, e := range executions {
		day, ok := out[e.DayNumber]
		if !ok {
			day = map[string]any{}
			out[e.DayNumber] = day
		}
		day[e.Platform] = map[string]any{
			"posted":  e.Posted,
			"metrics": map[string]any(e.Metrics),
		}
	}
	return out
}

func campaignPlanToMap(plan models.CampaignPlan) map[string]any {
	return map[string]any{
		"day_1":          dayPlanMap(plan.Day1),
		"day_2":          dayPlanMap(plan.Day2),
		"day_3":          dayPlanMap(plan.Day3),
		"hypothesis":     plan.Hypothesis,
		"platform_focus": plan.PlatformFocus,
	}
}

func dayPlanMap(p models.DayPlan) map[string]any {
	return map[string]any{"youtube": derefOrEmpty(p.YouTube), "twitter": derefOrEmpty(p.Twitter)}
}

// summarize pulls the prose summary a ReasoningService implementation is
// expected to fold into goal_vs_result under "summary".
func summarize(goalVsResult map[string]any) string {
	if s, ok := goalVsResult["summary"].(string); ok {
		return s
	}
	return ""
}
