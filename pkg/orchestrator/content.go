package orchestrator

import (
	"context"
	"fmt"

	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/growthlabs/campaignd/pkg/reasoning"
)

// runContent executes the Content stage day by day, across the campaign's
// full duration_days (not just the three persisted plan days — days 4+
// draw their DayPlan from campaign_plan.extra_days, per spec.md §6).
// Resume is day-granular: a crash partway through Content restarts at the
// first day missing a DailyContent row for every one of the campaign's
// platforms, not at day 1 (spec.md §8 scenario 3, "day 4 of 7").
func (o *Orchestrator) runContent(ctx context.Context, campaign *models.Campaign, goal models.CampaignGoal) error {
	existing, err := o.store.ListDailyContentForCampaign(ctx, campaign.CampaignID)
	if err != nil {
		return fmt.Errorf("load existing daily content: %w", err)
	}
	done := make(map[dayPlatform]bool, len(existing))
	for _, dc := range existing {
		done[dayPlatform{dc.DayNumber, dc.Platform}] = true
	}

	profile, err := o.store.GetProfileByUserID(ctx, userIDOf(campaign))
	if err != nil {
		return fmt.Errorf("load creator profile: %w", err)
	}
	profileSnapshot := profileToMap(profile)
	plan := campaign.CampaignPlan.Val

	for day := 1; day <= goal.DurationDays; day++ {
		dayPlan := dayPlanFor(plan, day)

		for _, platformName := range goal.Platforms {
			if done[dayPlatform{day, platformName}] {
				continue
			}
			action := actionFor(dayPlan, platformName)
			if action == "" {
				continue
			}

			result, err := o.reason.Content(ctx, reasoning.ContentRequest{
				DayPlan:         dayPlan,
				ProfileSnapshot: profileSnapshot,
				DayNumber:       day,
				DurationDays:    goal.DurationDays,
				Intensity:       goal.Intensity,
				GoalType:        goal.GoalType,
			})
			if err != nil {
				return fmt.Errorf("content stage day %d platform %s: %w", day, platformName, err)
			}

			content := contentFor(campaign.CampaignID, day, platformName, result)
			if _, err := o.store.UpsertDailyContent(ctx, content); err != nil {
				return fmt.Errorf("persist daily content day %d platform %s: %w", day, platformName, err)
			}
		}
	}

	return nil
}

type dayPlatform struct {
	day      int
	platform string
}

// dayPlanFor resolves day's DayPlan, falling through to extra_days for
// day > 3.
func dayPlanFor(plan models.CampaignPlan, day int) reasoning.DayPlan {
	switch day {
	case 1:
		return dayPlanFromModel(plan.Day1)
	case 2:
		return dayPlanFromModel(plan.Day2)
	case 3:
		return dayPlanFromModel(plan.Day3)
	default:
		return dayPlanFromModel(plan.ExtraDays[day])
	}
}

func dayPlanFromModel(p models.DayPlan) reasoning.DayPlan {
	return reasoning.DayPlan{YouTube: derefOrEmpty(p.YouTube), Twitter: derefOrEmpty(p.Twitter)}
}

func actionFor(plan reasoning.DayPlan, platformName string) string {
	switch platformName {
	case string(models.PlatformYouTube):
		return plan.YouTube
	case string(models.PlatformTwitter):
		return plan.Twitter
	default:
		return ""
	}
}

func contentFor(campaignID string, day int, platformName string, result reasoning.ContentResult) models.DailyContent {
	c := models.DailyContent{
		CampaignID: campaignID,
		DayNumber:  day,
		Platform:   platformName,
	}
	switch platformName {
	case string(models.PlatformYouTube):
		c.Script = strPtr(result.YouTubeScript)
		c.Title = strPtr(result.YouTubeTitle)
		c.Tags = models.StringSlice(result.YouTubeTags)
		c.CTA = strPtr(result.YouTubeCTA)
	case string(models.PlatformTwitter):
		c.Tweet = strPtr(result.Tweet)
		c.Thread = models.StringSlice(result.Thread)
	}
	return c
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pastLearningsFor fetches up to 3 matching LearningMemory rows for the
// Strategy/Planner stages to consult (spec.md §4.6, C6).
func (o *Orchestrator) pastLearningsFor(ctx context.Context, campaign *models.Campaign, goal models.CampaignGoal) []map[string]any {
	if o.learning == nil {
		return nil
	}
	profile, err := o.store.GetProfileByUserID(ctx, userIDOf(campaign))
	if err != nil {
		o.logger.Warn("could not load profile for learning lookup, proceeding without past learnings",
			"campaign_id", campaign.CampaignID, "error", err)
		return nil
	}

	var platform string
	if len(goal.Platforms) > 0 {
		platform = goal.Platforms[0]
	}

	matches := o.learning.TopMatches(ctx, models.LearningFilter{
		UserID:   userIDOf(campaign),
		GoalType: goal.GoalType,
		Platform: platform,
		Niche:    profile.Niche,
	})

	out := make([]map[string]any, len(matches))
	for i, m := range matches {
		out[i] = map[string]any{
			"goal_type":                m.GoalType,
			"platform":                 m.Platform,
			"niche":                    m.Niche,
			"campaign_duration_days":   m.CampaignDurationDays,
			"posting_frequency":        m.PostingFrequency,
			"what_worked":              []string(m.WhatWorked),
			"what_failed":              []string(m.WhatFailed),
			"recommendations":          []string(m.Recommendations),
			"goal_achievement_summary": m.GoalAchievementSummary,
		}
	}
	return out
}
