package reasoning

import (
	"context"
	"fmt"
)

// Stub is a deterministic implementation of Service used by orchestrator
// unit and integration tests, and as the default wiring when no reasoning
// endpoint is configured. It performs no network calls and never errors,
// mirroring how the teacher isolates its LLM client behind an interface
// so tests never depend on a live provider.
type Stub struct{}

// NewStub returns a ready-to-use deterministic Service.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Context(_ context.Context, req ContextRequest) (ContextResult, error) {
	niche, _ := req.ProfileSnapshot["niche"].(string)
	return ContextResult{
		AgentContext: map[string]any{
			"niche_summary": fmt.Sprintf("creator in %q niche", niche),
		},
		RecommendedFrequency: "3x per week",
	}, nil
}

func (s *Stub) Strategy(_ context.Context, req StrategyRequest) (StrategyResult, error) {
	durationDays, _ := req.Goal["duration_days"].(int)
	result := StrategyResult{
		StrategyOutput: map[string]any{
			"approach": "stub strategy",
			"platforms": req.Goal["platforms"],
		},
	}
	if durationDays > 0 && durationDays < 7 {
		result.RealityWarning = "campaign duration under 7 days may not produce measurable results"
	}
	return result, nil
}

func (s *Stub) Forensics(_ context.Context, req ForensicsRequest) (ForensicsResult, error) {
	return ForensicsResult{
		Platform:           req.Platform,
		PatternsThatWorked: []string{"consistent posting cadence"},
		PatternsThatFailed: []string{"low engagement hooks in the first three seconds"},
		TransferableRules:  []string{"open with the outcome, not the setup"},
	}, nil
}

func (s *Stub) Planner(_ context.Context, req PlannerRequest) (PlannerResult, error) {
	day := DayPlan{YouTube: "stub video concept", Twitter: "stub tweet concept"}
	result := PlannerResult{
		Day1:          day,
		Day2:          day,
		Day3:          day,
		ExtraDays:     map[int]DayPlan{},
		Hypothesis:    "stub hypothesis",
		PlatformFocus: []string{"youtube", "twitter"},
	}
	for d := 4; d <= req.DurationDays; d++ {
		result.ExtraDays[d] = day
	}
	return result, nil
}

func (s *Stub) Content(_ context.Context, req ContentRequest) (ContentResult, error) {
	return ContentResult{
		YouTubeScript: fmt.Sprintf("script for day %d: %s", req.DayNumber, req.DayPlan.YouTube),
		YouTubeTitle:  fmt.Sprintf("Day %d", req.DayNumber),
		YouTubeTags:   []string{req.GoalType, "content"},
		YouTubeCTA:    "subscribe for more",
		Tweet:         fmt.Sprintf("day %d: %s", req.DayNumber, req.DayPlan.Twitter),
		Thread:        []string{"thread part one", "thread part two"},
	}, nil
}

func (s *Stub) Outcome(_ context.Context, req OutcomeRequest) (OutcomeResult, error) {
	return OutcomeResult{
		GoalVsResult:            map[string]any{"goal": req.Goal, "actual": req.ActualMetrics},
		WhatWorked:              []string{"stub: posting consistency"},
		WhatFailed:              []string{"stub: reach below target"},
		NextCampaignSuggestions: []string{"stub: try a longer duration"},
	}, nil
}
