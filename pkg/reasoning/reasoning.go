// Package reasoning defines the opaque, six-operation ReasoningService
// boundary (spec.md §2, C3) and a deterministic stub implementation for
// tests. The real prompt engineering and LLM provider are explicitly out
// of scope (spec.md §1); an HTTP-based client is provided as the
// production implementation of the interface so the orchestrator never
// depends on a concrete provider.
package reasoning

import (
	"context"

	"github.com/growthlabs/campaignd/pkg/classifier"
)

// ContextRequest carries the creator profile snapshot into the Context stage.
type ContextRequest struct {
	ProfileSnapshot map[string]any
}

// ContextResult is the derived agent_context plus an optional recommended
// posting frequency.
type ContextResult struct {
	AgentContext         map[string]any
	RecommendedFrequency string
}

// StrategyRequest carries the goal plus context plus past learnings.
type StrategyRequest struct {
	Goal          map[string]any
	AgentContext  map[string]any
	PastLearnings []map[string]any
}

// StrategyResult is the strategy_output plus the reality-check warning
// (spec.md §4.1: duration_days < 7 attaches a warning, not an error).
type StrategyResult struct {
	StrategyOutput  map[string]any
	RealityWarning  string
}

// CompetitorInput is one competitor's classified content for one platform.
type CompetitorInput struct {
	CompetitorURL string
	HighViews     []classifier.Video // for YouTube
	LowViews      []classifier.Video
	HighTweets    []classifier.Tweet // for Twitter
	LowTweets     []classifier.Tweet
}

// ForensicsRequest asks for transferable patterns across a platform's competitors.
type ForensicsRequest struct {
	Platform     string
	Competitors  []CompetitorInput
}

// ForensicsResult mirrors original_source's ForensicsAgentOutput shape.
type ForensicsResult struct {
	Platform              string
	PatternsThatWorked    []string
	PatternsThatFailed    []string
	TransferableRules     []string
}

// PlannerRequest carries everything the Planner stage needs to build a
// multi-day plan.
type PlannerRequest struct {
	Goal          map[string]any
	StrategyOutput map[string]any
	ForensicsOutput map[string]any
	Intensity     string
	DurationDays  int
	PastLearnings []map[string]any
}

// PlannerResult is the day-by-day plan, keyed the way spec.md §6 requires.
type PlannerResult struct {
	Day1          DayPlan
	Day2          DayPlan
	Day3          DayPlan
	ExtraDays     map[int]DayPlan
	Hypothesis    string
	PlatformFocus []string
}

// DayPlan mirrors models.DayPlan without importing pkg/models, to keep the
// interface boundary free of storage-layer types.
type DayPlan struct {
	YouTube string
	Twitter string
}

// ContentRequest asks for one day's content across the day's platforms.
type ContentRequest struct {
	DayPlan         DayPlan
	ProfileSnapshot map[string]any
	DayNumber       int
	DurationDays    int
	Intensity       string
	GoalType        string
}

// ContentResult is the generated content for one day, across platforms.
type ContentResult struct {
	YouTubeScript  string
	YouTubeTitle   string
	YouTubeTags    []string
	YouTubeCTA     string
	Tweet          string
	Thread         []string
}

// OutcomeRequest carries the goal, plan, actual metrics, and the daily
// execution map into the Outcome stage.
type OutcomeRequest struct {
	Goal            map[string]any
	Plan            map[string]any
	ActualMetrics   map[string]any
	DailyExecution  map[int]map[string]any
}

// OutcomeResult is the outcome_report plus the learning arrays written to
// LearningMemory in the same transaction as status -> completed.
type OutcomeResult struct {
	GoalVsResult            map[string]any
	WhatWorked              []string
	WhatFailed              []string
	NextCampaignSuggestions []string
}

// Service is the six-typed-operation boundary the orchestrator calls.
// Implementations must be safe for concurrent use by multiple workers.
type Service interface {
	Context(ctx context.Context, req ContextRequest) (ContextResult, error)
	Strategy(ctx context.Context, req StrategyRequest) (StrategyResult, error)
	Forensics(ctx context.Context, req ForensicsRequest) (ForensicsResult, error)
	Planner(ctx context.Context, req PlannerRequest) (PlannerResult, error)
	Content(ctx context.Context, req ContentRequest) (ContentResult, error)
	Outcome(ctx context.Context, req OutcomeRequest) (OutcomeResult, error)
}
