// Package orchestrator implements the Orchestrator (spec.md §4.1, C7): the
// workflow runner that drives a Campaign through six ordered stages with
// idempotent artifact persistence, a reality-check warning, toggle
// semantics, and partial-completion-tolerant failure handling. Grounded in
// the teacher's pkg/agent/orchestrator/runner.go for structure and logging
// style, generalized from its concurrent sub-agent dispatch to this
// system's strictly sequential stage execution (spec.md §5: "Goroutine- or
// thread-equivalent parallelism is not used inside a stage").
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/growthlabs/campaignd/pkg/learning"
	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/growthlabs/campaignd/pkg/platform"
	"github.com/growthlabs/campaignd/pkg/reasoning"
	"github.com/growthlabs/campaignd/pkg/store"
)

// ProgressReporter publishes stage-boundary progress for a running task
// (spec.md §4.2: "update(progress, message) is called at stage
// boundaries"). The TaskRuntime implements this over its broker; tests use
// a no-op or recording fake.
type ProgressReporter interface {
	Report(ctx context.Context, progress int, message string) error
}

// NoopProgress discards progress reports, for callers (tests, one-off
// scripts) that don't need polling support.
type NoopProgress struct{}

// Report implements ProgressReporter.
func (NoopProgress) Report(context.Context, int, string) error { return nil }

// stageOrder is the strict dependency order of the six workflow stages
// (spec.md §4.1). Outcome is handled by RunOutcome, not RunWorkflow, since
// it is a distinct task kind gated on its own state transition.
var stageOrder = []models.Phase{
	models.PhaseContext,
	models.PhaseStrategy,
	models.PhaseForensics,
	models.PhasePlanner,
	models.PhaseContent,
}

// Orchestrator wires the StateStore, ReasoningService, PlatformFetchers,
// and LearningStore together to run campaign workflows.
type Orchestrator struct {
	store    *store.Store
	reason   reasoning.Service
	youtube  *platform.YouTubeFetcher
	twitter  *platform.TwitterFetcher
	learning *learning.Store
	logger   *slog.Logger
}

// New builds an Orchestrator. Any fetcher may be nil if the corresponding
// platform is never exercised by the deployment (e.g. a test harness that
// only onboards YouTube creators).
func New(st *store.Store, reason reasoning.Service, yt *platform.YouTubeFetcher, tw *platform.TwitterFetcher, ls *learning.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: st, reason: reason, youtube: yt, twitter: tw, learning: ls, logger: logger}
}
