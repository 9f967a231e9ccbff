// Package orchestrator consumes indexing lifecycle events and drives the
// branch state machine in response: lock release or shadow promotion on
// success, branch quarantine on failure, and the auto-merge pipeline when a
// branch becomes READY.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilupskalvis/branchd/internal/alert"
	"github.com/kilupskalvis/branchd/internal/audit"
	"github.com/kilupskalvis/branchd/internal/config"
	"github.com/kilupskalvis/branchd/internal/diff"
	"github.com/kilupskalvis/branchd/internal/lockmgr"
	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/risk"
	"github.com/kilupskalvis/branchd/internal/shadow"
	"github.com/kilupskalvis/branchd/internal/store"
)

// mainlineBranch is the branch auto-merged branches target.
const mainlineBranch = "main"

// Orchestrator routes indexing events to the lock and shadow managers and
// runs the merge pipeline. Events for the same branch are processed in
// arrival order; different branches proceed concurrently.
type Orchestrator struct {
	store      *store.Store
	locks      *lockmgr.Manager
	shadows    *shadow.Manager
	diffEngine diff.Engine
	classifier *risk.Classifier
	thresholds risk.Thresholds
	audit      *audit.Emitter
	alerts     alert.Notifier
	automerge  config.AutoMergeConfig
	shadowCfg  config.ShadowConfig
	logger     *slog.Logger
	metrics    *Metrics
	seq        *Sequencer
}

// Options bundles the orchestrator's collaborators.
type Options struct {
	Store      *store.Store
	Locks      *lockmgr.Manager
	Shadows    *shadow.Manager
	DiffEngine diff.Engine
	Classifier *risk.Classifier
	Thresholds risk.Thresholds
	Audit      *audit.Emitter
	Alerts     alert.Notifier
	AutoMerge  config.AutoMergeConfig
	Shadow     config.ShadowConfig
	Logger     *slog.Logger

	// Registerer receives the orchestrator metrics; nil means the default
	// Prometheus registry.
	Registerer prometheus.Registerer
}

// New creates an orchestrator. Call Close to drain in-flight events.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      opts.Store,
		locks:      opts.Locks,
		shadows:    opts.Shadows,
		diffEngine: opts.DiffEngine,
		classifier: opts.Classifier,
		thresholds: opts.Thresholds,
		audit:      opts.Audit,
		alerts:     opts.Alerts,
		automerge:  opts.AutoMerge,
		shadowCfg:  opts.Shadow,
		logger:     logger,
		metrics:    NewMetrics(opts.Registerer),
		seq:        NewSequencer(0),
	}
}

// Submit enqueues an event for asynchronous, per-branch-ordered processing.
func (o *Orchestrator) Submit(ev *models.IndexingEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if ev.BranchName == "" {
		return fmt.Errorf("branch name is required")
	}
	return o.seq.Submit(ev.BranchName, func() {
		if err := o.HandleEvent(context.Background(), ev); err != nil {
			o.logger.Error("event handling failed", "event_id", ev.ID, "branch", ev.BranchName, "error", err)
		}
	})
}

// Close drains the event queues.
func (o *Orchestrator) Close() {
	o.seq.Close()
}

// HandleEvent processes one indexing event to completion. Redelivered events
// (same id) are acknowledged without re-applying their effects.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *models.IndexingEvent) (err error) {
	if ev.ID == "" || ev.BranchName == "" {
		return fmt.Errorf("event id and branch name are required")
	}

	if prev, lookupErr := o.store.GetProcessedEvent(ev.ID); lookupErr == nil {
		o.logger.Info("duplicate event ignored",
			"event_id", ev.ID,
			"branch", ev.BranchName,
			"original_outcome", prev.Outcome,
		)
		return nil
	} else if !errors.Is(lookupErr, store.ErrNotFound) {
		return fmt.Errorf("check processed events: %w", lookupErr)
	}

	// A panic anywhere in event handling quarantines the branch rather than
	// taking the daemon down.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic during event handling", "event_id", ev.ID, "branch", ev.BranchName, "panic", r)
			o.quarantine(ctx, ev, fmt.Sprintf("internal error while handling event %s: %v", ev.ID, r))
			err = fmt.Errorf("panic during event handling: %v", r)
		}
	}()

	o.metrics.EventsTotal.WithLabelValues(string(ev.IndexingMode), string(ev.Status)).Inc()

	var outcome string
	switch {
	case ev.Status == models.EventFailure:
		outcome = o.handleFailure(ctx, ev)
	case ev.IndexingMode == models.ModeShadow:
		outcome, err = o.handleShadowSuccess(ctx, ev)
	default:
		outcome, err = o.handleTraditionalSuccess(ctx, ev)
	}
	if err != nil {
		o.quarantine(ctx, ev, fmt.Sprintf("event %s handling failed: %v", ev.ID, err))
		outcome = "error"
	}

	if markErr := o.store.MarkEventProcessed(ev.ID, ev.BranchName, outcome); markErr != nil {
		o.logger.Error("mark event processed", "event_id", ev.ID, "error", markErr)
	}

	o.auditEvent(ev, outcome)
	return err
}

// handleFailure quarantines the branch for a reported indexing failure and
// marks any referenced shadow build failed.
func (o *Orchestrator) handleFailure(ctx context.Context, ev *models.IndexingEvent) string {
	reason := ev.ErrorMessage
	if reason == "" {
		reason = "indexing failed"
	}

	if ev.IndexingMode == models.ModeShadow && ev.ShadowIndexID != "" {
		if err := o.shadows.FailBuild(ctx, ev.ShadowIndexID, reason); err != nil {
			o.logger.Warn("mark shadow build failed", "shadow_id", ev.ShadowIndexID, "error", err)
		}
	}

	o.quarantine(ctx, ev, reason)
	return "branch_error"
}

// handleTraditionalSuccess releases the event's locks and, if the branch
// ends up READY, runs the auto-merge pipeline.
func (o *Orchestrator) handleTraditionalSuccess(ctx context.Context, ev *models.IndexingEvent) (string, error) {
	released, err := o.locks.CompleteIndexing(ctx, ev.BranchName, ev.CompletedBy, ev.ResourceTypes)
	if err != nil {
		return "", fmt.Errorf("complete indexing: %w", err)
	}
	if !released {
		o.logger.Warn("completion event matched no held locks",
			"event_id", ev.ID,
			"branch", ev.BranchName,
			"completed_by", ev.CompletedBy,
		)
		return "no_locks_released", nil
	}
	return o.afterSuccess(ctx, ev)
}

// handleShadowSuccess finalizes the shadow build and optionally promotes it
// to live before consulting the branch state.
func (o *Orchestrator) handleShadowSuccess(ctx context.Context, ev *models.IndexingEvent) (string, error) {
	if ev.ShadowIndexID == "" {
		return "", fmt.Errorf("shadow event %s carries no shadow index id", ev.ID)
	}

	if _, err := o.shadows.CompleteBuild(ctx, ev.ShadowIndexID, ev.IndexSizeBytes, ev.RecordsIndexed, ev.CompletedBy); err != nil {
		return "", fmt.Errorf("complete shadow build: %w", err)
	}

	if o.shadowCfg.AutoSwitch {
		result, err := o.shadows.RequestSwitch(ctx, ev.ShadowIndexID, models.SwitchRequest{
			Checks:             o.shadowCfg.ValidationChecks,
			BackupBeforeSwitch: o.shadowCfg.BackupBeforeSwitch,
			TimeoutSeconds:     o.shadowCfg.SwitchTimeoutSeconds,
		})
		if err != nil {
			return "", fmt.Errorf("request shadow switch: %w", err)
		}
		o.metrics.SwitchDuration.Observe(float64(result.SwitchDurationMS) / 1000)
		if !result.Success {
			// The shadow stays COMPLETE; the switch can be retried through
			// the API once the cause is addressed. The branch is not
			// quarantined for a validation miss.
			o.logger.Warn("auto switch declined", "shadow_id", ev.ShadowIndexID, "message", result.Message)
			o.alertFailure(ev, models.AuditInfo, fmt.Sprintf("shadow switch declined: %s", result.Message))
			return "switch_declined", nil
		}
		o.auditSwitch(ev, result)
	}

	return o.afterSuccess(ctx, ev)
}

// afterSuccess checks whether the branch became READY and, when auto-merge
// is enabled, runs the merge pipeline.
func (o *Orchestrator) afterSuccess(ctx context.Context, ev *models.IndexingEvent) (string, error) {
	branch, err := o.locks.GetBranchState(ev.BranchName)
	if err != nil {
		return "", fmt.Errorf("load branch: %w", err)
	}

	if branch.State != models.BranchReady {
		return fmt.Sprintf("branch_%s", branch.State), nil
	}
	if !o.automerge.Enabled {
		return "ready_automerge_disabled", nil
	}

	return o.runMergePipeline(ctx, ev, branch)
}

// runMergePipeline checks the auto-merge preconditions, evaluates the merge
// decision, and promotes the branch on AUTO_MERGE. All other decisions leave
// the branch READY for a human.
func (o *Orchestrator) runMergePipeline(ctx context.Context, ev *models.IndexingEvent, branch *models.Branch) (string, error) {
	if o.automerge.RequireValidation && !ev.ValidationResults.Passed {
		o.logger.Info("auto-merge skipped: validation not passed", "branch", branch.Name, "event_id", ev.ID)
		return "ready_validation_failed", nil
	}

	conflicts, diffErr := o.diffEngine.ThreeWayDiff(ctx, diff.Request{
		BranchName:     branch.Name,
		BaseCommitID:   branch.BaseCommitID,
		SourceCommitID: branch.HeadCommitID,
		TargetCommitID: o.mainlineHead(branch),
	})
	if diffErr != nil {
		// Conservative: an unreachable diff engine is treated as "conflicts
		// unknown" and the merge is left to a human.
		o.logger.Warn("diff engine unavailable, leaving branch for manual merge",
			"branch", branch.Name,
			"error", diffErr,
		)
		o.alertFailure(ev, models.AuditInfo, fmt.Sprintf("diff engine unavailable: %v", diffErr))
		return "ready_diff_unavailable", nil
	}

	if o.automerge.RequireNoConflicts && len(conflicts) > 0 {
		o.logger.Info("auto-merge skipped: conflicts present",
			"branch", branch.Name,
			"conflicts", len(conflicts),
		)
		return "ready_conflicts_present", nil
	}

	resolutions := o.classifier.ClassifyAll(conflicts)
	impact := o.classifier.AnalyzeBusinessImpact(conflicts)
	assessment := o.classifier.AssessMergeRisks(conflicts, impact)
	decision := risk.Decide(conflicts, resolutions, assessment, o.thresholds)

	o.metrics.MergeDecisionsTotal.WithLabelValues(string(decision)).Inc()
	o.auditDecision(branch, decision, len(conflicts), assessment)

	if decision != models.DecisionAutoMerge {
		o.logger.Info("merge requires intervention",
			"branch", branch.Name,
			"decision", decision,
			"conflicts", len(conflicts),
			"overall_risk", assessment.OverallRiskLevel,
		)
		return fmt.Sprintf("ready_%s", decision), nil
	}

	reason := fmt.Sprintf("auto-merged into %s from event %s", mainlineBranch, ev.ID)
	if err := o.locks.SetBranchState(ctx, branch.Name, models.BranchActive, reason); err != nil {
		return "", fmt.Errorf("promote branch to ACTIVE: %w", err)
	}

	o.audit.Emit(&models.AuditRecord{
		EventType:     "branch.merged",
		EventCategory: "merge",
		TargetType:    "branch",
		TargetID:      branch.Name,
		Operation:     "auto_merge",
		Severity:      models.AuditInfo,
		Metadata: map[string]interface{}{
			"event_id":     ev.ID,
			"conflicts":    len(conflicts),
			"overall_risk": string(assessment.OverallRiskLevel),
		},
		RecordedAt: time.Now(),
	})

	o.logger.Info("branch auto-merged", "branch", branch.Name, "event_id", ev.ID)
	return "auto_merged", nil
}

// mainlineHead resolves the merge target commit: the mainline branch head
// when known, otherwise the branch's own base commit.
func (o *Orchestrator) mainlineHead(branch *models.Branch) string {
	main, err := o.store.GetBranch(mainlineBranch)
	if err == nil && main.HeadCommitID != "" {
		return main.HeadCommitID
	}
	return branch.BaseCommitID
}

// quarantine forces the branch into ERROR and raises an alert. Operator
// recovery is the only way out.
func (o *Orchestrator) quarantine(ctx context.Context, ev *models.IndexingEvent, reason string) {
	if err := o.locks.SetBranchState(ctx, ev.BranchName, models.BranchError, reason); err != nil {
		o.logger.Error("set branch to ERROR", "branch", ev.BranchName, "error", err)
	}
	o.metrics.BranchErrorsTotal.Inc()

	o.audit.Emit(&models.AuditRecord{
		EventType:     "branch.quarantined",
		EventCategory: "state",
		TargetType:    "branch",
		TargetID:      ev.BranchName,
		Operation:     "set_error",
		Severity:      models.AuditError,
		Metadata: map[string]interface{}{
			"event_id": ev.ID,
			"reason":   reason,
		},
		RecordedAt: time.Now(),
	})

	o.alertFailure(ev, models.AuditError, reason)
}

// alertFailure fans out a best-effort alert.
func (o *Orchestrator) alertFailure(ev *models.IndexingEvent, severity models.AuditSeverity, message string) {
	if o.alerts == nil {
		return
	}
	o.alerts.Notify(&models.AlertPayload{
		Type:          "indexing_failure",
		BranchName:    ev.BranchName,
		ShadowIndexID: ev.ShadowIndexID,
		ErrorMessage:  message,
		Severity:      severity,
		Timestamp:     time.Now(),
	})
}

// auditEvent records the handled event and its outcome.
func (o *Orchestrator) auditEvent(ev *models.IndexingEvent, outcome string) {
	severity := models.AuditInfo
	if ev.Status == models.EventFailure || outcome == "error" {
		severity = models.AuditError
	}
	o.audit.Emit(&models.AuditRecord{
		EventType:     "indexing.event_processed",
		EventCategory: "indexing",
		TargetType:    "branch",
		TargetID:      ev.BranchName,
		Operation:     string(ev.IndexingMode),
		Severity:      severity,
		Metadata: map[string]interface{}{
			"event_id": ev.ID,
			"status":   string(ev.Status),
			"outcome":  outcome,
		},
		RecordedAt: time.Now(),
	})
}

// auditSwitch records a successful shadow promotion.
func (o *Orchestrator) auditSwitch(ev *models.IndexingEvent, result *models.SwitchResult) {
	o.audit.Emit(&models.AuditRecord{
		EventType:     "shadow_index.switched",
		EventCategory: "shadow",
		TargetType:    "shadow_index",
		TargetID:      ev.ShadowIndexID,
		Operation:     "atomic_switch",
		Severity:      models.AuditInfo,
		Metadata: map[string]interface{}{
			"event_id":    ev.ID,
			"branch":      ev.BranchName,
			"duration_ms": result.SwitchDurationMS,
			"backup_id":   result.BackupID,
		},
		RecordedAt: time.Now(),
	})
}

// auditDecision records a merge-pipeline evaluation.
func (o *Orchestrator) auditDecision(branch *models.Branch, decision models.MergeDecision, conflicts int, assessment *models.MergeRiskAssessment) {
	o.audit.Emit(&models.AuditRecord{
		EventType:     "branch.merge_decision",
		EventCategory: "merge",
		TargetType:    "branch",
		TargetID:      branch.Name,
		Operation:     "evaluate",
		Severity:      models.AuditInfo,
		Metadata: map[string]interface{}{
			"decision":     string(decision),
			"conflicts":    conflicts,
			"overall_risk": string(assessment.OverallRiskLevel),
		},
		RecordedAt: time.Now(),
	})
}
