// Package shadow owns the build -> validate -> switch -> rollback lifecycle
// for replacement indexes. A shadow index is built alongside the live one;
// only the pointer swap itself is a brief, bounded critical section.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/branchd/internal/index"
	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/store"
)

// ErrTerminal is returned when mutating a shadow index that is already
// FAILED or SWITCHED.
var ErrTerminal = errors.New("shadow index is in a terminal state")

// Manager drives the shadow index lifecycle.
type Manager struct {
	store  *store.Store
	live   index.LiveIndex
	logger *slog.Logger

	// RecordCountTolerancePct is the allowed percentage deviation between
	// the shadow record count and the live count during validation.
	RecordCountTolerancePct float64
	// SizeDeltaTolerancePct is the allowed percentage size change versus
	// the previously switched index before the delta is flagged anomalous.
	SizeDeltaTolerancePct float64
}

// New creates a shadow index manager.
func New(st *store.Store, live index.LiveIndex, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:                   st,
		live:                    live,
		logger:                  logger,
		RecordCountTolerancePct: 0,
		SizeDeltaTolerancePct:   100,
	}
}

// StartBuild registers a new shadow index in the BUILDING state.
func (m *Manager) StartBuild(ctx context.Context, branchName, indexType string) (*models.ShadowIndex, error) {
	id := uuid.New().String()
	shadow := &models.ShadowIndex{
		ID:          id,
		BranchName:  branchName,
		IndexType:   indexType,
		ClassName:   buildClassName(branchName, indexType, id),
		BuildStatus: models.ShadowBuilding,
		CreatedAt:   time.Now(),
	}

	if err := m.store.CreateShadow(shadow); err != nil {
		return nil, fmt.Errorf("register shadow build: %w", err)
	}

	m.logger.Info("shadow build started",
		"shadow_id", shadow.ID,
		"branch", branchName,
		"index_type", indexType,
	)
	return shadow, nil
}

// GetShadow retrieves a shadow index by id.
func (m *Manager) GetShadow(id string) (*models.ShadowIndex, error) {
	return m.store.GetShadow(id)
}

// ListShadows returns shadow indexes, optionally filtered by branch.
func (m *Manager) ListShadows(branchName string) ([]*models.ShadowIndex, error) {
	return m.store.ListShadows(branchName)
}

// CompleteBuild marks a BUILDING shadow as COMPLETE and records its stats.
// Fails with store.ErrNotFound for unknown ids and ErrTerminal for ids that
// already finished.
func (m *Manager) CompleteBuild(ctx context.Context, shadowID string, sizeBytes, recordCount int64, source string) (*models.ShadowIndex, error) {
	shadow, err := m.store.GetShadow(shadowID)
	if err != nil {
		return nil, err
	}

	if shadow.BuildStatus.Terminal() {
		return nil, fmt.Errorf("shadow index '%s' is %s: %w", shadowID, shadow.BuildStatus, ErrTerminal)
	}
	if shadow.BuildStatus != models.ShadowBuilding {
		return nil, fmt.Errorf("shadow index '%s' is %s, expected %s", shadowID, shadow.BuildStatus, models.ShadowBuilding)
	}

	shadow.BuildStatus = models.ShadowComplete
	shadow.SizeBytes = sizeBytes
	shadow.RecordCount = recordCount
	shadow.Source = source
	shadow.CompletedAt = time.Now()

	if err := m.store.PutShadow(shadow); err != nil {
		return nil, fmt.Errorf("persist shadow index: %w", err)
	}

	m.logger.Info("shadow build complete",
		"shadow_id", shadowID,
		"records", recordCount,
		"size_bytes", sizeBytes,
	)
	return shadow, nil
}

// FailBuild marks a BUILDING shadow as FAILED. Terminal: the caller must
// start a new build.
func (m *Manager) FailBuild(ctx context.Context, shadowID, reason string) error {
	shadow, err := m.store.GetShadow(shadowID)
	if err != nil {
		return err
	}

	if shadow.BuildStatus.Terminal() {
		return fmt.Errorf("shadow index '%s' is %s: %w", shadowID, shadow.BuildStatus, ErrTerminal)
	}

	shadow.BuildStatus = models.ShadowFailed
	shadow.FailReason = reason

	if err := m.store.PutShadow(shadow); err != nil {
		return fmt.Errorf("persist shadow index: %w", err)
	}

	m.logger.Warn("shadow build failed", "shadow_id", shadowID, "reason", reason)
	return nil
}

// RequestSwitch validates the shadow against the live index and, if the
// checks pass, swaps the live pointer inside a bounded critical section.
//
// The switch is all-or-nothing: any validation failure or timeout returns a
// failed SwitchResult with the live pointer untouched and the shadow still
// COMPLETE so the switch can be retried. Success moves the shadow to
// SWITCHED.
func (m *Manager) RequestSwitch(ctx context.Context, shadowID string, req models.SwitchRequest) (*models.SwitchResult, error) {
	start := time.Now()

	shadow, err := m.store.GetShadow(shadowID)
	if err != nil {
		return nil, err
	}

	if shadow.BuildStatus.Terminal() {
		return nil, fmt.Errorf("shadow index '%s' is %s: %w", shadowID, shadow.BuildStatus, ErrTerminal)
	}
	if shadow.BuildStatus != models.ShadowComplete {
		return nil, fmt.Errorf("shadow index '%s' is %s, expected %s", shadowID, shadow.BuildStatus, models.ShadowComplete)
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &models.SwitchResult{}

	// The backing class must exist before any swap is attempted.
	exists, err := m.live.ClassExists(switchCtx, shadow.ClassName)
	if err != nil {
		result.Message = fmt.Sprintf("index store unreachable: %v", err)
		result.SwitchDurationMS = time.Since(start).Milliseconds()
		return result, nil
	}
	if !exists {
		result.Message = fmt.Sprintf("backing class '%s' does not exist", shadow.ClassName)
		result.SwitchDurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	// Step 1: Validation checks. A failed check is not exceptional; it is
	// reported through the result with the pointer unchanged.
	if msg, err := m.validate(switchCtx, shadow, req.Checks); err != nil {
		return nil, fmt.Errorf("run validation checks: %w", err)
	} else if msg != "" {
		result.Success = false
		result.ValidationPassed = false
		result.Message = msg
		result.SwitchDurationMS = time.Since(start).Milliseconds()
		m.logger.Warn("shadow switch validation failed", "shadow_id", shadowID, "message", msg)
		return result, nil
	}
	result.ValidationPassed = true

	// Step 2: Optional snapshot of the current live index.
	if req.BackupBeforeSwitch {
		backupID, err := m.snapshotLive(switchCtx, shadow)
		if err != nil {
			result.Success = false
			result.Message = fmt.Sprintf("pre-switch backup failed: %v", err)
			result.SwitchDurationMS = time.Since(start).Milliseconds()
			return result, nil
		}
		result.BackupID = backupID
	}

	// Step 3: Pointer swap. One bbolt transaction flips the pointer and the
	// shadow status together; a timeout before this point leaves both as
	// they were.
	if err := switchCtx.Err(); err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("switch timed out before pointer swap: %v", err)
		result.SwitchDurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	if _, err := m.store.SwitchLivePointer(shadow); err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("pointer swap failed: %v", err)
		result.SwitchDurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	result.Success = true
	result.SwitchDurationMS = time.Since(start).Milliseconds()
	result.Message = "switched"

	m.logger.Info("shadow index switched",
		"shadow_id", shadowID,
		"branch", shadow.BranchName,
		"duration_ms", result.SwitchDurationMS,
	)
	return result, nil
}

// snapshotLive backs up the class behind the current live pointer. When no
// index has been switched in yet there is nothing to back up.
func (m *Manager) snapshotLive(ctx context.Context, shadow *models.ShadowIndex) (string, error) {
	ptr, err := m.store.GetLivePointer(shadow.BranchName, shadow.IndexType)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	liveShadow, err := m.store.GetShadow(ptr.ShadowID)
	if err != nil {
		return "", fmt.Errorf("resolve live shadow '%s': %w", ptr.ShadowID, err)
	}

	backupID := fmt.Sprintf("preswitch-%s", uuid.New().String())
	return m.live.CreateSnapshot(ctx, backupID, []string{liveShadow.ClassName})
}

// buildClassName derives a Weaviate-safe class name for a shadow build.
func buildClassName(branchName, indexType, id string) string {
	sanitize := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteRune('_')
			}
		}
		return b.String()
	}

	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "Shadow_" + sanitize(branchName) + "_" + sanitize(indexType) + "_" + sanitize(short)
}
