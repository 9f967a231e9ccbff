package shadow

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/store"
)

// validate runs the requested checks against the live index. It returns a
// non-empty message describing the first failed check, or "" when all checks
// pass. Only infrastructure problems are returned as errors.
func (m *Manager) validate(ctx context.Context, shadow *models.ShadowIndex, checks []string) (string, error) {
	for _, check := range checks {
		switch check {
		case models.CheckRecordCount:
			if msg, err := m.validateRecordCount(ctx, shadow); err != nil || msg != "" {
				return msg, err
			}
		case models.CheckSizeDelta:
			if msg := m.validateSizeDelta(shadow); msg != "" {
				return msg, nil
			}
		default:
			return fmt.Sprintf("unknown validation check '%s'", check), nil
		}
	}
	return "", nil
}

// validateRecordCount compares the shadow's reported record count against
// the currently live index within the configured tolerance. With no live
// pointer yet there is nothing to compare against.
func (m *Manager) validateRecordCount(ctx context.Context, shadow *models.ShadowIndex) (string, error) {
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

	liveCount, err := m.live.RecordCount(ctx, liveShadow.ClassName)
	if err != nil {
		return "", fmt.Errorf("live record count: %w", err)
	}

	if liveCount == 0 && shadow.RecordCount == 0 {
		return "", nil
	}

	base := float64(liveCount)
	if base == 0 {
		base = 1
	}
	deltaPct := math.Abs(float64(shadow.RecordCount)-float64(liveCount)) / base * 100

	if deltaPct > m.RecordCountTolerancePct {
		return fmt.Sprintf("record count mismatch: shadow has %d, live has %d (%.1f%% delta, tolerance %.1f%%)",
			shadow.RecordCount, liveCount, deltaPct, m.RecordCountTolerancePct), nil
	}
	return "", nil
}

// validateSizeDelta flags anomalous size changes versus the previously
// switched index. A brand-new index type has no baseline and passes.
func (m *Manager) validateSizeDelta(shadow *models.ShadowIndex) string {
	ptr, err := m.store.GetLivePointer(shadow.BranchName, shadow.IndexType)
	if errors.Is(err, store.ErrNotFound) {
		return ""
	}
	if err != nil || ptr.SizeBytes == 0 {
		return ""
	}

	deltaPct := math.Abs(float64(shadow.SizeBytes)-float64(ptr.SizeBytes)) / float64(ptr.SizeBytes) * 100
	if deltaPct > m.SizeDeltaTolerancePct {
		return fmt.Sprintf("size delta anomaly: shadow is %d bytes, live is %d bytes (%.1f%% delta, tolerance %.1f%%)",
			shadow.SizeBytes, ptr.SizeBytes, deltaPct, m.SizeDeltaTolerancePct)
	}
	return ""
}
