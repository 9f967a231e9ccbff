package shadow

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/branchd/internal/index"
	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/store"
)

func setupShadowManager(t *testing.T) (*Manager, *store.Store, *index.MockIndex, func()) {
	tmpDir, err := os.MkdirTemp("", "branchd-shadow-test")
	require.NoError(t, err)

	st, err := store.New(tmpDir + "/test.db")
	require.NoError(t, err)

	mock := index.NewMockIndex()
	m := New(st, mock, nil)

	cleanup := func() {
		st.Close()
		os.RemoveAll(tmpDir)
	}

	return m, st, mock, cleanup
}

// completedShadow drives a fresh shadow through StartBuild and CompleteBuild
// and registers its backing class in the mock index.
func completedShadow(t *testing.T, m *Manager, mock *index.MockIndex, records, size int64) *models.ShadowIndex {
	t.Helper()
	ctx := context.Background()

	sh, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	mock.AddClass(sh.ClassName, records)

	sh, err = m.CompleteBuild(ctx, sh.ID, size, records, "indexer-1")
	require.NoError(t, err)
	return sh
}

func TestStartBuild_RegistersBuildingShadow(t *testing.T) {
	m, _, _, cleanup := setupShadowManager(t)
	defer cleanup()

	sh, err := m.StartBuild(context.Background(), "feature-x", "products")
	require.NoError(t, err)

	assert.NotEmpty(t, sh.ID)
	assert.Equal(t, models.ShadowBuilding, sh.BuildStatus)
	assert.Contains(t, sh.ClassName, "Shadow_feature_x_products_")
}

func TestCompleteBuild_RecordsStats(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	sh := completedShadow(t, m, mock, 100, 4096)

	assert.Equal(t, models.ShadowComplete, sh.BuildStatus)
	assert.Equal(t, int64(100), sh.RecordCount)
	assert.Equal(t, int64(4096), sh.SizeBytes)
	assert.False(t, sh.CompletedAt.IsZero())
}

func TestCompleteBuild_UnknownID(t *testing.T) {
	m, _, _, cleanup := setupShadowManager(t)
	defer cleanup()

	_, err := m.CompleteBuild(context.Background(), "missing", 0, 0, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFailBuild_IsTerminal(t *testing.T) {
	m, _, _, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	sh, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)

	require.NoError(t, m.FailBuild(ctx, sh.ID, "out of disk"))

	got, err := m.GetShadow(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShadowFailed, got.BuildStatus)
	assert.Equal(t, "out of disk", got.FailReason)

	// No transition out of FAILED.
	_, err = m.CompleteBuild(ctx, sh.ID, 0, 0, "")
	assert.ErrorIs(t, err, ErrTerminal)
	err = m.FailBuild(ctx, sh.ID, "again")
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestRequestSwitch_Success(t *testing.T) {
	m, st, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	sh := completedShadow(t, m, mock, 100, 4096)

	result, err := m.RequestSwitch(context.Background(), sh.ID, models.SwitchRequest{
		Checks: []string{models.CheckRecordCount, models.CheckSizeDelta},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.ValidationPassed)

	got, err := m.GetShadow(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShadowSwitched, got.BuildStatus)

	ptr, err := st.GetLivePointer("feature-x", "products")
	require.NoError(t, err)
	assert.Equal(t, sh.ID, ptr.ShadowID)
}

func TestRequestSwitch_RequiresCompleteStatus(t *testing.T) {
	m, _, _, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	sh, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)

	// Still BUILDING.
	_, err = m.RequestSwitch(ctx, sh.ID, models.SwitchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUILDING")
}

func TestRequestSwitch_MissingClassDeclined(t *testing.T) {
	m, st, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	sh, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	_, err = m.CompleteBuild(ctx, sh.ID, 100, 10, "indexer-1")
	require.NoError(t, err)
	_ = mock // class never registered

	result, err := m.RequestSwitch(ctx, sh.ID, models.SwitchRequest{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "does not exist")

	// Shadow stays COMPLETE so the switch can be retried.
	got, err := m.GetShadow(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShadowComplete, got.BuildStatus)

	_, err = st.GetLivePointer("feature-x", "products")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestSwitch_RecordCountMismatchDeclined(t *testing.T) {
	m, st, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()

	// First switch establishes a live index with 100 records.
	first := completedShadow(t, m, mock, 100, 4096)
	_, err := m.RequestSwitch(ctx, first.ID, models.SwitchRequest{})
	require.NoError(t, err)

	// Second shadow reports 90 records against a live count of 100.
	second, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	mock.AddClass(second.ClassName, 90)
	_, err = m.CompleteBuild(ctx, second.ID, 4096, 90, "indexer-1")
	require.NoError(t, err)

	result, err := m.RequestSwitch(ctx, second.ID, models.SwitchRequest{
		Checks: []string{models.CheckRecordCount},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.False(t, result.ValidationPassed)
	assert.Contains(t, result.Message, "record count mismatch")

	// Live pointer untouched, shadow retryable.
	ptr, err := st.GetLivePointer("feature-x", "products")
	require.NoError(t, err)
	assert.Equal(t, first.ID, ptr.ShadowID)

	got, err := m.GetShadow(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShadowComplete, got.BuildStatus)
}

func TestRequestSwitch_RecordCountWithinTolerance(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	m.RecordCountTolerancePct = 15

	first := completedShadow(t, m, mock, 100, 4096)
	_, err := m.RequestSwitch(ctx, first.ID, models.SwitchRequest{})
	require.NoError(t, err)

	second, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	mock.AddClass(second.ClassName, 90)
	_, err = m.CompleteBuild(ctx, second.ID, 4096, 90, "indexer-1")
	require.NoError(t, err)

	result, err := m.RequestSwitch(ctx, second.ID, models.SwitchRequest{
		Checks: []string{models.CheckRecordCount},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRequestSwitch_SizeDeltaAnomalyDeclined(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	m.SizeDeltaTolerancePct = 50

	first := completedShadow(t, m, mock, 100, 1000)
	_, err := m.RequestSwitch(ctx, first.ID, models.SwitchRequest{})
	require.NoError(t, err)

	// Triple the size versus the live baseline.
	second, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	mock.AddClass(second.ClassName, 100)
	_, err = m.CompleteBuild(ctx, second.ID, 3000, 100, "indexer-1")
	require.NoError(t, err)

	result, err := m.RequestSwitch(ctx, second.ID, models.SwitchRequest{
		Checks: []string{models.CheckSizeDelta},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "size delta anomaly")
}

func TestRequestSwitch_UnknownCheckDeclined(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	sh := completedShadow(t, m, mock, 10, 100)

	result, err := m.RequestSwitch(context.Background(), sh.ID, models.SwitchRequest{
		Checks: []string{"CHECKSUM_VALIDATION"},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "unknown validation check")
}

func TestRequestSwitch_BackupBeforeSwitch(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()

	first := completedShadow(t, m, mock, 100, 4096)
	_, err := m.RequestSwitch(ctx, first.ID, models.SwitchRequest{})
	require.NoError(t, err)
	require.Empty(t, mock.Snapshots) // nothing live to back up on the first switch

	second, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	mock.AddClass(second.ClassName, 100)
	_, err = m.CompleteBuild(ctx, second.ID, 4096, 100, "indexer-1")
	require.NoError(t, err)

	result, err := m.RequestSwitch(ctx, second.ID, models.SwitchRequest{BackupBeforeSwitch: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.BackupID)
	assert.Len(t, mock.Snapshots, 1)
}

func TestRequestSwitch_BackupFailureDeclines(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()

	first := completedShadow(t, m, mock, 100, 4096)
	_, err := m.RequestSwitch(ctx, first.ID, models.SwitchRequest{})
	require.NoError(t, err)

	second, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	mock.AddClass(second.ClassName, 100)
	_, err = m.CompleteBuild(ctx, second.ID, 4096, 100, "indexer-1")
	require.NoError(t, err)

	mock.SnapshotErr = errors.New("backend full")

	result, err := m.RequestSwitch(ctx, second.ID, models.SwitchRequest{BackupBeforeSwitch: true})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "pre-switch backup failed")

	got, err := m.GetShadow(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShadowComplete, got.BuildStatus)
}

func TestRequestSwitch_TerminalShadow(t *testing.T) {
	m, _, mock, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	sh := completedShadow(t, m, mock, 10, 100)

	_, err := m.RequestSwitch(ctx, sh.ID, models.SwitchRequest{})
	require.NoError(t, err)

	// Already SWITCHED.
	_, err = m.RequestSwitch(ctx, sh.ID, models.SwitchRequest{})
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestListShadows_FiltersByBranch(t *testing.T) {
	m, _, _, cleanup := setupShadowManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.StartBuild(ctx, "feature-x", "products")
	require.NoError(t, err)
	_, err = m.StartBuild(ctx, "feature-y", "products")
	require.NoError(t, err)

	shadows, err := m.ListShadows("feature-x")
	require.NoError(t, err)
	require.Len(t, shadows, 1)
	assert.Equal(t, "feature-x", shadows[0].BranchName)
}
