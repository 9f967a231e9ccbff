package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/branchd/internal/models"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "branchd-store-test")
	require.NoError(t, err)

	st, err := New(tmpDir + "/test.db")
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		os.RemoveAll(tmpDir)
	}

	return st, cleanup
}

func TestCreateBranch_AndGet(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	err := st.CreateBranch(&models.Branch{
		Name:         "feature-x",
		HeadCommitID: "abc123",
		BaseCommitID: "base001",
	})
	require.NoError(t, err)

	branch, err := st.GetBranch("feature-x")
	require.NoError(t, err)
	assert.Equal(t, "feature-x", branch.Name)
	assert.Equal(t, models.BranchActive, branch.State)
	assert.Equal(t, "abc123", branch.HeadCommitID)
	assert.NotNil(t, branch.Locks)
	assert.False(t, branch.CreatedAt.IsZero())
}

func TestCreateBranch_AlreadyExists(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, st.CreateBranch(&models.Branch{Name: "feature-x"}))

	err := st.CreateBranch(&models.Branch{Name: "feature-x"})
	assert.ErrorIs(t, err, ErrExists)
}

func TestGetBranch_NotFound(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := st.GetBranch("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutBranch_UpdatesState(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, st.CreateBranch(&models.Branch{Name: "feature-x"}))

	branch, err := st.GetBranch("feature-x")
	require.NoError(t, err)

	branch.State = models.BranchReady
	branch.LastTransitionReason = "indexing complete"
	require.NoError(t, st.PutBranch(branch))

	got, err := st.GetBranch("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchReady, got.State)
	assert.Equal(t, "indexing complete", got.LastTransitionReason)
}

func TestListBranches(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, st.CreateBranch(&models.Branch{Name: "beta"}))
	require.NoError(t, st.CreateBranch(&models.Branch{Name: "alpha"}))

	branches, err := st.ListBranches()
	require.NoError(t, err)
	require.Len(t, branches, 2)
}

func TestShadow_CreateAndList(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, st.CreateShadow(&models.ShadowIndex{
		ID:          "sh-1",
		BranchName:  "feature-x",
		IndexType:   "products",
		BuildStatus: models.ShadowBuilding,
	}))
	require.NoError(t, st.CreateShadow(&models.ShadowIndex{
		ID:          "sh-2",
		BranchName:  "other",
		IndexType:   "products",
		BuildStatus: models.ShadowBuilding,
	}))

	all, err := st.ListShadows("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := st.ListShadows("feature-x")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "sh-1", filtered[0].ID)
}

func TestSwitchLivePointer_FlipsPointerAndStatus(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	shadow := &models.ShadowIndex{
		ID:          "sh-1",
		BranchName:  "feature-x",
		IndexType:   "products",
		BuildStatus: models.ShadowComplete,
		RecordCount: 100,
		SizeBytes:   4096,
	}
	require.NoError(t, st.CreateShadow(shadow))

	ptr, err := st.SwitchLivePointer(shadow)
	require.NoError(t, err)
	assert.Equal(t, "sh-1", ptr.ShadowID)
	assert.Empty(t, ptr.PrevShadowID)

	// The shadow status flips in the same transaction.
	got, err := st.GetShadow("sh-1")
	require.NoError(t, err)
	assert.Equal(t, models.ShadowSwitched, got.BuildStatus)
	assert.False(t, got.SwitchedAt.IsZero())

	live, err := st.GetLivePointer("feature-x", "products")
	require.NoError(t, err)
	assert.Equal(t, "sh-1", live.ShadowID)
	assert.Equal(t, int64(100), live.RecordCount)
}

func TestSwitchLivePointer_PreservesPrevious(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	first := &models.ShadowIndex{
		ID: "sh-1", BranchName: "feature-x", IndexType: "products",
		BuildStatus: models.ShadowComplete, SizeBytes: 1000,
	}
	second := &models.ShadowIndex{
		ID: "sh-2", BranchName: "feature-x", IndexType: "products",
		BuildStatus: models.ShadowComplete, SizeBytes: 1100,
	}
	require.NoError(t, st.CreateShadow(first))
	require.NoError(t, st.CreateShadow(second))

	_, err := st.SwitchLivePointer(first)
	require.NoError(t, err)

	ptr, err := st.SwitchLivePointer(second)
	require.NoError(t, err)
	assert.Equal(t, "sh-2", ptr.ShadowID)
	assert.Equal(t, "sh-1", ptr.PrevShadowID)
	assert.Equal(t, int64(1000), ptr.PrevSizeBytes)
}

func TestGetLivePointer_NotFound(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := st.GetLivePointer("feature-x", "products")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkEventProcessed_Idempotent(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, st.MarkEventProcessed("evt-1", "feature-x", "auto_merged"))

	// A redelivered event keeps the original outcome.
	require.NoError(t, st.MarkEventProcessed("evt-1", "feature-x", "different"))

	rec, err := st.GetProcessedEvent("evt-1")
	require.NoError(t, err)
	assert.Equal(t, "auto_merged", rec.Outcome)
	assert.Equal(t, "feature-x", rec.BranchName)
}

func TestGetProcessedEvent_NotFound(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := st.GetProcessedEvent("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
