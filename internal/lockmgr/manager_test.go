package lockmgr

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/store"
)

func setupManager(t *testing.T) (*Manager, func()) {
	tmpDir, err := os.MkdirTemp("", "branchd-lockmgr-test")
	require.NoError(t, err)

	st, err := store.New(tmpDir + "/test.db")
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		os.RemoveAll(tmpDir)
	}

	return New(st, nil), cleanup
}

func TestBeginIndexing_LocksBranch(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "head1", "base1")
	require.NoError(t, err)

	err = m.BeginIndexing(ctx, "feature-x", []string{"products", "orders"}, "indexer-1")
	require.NoError(t, err)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchLockedForWrite, branch.State)
	assert.Len(t, branch.Locks, 2)
	assert.Equal(t, "indexer-1", branch.Locks["products"].AcquiredBy)
}

func TestBeginIndexing_IdempotentForSameOwner(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)

	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products"}, "indexer-1"))
	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products"}, "indexer-1"))

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Len(t, branch.Locks, 1)
}

func TestBeginIndexing_ConflictWithOtherOwner(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)

	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products"}, "indexer-1"))

	err = m.BeginIndexing(ctx, "feature-x", []string{"products"}, "indexer-2")
	require.Error(t, err)

	var conflict *LockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "products", conflict.ResourceType)
	assert.Equal(t, "indexer-1", conflict.HeldBy)
}

func TestBeginIndexing_PartialConflictTakesNoLocks(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)

	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"orders"}, "indexer-1"))

	// Requesting a free type plus a held one must fail without taking either.
	err = m.BeginIndexing(ctx, "feature-x", []string{"products", "orders"}, "indexer-2")
	require.Error(t, err)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Len(t, branch.Locks, 1)
	_, held := branch.Locks["products"]
	assert.False(t, held)
}

func TestBeginIndexing_UnknownBranch(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	err := m.BeginIndexing(context.Background(), "nope", []string{"products"}, "indexer-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBeginIndexing_QuarantinedBranchRejected(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.SetBranchState(ctx, "feature-x", models.BranchError, "indexing blew up"))

	err = m.BeginIndexing(ctx, "feature-x", []string{"object_type"}, "indexer-1")
	require.Error(t, err)

	var invalid *InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.BranchError, invalid.State)

	// Only operator recovery may move the branch out of ERROR.
	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchError, branch.State)
	assert.False(t, branch.HasLocks())
}

func TestCompleteIndexing_SubsetKeepsLockedForWrite(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products", "orders"}, "indexer-1"))

	released, err := m.CompleteIndexing(ctx, "feature-x", "indexer-1", []string{"products"})
	require.NoError(t, err)
	assert.True(t, released)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchLockedForWrite, branch.State)
	assert.Len(t, branch.Locks, 1)
}

func TestCompleteIndexing_LastLockMovesToReady(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products", "orders"}, "indexer-1"))

	_, err = m.CompleteIndexing(ctx, "feature-x", "indexer-1", []string{"products"})
	require.NoError(t, err)
	released, err := m.CompleteIndexing(ctx, "feature-x", "indexer-1", []string{"orders"})
	require.NoError(t, err)
	assert.True(t, released)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchReady, branch.State)
	assert.False(t, branch.HasLocks())
}

func TestCompleteIndexing_EmptyTypesReleasesAllByOwner(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products", "orders"}, "indexer-1"))

	released, err := m.CompleteIndexing(ctx, "feature-x", "indexer-1", nil)
	require.NoError(t, err)
	assert.True(t, released)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchReady, branch.State)
}

func TestCompleteIndexing_NoMatchingLocks(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)

	released, err := m.CompleteIndexing(ctx, "feature-x", "indexer-1", nil)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestCompleteIndexing_NamedTypesHeldByOtherOwner(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products"}, "indexer-1"))

	released, err := m.CompleteIndexing(ctx, "feature-x", "indexer-2", []string{"products"})
	require.NoError(t, err)
	assert.False(t, released)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchLockedForWrite, branch.State)
	assert.Equal(t, "indexer-1", branch.Locks["products"].AcquiredBy)
}

func TestSetBranchState_ErrorClearsLocks(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.BeginIndexing(ctx, "feature-x", []string{"products"}, "indexer-1"))

	require.NoError(t, m.SetBranchState(ctx, "feature-x", models.BranchError, "indexing failed"))

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, models.BranchError, branch.State)
	assert.False(t, branch.HasLocks())
	assert.Equal(t, "indexing failed", branch.LastTransitionReason)
}

func TestSetBranchState_RejectsUnknownState(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)

	err = m.SetBranchState(ctx, "feature-x", models.BranchState("BOGUS"), "")
	assert.Error(t, err)
}

func TestBeginIndexing_ConcurrentAcquisitionIsExclusive(t *testing.T) {
	m, cleanup := setupManager(t)
	defer cleanup()

	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "feature-x", "", "")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan string, workers)

	for i := 0; i < workers; i++ {
		owner := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.BeginIndexing(ctx, "feature-x", []string{"products"}, owner); err == nil {
				successes <- owner
			}
		}()
	}
	wg.Wait()
	close(successes)

	var winners []string
	for owner := range successes {
		winners = append(winners, owner)
	}
	require.Len(t, winners, 1)

	branch, err := m.GetBranchState("feature-x")
	require.NoError(t, err)
	assert.Equal(t, winners[0], branch.Locks["products"].AcquiredBy)
}
