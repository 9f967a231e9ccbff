// Package lockmgr owns branch state transitions and per-resource-type
// exclusive locking. All branch mutations in the control plane go through
// this package.
package lockmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/store"
)

// Manager coordinates branch state and lock records.
//
// Acquisition and release for a given (branch, resource_type) are linearized
// by a keyed per-branch mutex around the read-modify-write of the branch
// record. There is no global lock: independent branches proceed concurrently.
type Manager struct {
	store  *store.Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // keyed by branch name
}

// New creates a lock manager backed by the given store.
func New(st *store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// branchMutex returns the mutex guarding a branch's record.
func (m *Manager) branchMutex(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.locks[name]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.locks[name] = mu
	return mu
}

// CreateBranch registers a new branch in the ACTIVE state.
func (m *Manager) CreateBranch(ctx context.Context, name, headCommitID, baseCommitID string) (*models.Branch, error) {
	branch := &models.Branch{
		Name:         name,
		State:        models.BranchActive,
		Locks:        make(map[string]models.LockRecord),
		HeadCommitID: headCommitID,
		BaseCommitID: baseCommitID,
	}
	if err := m.store.CreateBranch(branch); err != nil {
		return nil, err
	}
	m.logger.Info("branch created", "branch", name, "head", headCommitID)
	return branch, nil
}

// GetBranchState retrieves the current branch record.
// Returns store.ErrNotFound for an unknown branch.
func (m *Manager) GetBranchState(name string) (*models.Branch, error) {
	return m.store.GetBranch(name)
}

// ListBranches returns all known branches.
func (m *Manager) ListBranches() ([]*models.Branch, error) {
	return m.store.ListBranches()
}

// BeginIndexing acquires an exclusive lock per requested resource type and
// moves the branch to LOCKED_FOR_WRITE.
//
// Repeated calls with the same acquiredBy identity are idempotent. If any
// requested resource type is held by a different owner, no locks are taken
// and a LockConflictError is returned.
func (m *Manager) BeginIndexing(ctx context.Context, branchName string, resourceTypes []string, acquiredBy string) error {
	if len(resourceTypes) == 0 {
		return fmt.Errorf("at least one resource type is required")
	}

	mu := m.branchMutex(branchName)
	mu.Lock()
	defer mu.Unlock()

	branch, err := m.store.GetBranch(branchName)
	if err != nil {
		return err
	}

	// A quarantined branch stays quarantined until an operator recovers it.
	if branch.State == models.BranchError {
		return &InvalidStateError{
			BranchName: branchName,
			State:      branch.State,
			Operation:  "begin_indexing",
		}
	}

	// Check all requested types before taking any lock.
	for _, rt := range resourceTypes {
		if rec, held := branch.Locks[rt]; held && rec.AcquiredBy != acquiredBy {
			return &LockConflictError{
				BranchName:   branchName,
				ResourceType: rt,
				HeldBy:       rec.AcquiredBy,
			}
		}
	}

	now := time.Now()
	for _, rt := range resourceTypes {
		if _, held := branch.Locks[rt]; held {
			continue // idempotent re-acquire by the same owner
		}
		branch.Locks[rt] = models.LockRecord{
			ResourceType: rt,
			AcquiredBy:   acquiredBy,
			AcquiredAt:   now,
		}
	}

	branch.State = models.BranchLockedForWrite
	branch.LastTransitionReason = fmt.Sprintf("indexing started by %s", acquiredBy)

	if err := m.store.PutBranch(branch); err != nil {
		return fmt.Errorf("persist branch: %w", err)
	}

	m.logger.Info("indexing locks acquired",
		"branch", branchName,
		"resource_types", resourceTypes,
		"acquired_by", acquiredBy,
	)
	return nil
}

// CompleteIndexing releases the given locks, or all locks held by
// completedBy when resourceTypes is empty. It returns false when the branch
// held no matching lock.
//
// The branch transitions LOCKED_FOR_WRITE -> READY only once the last
// outstanding lock clears; completing a subset keeps it LOCKED_FOR_WRITE.
func (m *Manager) CompleteIndexing(ctx context.Context, branchName, completedBy string, resourceTypes []string) (bool, error) {
	mu := m.branchMutex(branchName)
	mu.Lock()
	defer mu.Unlock()

	branch, err := m.store.GetBranch(branchName)
	if err != nil {
		return false, err
	}

	released := 0
	if len(resourceTypes) == 0 {
		for rt, rec := range branch.Locks {
			if rec.AcquiredBy == completedBy {
				delete(branch.Locks, rt)
				released++
			}
		}
	} else {
		for _, rt := range resourceTypes {
			if rec, held := branch.Locks[rt]; held && rec.AcquiredBy == completedBy {
				delete(branch.Locks, rt)
				released++
			}
		}
	}

	if released == 0 {
		return false, nil
	}

	if !branch.HasLocks() && branch.State == models.BranchLockedForWrite {
		branch.State = models.BranchReady
		branch.LastTransitionReason = fmt.Sprintf("indexing completed by %s", completedBy)
	}

	if err := m.store.PutBranch(branch); err != nil {
		return false, fmt.Errorf("persist branch: %w", err)
	}

	m.logger.Info("indexing locks released",
		"branch", branchName,
		"released", released,
		"state", branch.State,
	)
	return true, nil
}

// SetBranchState performs an unconditional state transition, always
// persisting the reason. Used by the orchestrator for ERROR and ACTIVE.
func (m *Manager) SetBranchState(ctx context.Context, branchName string, state models.BranchState, reason string) error {
	if !models.ValidBranchState(state) {
		return fmt.Errorf("invalid branch state: %s", state)
	}

	mu := m.branchMutex(branchName)
	mu.Lock()
	defer mu.Unlock()

	branch, err := m.store.GetBranch(branchName)
	if err != nil {
		return err
	}

	branch.State = state
	branch.LastTransitionReason = reason

	// A branch returning to ACTIVE or forced to ERROR holds no usable locks.
	if state == models.BranchActive || state == models.BranchError {
		branch.Locks = make(map[string]models.LockRecord)
	}

	if err := m.store.PutBranch(branch); err != nil {
		return fmt.Errorf("persist branch: %w", err)
	}

	m.logger.Info("branch state set", "branch", branchName, "state", state, "reason", reason)
	return nil
}
