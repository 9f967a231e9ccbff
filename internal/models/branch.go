package models

import "time"

// BranchState identifies where a branch is in the indexing/merge lifecycle.
type BranchState string

const (
	BranchActive         BranchState = "ACTIVE"           // open for schema changes
	BranchLockedForWrite BranchState = "LOCKED_FOR_WRITE" // indexing in progress
	BranchReady          BranchState = "READY"            // indexing done, awaiting merge
	BranchError          BranchState = "ERROR"            // unrecoverable failure, operator required
)

// ValidBranchState reports whether s is one of the four known states.
func ValidBranchState(s BranchState) bool {
	switch s {
	case BranchActive, BranchLockedForWrite, BranchReady, BranchError:
		return true
	}
	return false
}

// LockRecord is an exclusive per-resource-type lock held on a branch.
// At most one open record exists per (branch, resource_type).
type LockRecord struct {
	ResourceType string    `json:"resource_type"`
	AcquiredBy   string    `json:"acquired_by"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

// Branch is an independently mutable line of schema evolution.
// Mutated only through the lock manager.
type Branch struct {
	Name                 string                `json:"name"`
	State                BranchState           `json:"state"`
	Locks                map[string]LockRecord `json:"locks,omitempty"` // keyed by resource type
	LastTransitionReason string                `json:"last_transition_reason,omitempty"`
	HeadCommitID         string                `json:"head_commit_id,omitempty"`
	BaseCommitID         string                `json:"base_commit_id,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// HasLocks reports whether any lock records are still open on the branch.
func (b *Branch) HasLocks() bool {
	return len(b.Locks) > 0
}
