package lockmgr

import (
	"fmt"

	"github.com/kilupskalvis/branchd/internal/models"
)

// InvalidStateError is returned when an operation is not permitted in the
// branch's current state. In particular, ERROR branches only leave ERROR
// through operator recovery; ordinary indexing calls must not touch them.
type InvalidStateError struct {
	BranchName string
	State      models.BranchState
	Operation  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("branch '%s' is %s: %s is not permitted", e.BranchName, e.State, e.Operation)
}

// LockConflictError is returned when a requested resource type is already
// locked on the branch by a different owner. Callers must not auto-retry.
type LockConflictError struct {
	BranchName   string
	ResourceType string
	HeldBy       string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("resource type '%s' on branch '%s' is locked by '%s'",
		e.ResourceType, e.BranchName, e.HeldBy)
}
