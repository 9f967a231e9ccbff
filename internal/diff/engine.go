// Package diff defines the three-way diff engine collaborator. The engine
// itself is external; this package holds the contract, an HTTP client for
// it, and a mock for tests.
package diff

import (
	"context"
	"errors"

	"github.com/kilupskalvis/branchd/internal/models"
)

// Request identifies the three commits to diff.
type Request struct {
	BranchName     string `json:"branch_name"`
	BaseCommitID   string `json:"base_commit_id"`
	SourceCommitID string `json:"source_commit_id"`
	TargetCommitID string `json:"target_commit_id"`
}

// Engine computes a three-way diff between base/source/target commits,
// yielding conflict records.
type Engine interface {
	ThreeWayDiff(ctx context.Context, req Request) ([]*models.Conflict, error)
}

// Verify that *HTTPEngine implements Engine at compile time
var _ Engine = (*HTTPEngine)(nil)

// Unavailable is an Engine for deployments with no diff engine configured.
// Every call fails, which the orchestrator treats as "conflicts unknown"
// and leaves merges to a human.
type Unavailable struct{}

// ThreeWayDiff always reports the engine as unconfigured.
func (Unavailable) ThreeWayDiff(context.Context, Request) ([]*models.Conflict, error) {
	return nil, errors.New("no diff engine configured")
}
