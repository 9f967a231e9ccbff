package diff

import (
	"context"

	"github.com/kilupskalvis/branchd/internal/models"
)

// MockEngine is a mock implementation of Engine for testing.
type MockEngine struct {
	// Conflicts is returned from ThreeWayDiff
	Conflicts []*models.Conflict
	// Err can be set to simulate an unreachable engine
	Err error
	// Calls records the requests received
	Calls []Request
}

// ThreeWayDiff returns the configured conflicts or error.
func (m *MockEngine) ThreeWayDiff(ctx context.Context, req Request) ([]*models.Conflict, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Conflicts, nil
}

// Verify that *MockEngine implements Engine at compile time
var _ Engine = (*MockEngine)(nil)
