package index

import "context"

// MockIndex is a mock implementation of LiveIndex for testing.
type MockIndex struct {
	// Counts can be set to return specific record counts per class
	Counts map[string]int64
	// Classes is the set of existing class names
	Classes map[string]bool
	// Err can be set to make methods return an error
	Err error
	// SnapshotErr can be set to fail snapshot creation only
	SnapshotErr error
	// Snapshots records the backup ids requested
	Snapshots []string
}

// NewMockIndex creates a new MockIndex for testing.
func NewMockIndex() *MockIndex {
	return &MockIndex{
		Counts:  make(map[string]int64),
		Classes: make(map[string]bool),
	}
}

// AddClass registers a class with a record count.
func (m *MockIndex) AddClass(className string, count int64) {
	m.Classes[className] = true
	m.Counts[className] = count
}

// Ping returns the configured error, if any.
func (m *MockIndex) Ping(ctx context.Context) error {
	return m.Err
}

// ClassExists reports whether the class was registered.
func (m *MockIndex) ClassExists(ctx context.Context, className string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Classes[className], nil
}

// RecordCount returns the configured count for the class.
func (m *MockIndex) RecordCount(ctx context.Context, className string) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Counts[className], nil
}

// CreateSnapshot records the backup id and returns it.
func (m *MockIndex) CreateSnapshot(ctx context.Context, backupID string, classNames []string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.SnapshotErr != nil {
		return "", m.SnapshotErr
	}
	m.Snapshots = append(m.Snapshots, backupID)
	return backupID, nil
}

// Verify that *MockIndex implements LiveIndex at compile time
var _ LiveIndex = (*MockIndex)(nil)
