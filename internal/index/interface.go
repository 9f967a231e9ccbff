package index

import "context"

// LiveIndex is the contract for the live index collaborator. The shadow
// index manager uses it for switch validation and pre-switch snapshots.
// This interface enables mocking for testing the shadow package.
type LiveIndex interface {
	// Ping checks that the index store is reachable.
	Ping(ctx context.Context) error

	// ClassExists reports whether the backing class exists.
	ClassExists(ctx context.Context, className string) (bool, error)

	// RecordCount returns the number of records in a class.
	RecordCount(ctx context.Context, className string) (int64, error)

	// CreateSnapshot backs up the given classes and returns the backup id.
	CreateSnapshot(ctx context.Context, backupID string, classNames []string) (string, error)
}

// Verify that *Client implements LiveIndex at compile time
var _ LiveIndex = (*Client)(nil)
