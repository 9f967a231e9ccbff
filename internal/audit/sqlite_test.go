package audit

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/branchd/internal/models"
)

func setupAuditStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "branchd-audit-test")
	require.NoError(t, err)

	st, err := NewStore(tmpDir + "/audit.db")
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		os.RemoveAll(tmpDir)
	}
	return st, cleanup
}

func TestAppend_AndRecent(t *testing.T) {
	st, cleanup := setupAuditStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, &models.AuditRecord{
		EventType:     "branch.quarantined",
		EventCategory: "state",
		TargetType:    "branch",
		TargetID:      "feature-x",
		Operation:     "set_error",
		Severity:      models.AuditError,
		Metadata:      map[string]interface{}{"reason": "indexing failed"},
	}))

	records, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "branch.quarantined", rec.EventType)
	assert.Equal(t, "feature-x", rec.TargetID)
	assert.Equal(t, models.AuditError, rec.Severity)
	assert.Equal(t, "indexing failed", rec.Metadata["reason"])
	assert.False(t, rec.RecordedAt.IsZero())
}

func TestRecent_NewestFirst(t *testing.T) {
	st, cleanup := setupAuditStore(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Append(ctx, &models.AuditRecord{
			EventType:     "indexing.event_processed",
			EventCategory: "indexing",
			TargetType:    "branch",
			TargetID:      fmt.Sprintf("branch-%d", i),
			Operation:     "traditional",
			Severity:      models.AuditInfo,
		}))
	}

	records, err := st.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "branch-4", records[0].TargetID)
	assert.Equal(t, "branch-2", records[2].TargetID)
}

func TestRecent_EmptyStore(t *testing.T) {
	st, cleanup := setupAuditStore(t)
	defer cleanup()

	records, err := st.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppend_NilMetadata(t *testing.T) {
	st, cleanup := setupAuditStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, &models.AuditRecord{
		EventType:     "branch.merged",
		EventCategory: "merge",
		TargetType:    "branch",
		TargetID:      "feature-x",
		Operation:     "auto_merge",
		Severity:      models.AuditInfo,
	}))

	records, err := st.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Metadata)
}

func TestEmitter_NilStoreIsNoOp(t *testing.T) {
	e := NewEmitter(nil, nil)
	e.Emit(&models.AuditRecord{EventType: "branch.merged"})

	var nilEmitter *Emitter
	nilEmitter.Emit(&models.AuditRecord{EventType: "branch.merged"})
}

func TestEmitter_WritesThrough(t *testing.T) {
	st, cleanup := setupAuditStore(t)
	defer cleanup()

	e := NewEmitter(st, nil)
	e.Emit(&models.AuditRecord{
		EventType:     "shadow_index.switched",
		EventCategory: "shadow",
		TargetType:    "shadow_index",
		TargetID:      "sh-1",
		Operation:     "atomic_switch",
		Severity:      models.AuditInfo,
	})

	records, err := st.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "shadow_index.switched", records[0].EventType)
}
