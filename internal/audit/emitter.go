package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
)

// emitTimeout bounds each audit write so a slow disk can never hold up a
// state transition.
const emitTimeout = 5 * time.Second

// Emitter writes audit records best-effort. Failures are logged, never
// propagated.
type Emitter struct {
	store  *Store
	logger *slog.Logger
}

// NewEmitter wraps an audit store. A nil store produces a no-op emitter.
func NewEmitter(store *Store, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, logger: logger}
}

// Emit appends an audit record, swallowing any failure.
func (e *Emitter) Emit(rec *models.AuditRecord) {
	if e == nil || e.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := e.store.Append(ctx, rec); err != nil {
		e.logger.Warn("audit: append failed",
			"event_type", rec.EventType,
			"target_id", rec.TargetID,
			"error", err,
		)
	}
}
