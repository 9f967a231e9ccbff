// Package alert dispatches best-effort failure alerts. The orchestrator
// only sees the Notifier interface; transports are swappable behind it.
package alert

import (
	"log/slog"

	"github.com/kilupskalvis/branchd/internal/models"
)

// Notifier delivers an alert to one channel. Implementations must be
// non-blocking or internally asynchronous; delivery failures are logged and
// swallowed, never surfaced to the caller.
type Notifier interface {
	Notify(payload *models.AlertPayload)
}

// Multi fans an alert out to zero or more channels.
type Multi struct {
	notifiers []Notifier
}

// NewMulti combines notifiers. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Multi{notifiers: active}
}

// Notify delivers to every configured channel.
func (m *Multi) Notify(payload *models.AlertPayload) {
	if m == nil {
		return
	}
	for _, n := range m.notifiers {
		n.Notify(payload)
	}
}

// LogNotifier writes alerts to the structured log. Always configured so an
// alert is never silently lost when no other channel is set up.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the alert.
func (n *LogNotifier) Notify(payload *models.AlertPayload) {
	n.logger.Warn("alert",
		"type", payload.Type,
		"branch", payload.BranchName,
		"shadow_id", payload.ShadowIndexID,
		"severity", payload.Severity,
		"error", payload.ErrorMessage,
	)
}
