package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kilupskalvis/branchd/internal/models"
)

// NATSSubscriber feeds indexing events from a NATS subject into the
// orchestrator. Events are also accepted over HTTP; NATS is the push path
// for indexing subsystems that publish rather than POST.
type NATSSubscriber struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	orch   *Orchestrator
	logger *slog.Logger
}

// NewNATSSubscriber connects to NATS and subscribes to the given subject.
func NewNATSSubscriber(url, subject string, orch *Orchestrator, logger *slog.Logger) (*NATSSubscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	s := &NATSSubscriber{
		conn:   conn,
		orch:   orch,
		logger: logger,
	}

	sub, err := conn.Subscribe(subject, s.handleMessage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to '%s': %w", subject, err)
	}
	s.sub = sub

	logger.Info("nats subscription active", "subject", subject)
	return s, nil
}

// handleMessage decodes an event message and submits it. Malformed messages
// are logged and dropped; the publisher owns their correctness.
func (s *NATSSubscriber) handleMessage(msg *nats.Msg) {
	var ev models.IndexingEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Warn("dropping malformed event message", "subject", msg.Subject, "error", err)
		return
	}

	if err := s.orch.Submit(&ev); err != nil {
		s.logger.Error("submit event from nats", "event_id", ev.ID, "error", err)
	}
}

// Close drains the subscription and closes the connection.
func (s *NATSSubscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.Warn("drain nats subscription", "error", err)
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
