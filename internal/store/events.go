package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
	bolt "go.etcd.io/bbolt"
)

// GetProcessedEvent returns the recorded outcome for an event id, or
// ErrNotFound if the event has not been processed.
func (s *Store) GetProcessedEvent(eventID string) (*models.ProcessedEvent, error) {
	var rec *models.ProcessedEvent

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProcessed).Get([]byte(eventID))
		if data == nil {
			return ErrNotFound
		}
		rec = &models.ProcessedEvent{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkEventProcessed records the outcome for an event id. Idempotent: an
// already-recorded event keeps its original outcome.
func (s *Store) MarkEventProcessed(eventID, branchName, outcome string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketProcessed)

		if bucket.Get([]byte(eventID)) != nil {
			return nil
		}

		rec := &models.ProcessedEvent{
			EventID:     eventID,
			BranchName:  branchName,
			Outcome:     outcome,
			ProcessedAt: time.Now(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal processed event: %w", err)
		}
		return bucket.Put([]byte(eventID), data)
	})
}
