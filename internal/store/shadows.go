package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
	bolt "go.etcd.io/bbolt"
)

// CreateShadow stores a new shadow index record.
func (s *Store) CreateShadow(shadow *models.ShadowIndex) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketShadows)

		if bucket.Get([]byte(shadow.ID)) != nil {
			return fmt.Errorf("shadow index '%s': %w", shadow.ID, ErrExists)
		}

		data, err := json.Marshal(shadow)
		if err != nil {
			return fmt.Errorf("marshal shadow index: %w", err)
		}
		return bucket.Put([]byte(shadow.ID), data)
	})
}

// GetShadow retrieves a shadow index by id. Returns ErrNotFound if missing.
func (s *Store) GetShadow(id string) (*models.ShadowIndex, error) {
	var shadow *models.ShadowIndex

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketShadows).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		shadow = &models.ShadowIndex{}
		return json.Unmarshal(data, shadow)
	})
	if err != nil {
		return nil, err
	}
	return shadow, nil
}

// PutShadow overwrites an existing shadow index record.
func (s *Store) PutShadow(shadow *models.ShadowIndex) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketShadows)
		if bucket.Get([]byte(shadow.ID)) == nil {
			return ErrNotFound
		}
		data, err := json.Marshal(shadow)
		if err != nil {
			return fmt.Errorf("marshal shadow index: %w", err)
		}
		return bucket.Put([]byte(shadow.ID), data)
	})
}

// ListShadows returns shadow indexes, optionally filtered by branch name,
// newest first.
func (s *Store) ListShadows(branchName string) ([]*models.ShadowIndex, error) {
	var shadows []*models.ShadowIndex

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShadows).ForEach(func(k, v []byte) error {
			var shadow models.ShadowIndex
			if err := json.Unmarshal(v, &shadow); err != nil {
				return fmt.Errorf("unmarshal shadow index: %w", err)
			}
			if branchName != "" && shadow.BranchName != branchName {
				return nil
			}
			shadows = append(shadows, &shadow)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(shadows, func(i, j int) bool {
		return shadows[i].CreatedAt.After(shadows[j].CreatedAt)
	})
	return shadows, nil
}

// livePtrKey builds the live_indexes bucket key for a (branch, index type).
func livePtrKey(branchName, indexType string) []byte {
	return []byte(branchName + "/" + indexType)
}

// GetLivePointer returns the live index pointer for a (branch, index type).
// Returns ErrNotFound when nothing has been switched in yet.
func (s *Store) GetLivePointer(branchName, indexType string) (*models.LivePointer, error) {
	var ptr *models.LivePointer

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLivePtrs).Get(livePtrKey(branchName, indexType))
		if data == nil {
			return ErrNotFound
		}
		ptr = &models.LivePointer{}
		return json.Unmarshal(data, ptr)
	})
	if err != nil {
		return nil, err
	}
	return ptr, nil
}

// SwitchLivePointer atomically replaces the live pointer for a
// (branch, index type) with the given shadow and marks the shadow SWITCHED.
// Both writes happen in one transaction so a crash can never leave the
// pointer and the shadow status disagreeing.
func (s *Store) SwitchLivePointer(shadow *models.ShadowIndex) (*models.LivePointer, error) {
	var ptr *models.LivePointer

	err := s.db.Update(func(tx *bolt.Tx) error {
		ptrBucket := tx.Bucket(bucketLivePtrs)
		key := livePtrKey(shadow.BranchName, shadow.IndexType)

		now := time.Now()
		ptr = &models.LivePointer{
			BranchName:  shadow.BranchName,
			IndexType:   shadow.IndexType,
			ShadowID:    shadow.ID,
			RecordCount: shadow.RecordCount,
			SizeBytes:   shadow.SizeBytes,
			SwitchedAt:  now,
		}

		// Preserve the previous pointer for rollback/anomaly checks.
		if prev := ptrBucket.Get(key); prev != nil {
			var prevPtr models.LivePointer
			if err := json.Unmarshal(prev, &prevPtr); err != nil {
				return fmt.Errorf("unmarshal previous pointer: %w", err)
			}
			ptr.PrevShadowID = prevPtr.ShadowID
			ptr.PrevSizeBytes = prevPtr.SizeBytes
		}

		data, err := json.Marshal(ptr)
		if err != nil {
			return fmt.Errorf("marshal pointer: %w", err)
		}
		if err := ptrBucket.Put(key, data); err != nil {
			return fmt.Errorf("store pointer: %w", err)
		}

		shadowBucket := tx.Bucket(bucketShadows)
		if shadowBucket.Get([]byte(shadow.ID)) == nil {
			return ErrNotFound
		}
		shadow.BuildStatus = models.ShadowSwitched
		shadow.SwitchedAt = now
		shadowData, err := json.Marshal(shadow)
		if err != nil {
			return fmt.Errorf("marshal shadow index: %w", err)
		}
		return shadowBucket.Put([]byte(shadow.ID), shadowData)
	})
	if err != nil {
		return nil, err
	}
	return ptr, nil
}
