package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
	bolt "go.etcd.io/bbolt"
)

// CreateBranch stores a new branch in the ACTIVE state.
// Fails if a branch with the same name already exists.
func (s *Store) CreateBranch(branch *models.Branch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBranches)

		if bucket.Get([]byte(branch.Name)) != nil {
			return fmt.Errorf("branch '%s': %w", branch.Name, ErrExists)
		}

		now := time.Now()
		branch.CreatedAt = now
		branch.UpdatedAt = now
		if branch.State == "" {
			branch.State = models.BranchActive
		}
		if branch.Locks == nil {
			branch.Locks = make(map[string]models.LockRecord)
		}

		data, err := json.Marshal(branch)
		if err != nil {
			return fmt.Errorf("marshal branch: %w", err)
		}
		return bucket.Put([]byte(branch.Name), data)
	})
}

// GetBranch retrieves a branch by name. Returns ErrNotFound if missing.
func (s *Store) GetBranch(name string) (*models.Branch, error) {
	var branch *models.Branch

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBranches).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		branch = &models.Branch{}
		return json.Unmarshal(data, branch)
	})
	if err != nil {
		return nil, err
	}
	if branch.Locks == nil {
		branch.Locks = make(map[string]models.LockRecord)
	}
	return branch, nil
}

// PutBranch overwrites the stored record for an existing branch.
func (s *Store) PutBranch(branch *models.Branch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBranches)

		if bucket.Get([]byte(branch.Name)) == nil {
			return ErrNotFound
		}

		branch.UpdatedAt = time.Now()
		data, err := json.Marshal(branch)
		if err != nil {
			return fmt.Errorf("marshal branch: %w", err)
		}
		return bucket.Put([]byte(branch.Name), data)
	})
}

// ListBranches returns all branches sorted by name.
func (s *Store) ListBranches() ([]*models.Branch, error) {
	var branches []*models.Branch

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBranches).ForEach(func(k, v []byte) error {
			var branch models.Branch
			if err := json.Unmarshal(v, &branch); err != nil {
				return fmt.Errorf("unmarshal branch: %w", err)
			}
			branches = append(branches, &branch)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(branches, func(i, j int) bool {
		return branches[i].Name < branches[j].Name
	})
	return branches, nil
}

// DeleteBranch removes a branch by name.
func (s *Store) DeleteBranch(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBranches)
		if bucket.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return bucket.Delete([]byte(name))
	})
}
