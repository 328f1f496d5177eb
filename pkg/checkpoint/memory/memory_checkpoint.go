// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package memorycheckpoint

import (
	"sync"
	"time"

	"github.com/snowplow-devops/defender-bridge/pkg/checkpoint/checkpointiface"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// memoryStore is an in-memory checkpoint store used by the inmemory source
// and in tests.  It honours the same conditional-advance contract as the
// DynamoDB store.
type memoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*models.Checkpoint
}

// New creates an empty in-memory checkpoint store
func New() checkpointiface.Store {
	return &memoryStore{
		checkpoints: map[string]*models.Checkpoint{},
	}
}

// Get returns the stored checkpoint for a partition, or nil if the partition
// has never been checkpointed
func (ms *memoryStore) Get(partitionID string) (*models.Checkpoint, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, ok := ms.checkpoints[partitionID]
	if !ok {
		return nil, nil
	}

	c := *stored
	return &c, nil
}

// Advance stores the checkpoint if it moves the cursor forward, and fails
// with StaleCheckpointError otherwise
func (ms *memoryStore) Advance(checkpoint *models.Checkpoint) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := ms.checkpoints[checkpoint.PartitionID]
	if !checkpoint.IsNewerThan(stored) {
		return &checkpointiface.StaleCheckpointError{
			PartitionID:      checkpoint.PartitionID,
			StoredSequence:   stored.SequenceNumber,
			ProposedSequence: checkpoint.SequenceNumber,
		}
	}

	c := *checkpoint
	c.UpdatedAt = time.Now().UTC()
	ms.checkpoints[checkpoint.PartitionID] = &c
	return nil
}

// GetID returns the identifier for this checkpoint store
func (ms *memoryStore) GetID() string {
	return "memory"
}
