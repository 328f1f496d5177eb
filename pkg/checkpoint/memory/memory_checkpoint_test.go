// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package memorycheckpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/checkpoint/checkpointiface"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// TestMemoryCheckpoint_GetEmpty tests that a never-checkpointed partition has no cursor
func TestMemoryCheckpoint_GetEmpty(t *testing.T) {
	assert := assert.New(t)

	store := New()
	assert.Equal("memory", store.GetID())

	cp, err := store.Get("0")
	assert.Nil(err)
	assert.Nil(cp)
}

// TestMemoryCheckpoint_AdvanceAndGet tests storing and reading back a cursor
func TestMemoryCheckpoint_AdvanceAndGet(t *testing.T) {
	assert := assert.New(t)

	store := New()

	err := store.Advance(&models.Checkpoint{PartitionID: "0", Offset: "100", SequenceNumber: 10})
	assert.Nil(err)

	cp, err := store.Get("0")
	assert.Nil(err)
	assert.NotNil(cp)
	assert.Equal("0", cp.PartitionID)
	assert.Equal("100", cp.Offset)
	assert.Equal(int64(10), cp.SequenceNumber)
	assert.False(cp.UpdatedAt.IsZero())

	// Partitions are independent
	cp1, err := store.Get("1")
	assert.Nil(err)
	assert.Nil(cp1)
}

// TestMemoryCheckpoint_StaleAdvance tests that the cursor can never move backwards
func TestMemoryCheckpoint_StaleAdvance(t *testing.T) {
	assert := assert.New(t)

	store := New()

	err := store.Advance(&models.Checkpoint{PartitionID: "0", Offset: "100", SequenceNumber: 10})
	assert.Nil(err)

	// Equal sequence is stale too
	err = store.Advance(&models.Checkpoint{PartitionID: "0", Offset: "100", SequenceNumber: 10})
	assert.NotNil(err)

	err = store.Advance(&models.Checkpoint{PartitionID: "0", Offset: "90", SequenceNumber: 9})
	assert.NotNil(err)

	var staleErr *checkpointiface.StaleCheckpointError
	assert.True(errors.As(err, &staleErr))
	assert.Equal("0", staleErr.PartitionID)
	assert.Equal(int64(10), staleErr.StoredSequence)
	assert.Equal(int64(9), staleErr.ProposedSequence)

	// Stored value is untouched
	cp, err := store.Get("0")
	assert.Nil(err)
	assert.Equal(int64(10), cp.SequenceNumber)
	assert.Equal("100", cp.Offset)
}

// TestMemoryCheckpoint_GetReturnsCopy tests that mutating a fetched checkpoint does not corrupt the store
func TestMemoryCheckpoint_GetReturnsCopy(t *testing.T) {
	assert := assert.New(t)

	store := New()

	err := store.Advance(&models.Checkpoint{PartitionID: "0", Offset: "100", SequenceNumber: 10})
	assert.Nil(err)

	cp, _ := store.Get("0")
	cp.SequenceNumber = 99

	cp2, _ := store.Get("0")
	assert.Equal(int64(10), cp2.SequenceNumber)
}
