// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package eventhubsource

import (
	"sync"
	"time"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// ackTracker records which sequence numbers of a pulled batch have been
// acked, so the partition checkpoint only ever advances to the highest
// contiguously acked position. A gap means an unacked message will be
// re-fetched, and advancing past it would lose it.
type ackTracker struct {
	mu          sync.Mutex
	partitionID string
	sequences   []int64
	offsets     map[int64]string
	acked       map[int64]bool
}

func newAckTracker(partitionID string) *ackTracker {
	return &ackTracker{
		partitionID: partitionID,
		offsets:     make(map[int64]string),
		acked:       make(map[int64]bool),
	}
}

// track registers a sequence number in fetch order.
func (at *ackTracker) track(sequence int64, offset string) {
	at.mu.Lock()
	defer at.mu.Unlock()

	at.sequences = append(at.sequences, sequence)
	at.offsets[sequence] = offset
}

// ackFuncFor returns the ack function to attach to the message holding the
// given sequence number.
func (at *ackTracker) ackFuncFor(sequence int64) func() {
	return func() {
		at.mu.Lock()
		defer at.mu.Unlock()

		at.acked[sequence] = true
	}
}

// checkpoint returns the checkpoint at the highest contiguously acked
// sequence, or nil when the first message of the batch is still unacked.
func (at *ackTracker) checkpoint() *models.Checkpoint {
	at.mu.Lock()
	defer at.mu.Unlock()

	var last int64
	found := false
	for _, sequence := range at.sequences {
		if !at.acked[sequence] {
			break
		}
		last = sequence
		found = true
	}
	if !found {
		return nil
	}

	return &models.Checkpoint{
		PartitionID:    at.partitionID,
		Offset:         at.offsets[last],
		SequenceNumber: last,
		UpdatedAt:      time.Now().UTC(),
	}
}
