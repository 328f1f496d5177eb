// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package eventhubsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAckTracker_NoAcks tests that nothing is checkpointed before any ack
func TestAckTracker_NoAcks(t *testing.T) {
	assert := assert.New(t)

	tracker := newAckTracker("0")
	tracker.track(10, "100")
	tracker.track(11, "108")

	assert.Nil(tracker.checkpoint())
}

// TestAckTracker_AllAcked tests checkpointing at the end of a fully acked batch
func TestAckTracker_AllAcked(t *testing.T) {
	assert := assert.New(t)

	tracker := newAckTracker("0")
	tracker.track(10, "100")
	tracker.track(11, "108")
	tracker.track(12, "116")

	tracker.ackFuncFor(10)()
	tracker.ackFuncFor(11)()
	tracker.ackFuncFor(12)()

	cp := tracker.checkpoint()
	assert.NotNil(cp)
	assert.Equal("0", cp.PartitionID)
	assert.Equal(int64(12), cp.SequenceNumber)
	assert.Equal("116", cp.Offset)
}

// TestAckTracker_Gap tests that the checkpoint never passes an unacked message
func TestAckTracker_Gap(t *testing.T) {
	assert := assert.New(t)

	tracker := newAckTracker("0")
	tracker.track(10, "100")
	tracker.track(11, "108")
	tracker.track(12, "116")

	// 11 is never acked: 12's ack must not move the cursor past it
	tracker.ackFuncFor(10)()
	tracker.ackFuncFor(12)()

	cp := tracker.checkpoint()
	assert.NotNil(cp)
	assert.Equal(int64(10), cp.SequenceNumber)
	assert.Equal("100", cp.Offset)
}

// TestAckTracker_FirstUnacked tests that an unacked head blocks any checkpoint
func TestAckTracker_FirstUnacked(t *testing.T) {
	assert := assert.New(t)

	tracker := newAckTracker("0")
	tracker.track(10, "100")
	tracker.track(11, "108")

	tracker.ackFuncFor(11)()

	assert.Nil(tracker.checkpoint())
}
