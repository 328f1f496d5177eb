// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// --- Test StatsReceiver

type TestStatsReceiver struct {
	onSend func(b *models.ObserverBuffer)
}

func (s *TestStatsReceiver) Send(b *models.ObserverBuffer) {
	s.onSend(b)
}

// --- Tests

// TestObserverTargetWrite tests that write results pushed onto the observer
// are aggregated and flushed on the report interval
func TestObserverTargetWrite(t *testing.T) {
	assert := assert.New(t)

	counter := 0
	onSend := func(b *models.ObserverBuffer) {
		assert.NotNil(b)
		if counter == 0 {
			assert.Equal(int64(5), b.TargetResults)
			assert.Equal(int64(5), b.OversizedTargetResults)
			assert.Equal(int64(5), b.InvalidTargetResults)
			counter++
		} else {
			assert.Equal(int64(1), b.TargetResults)
			assert.Equal(int64(1), b.OversizedTargetResults)
			assert.Equal(int64(1), b.InvalidTargetResults)
		}
	}

	sr := TestStatsReceiver{onSend: onSend}

	observer := New(&sr, 1*time.Second, 3*time.Second)
	assert.NotNil(observer)
	observer.Start()

	// This does nothing
	observer.Start()

	// Push some results
	timeNow := time.Now().UTC()
	sent := []*models.Message{
		{
			Data:         []byte("Baz"),
			PartitionKey: "partition1",
			TimeCreated:  timeNow.Add(time.Duration(-50) * time.Minute),
			TimePulled:   timeNow.Add(time.Duration(-4) * time.Minute),
		},
		{
			Data:         []byte("Bar"),
			PartitionKey: "partition2",
			TimeCreated:  timeNow.Add(time.Duration(-70) * time.Minute),
			TimePulled:   timeNow.Add(time.Duration(-7) * time.Minute),
		},
	}
	failed := []*models.Message{
		{
			Data:         []byte("Foo"),
			PartitionKey: "partition3",
			TimeCreated:  timeNow.Add(time.Duration(-30) * time.Minute),
			TimePulled:   timeNow.Add(time.Duration(-10) * time.Minute),
		},
	}
	r := models.NewTargetWriteResultWithTime(sent, failed, nil, nil, timeNow)
	for i := 0; i < 5; i++ {
		observer.TargetWrite(r)
		observer.TargetWriteOversized(r)
		observer.TargetWriteInvalid(r)
	}

	// Trigger timeout (1 second)
	time.Sleep(2 * time.Second)

	// Trigger flush (3 seconds) - first counter check
	time.Sleep(2 * time.Second)

	// Trigger emergency flush (4 seconds) - second counter check
	observer.TargetWrite(r)
	observer.TargetWriteOversized(r)
	observer.TargetWriteInvalid(r)

	time.Sleep(1 * time.Second)

	observer.Stop()
}

// TestObserverCheckpointsAndFilters tests that filtered results and checkpoint
// advancements are counted in the flushed buffer
func TestObserverCheckpointsAndFilters(t *testing.T) {
	assert := assert.New(t)

	flushed := make(chan *models.ObserverBuffer, 1)
	onSend := func(b *models.ObserverBuffer) {
		flushed <- b
	}

	sr := TestStatsReceiver{onSend: onSend}

	// A long report interval so the only flush is the final one on Stop()
	observer := New(&sr, 1*time.Second, 5*time.Minute)
	assert.NotNil(observer)
	observer.Start()

	timeNow := time.Now().UTC()
	filtered := []*models.Message{
		{
			Data:         []byte("Foo"),
			PartitionKey: "partition1",
			TimePulled:   timeNow.Add(time.Duration(-1) * time.Minute),
		},
	}
	observer.Filtered(models.NewFilterResultWithTime(filtered, timeNow))
	observer.Filtered(models.NewFilterResultWithTime(filtered, timeNow))

	observer.CheckpointAdvanced(&models.Checkpoint{PartitionID: "0", SequenceNumber: 10})
	observer.CheckpointAdvanced(&models.Checkpoint{PartitionID: "1", SequenceNumber: 20})
	observer.CheckpointAdvanced(&models.Checkpoint{PartitionID: "0", SequenceNumber: 15})

	// Allow the observer loop to drain the channels before stopping
	time.Sleep(500 * time.Millisecond)
	observer.Stop()

	select {
	case b := <-flushed:
		assert.Equal(int64(2), b.MsgFiltered)
		assert.Equal(int64(3), b.CheckpointsAdvanced)
		assert.Equal(int64(0), b.TargetResults)
	case <-time.After(5 * time.Second):
		assert.Fail("Observer did not flush on Stop()")
	}
}
