// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package memoryqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/queue/queueiface"
)

const (
	// Mirrors the SQS per-message limit so behaviour matches between
	// implementations
	memoryMessageByteLimit = 262144
)

type entry struct {
	id           string
	data         []byte
	partitionKey string
	sequence     int64
	offset       string
	enqueuedAt   time.Time
	receiveCount int
	visibleAfter time.Time
}

// Queue implements the full forwarding queue contract in memory:
// visibility timeouts, redelivery and the dead-letter path after
// maxReceiveCount deliveries.  Entries keep their enqueue order so messages
// from one partition are never reordered while awaiting redelivery.
type Queue struct {
	mu                sync.Mutex
	entries           []*entry
	deadLettered      []*models.Message
	visibilityTimeout time.Duration
	maxReceiveCount   int
	now               func() time.Time
}

// New creates an in-memory queue with the given visibility timeout and
// maximum receive count
func New(visibilityTimeout time.Duration, maxReceiveCount int) *Queue {
	return &Queue{
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// NewWithClock allows tests to control time so visibility timeouts can be
// exercised without sleeping
func NewWithClock(visibilityTimeout time.Duration, maxReceiveCount int, now func() time.Time) *Queue {
	return &Queue{
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
		now:               now,
	}
}

// Enqueue appends messages to the queue in order
func (mq *Queue) Enqueue(messages []*models.Message) (*models.TargetWriteResult, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	safe, oversized := models.FilterOversizedMessages(messages, mq.MaximumAllowedMessageSizeBytes())

	var sent []*models.Message
	for _, msg := range safe {
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)

		mq.entries = append(mq.entries, &entry{
			id:           uuid.New().String(),
			data:         data,
			partitionKey: msg.PartitionKey,
			sequence:     msg.Sequence,
			offset:       msg.Offset,
			enqueuedAt:   mq.now(),
		})

		if msg.AckFunc != nil {
			msg.AckFunc()
		}
		sent = append(sent, msg)
	}

	return models.NewTargetWriteResult(sent, nil, oversized, nil), nil
}

// Receive returns up to maxBatch visible messages in enqueue order.  A
// message whose delivery would exceed maxReceiveCount is moved to the
// dead-letter store instead of being delivered.
func (mq *Queue) Receive(maxBatch int) ([]*queueiface.Received, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	now := mq.now()
	timePulled := now

	var received []*queueiface.Received
	var remaining []*entry

	for _, e := range mq.entries {
		if len(received) >= maxBatch || now.Before(e.visibleAfter) {
			remaining = append(remaining, e)
			continue
		}

		if e.receiveCount >= mq.maxReceiveCount {
			mq.deadLettered = append(mq.deadLettered, mq.toMessage(e, timePulled))
			continue
		}

		e.receiveCount++
		e.visibleAfter = now.Add(mq.visibilityTimeout)

		msg := mq.toMessage(e, timePulled)
		received = append(received, &queueiface.Received{
			ReceiptHandle: e.id,
			EnqueuedAt:    e.enqueuedAt,
			ReceiveCount:  e.receiveCount,
			Message:       msg,
		})
		remaining = append(remaining, e)
	}

	mq.entries = remaining
	return received, nil
}

func (mq *Queue) toMessage(e *entry, timePulled time.Time) *models.Message {
	data := make([]byte, len(e.data))
	copy(data, e.data)

	return &models.Message{
		Data:         data,
		PartitionKey: e.partitionKey,
		Sequence:     e.sequence,
		Offset:       e.offset,
		ReceiveCount: e.receiveCount,
		TimeCreated:  e.enqueuedAt,
		TimePulled:   timePulled,
	}
}

// Ack removes a message from the queue permanently
func (mq *Queue) Ack(receiptHandle string) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	for i, e := range mq.entries {
		if e.id == receiptHandle {
			mq.entries = append(mq.entries[:i], mq.entries[i+1:]...)
			return nil
		}
	}
	return errors.Errorf("no in-flight message found for receipt handle '%s'", receiptHandle)
}

// Release makes a message immediately visible again without resetting its
// receive count
func (mq *Queue) Release(receiptHandle string) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	for _, e := range mq.entries {
		if e.id == receiptHandle {
			e.visibleAfter = time.Time{}
			return nil
		}
	}
	return errors.Errorf("no in-flight message found for receipt handle '%s'", receiptHandle)
}

// DeadLettered returns the messages that exhausted their receive count
func (mq *Queue) DeadLettered() []*models.Message {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	dl := make([]*models.Message, len(mq.deadLettered))
	copy(dl, mq.deadLettered)
	return dl
}

// Count returns the number of messages currently on the queue, visible or not
func (mq *Queue) Count() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	return len(mq.entries)
}

func (mq *Queue) Open() {}

func (mq *Queue) Close() {}

// MaximumAllowedMessageSizeBytes returns the max number of bytes that can be
// sent per message for this queue
func (mq *Queue) MaximumAllowedMessageSizeBytes() int {
	return memoryMessageByteLimit
}

// GetID returns the identifier for this queue
func (mq *Queue) GetID() string {
	return fmt.Sprintf("memory:visibility:%s:maxreceive:%d", mq.visibilityTimeout, mq.maxReceiveCount)
}
