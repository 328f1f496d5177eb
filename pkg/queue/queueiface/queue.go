// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package queueiface

import (
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// Queue describes the interface of the forwarding queue sitting between the
// poller and the transformer.
//
// Delivery is at-least-once: a received message stays invisible to other
// consumers for the visibility timeout and is redelivered if not acked in
// time.  After maxReceiveCount deliveries a message moves to the dead-letter
// path instead of being redelivered again.
type Queue interface {
	// Enqueue writes a batch of messages onto the queue, reporting
	// per-message results.  Messages exceeding the queue's byte limit are
	// returned as oversized rather than sent.
	Enqueue(messages []*models.Message) (*models.TargetWriteResult, error)

	// Receive pulls up to maxBatch visible messages, incrementing their
	// receive counts and starting their visibility timeout
	Receive(maxBatch int) ([]*Received, error)

	// Ack permanently removes a received message from the queue
	Ack(receiptHandle string) error

	// Release makes a received message immediately visible again
	Release(receiptHandle string) error

	Open()
	Close()

	// MaximumAllowedMessageSizeBytes returns the max number of bytes that can
	// be sent per message for this queue
	MaximumAllowedMessageSizeBytes() int

	// GetID returns an identifier for this queue
	GetID() string
}
