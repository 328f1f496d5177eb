// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package queueiface

import (
	"time"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// Received wraps a message delivered by a queue together with the handle
// needed to ack or release this particular delivery.
type Received struct {
	// ReceiptHandle identifies this delivery of the message; it is only
	// valid until the visibility timeout lapses
	ReceiptHandle string

	// EnqueuedAt is when the message was originally put onto the queue
	EnqueuedAt time.Time

	// ReceiveCount is the number of deliveries of this message so far,
	// including this one
	ReceiveCount int

	Message *models.Message
}
