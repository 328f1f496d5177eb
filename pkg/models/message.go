// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"fmt"
	"time"
)

// Message holds the structure of a generic message flowing through the
// pipeline, from a source to a target
type Message struct {
	PartitionKey string
	Data         []byte

	// OriginalData holds a copy of the data as it arrived from the source,
	// before any transformation was applied
	OriginalData []byte

	// Schema is the name of the destination schema this message was mapped
	// to ("cloudtrail", "ocsf", "asff"); empty for untransformed messages
	Schema string

	// Sequence is the monotonic position of the message within its source
	// partition, where the source provides one
	Sequence int64

	// Offset is the opaque resume token associated with Sequence
	Offset string

	// ReceiveCount is the number of times the message has been delivered
	// by the forwarding queue, including this delivery
	ReceiveCount int

	// TimeCreated is when the message was created originally
	TimeCreated time.Time

	// TimePulled is when the message was pulled from the source
	TimePulled time.Time

	// TimeTransformed is when the message completed its last successful
	// transformation
	TimeTransformed time.Time

	// AckFunc must be called on a successful message emission to ensure
	// any cleanup process for the source is actioned
	AckFunc func()

	// If the message is invalid it can be decorated with an error
	// message for logging and reporting
	err error
}

// SetError sets the value of the message error in case of invalidation
func (m *Message) SetError(err error) {
	m.err = err
}

// GetError returns the error that has been set
func (m *Message) GetError() error {
	return m.err
}

func (m *Message) String() string {
	return fmt.Sprintf(
		"PartitionKey:%s,Schema:%s,Sequence:%d,TimeCreated:%v,TimePulled:%v,TimeTransformed:%v,Data:%s",
		m.PartitionKey,
		m.Schema,
		m.Sequence,
		m.TimeCreated,
		m.TimePulled,
		m.TimeTransformed,
		string(m.Data),
	)
}

// GetChunkedMessages returns an array of chunked message arrays from the original slice
// by taking into account three variables:
//
// 1. How many messages can be in a chunk
// 2. How big any individual message can be (in bytes)
// 3. How many bytes can be in a chunk
func GetChunkedMessages(messages []*Message, chunkSize int, maxMessageByteSize int, maxChunkByteSize int) (divided [][]*Message, oversized []*Message) {
	var chunkBuffer []*Message
	var chunkBufferByteLen int

	for _, msg := range messages {
		msgByteLen := len(msg.Data)

		if msgByteLen > maxMessageByteSize {
			oversized = append(oversized, msg)
		} else if len(chunkBuffer) == chunkSize || (chunkBufferByteLen > 0 && chunkBufferByteLen+msgByteLen > maxChunkByteSize) {
			divided = append(divided, chunkBuffer)

			chunkBuffer = []*Message{msg}
			chunkBufferByteLen = msgByteLen
		} else {
			chunkBuffer = append(chunkBuffer, msg)
			chunkBufferByteLen += msgByteLen
		}
	}

	if len(chunkBuffer) > 0 {
		divided = append(divided, chunkBuffer)
	}
	return divided, oversized
}

// FilterOversizedMessages will filter out all messages that exceed the byte size limit
func FilterOversizedMessages(messages []*Message, maxMessageByteSize int) (safe []*Message, oversized []*Message) {
	for _, msg := range messages {
		msgByteLen := len(msg.Data)

		if msgByteLen > maxMessageByteSize {
			oversized = append(oversized, msg)
		} else {
			safe = append(safe, msg)
		}
	}
	return safe, oversized
}
