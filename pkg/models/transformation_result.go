// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package models

// TransformationResult holds the results of a transformation applied to a
// batch of messages
type TransformationResult struct {
	ResultCount   int64
	FilteredCount int64
	InvalidCount  int64

	// Result holds all the messages that were successfully transformed and
	// are ready for attempts to send to the target
	Result []*Message

	// Filtered holds all the messages that were designated to be filtered out;
	// they will all be acked without passing through to any target
	Filtered []*Message

	// Invalid contains all the messages that cannot be transformed
	// due to various parseability reasons.  These messages cannot be retried
	// and need to be specially handled.
	Invalid []*Message
}

// NewTransformationResult returns the result of a transformation on a batch
// of messages
func NewTransformationResult(result []*Message, filtered []*Message, invalid []*Message) *TransformationResult {
	return &TransformationResult{
		ResultCount:   int64(len(result)),
		FilteredCount: int64(len(filtered)),
		InvalidCount:  int64(len(invalid)),
		Result:        result,
		Filtered:      filtered,
		Invalid:       invalid,
	}
}
