// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package models

import "time"

// Checkpoint marks the last durably processed position within one partition
// of the source stream.  Offset is the opaque token handed back to the source
// to resume reading; SequenceNumber is the monotonic counter used to detect
// regressions on concurrent advancement.
type Checkpoint struct {
	PartitionID    string
	Offset         string
	SequenceNumber int64
	UpdatedAt      time.Time
}

// IsNewerThan reports whether the checkpoint would move the cursor forward
// relative to other.  A nil other means there is no stored cursor yet.
func (c *Checkpoint) IsNewerThan(other *Checkpoint) bool {
	if other == nil {
		return true
	}
	return c.SequenceNumber > other.SequenceNumber
}
