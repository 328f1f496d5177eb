// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package checkpointiface

import (
	"fmt"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// Store describes the interface for durably tracking the last processed
// position of each partition of the source stream.
//
// Pollers may run as concurrent, stateless invocations so Advance must be
// conditional: an attempt to move a cursor backwards (or sideways) fails with
// StaleCheckpointError and leaves the stored value untouched.
type Store interface {
	Get(partitionID string) (*models.Checkpoint, error)
	Advance(checkpoint *models.Checkpoint) error
	GetID() string
}

// StaleCheckpointError is returned by Advance when the proposed checkpoint
// would not move the stored cursor forward.  The caller should abort its
// cycle and re-read the checkpoint on the next tick.
type StaleCheckpointError struct {
	PartitionID      string
	StoredSequence   int64
	ProposedSequence int64
}

func (e *StaleCheckpointError) Error() string {
	return fmt.Sprintf(
		"stale checkpoint for partition '%s': stored sequence %d >= proposed sequence %d",
		e.PartitionID,
		e.StoredSequence,
		e.ProposedSequence,
	)
}
