// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package failureiface

import (
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// Failure describes the interface for where to push messages that
// could not be processed or delivered
type Failure interface {
	WriteInvalid(invalid []*models.Message) (*models.TargetWriteResult, error)
	WriteOversized(maximumAllowedSizeBytes int, oversized []*models.Message) (*models.TargetWriteResult, error)
	Open()
	Close()
	GetID() string
}
