// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package statsreceiveriface

import (
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// StatsReceiver describes the interface for how to push metrics to a downstream
// stats server
type StatsReceiver interface {
	Send(b *models.ObserverBuffer)
}
