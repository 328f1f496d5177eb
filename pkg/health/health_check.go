// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package health

import (
	"sync/atomic"
)

var isHealthy atomic.Bool

func SetHealthy() {
	isHealthy.Store(true)
}

func SetUnhealthy() {
	isHealthy.Store(false)
}

func IsHealthy() bool {
	return isHealthy.Load()
}
