// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package transform

import (
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/transform/defender"
)

// AlertFilterFunction filters out messages which are not Defender security
// alerts. Continuous export streams can carry recommendations and secure
// score records on the same hub; those are dropped, not errored. Acking the
// filtered messages is the caller's job.
func AlertFilterFunction(message *models.Message, intermediateState interface{}) (*models.Message, *models.Message, *models.Message, interface{}) {
	if !defender.IsAlert(message.Data) {
		return nil, message, nil, intermediateState
	}
	return message, nil, nil, intermediateState
}
