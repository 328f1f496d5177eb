// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package transform

import (
	"sync/atomic"
	"time"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/transform/defender"
)

// SchemaMapping binds a schema name to the function which renders a Defender
// alert in that schema.
type SchemaMapping struct {
	Name string
	Map  func(alert *defender.Alert) ([]byte, error)
}

// NewSchemaFanout constructs a function which parses each message once as a
// Defender alert and emits one message per schema mapping. The copies share
// the source message's ack: it fires only after every copy has been durably
// handled, so checkpoint progress never outruns a partially delivered alert.
//
// A copy whose mapping fails is returned as invalid; dead-lettering it counts
// as durable handling, so a single bad mapping cannot wedge the shared ack.
func NewSchemaFanout(mappings ...SchemaMapping) TransformationApplyFunction {
	return func(messages []*models.Message) *models.TransformationResult {
		successList := make([]*models.Message, 0, len(messages)*len(mappings))
		failureList := make([]*models.Message, 0)
		if len(mappings) == 0 {
			return models.NewTransformationResult(messages, nil, failureList)
		}

		for _, message := range messages {
			alert, err := defender.ParseAlert(message.Data)
			if err != nil {
				msg := *message
				msg.SetError(&models.TransformationError{
					SafeMessage: "could not parse payload as a Defender alert",
					Err:         err,
				})
				failureList = append(failureList, &msg)
				continue
			}

			ack := shareAck(message.AckFunc, len(mappings))
			for _, mapping := range mappings {
				msg := *message
				msg.Schema = mapping.Name
				msg.AckFunc = ack

				data, err := mapping.Map(alert)
				if err != nil {
					msg.SetError(&models.TransformationError{
						Schema:      mapping.Name,
						SafeMessage: err.Error(),
						Err:         err,
					})
					failureList = append(failureList, &msg)
					continue
				}

				msg.Data = data
				msg.TimeTransformed = time.Now().UTC()
				successList = append(successList, &msg)
			}
		}
		return models.NewTransformationResult(successList, nil, failureList)
	}
}

// shareAck splits one ack across n copies, firing the underlying ack once the
// last copy reports in.
func shareAck(ackFunc func(), n int) func() {
	if ackFunc == nil {
		return nil
	}
	remaining := int64(n)
	return func() {
		if atomic.AddInt64(&remaining, -1) == 0 {
			ackFunc()
		}
	}
}
