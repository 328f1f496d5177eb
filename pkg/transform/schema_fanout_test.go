// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package transform

import (
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/testutil"
	"github.com/snowplow-devops/defender-bridge/pkg/transform/defender"
)

func upperMapping(name string) SchemaMapping {
	return SchemaMapping{
		Name: name,
		Map: func(alert *defender.Alert) ([]byte, error) {
			return []byte(name + ":" + alert.ID), nil
		},
	}
}

var failingMapping = SchemaMapping{
	Name: "failing",
	Map: func(alert *defender.Alert) ([]byte, error) {
		return nil, errors.New("cannot map this alert")
	},
}

// TestNewSchemaFanout_OneMessagePerSchema tests that each alert yields a copy per schema
func TestNewSchemaFanout_OneMessagePerSchema(t *testing.T) {
	assert := assert.New(t)

	fanout := NewSchemaFanout(upperMapping("cloudtrail"), upperMapping("ocsf"), upperMapping("asff"))

	messages := []*models.Message{
		{Data: []byte(testutil.GetTestAlertJSON("alert-1")), PartitionKey: "0"},
		{Data: []byte(testutil.GetTestAlertJSON("alert-2")), PartitionKey: "0"},
	}

	result := fanout(messages)
	assert.Equal(int64(6), result.ResultCount)
	assert.Equal(int64(0), result.InvalidCount)

	schemas := map[string]int{}
	for _, msg := range result.Result {
		schemas[msg.Schema]++
		assert.False(msg.TimeTransformed.IsZero())
	}
	assert.Equal(map[string]int{"cloudtrail": 2, "ocsf": 2, "asff": 2}, schemas)

	assert.Equal("cloudtrail:alert-1", string(result.Result[0].Data))
}

// TestNewSchemaFanout_SharedAck tests that the source ack fires once all copies are handled
func TestNewSchemaFanout_SharedAck(t *testing.T) {
	assert := assert.New(t)

	fanout := NewSchemaFanout(upperMapping("cloudtrail"), upperMapping("ocsf"), upperMapping("asff"))

	var ackOps int64
	messages := []*models.Message{
		{
			Data:         []byte(testutil.GetTestAlertJSON("alert-1")),
			PartitionKey: "0",
			AckFunc: func() {
				atomic.AddInt64(&ackOps, 1)
			},
		},
	}

	result := fanout(messages)
	assert.Equal(3, len(result.Result))

	// The source ack must only fire once the last copy reports in
	result.Result[0].AckFunc()
	assert.Equal(int64(0), atomic.LoadInt64(&ackOps))
	result.Result[1].AckFunc()
	assert.Equal(int64(0), atomic.LoadInt64(&ackOps))
	result.Result[2].AckFunc()
	assert.Equal(int64(1), atomic.LoadInt64(&ackOps))
}

// TestNewSchemaFanout_UnparseablePayload tests that a bad payload is returned invalid with its original ack
func TestNewSchemaFanout_UnparseablePayload(t *testing.T) {
	assert := assert.New(t)

	fanout := NewSchemaFanout(upperMapping("cloudtrail"))

	var ackOps int64
	messages := []*models.Message{
		{
			Data:         []byte(`{"recommendationName": "Enable MFA"}`),
			PartitionKey: "0",
			AckFunc: func() {
				atomic.AddInt64(&ackOps, 1)
			},
		},
	}

	result := fanout(messages)
	assert.Equal(int64(0), result.ResultCount)
	assert.Equal(int64(1), result.InvalidCount)

	invalid := result.Invalid[0]
	var tErr *models.TransformationError
	assert.True(stderrors.As(invalid.GetError(), &tErr))
	assert.Equal("could not parse payload as a Defender alert", tErr.SafeMessage)

	// Dead-lettering the invalid copy acks the source message directly
	invalid.AckFunc()
	assert.Equal(int64(1), atomic.LoadInt64(&ackOps))
}

// TestNewSchemaFanout_MappingFailure tests that one failing schema cannot wedge the shared ack
func TestNewSchemaFanout_MappingFailure(t *testing.T) {
	assert := assert.New(t)

	fanout := NewSchemaFanout(upperMapping("cloudtrail"), failingMapping)

	var ackOps int64
	messages := []*models.Message{
		{
			Data:         []byte(testutil.GetTestAlertJSON("alert-1")),
			PartitionKey: "0",
			AckFunc: func() {
				atomic.AddInt64(&ackOps, 1)
			},
		},
	}

	result := fanout(messages)
	assert.Equal(int64(1), result.ResultCount)
	assert.Equal(int64(1), result.InvalidCount)

	invalid := result.Invalid[0]
	var tErr *models.TransformationError
	assert.True(stderrors.As(invalid.GetError(), &tErr))
	assert.Equal("failing", tErr.Schema)

	// Sending the good copy and dead-lettering the bad one completes the ack
	result.Result[0].AckFunc()
	assert.Equal(int64(0), atomic.LoadInt64(&ackOps))
	invalid.AckFunc()
	assert.Equal(int64(1), atomic.LoadInt64(&ackOps))
}

// TestNewSchemaFanout_NoMappings tests that without mappings messages pass straight through
func TestNewSchemaFanout_NoMappings(t *testing.T) {
	assert := assert.New(t)

	fanout := NewSchemaFanout()

	messages := []*models.Message{
		{Data: []byte(testutil.GetTestAlertJSON("alert-1")), PartitionKey: "0"},
	}

	result := fanout(messages)
	assert.Equal(int64(1), result.ResultCount)
	assert.Equal(messages[0], result.Result[0])
}
