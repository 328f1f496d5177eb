// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package failure

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// --- Capturing target

type captureTarget struct {
	written []*models.Message
}

func (ct *captureTarget) Write(messages []*models.Message) (*models.TargetWriteResult, error) {
	ct.written = append(ct.written, messages...)
	return models.NewTargetWriteResult(messages, nil, nil, nil), nil
}

func (ct *captureTarget) Open()  {}
func (ct *captureTarget) Close() {}

func (ct *captureTarget) MaximumAllowedMessageSizeBytes() int {
	return 1048576
}

func (ct *captureTarget) GetID() string {
	return "capture"
}

// --- Tests

// TestForwardingFailure_WriteInvalid tests the dead-letter envelope for an unprocessable message
func TestForwardingFailure_WriteInvalid(t *testing.T) {
	assert := assert.New(t)

	target := &captureTarget{}
	ft, err := NewForwardingFailure(target, "defender-bridge", "0.3.0")
	assert.Nil(err)
	assert.Equal("capture", ft.GetID())

	defer ft.Close()
	ft.Open()

	msg := &models.Message{
		Data:         []byte(`{"transformed": true}`),
		OriginalData: []byte(`{"id": "alert-1"}`),
		PartitionKey: "0",
		Schema:       "ocsf",
		Sequence:     42,
		Offset:       "1024",
		ReceiveCount: 3,
	}
	msg.SetError(&models.TransformationError{
		Schema:      "ocsf",
		SafeMessage: "missing required field",
		Err:         errors.New("internal detail"),
	})

	res, err := ft.WriteInvalid([]*models.Message{msg})
	assert.Nil(err)
	assert.Equal(int64(1), res.SentCount)
	assert.Equal(1, len(target.written))

	var envelope map[string]interface{}
	err = json.Unmarshal(target.written[0].Data, &envelope)
	assert.Nil(err)

	assert.Equal("defender-bridge", envelope["application"])
	assert.Equal("0.3.0", envelope["version"])
	assert.Equal("transformation", envelope["failureType"])
	assert.Equal("ocsf", envelope["errorCode"])
	assert.Equal("missing required field", envelope["errorDescription"])
	assert.Equal("ocsf", envelope["schema"])
	assert.Equal("0", envelope["partitionKey"])
	assert.Equal(float64(42), envelope["sequence"])
	assert.Equal("1024", envelope["offset"])
	assert.Equal(float64(3), envelope["receiveCount"])

	// The payload is the base64 of the original data, not the transformed data
	payload, err := base64.StdEncoding.DecodeString(envelope["payload"].(string))
	assert.Nil(err)
	assert.Equal(`{"id": "alert-1"}`, string(payload))

	failedAt, err := time.Parse(time.RFC3339Nano, envelope["failedAt"].(string))
	assert.Nil(err)
	assert.WithinDuration(time.Now().UTC(), failedAt, 5*time.Second)
}

// TestForwardingFailure_WriteInvalid_PlainError tests the fallback for errors without metadata
func TestForwardingFailure_WriteInvalid_PlainError(t *testing.T) {
	assert := assert.New(t)

	target := &captureTarget{}
	ft, err := NewForwardingFailure(target, "defender-bridge", "0.3.0")
	assert.Nil(err)

	msg := &models.Message{
		Data:         []byte(`{"id": "alert-1"}`),
		PartitionKey: "0",
	}
	msg.SetError(errors.New("something unexpected"))

	_, err = ft.WriteInvalid([]*models.Message{msg})
	assert.Nil(err)

	var envelope map[string]interface{}
	err = json.Unmarshal(target.written[0].Data, &envelope)
	assert.Nil(err)

	assert.Equal("something unexpected", envelope["errorDescription"])

	// Without original data the current data rides in the payload
	payload, err := base64.StdEncoding.DecodeString(envelope["payload"].(string))
	assert.Nil(err)
	assert.Equal(`{"id": "alert-1"}`, string(payload))
}

// TestForwardingFailure_WriteOversized tests the dead-letter envelope for an oversized message
func TestForwardingFailure_WriteOversized(t *testing.T) {
	assert := assert.New(t)

	target := &captureTarget{}
	ft, err := NewForwardingFailure(target, "defender-bridge", "0.3.0")
	assert.Nil(err)

	msg := &models.Message{
		Data:         []byte(`{"id": "alert-1"}`),
		PartitionKey: "0",
	}

	_, err = ft.WriteOversized(204800, []*models.Message{msg})
	assert.Nil(err)
	assert.Equal(1, len(target.written))

	var envelope map[string]interface{}
	err = json.Unmarshal(target.written[0].Data, &envelope)
	assert.Nil(err)

	assert.Equal("oversized", envelope["failureType"])
	assert.Equal("message exceeds maximum allowed size of 204800 bytes", envelope["errorDescription"])
}
