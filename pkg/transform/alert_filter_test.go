// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

// TestAlertFilterFunction_PassesAlerts tests that Defender alerts pass through
func TestAlertFilterFunction_PassesAlerts(t *testing.T) {
	assert := assert.New(t)

	msg := &models.Message{
		Data:         []byte(`{"id": "alert-1", "alertType": "VM_SuspiciousActivity"}`),
		PartitionKey: "some-key",
	}

	success, filtered, failure, _ := AlertFilterFunction(msg, nil)
	assert.Equal(msg, success)
	assert.Nil(filtered)
	assert.Nil(failure)
}

// TestAlertFilterFunction_FiltersOtherRecords tests that non-alert export records are filtered out
func TestAlertFilterFunction_FiltersOtherRecords(t *testing.T) {
	assert := assert.New(t)

	cases := []string{
		`{"id": "rec-1", "recommendationName": "Enable MFA"}`,
		`{"secureScore": 70}`,
		`not json at all`,
	}

	for _, data := range cases {
		msg := &models.Message{Data: []byte(data), PartitionKey: "some-key"}

		success, filtered, failure, _ := AlertFilterFunction(msg, nil)
		assert.Nil(success)
		assert.Equal(msg, filtered)
		assert.Nil(failure)
	}
}

// TestNewTransformation_WithAlertFilter tests the filter inside a transformation chain
func TestNewTransformation_WithAlertFilter(t *testing.T) {
	assert := assert.New(t)

	messages := []*models.Message{
		{Data: []byte(`{"id": "alert-1", "alertType": "VM_SuspiciousActivity"}`), PartitionKey: "1"},
		{Data: []byte(`{"id": "rec-1", "recommendationName": "Enable MFA"}`), PartitionKey: "2"},
	}

	transform := NewTransformation(AlertFilterFunction)
	result := transform(messages)

	assert.Equal(int64(1), result.ResultCount)
	assert.Equal(int64(1), result.FilteredCount)
	assert.Equal("1", result.Result[0].PartitionKey)
	assert.Equal("2", result.Filtered[0].PartitionKey)
}
