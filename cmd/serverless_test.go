// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package cmd

import (
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/testutil"
)

// --- Mocks

type mockServerlessTarget struct {
	writeResult *models.TargetWriteResult
	writeErr    error
	written     []*models.Message
}

func (m *mockServerlessTarget) Write(messages []*models.Message) (*models.TargetWriteResult, error) {
	m.written = append(m.written, messages...)
	if m.writeResult != nil || m.writeErr != nil {
		return m.writeResult, m.writeErr
	}
	return models.NewTargetWriteResult(messages, nil, nil, nil), nil
}

func (m *mockServerlessTarget) Open()  {}
func (m *mockServerlessTarget) Close() {}

func (m *mockServerlessTarget) MaximumAllowedMessageSizeBytes() int {
	return 1048576
}

func (m *mockServerlessTarget) GetID() string {
	return "mock-target"
}

type mockServerlessFailure struct {
	invalidErr   error
	oversizedErr error

	invalid   []*models.Message
	oversized []*models.Message
}

func (m *mockServerlessFailure) WriteInvalid(invalid []*models.Message) (*models.TargetWriteResult, error) {
	m.invalid = append(m.invalid, invalid...)
	if m.invalidErr != nil {
		return nil, m.invalidErr
	}
	return models.NewTargetWriteResult(invalid, nil, nil, nil), nil
}

func (m *mockServerlessFailure) WriteOversized(maximumAllowedSizeBytes int, oversized []*models.Message) (*models.TargetWriteResult, error) {
	m.oversized = append(m.oversized, oversized...)
	if m.oversizedErr != nil {
		return nil, m.oversizedErr
	}
	return models.NewTargetWriteResult(oversized, nil, nil, nil), nil
}

func (m *mockServerlessFailure) Open()  {}
func (m *mockServerlessFailure) Close() {}

func (m *mockServerlessFailure) GetID() string {
	return "mock-failure"
}

func passthroughTransform(messages []*models.Message) *models.TransformationResult {
	return models.NewTransformationResult(messages, nil, nil)
}

func testServerlessMessages(count int) []*models.Message {
	var messages []*models.Message
	for i := 0; i < count; i++ {
		messages = append(messages, &models.Message{
			Data:         []byte(testutil.GetTestAlertJSON("alert-1")),
			PartitionKey: "0",
			TimeCreated:  time.Now().Add(time.Duration(-30) * time.Minute),
			TimePulled:   time.Now().Add(time.Duration(-10) * time.Minute),
		})
	}
	return messages
}

// --- Tests

// TestServerlessRequestHandler tests the handler end to end against the
// default stdout target
func TestServerlessRequestHandler(t *testing.T) {
	os.Clearenv()
	t.Setenv("SCHEMAS_CLOUDTRAIL_ACCOUNT_ID", "123456789012")

	err := ServerlessRequestHandler(testServerlessMessages(1))
	assert.Nil(t, err)
}

// TestProcessServerlessRequest_Success tests that a clean batch produces no error
func TestProcessServerlessRequest_Success(t *testing.T) {
	assert := assert.New(t)

	target := &mockServerlessTarget{}
	ft := &mockServerlessFailure{}

	err := processServerlessRequest(target, ft, passthroughTransform, testServerlessMessages(3))
	assert.Nil(err)
	assert.Equal(3, len(target.written))
	assert.Equal(0, len(ft.invalid))
}

// TestProcessServerlessRequest_TargetError tests that a target write error
// fails the invocation so the batch is redelivered
func TestProcessServerlessRequest_TargetError(t *testing.T) {
	assert := assert.New(t)

	target := &mockServerlessTarget{
		writeErr: errors.New("connection reset by peer"),
	}
	ft := &mockServerlessFailure{}

	err := processServerlessRequest(target, ft, passthroughTransform, testServerlessMessages(2))
	assert.NotNil(err)
	if err != nil {
		assert.Contains(err.Error(), "connection reset by peer")
	}
}

// TestProcessServerlessRequest_FailureTargetError tests that a dead-letter
// write error fails the invocation rather than silently dropping the batch
func TestProcessServerlessRequest_FailureTargetError(t *testing.T) {
	assert := assert.New(t)

	messages := testServerlessMessages(2)
	target := &mockServerlessTarget{
		writeResult: models.NewTargetWriteResult(nil, nil, nil, messages),
	}
	ft := &mockServerlessFailure{
		invalidErr: errors.New("AccessDeniedException: not authorized"),
	}

	err := processServerlessRequest(target, ft, passthroughTransform, messages)
	assert.NotNil(err)
	if err != nil {
		assert.Contains(err.Error(), "AccessDeniedException: not authorized")
	}
	assert.Equal(2, len(ft.invalid))
}

// TestProcessServerlessRequest_OversizedError tests that an oversized
// dead-letter write error also fails the invocation
func TestProcessServerlessRequest_OversizedError(t *testing.T) {
	assert := assert.New(t)

	messages := testServerlessMessages(1)
	target := &mockServerlessTarget{
		writeResult: models.NewTargetWriteResult(nil, nil, messages, nil),
	}
	ft := &mockServerlessFailure{
		oversizedErr: errors.New("RequestEntityTooLarge"),
	}

	err := processServerlessRequest(target, ft, passthroughTransform, messages)
	assert.NotNil(err)
	if err != nil {
		assert.Contains(err.Error(), "RequestEntityTooLarge")
	}
	assert.Equal(1, len(ft.oversized))
}
