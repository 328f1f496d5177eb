// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package target

import (
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudtraildata"
	"github.com/aws/aws-sdk-go/service/cloudtraildata/cloudtraildataiface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/testutil"
)

const testChannelARN = "arn:aws:cloudtrail:us-east-1:123456789012:channel/11111111-2222-3333-4444-555555555555"

// --- Mock CloudTrail Data client

type mockCloudTrailDataClient struct {
	cloudtraildataiface.CloudTrailDataAPI

	// failEventData marks event payloads to report as per-entry failures
	failEventData map[string]string

	// err fails every request outright when set
	err error

	requests []*cloudtraildata.PutAuditEventsInput
}

func (m *mockCloudTrailDataClient) PutAuditEvents(input *cloudtraildata.PutAuditEventsInput) (*cloudtraildata.PutAuditEventsOutput, error) {
	m.requests = append(m.requests, input)

	if m.err != nil {
		return nil, m.err
	}

	out := &cloudtraildata.PutAuditEventsOutput{}
	for _, event := range input.AuditEvents {
		if code, ok := m.failEventData[*event.EventData]; ok {
			out.Failed = append(out.Failed, &cloudtraildata.ResultErrorEntry{
				Id:           event.Id,
				ErrorCode:    aws.String(code),
				ErrorMessage: aws.String("simulated rejection"),
			})
			continue
		}
		out.Successful = append(out.Successful, &cloudtraildata.AuditEventResultEntry{
			Id:      event.Id,
			EventID: aws.String("event-" + *event.Id),
		})
	}
	return out, nil
}

// --- Tests

// TestCloudTrailTarget_WriteSuccess tests that all messages are sent and acked
func TestCloudTrailTarget_WriteSuccess(t *testing.T) {
	assert := assert.New(t)

	client := &mockCloudTrailDataClient{}
	target, err := NewCloudTrailTargetWithInterfaces(client, "123456789012", "us-east-1", testChannelARN)
	assert.Nil(err)
	assert.Equal(testChannelARN, target.GetID())
	assert.Equal(204800, target.MaximumAllowedMessageSizeBytes())

	defer target.Close()
	target.Open()

	var ackOps int64
	ackFunc := func() {
		atomic.AddInt64(&ackOps, 1)
	}

	messages := testutil.GetTestMessages(250, `{"version": "1.0"}`, ackFunc)

	writeRes, err := target.Write(messages)
	assert.Nil(err)
	assert.NotNil(writeRes)

	assert.Equal(int64(250), writeRes.SentCount)
	assert.Equal(int64(0), writeRes.FailedCount)
	assert.Equal(int64(250), ackOps)

	// Requests are chunked to the PutAuditEvents limit of 100 entries
	assert.Equal(3, len(client.requests))
	assert.Equal(testChannelARN, *client.requests[0].ChannelArn)
}

// TestCloudTrailTarget_WriteFailure tests that a failed request leaves every message retryable
func TestCloudTrailTarget_WriteFailure(t *testing.T) {
	assert := assert.New(t)

	client := &mockCloudTrailDataClient{err: errors.New("ThrottlingException")}
	target, err := NewCloudTrailTargetWithInterfaces(client, "123456789012", "us-east-1", testChannelARN)
	assert.Nil(err)

	var ackOps int64
	ackFunc := func() {
		atomic.AddInt64(&ackOps, 1)
	}

	messages := testutil.GetTestMessages(10, `{"version": "1.0"}`, ackFunc)

	writeRes, err := target.Write(messages)
	assert.NotNil(writeRes)
	assert.NotNil(err)

	assert.Equal(int64(0), writeRes.SentCount)
	assert.Equal(int64(10), writeRes.FailedCount)
	assert.Equal(int64(0), ackOps)
	assert.True(len(err.Error()) > 0)
}

// TestCloudTrailTarget_PartialRejection tests that per-entry rejections stay failed for retrying
func TestCloudTrailTarget_PartialRejection(t *testing.T) {
	assert := assert.New(t)

	client := &mockCloudTrailDataClient{
		failEventData: map[string]string{
			`{"bad": true}`: "InvalidEventData",
		},
	}
	target, err := NewCloudTrailTargetWithInterfaces(client, "123456789012", "us-east-1", testChannelARN)
	assert.Nil(err)

	var ackOps int64
	ackFunc := func() {
		atomic.AddInt64(&ackOps, 1)
	}

	messages := testutil.GetTestMessages(4, `{"version": "1.0"}`, ackFunc)
	rejected := testutil.GetTestMessages(1, `{"bad": true}`, ackFunc)
	messages = append(messages, rejected...)

	writeRes, err := target.Write(messages)
	assert.NotNil(writeRes)
	assert.NotNil(err)

	assert.Equal(int64(4), writeRes.SentCount)
	assert.Equal(int64(1), writeRes.FailedCount)
	assert.Equal(int64(4), ackOps)

	// The rejection is decorated on the message for eventual dead-lettering
	var rejection *models.SinkRejectionError
	assert.True(stderrors.As(writeRes.Failed[0].GetError(), &rejection))
	assert.Equal("InvalidEventData", rejection.Code)
	assert.Equal("simulated rejection", rejection.Message)
}

// TestCloudTrailTarget_Oversized tests that messages over the event size limit never hit the API
func TestCloudTrailTarget_Oversized(t *testing.T) {
	assert := assert.New(t)

	client := &mockCloudTrailDataClient{}
	target, err := NewCloudTrailTargetWithInterfaces(client, "123456789012", "us-east-1", testChannelARN)
	assert.Nil(err)

	messages := testutil.GetTestMessages(1, `{"version": "1.0"}`, nil)
	messages = append(messages, testutil.GetTestMessages(1, testutil.GenRandomString(204801), nil)...)

	writeRes, err := target.Write(messages)
	assert.Nil(err)
	assert.Equal(int64(1), writeRes.SentCount)
	assert.Equal(1, len(writeRes.Oversized))
	assert.Equal(1, len(client.requests))
	assert.Equal(1, len(client.requests[0].AuditEvents))
}
