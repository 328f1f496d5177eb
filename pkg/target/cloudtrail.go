// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package target

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudtraildata"
	"github.com/aws/aws-sdk-go/service/cloudtraildata/cloudtraildataiface"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/pkg/common"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

const (
	// API limit of 100 audit events per PutAuditEvents request
	ctPutAuditEventsChunkSize = 100
	// Limit of 1 MB on the request payload
	ctPutAuditEventsRequestByteLimit = 1048576
	// Limit of 200 KB per audit event
	ctPutAuditEventsMessageByteLimit = 204800
)

// CloudTrailTargetConfig configures the destination for records consumed
type CloudTrailTargetConfig struct {
	ChannelARN string `hcl:"channel_arn" env:"TARGET_CLOUDTRAIL_CHANNEL_ARN"`
	Region     string `hcl:"region" env:"TARGET_CLOUDTRAIL_REGION"`
	RoleARN    string `hcl:"role_arn,optional" env:"TARGET_CLOUDTRAIL_ROLE_ARN"`
}

// CloudTrailTarget holds a new client for writing messages to a CloudTrail
// Lake channel
type CloudTrailTarget struct {
	client     cloudtraildataiface.CloudTrailDataAPI
	channelARN string
	region     string
	accountID  string

	log *log.Entry
}

// CloudTrailTargetConfigFunction creates a CloudTrailTarget from a config
func CloudTrailTargetConfigFunction(c *CloudTrailTargetConfig) (*CloudTrailTarget, error) {
	awsSession, awsConfig, awsAccountID, err := common.GetAWSSession(c.Region, c.RoleARN, "")
	if err != nil {
		return nil, err
	}
	client := cloudtraildata.New(awsSession, awsConfig)

	return NewCloudTrailTargetWithInterfaces(client, *awsAccountID, c.Region, c.ChannelARN)
}

// NewCloudTrailTargetWithInterfaces allows you to provide a CloudTrail Data
// client directly to allow for mocking
func NewCloudTrailTargetWithInterfaces(client cloudtraildataiface.CloudTrailDataAPI, awsAccountID string, region string, channelARN string) (*CloudTrailTarget, error) {
	return &CloudTrailTarget{
		client:     client,
		channelARN: channelARN,
		region:     region,
		accountID:  awsAccountID,
		log:        log.WithFields(log.Fields{"target": "cloudtrail", "cloud": "AWS", "region": region, "channel": channelARN}),
	}, nil
}

// The CloudTrailTargetAdapter type is an adapter for functions to be used as
// pluggable components for CloudTrail Target. It implements the Pluggable interface.
type CloudTrailTargetAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f CloudTrailTargetAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f CloudTrailTargetAdapter) ProvideDefault() (interface{}, error) {
	cfg := &CloudTrailTargetConfig{}

	return cfg, nil
}

// AdaptCloudTrailTargetFunc returns CloudTrailTargetAdapter.
func AdaptCloudTrailTargetFunc(f func(c *CloudTrailTargetConfig) (*CloudTrailTarget, error)) CloudTrailTargetAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*CloudTrailTargetConfig)
		if !ok {
			return nil, errors.New("invalid input, expected CloudTrailTargetConfig")
		}

		return f(cfg)
	}
}

// Write pushes all messages to the required target
func (ct *CloudTrailTarget) Write(messages []*models.Message) (*models.TargetWriteResult, error) {
	ct.log.Debugf("Writing %d messages to channel ...", len(messages))

	chunks, oversized := models.GetChunkedMessages(
		messages,
		ctPutAuditEventsChunkSize,
		ct.MaximumAllowedMessageSizeBytes(),
		ctPutAuditEventsRequestByteLimit,
	)

	writeResult := &models.TargetWriteResult{
		Oversized: oversized,
	}

	var errResult error

	for _, chunk := range chunks {
		res, err := ct.process(chunk)
		if err != nil {
			errResult = multierror.Append(errResult, err)
		}
		writeResult = writeResult.Append(res)
	}

	if errResult != nil {
		errResult = errors.Wrap(errResult, "Error writing messages to CloudTrail channel")
	}

	ct.log.Debugf("Successfully wrote %d/%d messages", writeResult.SentCount, writeResult.Total())
	return writeResult, errResult
}

func (ct *CloudTrailTarget) process(messages []*models.Message) (*models.TargetWriteResult, error) {
	ct.log.Debugf("Writing chunk of %d messages to channel ...", len(messages))

	lookup := make(map[string]*models.Message, len(messages))
	entries := make([]*cloudtraildata.AuditEvent, len(messages))
	for i, msg := range messages {
		id := uuid.New().String()
		lookup[id] = msg
		entries[i] = &cloudtraildata.AuditEvent{
			Id:        aws.String(id),
			EventData: aws.String(string(msg.Data)),
		}
	}

	res, err := ct.client.PutAuditEvents(&cloudtraildata.PutAuditEventsInput{
		ChannelArn:  aws.String(ct.channelARN),
		AuditEvents: entries,
	})
	if err != nil {
		failed := messages

		return models.NewTargetWriteResult(
			nil,
			failed,
			nil,
			nil,
		), errors.Wrap(err, "Failed to send message batch to CloudTrail channel")
	}

	var sent []*models.Message
	var failedMessages []*models.Message
	var errResult error

	for _, resultEntry := range res.Failed {
		msg, ok := lookup[*resultEntry.Id]
		if !ok {
			continue
		}
		delete(lookup, *resultEntry.Id)

		rejection := &models.SinkRejectionError{
			Code:    aws.StringValue(resultEntry.ErrorCode),
			Message: aws.StringValue(resultEntry.ErrorMessage),
		}
		msg.SetError(rejection)
		errResult = multierror.Append(errResult, rejection)
		failedMessages = append(failedMessages, msg)
	}

	for _, entry := range entries {
		msg, ok := lookup[*entry.Id]
		if !ok {
			continue
		}
		if msg.AckFunc != nil {
			msg.AckFunc()
		}
		sent = append(sent, msg)
	}

	return models.NewTargetWriteResult(
		sent,
		failedMessages,
		nil,
		nil,
	), errResult
}

// Open does not do anything for this target
func (ct *CloudTrailTarget) Open() {}

// Close does not do anything for this target
func (ct *CloudTrailTarget) Close() {}

// MaximumAllowedMessageSizeBytes returns the max number of bytes that can be sent
// per message for this target
func (ct *CloudTrailTarget) MaximumAllowedMessageSizeBytes() int {
	return ctPutAuditEventsMessageByteLimit
}

// GetID returns the identifier for this target
func (ct *CloudTrailTarget) GetID() string {
	return ct.channelARN
}
