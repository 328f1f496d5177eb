// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package sqsqueue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/pkg/common"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/queue/queueiface"
)

const (
	// API Documentation: https://docs.aws.amazon.com/AWSSimpleQueueService/latest/SQSDeveloperGuide/quotas-messages.html

	// Limited to 10 messages in a single request
	sqsSendMessageBatchChunkSize = 10
	// Each message can only be up to 256 KB in size
	sqsSendMessageByteLimit = 262144
	// Each request can be a maximum of 256 KB in size total
	sqsSendMessageBatchByteLimit = 262144

	attrPartitionKey = "PartitionKey"
	attrSequence     = "Sequence"
	attrOffset       = "Offset"
)

// sqsQueue maps the forwarding queue contract onto an SQS queue.  Redelivery
// after the visibility timeout and the move to the dead-letter queue after
// maxReceiveCount deliveries are both handled by the queue's redrive policy.
type sqsQueue struct {
	client                sqsiface.SQSAPI
	queueURL              string
	queueName             string
	region                string
	accountID             string
	visibilityTimeoutSecs int64

	log *log.Entry
}

// New creates a client wrapping an existing SQS queue
func New(region string, queueName string, roleARN string, visibilityTimeoutSecs int64) (queueiface.Queue, error) {
	awsSession, awsConfig, awsAccountID, err := common.GetAWSSession(region, roleARN, "")
	if err != nil {
		return nil, err
	}
	sqsClient := sqs.New(awsSession, awsConfig)

	return NewWithInterfaces(sqsClient, *awsAccountID, region, queueName, visibilityTimeoutSecs)
}

// NewWithInterfaces allows you to provide an SQS client directly to allow
// for mocking and localstack usage
func NewWithInterfaces(client sqsiface.SQSAPI, awsAccountID string, region string, queueName string, visibilityTimeoutSecs int64) (queueiface.Queue, error) {
	// Ensures as even as possible distribution of UUIDs
	uuid.EnableRandPool()
	return &sqsQueue{
		client:                client,
		queueName:             queueName,
		region:                region,
		accountID:             awsAccountID,
		visibilityTimeoutSecs: visibilityTimeoutSecs,
		log:                   log.WithFields(log.Fields{"queue": "sqs", "cloud": "AWS", "region": region, "name": queueName}),
	}, nil
}

// Enqueue pushes all messages onto the queue in chunked batch requests
func (sq *sqsQueue) Enqueue(messages []*models.Message) (*models.TargetWriteResult, error) {
	sq.log.Debugf("Enqueueing %d messages ...", len(messages))

	chunks, oversized := models.GetChunkedMessages(
		messages,
		sqsSendMessageBatchChunkSize,
		sq.MaximumAllowedMessageSizeBytes(),
		sqsSendMessageBatchByteLimit,
	)

	writeResult := &models.TargetWriteResult{
		Oversized: oversized,
	}

	var errResult error

	for _, chunk := range chunks {
		res, err := sq.process(chunk)
		writeResult = writeResult.Append(res)

		if err != nil {
			errResult = multierror.Append(errResult, err)
		}
	}

	if errResult != nil {
		errResult = errors.Wrap(errResult, "Error writing messages to SQS queue")
	}

	sq.log.Debugf("Successfully enqueued %d/%d messages", writeResult.SentCount, writeResult.Total())
	return writeResult, errResult
}

func (sq *sqsQueue) process(messages []*models.Message) (*models.TargetWriteResult, error) {
	messageCount := int64(len(messages))
	sq.log.Debugf("Writing chunk of %d messages to queue ...", messageCount)

	lookup := make(map[string]*models.Message)

	entries := make([]*sqs.SendMessageBatchRequestEntry, messageCount)
	for i := 0; i < len(entries); i++ {
		msg := messages[i]
		msgID := strconv.Itoa(i)

		entries[i] = &sqs.SendMessageBatchRequestEntry{
			DelaySeconds: aws.Int64(0),
			MessageBody:  aws.String(string(msg.Data)),
			Id:           aws.String(msgID),
			MessageAttributes: map[string]*sqs.MessageAttributeValue{
				attrPartitionKey: {
					DataType:    aws.String("String"),
					StringValue: aws.String(msg.PartitionKey),
				},
				attrSequence: {
					DataType:    aws.String("Number"),
					StringValue: aws.String(strconv.FormatInt(msg.Sequence, 10)),
				},
				attrOffset: {
					DataType:    aws.String("String"),
					StringValue: aws.String(msg.Offset),
				},
			},
		}
		lookup[msgID] = msg
	}

	res, err := sq.client.SendMessageBatch(&sqs.SendMessageBatchInput{
		Entries:  entries,
		QueueUrl: aws.String(sq.queueURL),
	})
	if err != nil {
		failed := messages

		return models.NewTargetWriteResult(
			nil,
			failed,
			nil,
			nil,
		), errors.Wrap(err, "Failed to send message batch to SQS queue")
	}

	var sent []*models.Message
	var failed []*models.Message
	var invalid []*models.Message
	var errResult error

	for _, f := range res.Failed {
		msg := lookup[*f.Id]
		fErr := &models.SinkRejectionError{Code: *f.Code, Message: *f.Message}

		if *f.Code == sqs.ErrCodeInvalidMessageContents {
			sq.log.Warnf(fErr.Error())

			// Append error to message
			msg.SetError(fErr)
			invalid = append(invalid, msg)
		} else {
			errResult = multierror.Append(errResult, fErr)
			failed = append(failed, msg)
		}

		delete(lookup, *f.Id)
	}

	for _, s := range res.Successful {
		msg := lookup[*s.Id]
		if msg.AckFunc != nil {
			msg.AckFunc()
		}
		sent = append(sent, msg)

		delete(lookup, *s.Id)
	}

	if len(lookup) != 0 {
		sq.log.Warnf("Not all messages found in sent batch results; will re-send...")
		for _, msg := range lookup {
			failed = append(failed, msg)
		}
	}

	sq.log.Debugf("Successfully wrote %d/%d messages", len(sent), messageCount)
	return models.NewTargetWriteResult(
		sent,
		failed,
		nil,
		invalid,
	), errResult
}

// Receive pulls up to maxBatch messages from the queue, starting their
// visibility timeout
func (sq *sqsQueue) Receive(maxBatch int) ([]*queueiface.Received, error) {
	numMessages := int64(maxBatch)
	if numMessages > 10 {
		numMessages = 10
	}

	msgRes, err := sq.client.ReceiveMessage(&sqs.ReceiveMessageInput{
		AttributeNames: []*string{
			aws.String(sqs.MessageSystemAttributeNameSentTimestamp),
			aws.String(sqs.MessageSystemAttributeNameApproximateReceiveCount),
		},
		MessageAttributeNames: []*string{
			aws.String(sqs.QueueAttributeNameAll),
		},
		QueueUrl:            aws.String(sq.queueURL),
		MaxNumberOfMessages: aws.Int64(numMessages),
		VisibilityTimeout:   aws.Int64(sq.visibilityTimeoutSecs),
		WaitTimeSeconds:     aws.Int64(1),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to receive messages from SQS queue")
	}
	timePulled := time.Now().UTC()

	var received []*queueiface.Received
	for _, msg := range msgRes.Messages {
		newMessage := &models.Message{
			Data:         []byte(*msg.Body),
			PartitionKey: uuid.New().String(),
			TimePulled:   timePulled,
		}

		timeCreated := timePulled
		if timeCreatedStr, ok := msg.Attributes[sqs.MessageSystemAttributeNameSentTimestamp]; ok {
			if timeCreatedMillis, err := strconv.ParseInt(*timeCreatedStr, 10, 64); err == nil {
				timeCreated = time.Unix(0, timeCreatedMillis*int64(time.Millisecond)).UTC()
			}
		}
		newMessage.TimeCreated = timeCreated

		receiveCount := 1
		if receiveCountStr, ok := msg.Attributes[sqs.MessageSystemAttributeNameApproximateReceiveCount]; ok {
			if parsed, err := strconv.Atoi(*receiveCountStr); err == nil {
				receiveCount = parsed
			}
		}
		newMessage.ReceiveCount = receiveCount

		if attr, ok := msg.MessageAttributes[attrPartitionKey]; ok && attr.StringValue != nil {
			newMessage.PartitionKey = *attr.StringValue
		}
		if attr, ok := msg.MessageAttributes[attrSequence]; ok && attr.StringValue != nil {
			if seq, err := strconv.ParseInt(*attr.StringValue, 10, 64); err == nil {
				newMessage.Sequence = seq
			}
		}
		if attr, ok := msg.MessageAttributes[attrOffset]; ok && attr.StringValue != nil {
			newMessage.Offset = *attr.StringValue
		}

		received = append(received, &queueiface.Received{
			ReceiptHandle: *msg.ReceiptHandle,
			EnqueuedAt:    timeCreated,
			ReceiveCount:  receiveCount,
			Message:       newMessage,
		})
	}

	return received, nil
}

// Ack deletes a received message from the queue
func (sq *sqsQueue) Ack(receiptHandle string) error {
	sq.log.Debugf("Deleting message with receipt handle: %s", receiptHandle)
	_, err := sq.client.DeleteMessage(&sqs.DeleteMessageInput{
		QueueUrl:      aws.String(sq.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return errors.Wrap(err, "Failed to delete message from SQS queue")
	}
	return nil
}

// Release zeroes the visibility timeout of a received message so it becomes
// immediately available to other consumers
func (sq *sqsQueue) Release(receiptHandle string) error {
	_, err := sq.client.ChangeMessageVisibility(&sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(sq.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: aws.Int64(0),
	})
	if err != nil {
		return errors.Wrap(err, "Failed to release message back to SQS queue")
	}
	return nil
}

// Open fetches the queue URL for this queue
func (sq *sqsQueue) Open() {
	urlResult, err := sq.client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: aws.String(sq.queueName),
	})
	if err != nil {
		errWrapped := errors.Wrap(err, "Failed to get SQS queue URL")
		sq.log.WithFields(log.Fields{"error": errWrapped}).Fatal(errWrapped)
	}

	sq.queueURL = *urlResult.QueueUrl
}

// Close resets the queue URL value
func (sq *sqsQueue) Close() {
	sq.queueURL = ""
}

// MaximumAllowedMessageSizeBytes returns the max number of bytes that can be sent
// per message for this queue
func (sq *sqsQueue) MaximumAllowedMessageSizeBytes() int {
	return sqsSendMessageByteLimit
}

// GetID returns the identifier for this queue
func (sq *sqsQueue) GetID() string {
	return fmt.Sprintf("arn:aws:sqs:%s:%s:%s", sq.region, sq.accountID, sq.queueName)
}
