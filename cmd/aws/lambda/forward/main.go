// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package main

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/snowplow-devops/defender-bridge/cmd"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

func main() {
	lambda.Start(HandleRequest)
}

// HandleRequest processes a batch off the forwarding queue and writes it to
// the configured target. Messages are not acked individually: returning nil
// lets the Lambda SQS integration delete the whole batch, and returning an
// error redelivers it.
func HandleRequest(ctx context.Context, event events.SQSEvent) error {
	timePulled := time.Now().UTC()

	messages := make([]*models.Message, len(event.Records))
	for i := 0; i < len(messages); i++ {
		record := event.Records[i]

		timeCreated := timePulled
		if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
			if millis, err := strconv.ParseInt(sentTimestamp, 10, 64); err == nil {
				timeCreated = time.Unix(0, millis*int64(time.Millisecond)).UTC()
			}
		}

		msg := &models.Message{
			Data:        []byte(record.Body),
			TimeCreated: timeCreated,
			TimePulled:  timePulled,
		}
		if attr, ok := record.MessageAttributes["PartitionKey"]; ok && attr.StringValue != nil {
			msg.PartitionKey = *attr.StringValue
		}
		if attr, ok := record.MessageAttributes["Sequence"]; ok && attr.StringValue != nil {
			if sequence, err := strconv.ParseInt(*attr.StringValue, 10, 64); err == nil {
				msg.Sequence = sequence
			}
		}
		if attr, ok := record.MessageAttributes["Offset"]; ok && attr.StringValue != nil {
			msg.Offset = *attr.StringValue
		}
		if receiveCount, ok := record.Attributes["ApproximateReceiveCount"]; ok {
			if count, err := strconv.Atoi(receiveCount); err == nil {
				msg.ReceiveCount = count
			}
		}

		messages[i] = msg
	}

	return cmd.ServerlessRequestHandler(messages)
}
