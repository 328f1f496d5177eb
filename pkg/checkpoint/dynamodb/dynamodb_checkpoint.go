// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package dynamodbcheckpoint

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/pkg/checkpoint/checkpointiface"
	"github.com/snowplow-devops/defender-bridge/pkg/common"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

const (
	attrPartitionID    = "PartitionId"
	attrOffset         = "Offset"
	attrSequenceNumber = "SequenceNumber"
	attrUpdatedAt      = "UpdatedAt"
)

// dynamoDBStore keeps one item per partition in a DynamoDB table, advanced
// with a conditional write so concurrent pollers cannot regress the cursor.
type dynamoDBStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
	region    string
	accountID string

	log *log.Entry
}

// New creates a checkpoint store backed by a DynamoDB table.  The table is
// expected to exist with a string hash key named PartitionId.
func New(region string, tableName string, roleARN string) (checkpointiface.Store, error) {
	awsSession, awsConfig, awsAccountID, err := common.GetAWSSession(region, roleARN, "")
	if err != nil {
		return nil, err
	}
	dynamoClient := dynamodb.New(awsSession, awsConfig)

	return NewWithInterfaces(dynamoClient, *awsAccountID, region, tableName)
}

// NewWithInterfaces allows you to provide a DynamoDB client directly to allow
// for mocking and localstack usage
func NewWithInterfaces(client dynamodbiface.DynamoDBAPI, awsAccountID string, region string, tableName string) (checkpointiface.Store, error) {
	return &dynamoDBStore{
		client:    client,
		tableName: tableName,
		region:    region,
		accountID: awsAccountID,
		log:       log.WithFields(log.Fields{"checkpoint": "dynamodb", "cloud": "AWS", "region": region, "table": tableName}),
	}, nil
}

// Get fetches the stored checkpoint for a partition with a consistent read
func (ds *dynamoDBStore) Get(partitionID string) (*models.Checkpoint, error) {
	res, err := ds.client.GetItem(&dynamodb.GetItemInput{
		TableName:      aws.String(ds.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			attrPartitionID: {S: aws.String(partitionID)},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to get checkpoint item from DynamoDB")
	}

	if res.Item == nil {
		return nil, nil
	}

	checkpoint := models.Checkpoint{PartitionID: partitionID}

	if attr, ok := res.Item[attrOffset]; ok && attr.S != nil {
		checkpoint.Offset = *attr.S
	}
	if attr, ok := res.Item[attrSequenceNumber]; ok && attr.N != nil {
		seq, err := strconv.ParseInt(*attr.N, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to parse stored SequenceNumber")
		}
		checkpoint.SequenceNumber = seq
	}
	if attr, ok := res.Item[attrUpdatedAt]; ok && attr.S != nil {
		if updatedAt, err := time.Parse(time.RFC3339Nano, *attr.S); err == nil {
			checkpoint.UpdatedAt = updatedAt
		}
	}

	return &checkpoint, nil
}

// Advance writes the checkpoint conditionally so that it can never move the
// stored cursor backwards.  A conditional check failure is surfaced as
// StaleCheckpointError without mutating stored state.
func (ds *dynamoDBStore) Advance(checkpoint *models.Checkpoint) error {
	updatedAt := time.Now().UTC()

	_, err := ds.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(ds.tableName),
		Item: map[string]*dynamodb.AttributeValue{
			attrPartitionID:    {S: aws.String(checkpoint.PartitionID)},
			attrOffset:         {S: aws.String(checkpoint.Offset)},
			attrSequenceNumber: {N: aws.String(strconv.FormatInt(checkpoint.SequenceNumber, 10))},
			attrUpdatedAt:      {S: aws.String(updatedAt.Format(time.RFC3339Nano))},
		},
		ConditionExpression: aws.String(fmt.Sprintf("attribute_not_exists(%s) OR %s < :seq", attrPartitionID, attrSequenceNumber)),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":seq": {N: aws.String(strconv.FormatInt(checkpoint.SequenceNumber, 10))},
		},
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			stored, getErr := ds.Get(checkpoint.PartitionID)
			staleErr := &checkpointiface.StaleCheckpointError{
				PartitionID:      checkpoint.PartitionID,
				ProposedSequence: checkpoint.SequenceNumber,
			}
			if getErr == nil && stored != nil {
				staleErr.StoredSequence = stored.SequenceNumber
			}
			return staleErr
		}
		return errors.Wrap(err, "Failed to advance checkpoint in DynamoDB")
	}

	ds.log.Debugf("Advanced checkpoint for partition %s to sequence %d", checkpoint.PartitionID, checkpoint.SequenceNumber)
	return nil
}

// GetID returns the identifier for this checkpoint store
func (ds *dynamoDBStore) GetID() string {
	return fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", ds.region, ds.accountID, ds.tableName)
}
