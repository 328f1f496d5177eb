// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package target

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/queue/queueiface"
	"github.com/snowplow-devops/defender-bridge/pkg/queue/sqsqueue"
)

// SQSTargetConfig configures the destination for records consumed
type SQSTargetConfig struct {
	QueueName             string `hcl:"queue_name" env:"TARGET_SQS_QUEUE_NAME"`
	Region                string `hcl:"region" env:"TARGET_SQS_REGION"`
	RoleARN               string `hcl:"role_arn,optional" env:"TARGET_SQS_ROLE_ARN"`
	VisibilityTimeoutSecs int64  `hcl:"visibility_timeout_sec,optional" env:"TARGET_SQS_VISIBILITY_TIMEOUT_SEC"`
}

// SQSTarget pushes messages onto the SQS forwarding queue. It is a thin
// wrapper over the queue's enqueue side, so the same chunking and message
// attribute handling serves both the target and the queue source.
type SQSTarget struct {
	queue queueiface.Queue

	log *log.Entry
}

// SQSTargetConfigFunction creates an SQSTarget from a config
func SQSTargetConfigFunction(c *SQSTargetConfig) (*SQSTarget, error) {
	queue, err := sqsqueue.New(c.Region, c.QueueName, c.RoleARN, c.VisibilityTimeoutSecs)
	if err != nil {
		return nil, err
	}
	return NewQueueTarget(queue)
}

// NewQueueTarget allows you to provide the forwarding queue directly, to
// allow for mocking and in-memory usage
func NewQueueTarget(queue queueiface.Queue) (*SQSTarget, error) {
	return &SQSTarget{
		queue: queue,
		log:   log.WithFields(log.Fields{"target": "sqs", "queue": queue.GetID()}),
	}, nil
}

// The SQSTargetAdapter type is an adapter for functions to be used as
// pluggable components for SQS Target. It implements the Pluggable interface.
type SQSTargetAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f SQSTargetAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f SQSTargetAdapter) ProvideDefault() (interface{}, error) {
	cfg := &SQSTargetConfig{
		VisibilityTimeoutSecs: 30,
	}

	return cfg, nil
}

// AdaptSQSTargetFunc returns SQSTargetAdapter.
func AdaptSQSTargetFunc(f func(c *SQSTargetConfig) (*SQSTarget, error)) SQSTargetAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*SQSTargetConfig)
		if !ok {
			return nil, errors.New("invalid input, expected SQSTargetConfig")
		}

		return f(cfg)
	}
}

// Write pushes all messages onto the forwarding queue
func (st *SQSTarget) Write(messages []*models.Message) (*models.TargetWriteResult, error) {
	st.log.Debugf("Writing %d messages to queue ...", len(messages))
	return st.queue.Enqueue(messages)
}

// Open opens the underlying queue
func (st *SQSTarget) Open() {
	st.queue.Open()
}

// Close closes the underlying queue
func (st *SQSTarget) Close() {
	st.queue.Close()
}

// MaximumAllowedMessageSizeBytes returns the max number of bytes that can be sent
// per message for this target
func (st *SQSTarget) MaximumAllowedMessageSizeBytes() int {
	return st.queue.MaximumAllowedMessageSizeBytes()
}

// GetID returns the identifier for this target
func (st *SQSTarget) GetID() string {
	return st.queue.GetID()
}
