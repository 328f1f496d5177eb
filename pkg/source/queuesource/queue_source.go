// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package queuesource

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/config"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/queue/queueiface"
	"github.com/snowplow-devops/defender-bridge/pkg/queue/sqsqueue"
	"github.com/snowplow-devops/defender-bridge/pkg/source/sourceiface"
)

// Configuration configures the source for records pulled off the forwarding queue
type Configuration struct {
	QueueName             string `hcl:"queue_name" env:"SOURCE_SQS_QUEUE_NAME"`
	Region                string `hcl:"region" env:"SOURCE_SQS_REGION"`
	RoleARN               string `hcl:"role_arn,optional" env:"SOURCE_SQS_ROLE_ARN"`
	MaxBatch              int    `hcl:"max_batch,optional" env:"SOURCE_SQS_MAX_BATCH"`
	ConcurrentWrites      int    `hcl:"concurrent_writes,optional" env:"SOURCE_SQS_CONCURRENT_WRITES"`
	VisibilityTimeoutSecs int64  `hcl:"visibility_timeout_sec,optional" env:"SOURCE_SQS_VISIBILITY_TIMEOUT_SEC"`
	ReleaseOnFailure      bool   `hcl:"release_on_failure,optional" env:"SOURCE_SQS_RELEASE_ON_FAILURE"`
}

// queueSource reads messages off a forwarding queue and hands them to the
// write callback, acking through the queue on durable handling
type queueSource struct {
	queue            queueiface.Queue
	maxBatch         int
	concurrentWrites int
	releaseOnFailure bool

	log *log.Entry

	// exitSignal holds a channel for signalling an end to the read loop
	exitSignal chan struct{}

	// processErrorSignal holds a channel for handling processing errors
	// and exiting the read loop on the first error discovered
	processErrorSignal chan error
}

// configFunction returns a queue source backed by SQS from a config.
func configFunction(c *Configuration) (sourceiface.Source, error) {
	queue, err := sqsqueue.New(c.Region, c.QueueName, c.RoleARN, c.VisibilityTimeoutSecs)
	if err != nil {
		return nil, err
	}
	return NewWithQueue(queue, c.MaxBatch, c.ConcurrentWrites, c.ReleaseOnFailure)
}

// NewWithQueue allows you to provide the forwarding queue directly, to allow
// for mocking and in-memory usage
func NewWithQueue(queue queueiface.Queue, maxBatch int, concurrentWrites int, releaseOnFailure bool) (*queueSource, error) {
	return &queueSource{
		queue:              queue,
		maxBatch:           maxBatch,
		concurrentWrites:   concurrentWrites,
		releaseOnFailure:   releaseOnFailure,
		log:                log.WithFields(log.Fields{"source": "queue", "queue": queue.GetID()}),
		exitSignal:         make(chan struct{}),
		processErrorSignal: make(chan error, concurrentWrites),
	}, nil
}

// The adapter type is an adapter for functions to be used as
// pluggable components for the queue source. It implements the Pluggable interface.
type adapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f adapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f adapter) ProvideDefault() (interface{}, error) {
	cfg := &Configuration{
		MaxBatch:              10,
		ConcurrentWrites:      50,
		VisibilityTimeoutSecs: 30,
		ReleaseOnFailure:      true,
	}

	return cfg, nil
}

// adapterGenerator returns a queue source adapter.
func adapterGenerator(f func(c *Configuration) (sourceiface.Source, error)) adapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*Configuration)
		if !ok {
			return nil, errors.New("invalid input, expected QueueSourceConfig")
		}

		return f(cfg)
	}
}

// ConfigPair is passed to configuration to determine when and how to build
// a queue source backed by SQS.
var ConfigPair = config.ConfigurationPair{
	Name:   "sqs",
	Handle: adapterGenerator(configFunction),
}

// Read will pull messages from the forwarding queue until stopped
func (qs *queueSource) Read(sf *sourceiface.SourceFunctions) error {
	qs.log.Info("Reading messages from queue ...")

	qs.queue.Open()
	defer qs.queue.Close()

	throttle := make(chan struct{}, qs.concurrentWrites)
	wg := sync.WaitGroup{}

	var processErr error

ProcessLoop:
	for {
		select {
		case <-qs.exitSignal:
			break ProcessLoop
		case processErr = <-qs.processErrorSignal:
			break ProcessLoop
		default:
			throttle <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := qs.process(sf)
				if err != nil {
					qs.processErrorSignal <- err
				}
				<-throttle
			}()
		}
	}
	wg.Wait()

	return processErr
}

func (qs *queueSource) process(sf *sourceiface.SourceFunctions) error {
	received, err := qs.queue.Receive(qs.maxBatch)
	if err != nil {
		return errors.Wrap(err, "Failed to receive messages from queue")
	}
	if len(received) == 0 {
		return nil
	}

	acked := make(map[string]bool, len(received))
	var ackedMu sync.Mutex

	messages := make([]*models.Message, 0, len(received))
	for _, rec := range received {
		receiptHandle := rec.ReceiptHandle
		msg := rec.Message
		msg.AckFunc = func() {
			if err := qs.queue.Ack(receiptHandle); err != nil {
				qs.log.WithFields(log.Fields{"error": err}).Error(err)
				return
			}
			ackedMu.Lock()
			acked[receiptHandle] = true
			ackedMu.Unlock()
		}
		messages = append(messages, msg)
	}

	if err := sf.WriteToTarget(messages); err != nil {
		qs.log.WithFields(log.Fields{"error": err}).Error(err)
	}

	// Unacked messages become visible again after the visibility timeout in
	// any case; releasing them just removes the wait before redelivery.
	if qs.releaseOnFailure {
		ackedMu.Lock()
		defer ackedMu.Unlock()
		for _, rec := range received {
			if !acked[rec.ReceiptHandle] {
				if err := qs.queue.Release(rec.ReceiptHandle); err != nil {
					qs.log.WithFields(log.Fields{"error": err}).Error(err)
				}
			}
		}
	}
	return nil
}

// Stop will halt the reader processing more events
func (qs *queueSource) Stop() {
	qs.log.Warn("Cancelling queue receive ...")
	qs.exitSignal <- struct{}{}
}

// GetID returns the identifier for this source
func (qs *queueSource) GetID() string {
	return qs.queue.GetID()
}
