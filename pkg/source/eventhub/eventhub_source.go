// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package eventhubsource

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	eventhub "github.com/Azure/azure-event-hubs-go/v3"
	"github.com/Azure/azure-event-hubs-go/v3/persist"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/config"
	"github.com/snowplow-devops/defender-bridge/pkg/checkpoint/checkpointiface"
	dynamodbcheckpoint "github.com/snowplow-devops/defender-bridge/pkg/checkpoint/dynamodb"
	memorycheckpoint "github.com/snowplow-devops/defender-bridge/pkg/checkpoint/memory"
	"github.com/snowplow-devops/defender-bridge/pkg/common"
	"github.com/snowplow-devops/defender-bridge/pkg/health"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/retry"
	"github.com/snowplow-devops/defender-bridge/pkg/source/sourceiface"
)

// Configuration configures the source for records
type Configuration struct {
	Namespace string `hcl:"namespace" env:"SOURCE_EVENTHUB_NAMESPACE"`
	Name      string `hcl:"name" env:"SOURCE_EVENTHUB_NAME"`

	// The connection string may be given directly, or resolved at startup
	// from an AWS Secrets Manager secret.
	ConnectionString   string `hcl:"connection_string,optional" env:"SOURCE_EVENTHUB_CONNECTION_STRING"`
	ConnectionSecretID string `hcl:"connection_secret_id,optional" env:"SOURCE_EVENTHUB_CONNECTION_SECRET_ID"`

	PollIntervalSec int  `hcl:"poll_interval_sec,optional" env:"SOURCE_EVENTHUB_POLL_INTERVAL_SEC"`
	BatchSize       int  `hcl:"batch_size,optional" env:"SOURCE_EVENTHUB_BATCH_SIZE"`
	FetchTimeoutSec int  `hcl:"fetch_timeout_sec,optional" env:"SOURCE_EVENTHUB_FETCH_TIMEOUT_SEC"`
	OneShot         bool `hcl:"one_shot,optional" env:"SOURCE_EVENTHUB_ONE_SHOT"`

	CheckpointStore     string `hcl:"checkpoint_store,optional" env:"SOURCE_EVENTHUB_CHECKPOINT_STORE"`
	CheckpointTableName string `hcl:"checkpoint_table_name,optional" env:"SOURCE_EVENTHUB_CHECKPOINT_TABLE_NAME"`
	AWSRegion           string `hcl:"aws_region,optional" env:"SOURCE_EVENTHUB_AWS_REGION"`
	AWSRoleARN          string `hcl:"aws_role_arn,optional" env:"SOURCE_EVENTHUB_AWS_ROLE_ARN"`
}

// eventhubIface is the subset of the Event Hub client the source needs, to
// allow for mocking
type eventhubIface interface {
	Receive(ctx context.Context, partitionID string, handler eventhub.Handler, opts ...eventhub.ReceiveOption) (*eventhub.ListenerHandle, error)
	GetRuntimeInformation(ctx context.Context) (*eventhub.HubRuntimeInformation, error)
	Close(ctx context.Context) error
}

// eventHubSource polls an Azure Event Hub on a timer, resuming each partition
// from its stored checkpoint and advancing the checkpoint only once the pulled
// messages have been acked
type eventHubSource struct {
	client      eventhubIface
	checkpoints checkpointiface.Store

	hubNamespace string
	hubName      string

	pollInterval time.Duration
	batchSize    int
	fetchTimeout time.Duration
	oneShot      bool

	fetchRetries    int
	fetchRetryDelay time.Duration

	log *log.Entry

	exitSignal chan struct{}

	// onCheckpoint, when set, is invoked after every successful checkpoint
	// advance
	onCheckpoint func(cp *models.Checkpoint)
}

// SetCheckpointCallback registers a callback to observe checkpoint advances
func (es *eventHubSource) SetCheckpointCallback(f func(cp *models.Checkpoint)) {
	es.onCheckpoint = f
}

// configFunction returns an Event Hub source from a config
func configFunction(c *Configuration) (sourceiface.Source, error) {
	connectionString := c.ConnectionString
	if connectionString == "" && c.ConnectionSecretID != "" {
		sess, cfg, _, err := common.GetAWSSession(c.AWSRegion, c.AWSRoleARN, "")
		if err != nil {
			return nil, err
		}
		connectionString, err = common.GetSecretString(secretsmanager.New(sess, cfg), c.ConnectionSecretID)
		if err != nil {
			return nil, err
		}
	}
	if connectionString == "" {
		return nil, errors.New("Failed to build Event Hub source: no connection string or secret ID provided")
	}

	hub, err := eventhub.NewHubFromConnectionString(connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create Event Hub client")
	}

	var checkpoints checkpointiface.Store
	switch c.CheckpointStore {
	case "dynamodb":
		checkpoints, err = dynamodbcheckpoint.New(c.AWSRegion, c.CheckpointTableName, c.AWSRoleARN)
		if err != nil {
			return nil, err
		}
	case "memory":
		checkpoints = memorycheckpoint.New()
	default:
		return nil, fmt.Errorf("Invalid checkpoint store found; expected one of 'dynamodb, memory' and got '%s'", c.CheckpointStore)
	}

	return newEventHubSourceWithInterfaces(hub, checkpoints, c)
}

// newEventHubSourceWithInterfaces allows you to provide the Event Hub client
// and checkpoint store directly, to allow for mocking
func newEventHubSourceWithInterfaces(client eventhubIface, checkpoints checkpointiface.Store, c *Configuration) (*eventHubSource, error) {
	return &eventHubSource{
		client:       client,
		checkpoints:  checkpoints,
		hubNamespace: c.Namespace,
		hubName:      c.Name,
		pollInterval: time.Duration(c.PollIntervalSec) * time.Second,
		batchSize:    c.BatchSize,
		fetchTimeout: time.Duration(c.FetchTimeoutSec) * time.Second,
		oneShot:      c.OneShot,

		fetchRetries:    5,
		fetchRetryDelay: 1 * time.Second,
		log: log.WithFields(log.Fields{
			"source":    "eventhub",
			"cloud":     "Azure",
			"namespace": c.Namespace,
			"hub":       c.Name,
		}),
		exitSignal: make(chan struct{}),
	}, nil
}

// The adapter type is an adapter for functions to be used as
// pluggable components for the Event Hub source. It implements the Pluggable interface.
type adapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f adapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f adapter) ProvideDefault() (interface{}, error) {
	cfg := &Configuration{
		PollIntervalSec: 60,
		BatchSize:       100,
		FetchTimeoutSec: 10,
		CheckpointStore: "dynamodb",
	}

	return cfg, nil
}

// adapterGenerator returns an Event Hub source adapter.
func adapterGenerator(f func(c *Configuration) (sourceiface.Source, error)) adapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*Configuration)
		if !ok {
			return nil, errors.New("invalid input, expected EventHubSourceConfig")
		}

		return f(cfg)
	}
}

// ConfigPair is passed to configuration to determine when and how to build
// an Event Hub source.
var ConfigPair = config.ConfigurationPair{
	Name:   "eventhub",
	Handle: adapterGenerator(configFunction),
}

// Read polls the hub until stopped, or for a single cycle in one-shot mode
func (es *eventHubSource) Read(sf *sourceiface.SourceFunctions) error {
	es.log.Infof("Polling Event Hub every %v ...", es.pollInterval)

	ctx := context.Background()
	defer es.client.Close(ctx)

	ticker := time.NewTicker(es.pollInterval)
	defer ticker.Stop()

	pollErrored := false
	for {
		if err := es.poll(ctx, sf); err != nil {
			if es.oneShot {
				return err
			}

			// The checkpoint is untouched, so the next tick resumes from
			// the same position once the hub is reachable again
			es.log.WithFields(log.Fields{"error": err}).Error(err)
			health.SetUnhealthy()
			pollErrored = true
		} else {
			if pollErrored {
				health.SetHealthy()
				pollErrored = false
			}
			if es.oneShot {
				return nil
			}
		}

		select {
		case <-es.exitSignal:
			return nil
		case <-ticker.C:
		}
	}
}

// poll runs a single cycle over every partition of the hub. A stale
// checkpoint aborts the cycle without failing the source: another poller
// holds newer progress and this one will resume from it on the next tick.
func (es *eventHubSource) poll(ctx context.Context, sf *sourceiface.SourceFunctions) error {
	var runtimeInfo *eventhub.HubRuntimeInformation
	err := retry.Retry(es.fetchRetries, es.fetchRetryDelay, "eventhub_runtime_info", func() error {
		var err error
		runtimeInfo, err = es.client.GetRuntimeInformation(ctx)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "Failed to get Event Hub runtime information")
	}

	for _, partitionID := range runtimeInfo.PartitionIDs {
		if err := es.pollPartition(ctx, partitionID, sf); err != nil {
			var staleErr *checkpointiface.StaleCheckpointError
			if stderrors.As(err, &staleErr) {
				es.log.WithFields(log.Fields{"error": staleErr}).Warn("Checkpoint advanced elsewhere, aborting poll cycle")
				return nil
			}
			return err
		}
	}
	return nil
}

func (es *eventHubSource) pollPartition(ctx context.Context, partitionID string, sf *sourceiface.SourceFunctions) error {
	cp, err := es.checkpoints.Get(partitionID)
	if err != nil {
		return errors.Wrap(err, "Failed to get checkpoint for partition")
	}

	fetched, err := es.fetchBatch(ctx, partitionID, cp)
	if err != nil {
		return err
	}
	if len(fetched) == 0 {
		return nil
	}
	es.log.Debugf("Fetched %d messages from partition %s", len(fetched), partitionID)

	tracker := newAckTracker(partitionID)
	timePulled := time.Now().UTC()

	messages := make([]*models.Message, 0, len(fetched))
	for _, event := range fetched {
		sequence := *event.SystemProperties.SequenceNumber
		offset := strconv.FormatInt(*event.SystemProperties.Offset, 10)
		tracker.track(sequence, offset)

		messages = append(messages, &models.Message{
			Data:         event.Data,
			PartitionKey: partitionID,
			Sequence:     sequence,
			Offset:       offset,
			TimeCreated:  *event.SystemProperties.EnqueuedTime,
			TimePulled:   timePulled,
			AckFunc:      tracker.ackFuncFor(sequence),
		})
	}

	if err := sf.WriteToTarget(messages); err != nil {
		// Unacked messages are simply re-fetched on the next cycle, so a
		// write failure is logged rather than propagated.
		es.log.WithFields(log.Fields{"error": err}).Error(err)
	}

	if next := tracker.checkpoint(); next != nil {
		if err := es.checkpoints.Advance(next); err != nil {
			return err
		}
		if es.onCheckpoint != nil {
			es.onCheckpoint(next)
		}
	}
	return nil
}

// fetchBatch collects up to batchSize events from one partition, resuming
// after the checkpointed offset, within the fetch timeout.
func (es *eventHubSource) fetchBatch(ctx context.Context, partitionID string, cp *models.Checkpoint) ([]*eventhub.Event, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, es.fetchTimeout)
	defer cancel()

	var mu sync.Mutex
	var fetched []*eventhub.Event

	handler := func(c context.Context, event *eventhub.Event) error {
		mu.Lock()
		defer mu.Unlock()

		if len(fetched) >= es.batchSize {
			cancel()
			return nil
		}
		fetched = append(fetched, event)
		if len(fetched) >= es.batchSize {
			cancel()
		}
		return nil
	}

	opts := []eventhub.ReceiveOption{
		eventhub.ReceiveWithPrefetchCount(uint32(es.batchSize)),
	}
	if cp != nil {
		opts = append(opts, eventhub.ReceiveWithStartingOffset(cp.Offset))
	} else {
		opts = append(opts, eventhub.ReceiveWithStartingOffset(persist.StartOfStream))
	}

	err := retry.Retry(es.fetchRetries, es.fetchRetryDelay, "eventhub_receive", func() error {
		_, err := es.client.Receive(fetchCtx, partitionID, handler, opts...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to receive from Event Hub partition")
	}

	<-fetchCtx.Done()

	mu.Lock()
	defer mu.Unlock()
	return fetched, nil
}

// Stop will halt the poller after the in-flight cycle completes
func (es *eventHubSource) Stop() {
	es.log.Warn("Cancelling Event Hub polling ...")
	es.exitSignal <- struct{}{}
}

// GetID returns the identifier for this source
func (es *eventHubSource) GetID() string {
	return fmt.Sprintf("sb://%s.servicebus.windows.net/%s", es.hubNamespace, es.hubName)
}
