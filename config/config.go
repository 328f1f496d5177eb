// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"github.com/snowplow-devops/defender-bridge/pkg/failure"
	"github.com/snowplow-devops/defender-bridge/pkg/failure/failureiface"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/monitoring"
	"github.com/snowplow-devops/defender-bridge/pkg/observer"
	"github.com/snowplow-devops/defender-bridge/pkg/statsreceiver"
	"github.com/snowplow-devops/defender-bridge/pkg/statsreceiver/statsreceiveriface"
	"github.com/snowplow-devops/defender-bridge/pkg/target"
	"github.com/snowplow-devops/defender-bridge/pkg/target/targetiface"
	"github.com/snowplow-devops/defender-bridge/pkg/transform"
	"github.com/snowplow-devops/defender-bridge/pkg/transform/defender"
)

// Config holds the configuration data along with the decoder to decode them
type Config struct {
	Data    *ConfigurationData
	Decoder Decoder
}

// ConfigurationData for holding all configuration options
type ConfigurationData struct {
	Source        *Component        `hcl:"source,block" envPrefix:"SOURCE_"`
	Target        *Component        `hcl:"target,block" envPrefix:"TARGET_"`
	FailureTarget *FailureConfig    `hcl:"failure_target,block"`
	Sentry        *SentryConfig     `hcl:"sentry,block"`
	StatsReceiver *StatsConfig      `hcl:"stats_receiver,block"`
	Monitoring    *MonitoringConfig `hcl:"monitoring,block"`
	Retry         *RetryConfig      `hcl:"retry,block"`
	Schemas       *SchemaConfig     `hcl:"schemas,block"`

	Transformation string `hcl:"message_transformation,optional" env:"MESSAGE_TRANSFORMATION"`
	LogLevel       string `hcl:"log_level,optional" env:"LOG_LEVEL"`
	UserProvidedID string `hcl:"user_provided_id,optional" env:"USER_PROVIDED_ID"`
}

// Component is a type to abstract over configuration blocks.
type Component struct {
	Use *Use `hcl:"use,block"`
}

// Use is a type to denote what a component will be configured to use.
type Use struct {
	Name string   `hcl:",label" env:"NAME"`
	Body hcl.Body `hcl:",remain"`
}

// FailureConfig holds configuration for the failure target.
// It includes the target component to use.
type FailureConfig struct {
	Target *Use   `hcl:"use,block" envPrefix:"FAILURE_TARGET_"`
	Format string `hcl:"format,optional" env:"FAILURE_TARGETS_FORMAT"`
}

// SentryConfig configures the Sentry error tracker.
type SentryConfig struct {
	Dsn   string `hcl:"dsn" env:"SENTRY_DSN"`
	Tags  string `hcl:"tags,optional" env:"SENTRY_TAGS"`
	Debug bool   `hcl:"debug,optional" env:"SENTRY_DEBUG"`
}

// StatsConfig holds configuration for stats receivers.
// It includes a receiver component to use.
type StatsConfig struct {
	Receiver   *Use `hcl:"use,block" envPrefix:"STATS_RECEIVER_"`
	TimeoutSec int  `hcl:"timeout_sec,optional" env:"STATS_RECEIVER_TIMEOUT_SEC"`
	BufferSec  int  `hcl:"buffer_sec,optional" env:"STATS_RECEIVER_BUFFER_SEC"`
}

// MonitoringConfig holds configuration for heartbeat & alert webhooks.
type MonitoringConfig struct {
	WebhookEndpoint      string `hcl:"webhook_endpoint,optional" env:"MONITORING_WEBHOOK_ENDPOINT"`
	HeartbeatIntervalSec int    `hcl:"heartbeat_interval_sec,optional" env:"MONITORING_HEARTBEAT_INTERVAL_SEC"`
	Tags                 string `hcl:"tags,optional" env:"MONITORING_TAGS"`
}

// RetryConfig holds configuration for write retries.
type RetryConfig struct {
	Transient *TransientRetryConfig `hcl:"transient,block"`
	Setup     *SetupRetryConfig     `hcl:"setup,block"`
}

// TransientRetryConfig caps retries of writes which failed with transient or
// rejection errors; once the cap is hit the affected messages are
// dead-lettered rather than blocking the partition.
type TransientRetryConfig struct {
	DelayMs     int `hcl:"delay_ms,optional" env:"RETRY_TRANSIENT_DELAY_MS"`
	MaxAttempts int `hcl:"max_attempts,optional" env:"RETRY_TRANSIENT_MAX_ATTEMPTS"`

	// InvalidAfterMax routes messages still failing after the final attempt
	// to the failure target instead of crashing, so one bad record cannot
	// block a partition
	InvalidAfterMax bool `hcl:"invalid_after_max,optional" env:"RETRY_TRANSIENT_INVALID_AFTER_MAX"`
}

// SetupRetryConfig configures retries of writes which failed with setup
// errors; these block and alert instead of dead-lettering since they need
// operator action.
type SetupRetryConfig struct {
	DelayMs     int `hcl:"delay_ms,optional" env:"RETRY_SETUP_DELAY_MS"`
	MaxAttempts int `hcl:"max_attempts,optional" env:"RETRY_SETUP_MAX_ATTEMPTS"`
}

// SchemaConfig selects the destination schemas produced for every alert, and
// holds the identifiers some of the schemas require.
type SchemaConfig struct {
	Names               string `hcl:"names,optional" env:"SCHEMAS_NAMES"`
	CloudTrailAccountID string `hcl:"cloudtrail_account_id,optional" env:"SCHEMAS_CLOUDTRAIL_ACCOUNT_ID"`
	ASFFProductArn      string `hcl:"asff_product_arn,optional" env:"SCHEMAS_ASFF_PRODUCT_ARN"`
	ASFFAccountID       string `hcl:"asff_account_id,optional" env:"SCHEMAS_ASFF_ACCOUNT_ID"`
}

// defaultConfigData returns the initial main configuration target.
func defaultConfigData() *ConfigurationData {
	return &ConfigurationData{
		Source: &Component{&Use{Name: "eventhub"}},
		Target: &Component{&Use{Name: "stdout"}},

		FailureTarget: &FailureConfig{
			Target: &Use{Name: "stdout"},
			Format: "forwarding",
		},
		Sentry: &SentryConfig{
			Tags: "{}",
		},
		StatsReceiver: &StatsConfig{
			Receiver:   &Use{},
			TimeoutSec: 1,
			BufferSec:  15,
		},
		Monitoring: &MonitoringConfig{
			HeartbeatIntervalSec: 300,
			Tags:                 "{}",
		},
		Retry: &RetryConfig{
			Transient: &TransientRetryConfig{
				DelayMs:         1000,
				MaxAttempts:     3,
				InvalidAfterMax: true,
			},
			Setup: &SetupRetryConfig{
				DelayMs:     20000,
				MaxAttempts: 5,
			},
		},
		Schemas: &SchemaConfig{
			Names: "cloudtrail",
		},
		Transformation: "defenderFilter",
		LogLevel:       "info",
	}
}

// NewConfig returns a configuration
func NewConfig() (*Config, error) {
	filename := os.Getenv("DEFENDER_BRIDGE_CONFIG_FILE")
	if filename == "" {
		return newEnvConfig()
	}

	switch suffix := strings.ToLower(filepath.Ext(filename)); suffix {
	case ".hcl":
		return newHclConfig(filename)
	default:
		return nil, errors.New("invalid extension for the configuration file")
	}
}

func newEnvConfig() (*Config, error) {
	var err error

	decoderOpts := &DecoderOptions{}
	envDecoder := &EnvDecoder{}

	configData := defaultConfigData()

	err = envDecoder.Decode(decoderOpts, configData)
	if err != nil {
		return nil, err
	}

	mainConfig := Config{
		Data:    configData,
		Decoder: envDecoder,
	}

	return &mainConfig, nil
}

func newHclConfig(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// Parsing
	parser := hclparse.NewParser()
	fileHCL, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	// Creating EvalContext
	evalContext := CreateHclContext() // ptr

	// Decoding
	configData := defaultConfigData()
	decoderOpts := &DecoderOptions{Input: fileHCL.Body}
	hclDecoder := &HclDecoder{EvalContext: evalContext}

	err = hclDecoder.Decode(decoderOpts, configData)
	if err != nil {
		return nil, err
	}

	mainConfig := Config{
		Data:    configData,
		Decoder: hclDecoder,
	}

	return &mainConfig, nil
}

// CreateComponent creates a pluggable component given the decoder options.
func (c *Config) CreateComponent(p Pluggable, opts *DecoderOptions) (interface{}, error) {
	componentConfigure := WithDecoderOptions(opts)

	decodedConfig, err := componentConfigure(p, c.Decoder)
	if err != nil {
		return nil, err
	}

	return p.Create(decodedConfig)
}

// targetPlug returns the Pluggable which builds the named target.
func targetPlug(name string) (Pluggable, error) {
	switch name {
	case "stdout":
		return target.AdaptStdoutTargetFunc(
			target.StdoutTargetConfigFunction,
		), nil
	case "sqs":
		return target.AdaptSQSTargetFunc(
			target.SQSTargetConfigFunction,
		), nil
	case "cloudtrail":
		return target.AdaptCloudTrailTargetFunc(
			target.CloudTrailTargetConfigFunction,
		), nil
	default:
		return nil, errors.New(fmt.Sprintf("Invalid target found; expected one of 'stdout, sqs, cloudtrail' and got '%s'", name))
	}
}

// GetTarget builds and returns the target that is configured
func (c *Config) GetTarget() (targetiface.Target, error) {
	useTarget := c.Data.Target.Use
	decoderOpts := &DecoderOptions{
		Input: useTarget.Body,
	}

	plug, err := targetPlug(useTarget.Name)
	if err != nil {
		return nil, err
	}

	component, err := c.CreateComponent(plug, decoderOpts)
	if err != nil {
		return nil, err
	}

	if t, ok := component.(targetiface.Target); ok {
		return t, nil
	}

	return nil, fmt.Errorf("could not interpret target configuration for %q", useTarget.Name)
}

// GetFailureTarget builds and returns the failure target that is configured
func (c *Config) GetFailureTarget(AppName string, AppVersion string) (failureiface.Failure, error) {
	useFailureTarget := c.Data.FailureTarget.Target
	decoderOpts := &DecoderOptions{
		Prefix: "FAILURE_",
		Input:  useFailureTarget.Body,
	}

	plug, err := targetPlug(useFailureTarget.Name)
	if err != nil {
		return nil, err
	}

	component, err := c.CreateComponent(plug, decoderOpts)
	if err != nil {
		return nil, err
	}

	if t, ok := component.(targetiface.Target); ok {
		switch c.Data.FailureTarget.Format {
		case "forwarding":
			return failure.NewForwardingFailure(t, AppName, AppVersion)
		default:
			return nil, errors.New(fmt.Sprintf("Invalid failure format found; expected one of 'forwarding' and got '%s'", c.Data.FailureTarget.Format))
		}
	}

	return nil, fmt.Errorf("could not interpret failure target configuration for %q", useFailureTarget.Name)
}

// GetTransformations builds and returns the transformation pipeline that is
// configured: the filter chain followed by the schema fanout.
func (c *Config) GetTransformations() (transform.TransformationApplyFunction, error) {
	funcs := make([]transform.TransformationFunction, 0)
	for _, name := range strings.Split(c.Data.Transformation, ",") {
		switch strings.TrimSpace(name) {
		case "", "none":
		case "defenderFilter":
			funcs = append(funcs, transform.AlertFilterFunction)
		default:
			return nil, errors.New(fmt.Sprintf("Invalid transformation found; expected one of 'defenderFilter, none' and got '%s'", name))
		}
	}

	mappings := make([]transform.SchemaMapping, 0)
	for _, name := range strings.Split(c.Data.Schemas.Names, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "cloudtrail":
			accountID := c.Data.Schemas.CloudTrailAccountID
			if accountID == "" {
				return nil, errors.New("The 'cloudtrail' schema requires schemas.cloudtrail_account_id (SCHEMAS_CLOUDTRAIL_ACCOUNT_ID) to be set")
			}
			mappings = append(mappings, transform.SchemaMapping{
				Name: "cloudtrail",
				Map: func(alert *defender.Alert) ([]byte, error) {
					return defender.MapCloudTrail(alert, accountID)
				},
			})
		case "ocsf":
			mappings = append(mappings, transform.SchemaMapping{
				Name: "ocsf",
				Map:  defender.MapOCSF,
			})
		case "asff":
			productArn := c.Data.Schemas.ASFFProductArn
			accountID := c.Data.Schemas.ASFFAccountID
			if productArn == "" || accountID == "" {
				return nil, errors.New("The 'asff' schema requires schemas.asff_product_arn and schemas.asff_account_id (SCHEMAS_ASFF_PRODUCT_ARN, SCHEMAS_ASFF_ACCOUNT_ID) to be set")
			}
			mappings = append(mappings, transform.SchemaMapping{
				Name: "asff",
				Map: func(alert *defender.Alert) ([]byte, error) {
					return defender.MapASFF(alert, productArn, accountID)
				},
			})
		default:
			return nil, errors.New(fmt.Sprintf("Invalid schema found; expected one of 'cloudtrail, ocsf, asff' and got '%s'", name))
		}
	}

	chain := transform.NewTransformation(funcs...)
	fanout := transform.NewSchemaFanout(mappings...)

	return func(messages []*models.Message) *models.TransformationResult {
		chained := chain(messages)
		fanned := fanout(chained.Result)

		invalid := append(chained.Invalid, fanned.Invalid...)
		return models.NewTransformationResult(fanned.Result, chained.Filtered, invalid)
	}, nil
}

// GetTags returns a list of tags to use in identifying this instance of defender-bridge with enough
// entropy so as to avoid collisions as it should not be possible to have both the host and process_id be
// the same.
func (c *Config) GetTags() (map[string]string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to get server hostname as tag")
	}

	processID := os.Getpid()

	tags := map[string]string{
		"host":       hostname,
		"process_id": strconv.Itoa(processID),
	}

	return tags, nil
}

// GetObserver builds and returns the observer with the embedded
// optional stats receiver
func (c *Config) GetObserver(tags map[string]string) (*observer.Observer, error) {
	sr, err := c.GetStatsReceiver(tags)
	if err != nil {
		return nil, err
	}
	return observer.New(sr, time.Duration(c.Data.StatsReceiver.TimeoutSec)*time.Second, time.Duration(c.Data.StatsReceiver.BufferSec)*time.Second), nil
}

// GetStatsReceiver builds and returns the stats receiver
func (c *Config) GetStatsReceiver(tags map[string]string) (statsreceiveriface.StatsReceiver, error) {
	useReceiver := c.Data.StatsReceiver.Receiver
	decoderOpts := &DecoderOptions{
		Input: useReceiver.Body,
	}

	switch useReceiver.Name {
	case "statsd":
		plug := statsreceiver.AdaptStatsDStatsReceiverFunc(
			statsreceiver.NewStatsDReceiverWithTags(tags),
		)
		component, err := c.CreateComponent(plug, decoderOpts)
		if err != nil {
			return nil, err
		}

		if r, ok := component.(statsreceiveriface.StatsReceiver); ok {
			return r, nil
		}

		return nil, fmt.Errorf("could not interpret stats receiver configuration for %q", useReceiver.Name)
	case "":
		return nil, nil
	default:
		return nil, errors.New(fmt.Sprintf("Invalid stats receiver found; expected one of 'statsd' and got '%s'", useReceiver.Name))
	}
}

// GetWebhookMonitoring builds and returns the heartbeat & alert webhook, or
// nil when no endpoint is configured
func (c *Config) GetWebhookMonitoring(appName string, appVersion string, alertChan chan error) (*monitoring.WebhookMonitoring, error) {
	if c.Data.Monitoring.WebhookEndpoint == "" {
		return nil, nil
	}

	tagsMap := map[string]string{}
	err := json.Unmarshal([]byte(c.Data.Monitoring.Tags), &tagsMap)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to unmarshall MONITORING_TAGS to map")
	}

	return monitoring.NewWebhookMonitoring(
		appName,
		appVersion,
		http.DefaultClient,
		c.Data.Monitoring.WebhookEndpoint,
		tagsMap,
		time.Duration(c.Data.Monitoring.HeartbeatIntervalSec)*time.Second,
		alertChan,
	), nil
}
