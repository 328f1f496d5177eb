// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"net/http"
	// pprof imported for the side effect of registering its HTTP handlers
	_ "net/http/pprof"

	retry "github.com/avast/retry-go/v4"
	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/snowplow-devops/defender-bridge/cmd"
	"github.com/snowplow-devops/defender-bridge/config"
	"github.com/snowplow-devops/defender-bridge/pkg/failure/failureiface"
	"github.com/snowplow-devops/defender-bridge/pkg/health"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/observer"
	"github.com/snowplow-devops/defender-bridge/pkg/source/sourceconfig"
	"github.com/snowplow-devops/defender-bridge/pkg/source/sourceiface"
	"github.com/snowplow-devops/defender-bridge/pkg/target/targetiface"
	"github.com/snowplow-devops/defender-bridge/pkg/transform"
)

const (
	appVersion   = cmd.AppVersion
	appName      = cmd.AppName
	appUsage     = "Forwards Microsoft Defender alerts to supported AWS destinations"
	appCopyright = "(c) 2020-2023 Snowplow Analytics Ltd. All rights reserved."
)

// RunCli runs the application from the command line
func RunCli(supportedSources ...config.ConfigurationPair) {
	cfg, sentryEnabled, err := cmd.Init()
	if err != nil {
		exitWithError(err, sentryEnabled)
	}

	app := cli.NewApp()
	app.Name = appName
	app.Usage = appUsage
	app.Version = appVersion
	app.Copyright = appCopyright
	app.Compiled = time.Now().UTC()
	app.Authors = []cli.Author{
		{
			Name:  "Joshua Beemster",
			Email: "support@snowplow.io",
		},
	}

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "profile, p",
			Usage: "Enable application profiling endpoint on port 8080",
		},
	}

	app.Action = func(c *cli.Context) error {
		profile := c.Bool("profile")
		if profile {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				if health.IsHealthy() {
					w.WriteHeader(http.StatusOK)
					fmt.Fprint(w, "OK")
					return
				}
				w.WriteHeader(http.StatusServiceUnavailable)
			})
			go func() {
				if err := http.ListenAndServe("localhost:8080", nil); err != nil {
					log.WithError(err).Fatal("failed to start up the server")
				}
			}()
		}
		return RunApp(cfg, supportedSources...)
	}

	app.ExitErrHandler = func(context *cli.Context, err error) {
		if err != nil {
			exitWithError(err, sentryEnabled)
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("failed to run cli")
	}
}

// RunApp runs the application (without cli stuff)
func RunApp(cfg *config.Config, supportedSources ...config.ConfigurationPair) error {
	// First thing is to spin up webhook monitoring, so we can start alerting
	// as soon as possible
	alertChan := make(chan error, 10)
	webhookMonitoring, err := cfg.GetWebhookMonitoring(cmd.AppName, cmd.AppVersion, alertChan)
	if err != nil {
		return err
	}
	if webhookMonitoring != nil {
		defer webhookMonitoring.Stop()
		webhookMonitoring.Start()
	}

	s, err := sourceconfig.GetSource(cfg, supportedSources...)
	if err != nil {
		return err
	}

	tr, err := cfg.GetTransformations()
	if err != nil {
		return err
	}

	t, err := cfg.GetTarget()
	if err != nil {
		return err
	}
	t.Open()

	ft, err := cfg.GetFailureTarget(cmd.AppName, cmd.AppVersion)
	if err != nil {
		return err
	}
	ft.Open()

	tags, err := cfg.GetTags()
	if err != nil {
		return err
	}

	obs, err := cfg.GetObserver(tags)
	if err != nil {
		return err
	}
	obs.Start()
	health.SetHealthy()

	// Sources which checkpoint their progress report advances to the observer
	if cp, ok := s.(interface {
		SetCheckpointCallback(f func(cp *models.Checkpoint))
	}); ok {
		cp.SetCheckpointCallback(obs.CheckpointAdvanced)
	}

	// Handle SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, os.Kill)
	go func() {
		<-sig
		log.Warn("SIGTERM called, cleaning up and closing application ...")

		stop := make(chan struct{}, 1)
		go func() {
			s.Stop()
			stop <- struct{}{}
		}()

		select {
		case <-stop:
			log.Debug("source.Stop() finished successfully!")
		case <-time.After(5 * time.Second):
			log.Error("source.Stop() took more than 5 seconds, forcing shutdown ...")

			t.Close()
			ft.Close()
			obs.Stop()
			os.Exit(1)
		}
	}()

	// Callback functions for the source to leverage when writing data
	sf := sourceiface.SourceFunctions{
		WriteToTarget: sourceWriteFunc(t, ft, tr, obs, cfg, alertChan),
	}

	// Read is a long running process and will only return when the source
	// is exhausted or if an error occurs
	err = s.Read(&sf)
	if err != nil {
		return err
	}

	t.Close()
	ft.Close()
	obs.Stop()
	return nil
}

// sourceWriteFunc builds the function which wraps the different objects together to handle:
//
// 1. Transforming messages into destination schemas
// 2. Sending transformed messages to the target
// 3. Observing results
// 4. Sending oversized & invalid messages to the failure target
// 5. Observing these results
//
// All with retry logic baked in to remove any of this handling from the implementations
func sourceWriteFunc(t targetiface.Target, ft failureiface.Failure, tr transform.TransformationApplyFunction, o *observer.Observer, cfg *config.Config, alertChan chan error) func(messages []*models.Message) error {
	return func(messages []*models.Message) error {

		copyOriginalData(messages)

		// Apply transformations
		transformed := tr(messages)
		// no error as errors should be returned in the failures array of TransformationResult

		// Ack filtered messages with no further action
		if len(transformed.Filtered) > 0 {
			for _, msg := range transformed.Filtered {
				if msg.AckFunc != nil {
					msg.AckFunc()
				}
			}
			o.Filtered(models.NewFilterResult(transformed.Filtered))
		}

		invalid := transformed.Invalid
		var messagesToSend []*models.Message
		var oversized []*models.Message

		if len(transformed.Result) > 0 {
			messagesToSend = transformed.Result
			writeTransformed := func() error {
				result, err := t.Write(messagesToSend)

				o.TargetWrite(result)
				messagesToSend = result.Failed
				oversized = append(oversized, result.Oversized...)
				invalid = append(invalid, result.Invalid...)
				return err
			}

			err, sendToInvalid := handleWrite(cfg, writeTransformed, alertChan)
			if err != nil && !sendToInvalid {
				// Return error and crash if configured to do so.
				return err
			}
			// If we get here, we either have empty messagesToSend (as all successful),
			// or we have configured to send the data to invalid after max retries.
			// (the write function overwrites messagesToSend with failed on each iteration)
			invalid = append(invalid, messagesToSend...)
		}

		// Send oversized message buffer
		if len(oversized) > 0 {
			messagesToSend = oversized
			writeOversized := func() error {
				result, err := ft.WriteOversized(t.MaximumAllowedMessageSizeBytes(), messagesToSend)
				if result != nil {
					if len(result.Oversized) != 0 || len(result.Invalid) != 0 {
						log.Fatal("Oversized message transformation resulted in new oversized / invalid messages")
					}

					o.TargetWriteOversized(result)
					messagesToSend = result.Failed
				}
				return err
			}

			err, _ := handleWrite(cfg, writeOversized, nil)
			// Failure here should always be handled as an exception.
			if err != nil {
				return err
			}
		}

		// Send invalid message buffer
		if len(invalid) > 0 {
			messagesToSend = invalid
			writeInvalid := func() error {
				result, err := ft.WriteInvalid(messagesToSend)
				if result != nil {
					if len(result.Oversized) != 0 || len(result.Invalid) != 0 {
						log.Fatal("Invalid message transformation resulted in new invalid / oversized messages")
					}

					o.TargetWriteInvalid(result)
					messagesToSend = result.Failed
				}
				return err
			}

			err, _ := handleWrite(cfg, writeInvalid, nil)
			// Failure here should always be handled as an exception.
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// handleWrite wraps each target write operation with 2 kinds of retries:
// - setup errors: long delay, limited attempts, unhealthy state + alerts
// - transient errors: short delay, limited attempts, then optionally dead-letter
// Whether it's a setup or transient error is decided based on the error returned by the target.
func handleWrite(cfg *config.Config, write func() error, alertChan chan error) (err error, sendToInvalid bool) {
	setupErrored := false

	retryOnlySetupErrors := retry.RetryIf(func(err error) bool {
		var setupErr *models.SetupWriteError
		return stderrors.As(err, &setupErr)
	})

	onSetupError := retry.OnRetry(func(attempt uint, err error) {
		log.Warnf("Setup target write error. Attempt: %d, error: %s\n", attempt+1, err)
		health.SetUnhealthy()
		setupErrored = true
		if alertChan != nil {
			alertChan <- err
		}
	})

	// First try to handle error as setup...
	err = retry.Do(
		write,
		retryOnlySetupErrors,
		onSetupError,
		retry.Delay(time.Duration(cfg.Data.Retry.Setup.DelayMs)*time.Millisecond),
		retry.Attempts(uint(cfg.Data.Retry.Setup.MaxAttempts)),
		retry.LastErrorOnly(true),
	)

	// If after retries we still have a setup error
	// there is no reason to retry it further, so error early
	var setupErr *models.SetupWriteError
	if stderrors.As(err, &setupErr) {
		return err, false
	}

	// Now, `err` is either nil or no longer setup-related
	// Thus we should reset monitoring to re-enable heartbeats
	if setupErrored {
		health.SetHealthy()
		if alertChan != nil {
			alertChan <- nil
		}
	}

	if err == nil {
		return err, false
	}

	// If no setup, then handle as transient.
	log.Warnf("Transient target write error. Starting retrying. error: %s\n", err)
	// We already had at least 1 attempt from the 'setup' retrying section above,
	// so before we start transient retrying we need to add a 'manual' initial delay.
	time.Sleep(time.Duration(cfg.Data.Retry.Transient.DelayMs) * time.Millisecond)

	onTransientError := retry.OnRetry(func(attempt uint, err error) {
		log.Warnf("Retry failed with transient error. Retry counter: %d, error: %s\n", attempt+1, err)
	})

	err = retry.Do(
		write,
		onTransientError,
		// * 2 because we have the initial sleep above
		retry.Delay(time.Duration(cfg.Data.Retry.Transient.DelayMs*2)*time.Millisecond),
		retry.Attempts(uint(cfg.Data.Retry.Transient.MaxAttempts)),
		retry.LastErrorOnly(true),
	)

	return err, cfg.Data.Retry.Transient.InvalidAfterMax
}

// copyOriginalData keeps a copy of the payload as it arrived from the source,
// so dead-letter envelopes can carry it whatever the transformations did
func copyOriginalData(messages []*models.Message) {
	for _, msg := range messages {
		if msg.OriginalData == nil {
			msg.OriginalData = make([]byte, len(msg.Data))
			copy(msg.OriginalData, msg.Data)
		}
	}
}

// exitWithError logs the error and exits, flushing Sentry when it is enabled
func exitWithError(err error, flushSentry bool) {
	if flushSentry {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
	}
	log.WithFields(log.Fields{"error": err}).Fatal(err)
}
