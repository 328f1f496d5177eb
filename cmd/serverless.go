// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package cmd

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/pkg/failure/failureiface"
	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/target/targetiface"
	"github.com/snowplow-devops/defender-bridge/pkg/transform"
)

// ServerlessRequestHandler is a common function for all
// serverless implementations to leverage
func ServerlessRequestHandler(messages []*models.Message) error {
	cfg, sentryEnabled, err := Init()
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer sentry.Flush(2 * time.Second)
	}

	// --- Setup structs

	t, err := cfg.GetTarget()
	if err != nil {
		return err
	}
	t.Open()

	ft, err := cfg.GetFailureTarget(AppName, AppVersion)
	if err != nil {
		return err
	}
	ft.Open()

	tr, err := cfg.GetTransformations()
	if err != nil {
		return err
	}

	return processServerlessRequest(t, ft, tr, messages)
}

// processServerlessRequest transforms and writes a single batch. Every write
// error must make it into the returned error, otherwise the invocation
// succeeds and the batch is deleted without being delivered.
func processServerlessRequest(t targetiface.Target, ft failureiface.Failure, tr transform.TransformationApplyFunction, messages []*models.Message) error {
	transformed := tr(messages)
	// no error as errors should be returned in the failures array of TransformationResult

	// Ack filtered messages with no further action
	for _, msg := range transformed.Filtered {
		if msg.AckFunc != nil {
			msg.AckFunc()
		}
	}

	var errs *multierror.Error

	res, err := t.Write(transformed.Result)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error(err)
		errs = multierror.Append(errs, err)
	}

	var invalid []*models.Message

	if res != nil {
		if len(res.Oversized) > 0 {
			res2, err := ft.WriteOversized(t.MaximumAllowedMessageSizeBytes(), res.Oversized)
			if res2 != nil && (len(res2.Oversized) != 0 || len(res2.Invalid) != 0) {
				log.Fatal("Oversized message transformation resulted in new oversized / invalid messages")
			}
			if err != nil {
				log.WithFields(log.Fields{"error": err}).Error(err)
				errs = multierror.Append(errs, err)
			}
		}

		// Failed messages stay unacked and will be redelivered by the queue, so
		// only invalids are dead-lettered here.
		invalid = append(invalid, res.Invalid...)
	}
	invalid = append(invalid, transformed.Invalid...)

	if len(invalid) > 0 {
		res3, err := ft.WriteInvalid(invalid)
		if res3 != nil && (len(res3.Oversized) != 0 || len(res3.Invalid) != 0) {
			log.Fatal("Invalid message transformation resulted in new invalid / oversized messages")
		}
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error(err)
			errs = multierror.Append(errs, err)
		}
	}

	t.Close()
	ft.Close()
	return errs.ErrorOrNil()
}
