// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package failure

import (
	"encoding/base64"
	stderrors "errors"
	"time"

	jsoniter "github.com/goccy/go-json"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
	"github.com/snowplow-devops/defender-bridge/pkg/target/targetiface"
)

const errorTypeOversized = "oversized"

// deadLetterEnvelope is the document written to the failure target for every
// dead-lettered message. The original payload travels base64-encoded so the
// envelope stays valid JSON whatever the source emitted.
type deadLetterEnvelope struct {
	Application      string    `json:"application"`
	Version          string    `json:"version"`
	FailureType      string    `json:"failureType"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	ErrorDescription string    `json:"errorDescription"`
	Schema           string    `json:"schema,omitempty"`
	PartitionKey     string    `json:"partitionKey,omitempty"`
	Sequence         int64     `json:"sequence,omitempty"`
	Offset           string    `json:"offset,omitempty"`
	ReceiveCount     int       `json:"receiveCount,omitempty"`
	Payload          string    `json:"payload"`
	FailedAt         time.Time `json:"failedAt"`
}

// ForwardingFailure holds a new client for writing dead-letter envelopes to
// a target
type ForwardingFailure struct {
	processorArtifact string
	processorVersion  string
	target            targetiface.Target

	log *log.Entry
}

// NewForwardingFailure creates a new client for writing dead-letter envelopes
func NewForwardingFailure(target targetiface.Target, processorArtifact string, processorVersion string) (*ForwardingFailure, error) {
	return &ForwardingFailure{
		processorArtifact: processorArtifact,
		processorVersion:  processorVersion,
		target:            target,
		log: log.WithFields(log.Fields{
			"failed": "forwarding",
			"target": target.GetID(),
		}),
	}, nil
}

// WriteInvalid writes messages which cannot be processed or delivered to the
// failure target, wrapped in dead-letter envelopes
func (d *ForwardingFailure) WriteInvalid(invalid []*models.Message) (*models.TargetWriteResult, error) {
	var transformed []*models.Message

	for _, msg := range invalid {
		envelope, err := d.envelopeFor(msg, "", "")
		if err != nil {
			return nil, err
		}

		tMsg := *msg
		tMsg.Data = envelope
		transformed = append(transformed, &tMsg)
	}

	return d.target.Write(transformed)
}

// WriteOversized writes messages which exceed the target's size limit to the
// failure target, wrapped in dead-letter envelopes
func (d *ForwardingFailure) WriteOversized(maximumAllowedSizeBytes int, oversized []*models.Message) (*models.TargetWriteResult, error) {
	var transformed []*models.Message

	for _, msg := range oversized {
		envelope, err := d.envelopeFor(
			msg,
			errorTypeOversized,
			errors.Errorf("message exceeds maximum allowed size of %d bytes", maximumAllowedSizeBytes).Error(),
		)
		if err != nil {
			return nil, err
		}

		tMsg := *msg
		tMsg.Data = envelope
		transformed = append(transformed, &tMsg)
	}

	return d.target.Write(transformed)
}

// envelopeFor renders the dead-letter envelope for a message. The failure
// type, code and description come from the message's error when it carries
// reportable metadata, falling back to the provided defaults.
func (d *ForwardingFailure) envelopeFor(msg *models.Message, failureType string, description string) ([]byte, error) {
	errorCode := ""
	if msgErr := msg.GetError(); msgErr != nil {
		var meta models.ErrorMetadata
		if stderrors.As(msgErr, &meta) {
			failureType = meta.ReportableType()
			errorCode = meta.ReportableCode()
			description = meta.ReportableDescription()
		} else if description == "" {
			description = msgErr.Error()
		}
	}

	payload := msg.OriginalData
	if payload == nil {
		payload = msg.Data
	}

	envelope := deadLetterEnvelope{
		Application:      d.processorArtifact,
		Version:          d.processorVersion,
		FailureType:      failureType,
		ErrorCode:        errorCode,
		ErrorDescription: description,
		Schema:           msg.Schema,
		PartitionKey:     msg.PartitionKey,
		Sequence:         msg.Sequence,
		Offset:           msg.Offset,
		ReceiveCount:     msg.ReceiveCount,
		Payload:          base64.StdEncoding.EncodeToString(payload),
		FailedAt:         time.Now().UTC(),
	}

	data, err := jsoniter.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal dead-letter envelope")
	}
	return data, nil
}

// Open opens the underlying target
func (d *ForwardingFailure) Open() {
	d.target.Open()
}

// Close closes the underlying target
func (d *ForwardingFailure) Close() {
	d.target.Close()
}

// GetID returns the identifier for this failure target
func (d *ForwardingFailure) GetID() string {
	return d.target.GetID()
}
