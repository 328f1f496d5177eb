// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"fmt"
)

// ErrorMetadata is an interface which can be implemented by errors produced by
// pipeline components.  If an error implements this interface, it provides a
// code and description that is safe to report in dead-letter envelopes.
type ErrorMetadata interface {
	ReportableCode() string
	ReportableDescription() string
	ReportableType() string
}

const (
	ErrorTypeTransformation = "transformation"
	ErrorTypeSinkRejection  = "sink_rejection"
	ErrorTypeSetup          = "setup"
)

// TransformationError indicates a message whose payload could not be mapped
// to a destination schema.  It is terminal for the message: retrying the same
// input yields the same failure, so the message is dead-lettered instead.
type TransformationError struct {
	// Schema is the destination schema the mapping was attempting to produce
	Schema      string
	SafeMessage string
	Err         error
}

func (e *TransformationError) Error() string {
	return e.Err.Error()
}

func (e *TransformationError) ReportableCode() string {
	return e.Schema
}

func (e *TransformationError) ReportableDescription() string {
	return e.SafeMessage
}

func (e *TransformationError) ReportableType() string {
	return ErrorTypeTransformation
}

// SinkRejectionError indicates the destination refused a record or batch.
// Writes failing with it are retried up to the transient cap and then
// dead-lettered rather than blocking the partition.
type SinkRejectionError struct {
	Code    string
	Message string
}

func (e *SinkRejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SinkRejectionError) ReportableCode() string {
	return e.Code
}

func (e *SinkRejectionError) ReportableDescription() string {
	return e.Message
}

func (e *SinkRejectionError) ReportableType() string {
	return ErrorTypeSinkRejection
}

// SetupWriteError indicates a target is misconfigured or unauthorised.  These
// are retried slowly with alerting since they usually require operator action.
type SetupWriteError struct {
	Err error
}

func (e *SetupWriteError) Error() string {
	return e.Err.Error()
}

func (e *SetupWriteError) ReportableCode() string {
	return ""
}

func (e *SetupWriteError) ReportableDescription() string {
	return e.Err.Error()
}

func (e *SetupWriteError) ReportableType() string {
	return ErrorTypeSetup
}
