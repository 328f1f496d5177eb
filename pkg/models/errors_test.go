// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestTransformationError_Metadata tests that a transformation error reports its metadata
func TestTransformationError_Metadata(t *testing.T) {
	assert := assert.New(t)

	tErr := &TransformationError{
		Schema:      "ocsf",
		SafeMessage: "missing required field",
		Err:         errors.New("Defender alert is missing required field 'timeGeneratedUtc'"),
	}

	assert.EqualError(tErr, "Defender alert is missing required field 'timeGeneratedUtc'")
	assert.Equal(ErrorTypeTransformation, tErr.ReportableType())
	assert.Equal("ocsf", tErr.ReportableCode())
	assert.Equal("missing required field", tErr.ReportableDescription())
}

// TestSinkRejectionError_Metadata tests that a sink rejection reports its metadata
func TestSinkRejectionError_Metadata(t *testing.T) {
	assert := assert.New(t)

	sErr := &SinkRejectionError{Code: "InvalidEventData", Message: "event data is malformed"}

	assert.EqualError(sErr, "InvalidEventData: event data is malformed")
	assert.Equal(ErrorTypeSinkRejection, sErr.ReportableType())
	assert.Equal("InvalidEventData", sErr.ReportableCode())
	assert.Equal("event data is malformed", sErr.ReportableDescription())
}

// TestErrorMetadata_As tests that error metadata survives wrapping
func TestErrorMetadata_As(t *testing.T) {
	assert := assert.New(t)

	wrapped := pkgerrors.Wrap(&SetupWriteError{Err: errors.New("access denied")}, "Failed to write")

	var setupErr *SetupWriteError
	assert.True(errors.As(wrapped, &setupErr))

	var meta ErrorMetadata
	assert.True(errors.As(wrapped, &meta))
	assert.Equal(ErrorTypeSetup, meta.ReportableType())
	assert.Equal("access denied", meta.ReportableDescription())
}
