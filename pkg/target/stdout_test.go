// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package target

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/defender-bridge/pkg/testutil"
)

// TestStdoutTarget_WriteSuccess tests writing messages to a stdout target
func TestStdoutTarget_WriteSuccess(t *testing.T) {
	assert := assert.New(t)

	target, err := newStdoutTarget(false)
	assert.NotNil(target)
	assert.Nil(err)
	assert.Equal("stdout", target.GetID())

	defer target.Close()
	target.Open()

	var ackOps int64
	ackFunc := func() {
		atomic.AddInt64(&ackOps, 1)
	}

	messages := testutil.GetTestMessages(1, "Hello World!", ackFunc)

	writeRes, err := target.Write(messages)
	assert.Nil(err)
	assert.NotNil(writeRes)

	// Check that Ack is called
	assert.Equal(int64(1), ackOps)

	// Check results
	assert.Equal(int64(1), writeRes.SentCount)
	assert.Equal(int64(0), writeRes.FailedCount)
	assert.Equal(0, len(writeRes.Oversized))
}

// TestStdoutTarget_WriteDataOnly tests that data-only output prints just the payload
func TestStdoutTarget_WriteDataOnly(t *testing.T) {
	assert := assert.New(t)

	var output bytes.Buffer
	target, err := newStdoutTargetWithInterfaces(&output, true)
	assert.Nil(err)

	messages := testutil.GetTestMessages(1, "Hello World!", nil)

	writeRes, err := target.Write(messages)
	assert.Nil(err)
	assert.Equal(int64(1), writeRes.SentCount)
	assert.Equal("Hello World!\n", output.String())
}

// TestStdoutTarget_WriteFullMessage tests that the default output carries message metadata
func TestStdoutTarget_WriteFullMessage(t *testing.T) {
	assert := assert.New(t)

	var output bytes.Buffer
	target, err := newStdoutTargetWithInterfaces(&output, false)
	assert.Nil(err)

	messages := testutil.GetTestMessages(1, "Hello World!", nil)
	messages[0].Schema = "cloudtrail"
	messages[0].Sequence = 42

	_, err = target.Write(messages)
	assert.Nil(err)

	assert.True(strings.Contains(output.String(), "Schema:cloudtrail"))
	assert.True(strings.Contains(output.String(), "Sequence:42"))
	assert.True(strings.Contains(output.String(), "Data:Hello World!"))
}

// TestStdoutTarget_Oversized tests that messages over the print limit are siphoned off
func TestStdoutTarget_Oversized(t *testing.T) {
	assert := assert.New(t)

	var output bytes.Buffer
	target, err := newStdoutTargetWithInterfaces(&output, true)
	assert.Nil(err)

	messages := testutil.GetTestMessages(1, "Hello World!", nil)
	messages = append(messages, testutil.GetTestMessages(1, testutil.GenRandomString(10485761), nil)...)

	writeRes, err := target.Write(messages)
	assert.Nil(err)
	assert.Equal(int64(1), writeRes.SentCount)
	assert.Equal(1, len(writeRes.Oversized))
}
