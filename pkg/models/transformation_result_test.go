// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewTransformationResult tests that counts line up with the provided slices
func TestNewTransformationResult(t *testing.T) {
	assert := assert.New(t)

	result := []*Message{{PartitionKey: "1"}, {PartitionKey: "2"}}
	filtered := []*Message{{PartitionKey: "3"}}
	invalid := []*Message{}

	r := NewTransformationResult(result, filtered, invalid)
	assert.NotNil(r)

	assert.Equal(int64(2), r.ResultCount)
	assert.Equal(int64(1), r.FilteredCount)
	assert.Equal(int64(0), r.InvalidCount)
	assert.Equal(result, r.Result)
	assert.Equal(filtered, r.Filtered)
}
