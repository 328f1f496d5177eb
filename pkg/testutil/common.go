// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package testutil

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/snowplow-devops/defender-bridge/pkg/models"
)

const charset = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	seededRand *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// GenRandomString can produce a random string of any provided length which is
// useful for testing situations that might have byte limitations
func GenRandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// GetTestMessages will return an array of messages ready to be used for testing
// targets and sources
func GetTestMessages(count int, body string, ackFunc func()) []*models.Message {
	var messages []*models.Message
	for i := 0; i < count; i++ {
		messages = append(messages, &models.Message{
			Data:         []byte(body),
			PartitionKey: uuid.New().String(),
			AckFunc:      ackFunc,
		})
	}
	return messages
}

// GetTestAlertJSON returns a minimal but valid Defender alert payload, with
// the given id, ready to be parsed by the schema mappers
func GetTestAlertJSON(id string) string {
	return `{
		"id": "` + id + `",
		"name": "` + id + `",
		"alertType": "VM_SuspiciousActivity",
		"alertDisplayName": "Suspicious activity detected",
		"description": "A process was observed running from a temporary directory",
		"severity": "High",
		"status": "Active",
		"timeGeneratedUtc": "2023-04-18T09:12:44Z",
		"startTimeUtc": "2023-04-18T09:10:00Z",
		"endTimeUtc": "2023-04-18T09:11:30Z",
		"vendorName": "Microsoft",
		"productName": "Microsoft Defender for Cloud",
		"productComponentName": "Servers",
		"compromisedEntity": "vm-prod-001",
		"azureResourceId": "/subscriptions/ab12/resourceGroups/prod/providers/Microsoft.Compute/virtualMachines/vm-prod-001",
		"azureResourceSubscriptionId": "ab12cd34-0000-0000-0000-000000000000",
		"intent": "Execution",
		"techniques": ["T1059"],
		"remediationSteps": ["Review the process", "Isolate the machine"],
		"extendedProperties": {"processName": "sh.exe"},
		"isIncident": false
	}`
}
