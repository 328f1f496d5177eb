// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package defender

import (
	"strings"
	"time"

	jsoniter "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	cloudTrailEventVersion = "1.0"
	cloudTrailEventSource  = "defender.azure.amazonaws.com"
)

type cloudTrailUserIdentity struct {
	Type        string `json:"type"`
	PrincipalID string `json:"principalId"`
}

type cloudTrailAdditionalData struct {
	Severity          string   `json:"severity"`
	Status            string   `json:"status,omitempty"`
	Intent            string   `json:"intent,omitempty"`
	Techniques        []string `json:"techniques,omitempty"`
	CompromisedEntity string   `json:"compromisedEntity,omitempty"`
	AzureResourceID   string   `json:"azureResourceId,omitempty"`
	Description       string   `json:"description,omitempty"`
}

type cloudTrailEvent struct {
	Version             string                   `json:"version"`
	UserIdentity        cloudTrailUserIdentity   `json:"userIdentity"`
	EventSource         string                   `json:"eventSource"`
	EventName           string                   `json:"eventName"`
	EventTime           string                   `json:"eventTime"`
	UID                 string                   `json:"UID"`
	RecipientAccountID  string                   `json:"recipientAccountId"`
	AdditionalEventData cloudTrailAdditionalData `json:"additionalEventData"`
}

// MapCloudTrail renders an alert as a CloudTrail open audit event, suitable
// for ingestion through a CloudTrail Lake channel. The recipient account is
// the AWS account which owns the channel.
func MapCloudTrail(alert *Alert, recipientAccountID string) ([]byte, error) {
	if alert.TimeGenerated.IsZero() {
		return nil, errors.New("Defender alert is missing required field 'timeGeneratedUtc'")
	}
	if recipientAccountID == "" {
		return nil, errors.New("A recipient AWS account ID is required to map to a CloudTrail audit event")
	}

	principalID := alert.SubscriptionID
	if principalID == "" {
		principalID = alert.VendorName
	}

	event := cloudTrailEvent{
		Version: cloudTrailEventVersion,
		UserIdentity: cloudTrailUserIdentity{
			Type:        "AzureSubscription",
			PrincipalID: principalID,
		},
		EventSource:        cloudTrailEventSource,
		EventName:          eventNameFromAlertType(alert.AlertType),
		EventTime:          alert.TimeGenerated.UTC().Format(time.RFC3339),
		UID:                alert.ID,
		RecipientAccountID: recipientAccountID,
		AdditionalEventData: cloudTrailAdditionalData{
			Severity:          alert.Severity,
			Status:            alert.Status,
			Intent:            alert.Intent,
			Techniques:        alert.Techniques,
			CompromisedEntity: alert.CompromisedEntity,
			AzureResourceID:   alert.AzureResourceID,
			Description:       alert.Description,
		},
	}
	return jsoniter.Marshal(event)
}

// eventNameFromAlertType flattens a Defender alert type into a CloudTrail
// style event name, e.g. "VM_SuspiciousActivity" -> "VMSuspiciousActivity".
func eventNameFromAlertType(alertType string) string {
	name := strings.NewReplacer("_", "", "-", "", ".", "", "/", "").Replace(alertType)
	if name == "" {
		return "DefenderAlert"
	}
	return name
}
