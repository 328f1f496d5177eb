// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package defender

import (
	"time"

	jsoniter "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Alert is the subset of the Microsoft Defender security alert schema which
// the schema mappers consume. Fields not listed here survive untouched in
// ExtendedProperties or in the message's original payload.
type Alert struct {
	ID                   string                   `json:"id"`
	Name                 string                   `json:"name"`
	AlertType            string                   `json:"alertType"`
	DisplayName          string                   `json:"alertDisplayName"`
	Description          string                   `json:"description"`
	Severity             string                   `json:"severity"`
	Status               string                   `json:"status"`
	TimeGenerated        time.Time                `json:"timeGeneratedUtc"`
	StartTime            time.Time                `json:"startTimeUtc"`
	EndTime              time.Time                `json:"endTimeUtc"`
	VendorName           string                   `json:"vendorName"`
	ProductName          string                   `json:"productName"`
	ProductComponentName string                   `json:"productComponentName"`
	CompromisedEntity    string                   `json:"compromisedEntity"`
	AzureResourceID      string                   `json:"azureResourceId"`
	SubscriptionID       string                   `json:"azureResourceSubscriptionId"`
	Intent               string                   `json:"intent"`
	Techniques           []string                 `json:"techniques"`
	RemediationSteps     []string                 `json:"remediationSteps"`
	ExtendedProperties   map[string]string        `json:"extendedProperties"`
	Entities             []map[string]interface{} `json:"entities"`
	IsIncident           bool                     `json:"isIncident"`
	CorrelationKey       string                   `json:"correlationKey"`
}

// ParseAlert unmarshals a raw payload into an Alert, failing when the payload
// is not JSON or does not carry the fields every alert must have.
func ParseAlert(data []byte) (*Alert, error) {
	var alert Alert
	if err := jsoniter.Unmarshal(data, &alert); err != nil {
		return nil, errors.Wrap(err, "Failed to unmarshal payload as a Defender alert")
	}
	if alert.ID == "" {
		return nil, errors.New("Defender alert is missing required field 'id'")
	}
	if alert.AlertType == "" {
		return nil, errors.New("Defender alert is missing required field 'alertType'")
	}
	return &alert, nil
}

// IsAlert reports whether a raw payload looks like a Defender alert, without
// the cost of a full parse. Continuous export interleaves other record types
// (recommendations, secure score) on the same hub.
func IsAlert(data []byte) bool {
	var probe struct {
		ID        string `json:"id"`
		AlertType string `json:"alertType"`
	}
	if err := jsoniter.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.ID != "" && probe.AlertType != ""
}
