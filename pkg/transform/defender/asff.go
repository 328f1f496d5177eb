// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package defender

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const asffSchemaVersion = "2018-10-08"

type asffSeverity struct {
	Label      string `json:"Label"`
	Normalized int    `json:"Normalized"`
}

type asffResource struct {
	Type string `json:"Type"`
	ID   string `json:"Id"`
}

type asffFinding struct {
	SchemaVersion string            `json:"SchemaVersion"`
	ID            string            `json:"Id"`
	ProductArn    string            `json:"ProductArn"`
	GeneratorID   string            `json:"GeneratorId"`
	AwsAccountID  string            `json:"AwsAccountId"`
	Types         []string          `json:"Types"`
	CreatedAt     string            `json:"CreatedAt"`
	UpdatedAt     string            `json:"UpdatedAt"`
	FirstObserved string            `json:"FirstObservedAt,omitempty"`
	LastObserved  string            `json:"LastObservedAt,omitempty"`
	Severity      asffSeverity      `json:"Severity"`
	Title         string            `json:"Title"`
	Description   string            `json:"Description"`
	Resources     []asffResource    `json:"Resources"`
	RecordState   string            `json:"RecordState"`
	Remediation   *asffRemediation  `json:"Remediation,omitempty"`
	ProductFields map[string]string `json:"ProductFields,omitempty"`
}

type asffRemediation struct {
	Recommendation asffRecommendation `json:"Recommendation"`
}

type asffRecommendation struct {
	Text string `json:"Text"`
}

// asffNormalizedSeverity maps Defender severity labels onto the 0-100 ASFF
// normalized scale.
func asffNormalizedSeverity(severity string) int {
	switch severity {
	case "Informational":
		return 0
	case "Low":
		return 20
	case "Medium":
		return 50
	case "High":
		return 80
	default:
		return 0
	}
}

// MapASFF renders an alert as an AWS Security Finding Format finding.
// productArn identifies the Security Hub integration the findings are
// imported under, and accountID the account they belong to.
func MapASFF(alert *Alert, productArn string, accountID string) ([]byte, error) {
	if alert.TimeGenerated.IsZero() {
		return nil, errors.New("Defender alert is missing required field 'timeGeneratedUtc'")
	}
	if productArn == "" || accountID == "" {
		return nil, errors.New("A product ARN and AWS account ID are required to map to an ASFF finding")
	}

	severityLabel := strings.ToUpper(alert.Severity)
	if severityLabel == "" {
		severityLabel = "INFORMATIONAL"
	}

	findingTypes := []string{"Unusual Behaviors"}
	if alert.Intent != "" {
		findingTypes = []string{fmt.Sprintf("TTPs/%s", alert.Intent)}
	}

	resourceID := alert.AzureResourceID
	if resourceID == "" {
		resourceID = alert.CompromisedEntity
	}
	if resourceID == "" {
		resourceID = alert.ID
	}

	createdAt := alert.TimeGenerated.UTC().Format(time.RFC3339)
	finding := asffFinding{
		SchemaVersion: asffSchemaVersion,
		ID:            alert.ID,
		ProductArn:    productArn,
		GeneratorID:   alert.AlertType,
		AwsAccountID:  accountID,
		Types:         findingTypes,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Severity: asffSeverity{
			Label:      severityLabel,
			Normalized: asffNormalizedSeverity(alert.Severity),
		},
		Title:         alert.DisplayName,
		Description:   alert.Description,
		Resources:     []asffResource{{Type: "Other", ID: resourceID}},
		RecordState:   "ACTIVE",
		ProductFields: alert.ExtendedProperties,
	}
	if !alert.StartTime.IsZero() {
		finding.FirstObserved = alert.StartTime.UTC().Format(time.RFC3339)
	}
	if !alert.EndTime.IsZero() {
		finding.LastObserved = alert.EndTime.UTC().Format(time.RFC3339)
	}
	if len(alert.RemediationSteps) > 0 {
		finding.Remediation = &asffRemediation{
			Recommendation: asffRecommendation{Text: strings.Join(alert.RemediationSteps, " ")},
		}
	}
	return jsoniter.Marshal(finding)
}
