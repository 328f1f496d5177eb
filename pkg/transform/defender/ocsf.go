// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package defender

import (
	jsoniter "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// OCSF Detection Finding (class 2004) constants, per the 1.1.0 schema.
const (
	ocsfSchemaVersion = "1.1.0"
	ocsfCategoryUID   = 2
	ocsfCategoryName  = "Findings"
	ocsfClassUID      = 2004
	ocsfClassName     = "Detection Finding"
	ocsfActivityID    = 1
	ocsfActivityName  = "Create"
	ocsfTypeUID       = 200401
)

type ocsfProduct struct {
	Name       string `json:"name"`
	VendorName string `json:"vendor_name"`
	Feature    string `json:"feature,omitempty"`
}

type ocsfMetadata struct {
	Version string      `json:"version"`
	Product ocsfProduct `json:"product"`
}

type ocsfCloud struct {
	Provider string `json:"provider"`
	Account  string `json:"account_uid,omitempty"`
}

type ocsfFindingInfo struct {
	UID             string   `json:"uid"`
	Title           string   `json:"title"`
	Desc            string   `json:"desc,omitempty"`
	Types           []string `json:"types,omitempty"`
	FirstSeenTime   int64    `json:"first_seen_time,omitempty"`
	LastSeenTime    int64    `json:"last_seen_time,omitempty"`
	AttackTechnique []string `json:"attack_techniques,omitempty"`
}

type ocsfResource struct {
	UID  string `json:"uid"`
	Type string `json:"type,omitempty"`
}

type ocsfDetectionFinding struct {
	ActivityID   int               `json:"activity_id"`
	ActivityName string            `json:"activity_name"`
	CategoryUID  int               `json:"category_uid"`
	CategoryName string            `json:"category_name"`
	ClassUID     int               `json:"class_uid"`
	ClassName    string            `json:"class_name"`
	TypeUID      int               `json:"type_uid"`
	Time         int64             `json:"time"`
	SeverityID   int               `json:"severity_id"`
	Severity     string            `json:"severity"`
	Status       string            `json:"status,omitempty"`
	Metadata     ocsfMetadata      `json:"metadata"`
	Cloud        ocsfCloud         `json:"cloud"`
	FindingInfo  ocsfFindingInfo   `json:"finding_info"`
	Resources    []ocsfResource    `json:"resources,omitempty"`
	Unmapped     map[string]string `json:"unmapped,omitempty"`
}

// ocsfSeverityID maps Defender severity labels onto OCSF severity IDs.
// Unrecognised labels become 0 (Unknown) rather than failing the mapping.
func ocsfSeverityID(severity string) int {
	switch severity {
	case "Informational":
		return 1
	case "Low":
		return 2
	case "Medium":
		return 3
	case "High":
		return 4
	default:
		return 0
	}
}

func ocsfSeverityLabel(severityID int) string {
	switch severityID {
	case 1:
		return "Informational"
	case 2:
		return "Low"
	case 3:
		return "Medium"
	case 4:
		return "High"
	default:
		return "Unknown"
	}
}

// MapOCSF renders an alert as an OCSF Detection Finding.
func MapOCSF(alert *Alert) ([]byte, error) {
	if alert.TimeGenerated.IsZero() {
		return nil, errors.New("Defender alert is missing required field 'timeGeneratedUtc'")
	}

	severityID := ocsfSeverityID(alert.Severity)

	var resources []ocsfResource
	if alert.AzureResourceID != "" {
		resources = append(resources, ocsfResource{UID: alert.AzureResourceID, Type: "Azure Resource"})
	}

	var firstSeen, lastSeen int64
	if !alert.StartTime.IsZero() {
		firstSeen = alert.StartTime.UTC().UnixMilli()
	}
	if !alert.EndTime.IsZero() {
		lastSeen = alert.EndTime.UTC().UnixMilli()
	}

	finding := ocsfDetectionFinding{
		ActivityID:   ocsfActivityID,
		ActivityName: ocsfActivityName,
		CategoryUID:  ocsfCategoryUID,
		CategoryName: ocsfCategoryName,
		ClassUID:     ocsfClassUID,
		ClassName:    ocsfClassName,
		TypeUID:      ocsfTypeUID,
		Time:         alert.TimeGenerated.UTC().UnixMilli(),
		SeverityID:   severityID,
		Severity:     ocsfSeverityLabel(severityID),
		Status:       alert.Status,
		Metadata: ocsfMetadata{
			Version: ocsfSchemaVersion,
			Product: ocsfProduct{
				Name:       alert.ProductName,
				VendorName: alert.VendorName,
				Feature:    alert.ProductComponentName,
			},
		},
		Cloud: ocsfCloud{
			Provider: "Azure",
			Account:  alert.SubscriptionID,
		},
		FindingInfo: ocsfFindingInfo{
			UID:             alert.ID,
			Title:           alert.DisplayName,
			Desc:            alert.Description,
			Types:           []string{alert.AlertType},
			FirstSeenTime:   firstSeen,
			LastSeenTime:    lastSeen,
			AttackTechnique: alert.Techniques,
		},
		Resources: resources,
		Unmapped:  alert.ExtendedProperties,
	}
	return jsoniter.Marshal(finding)
}
