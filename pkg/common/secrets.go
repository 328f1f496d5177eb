// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2021-2023 Snowplow Analytics Ltd. All rights reserved.

package common

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/pkg/errors"
)

// GetSecretString fetches the current version of a plaintext secret from
// AWS Secrets Manager.  Used to resolve source credentials (e.g. the Event
// Hub connection string) without baking them into the environment.
func GetSecretString(client secretsmanageriface.SecretsManagerAPI, secretID string) (string, error) {
	res, err := client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", errors.Wrap(err, "Failed to get secret value from Secrets Manager")
	}

	if res.SecretString == nil {
		return "", errors.Errorf("Secret '%s' does not contain a string value", secretID)
	}

	return *res.SecretString, nil
}
