// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/snowplow-devops/defender-bridge/cmd"
	"github.com/snowplow-devops/defender-bridge/cmd/cli"
	eventhubsource "github.com/snowplow-devops/defender-bridge/pkg/source/eventhub"
)

func main() {
	lambda.Start(HandleRequest)
}

// HandleRequest runs a single poll cycle over the hub on every scheduled
// invocation, resuming each partition from its checkpoint
func HandleRequest(ctx context.Context, event events.CloudWatchEvent) error {
	// A scheduled invocation is always a single cycle
	os.Setenv("SOURCE_EVENTHUB_ONE_SHOT", "true")

	cfg, _, err := cmd.Init()
	if err != nil {
		return err
	}

	return cli.RunApp(cfg, eventhubsource.ConfigPair)
}
