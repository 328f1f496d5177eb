// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package main

import (
	"github.com/snowplow-devops/defender-bridge/cmd/cli"
	eventhubsource "github.com/snowplow-devops/defender-bridge/pkg/source/eventhub"
	"github.com/snowplow-devops/defender-bridge/pkg/source/queuesource"
)

func main() {
	// The full build supports polling the hub directly as well as consuming
	// the forwarding queue
	cli.RunCli(
		eventhubsource.ConfigPair,
		queuesource.ConfigPair,
	)
}
