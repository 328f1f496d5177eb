// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2023 Snowplow Analytics Ltd. All rights reserved.

package sourceconfig

import (
	"fmt"
	"strings"

	"github.com/snowplow-devops/defender-bridge/config"
	"github.com/snowplow-devops/defender-bridge/pkg/source/sourceiface"
)

// GetSource builds and returns the source which was configured, out of the
// sources the calling build supports. Sources are registered by the caller
// rather than here, so serverless builds can restrict what they link in.
func GetSource(c *config.Config, supportedSources ...config.ConfigurationPair) (sourceiface.Source, error) {
	useSource := c.Data.Source.Use
	decoderOpts := &config.DecoderOptions{
		Input: useSource.Body,
	}

	sourceList := make([]string, 0, len(supportedSources))
	for _, pair := range supportedSources {
		if pair.Name == useSource.Name {
			plug := pair.Handle
			component, err := c.CreateComponent(plug, decoderOpts)
			if err != nil {
				return nil, err
			}

			if s, ok := component.(sourceiface.Source); ok {
				return s, nil
			}

			return nil, fmt.Errorf("could not interpret source configuration for %q", useSource.Name)
		}
		sourceList = append(sourceList, pair.Name)
	}
	return nil, fmt.Errorf("Invalid source found: %s. Supported sources in this build: %s", useSource.Name, strings.Join(sourceList, ", "))
}
