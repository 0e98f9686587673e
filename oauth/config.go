// Copyright (c) 2021 Red Hat, Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth

import (
	"fmt"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

type OAuthServiceConfiguration struct {
	config.SharedConfiguration `validate:"required"`
}

func LoadOAuthServiceConfiguration(configFile string, baseUrl string) (OAuthServiceConfiguration, error) {
	baseCfg, err := config.LoadFrom(configFile, baseUrl)
	if err != nil {
		return OAuthServiceConfiguration{}, fmt.Errorf("failed to load the configuration from file %s: %w", configFile, err)
	}

	return OAuthServiceConfiguration{SharedConfiguration: baseCfg}, nil
}
