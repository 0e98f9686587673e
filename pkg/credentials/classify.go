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

package credentials

import (
	"net/url"
	"strings"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

// ClassifyProvider guesses the provider hosting the repository from its URL. It is used to pick the OAuth flow for
// repositories that the URL resolver can't parse. Self-hosted Bitbucket Server is recognized by its path shapes.
func ClassifyProvider(repoUrl string) (config.ServiceProviderName, bool) {
	raw := strings.TrimSpace(repoUrl)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	host := config.NormalizeHost(u.Scheme + "://" + u.Host)
	path := strings.ToLower(u.Path) + "/"

	switch {
	case strings.Contains(host, "github"):
		return config.ServiceProviderGitHub, true
	case strings.Contains(host, "gitlab"):
		return config.ServiceProviderGitLab, true
	case host == config.BitbucketSaasHost:
		return config.ServiceProviderBitbucket, true
	case strings.Contains(path, "/scm/") || strings.Contains(path, "/projects/") || strings.Contains(path, "/users/"):
		return config.ServiceProviderBitbucketServer, true
	case host == config.AzureDevOpsSaasHost || strings.HasSuffix(host, ".visualstudio.com"):
		return config.ServiceProviderAzureDevOps, true
	}
	return "", false
}
