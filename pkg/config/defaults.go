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

package config

import (
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/bitbucket"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/gitlab"
)

const (
	GithubSaasHost    = "github.com"
	GithubSaasBaseUrl = "https://github.com"

	GitlabSaasHost    = "gitlab.com"
	GitlabSaasBaseUrl = "https://gitlab.com"

	BitbucketSaasHost    = "bitbucket.org"
	BitbucketSaasBaseUrl = "https://bitbucket.org"

	AzureDevOpsSaasHost    = "dev.azure.com"
	AzureDevOpsSaasBaseUrl = "https://dev.azure.com"
)

var AzureDevOpsEndpoint = oauth2.Endpoint{
	AuthURL:  "https://app.vssps.visualstudio.com/oauth2/authorize",
	TokenURL: "https://app.vssps.visualstudio.com/oauth2/token",
}

type ServiceProviderDefaults struct {
	Name     ServiceProviderName
	Endpoint oauth2.Endpoint
	UrlHost  string // default host of service provider. ex.: `github.com`
	BaseUrl  string // default base url of service provider, typically scheme+host. ex: `https://github.com`
}

var SupportedServiceProvidersDefaults = []ServiceProviderDefaults{
	{
		Name:     ServiceProviderGitHub,
		Endpoint: github.Endpoint,
		UrlHost:  GithubSaasHost,
		BaseUrl:  GithubSaasBaseUrl,
	},
	{
		Name:     ServiceProviderGitLab,
		Endpoint: gitlab.Endpoint,
		UrlHost:  GitlabSaasHost,
		BaseUrl:  GitlabSaasBaseUrl,
	},
	{
		Name:     ServiceProviderBitbucket,
		Endpoint: bitbucket.Endpoint,
		UrlHost:  BitbucketSaasHost,
		BaseUrl:  BitbucketSaasBaseUrl,
	},
	{
		Name:     ServiceProviderAzureDevOps,
		Endpoint: AzureDevOpsEndpoint,
		UrlHost:  AzureDevOpsSaasHost,
		BaseUrl:  AzureDevOpsSaasBaseUrl,
	},
	// Bitbucket Server is always self-hosted and has no well-known instance.
	{
		Name: ServiceProviderBitbucketServer,
	},
}

func DefaultsFor(name ServiceProviderName) (ServiceProviderDefaults, bool) {
	for _, d := range SupportedServiceProvidersDefaults {
		if d.Name == name {
			return d, true
		}
	}
	return ServiceProviderDefaults{}, false
}

// OAuthEndpoint returns the OAuth 2.0 endpoint of the configured provider. Explicitly configured URLs take precedence,
// then the endpoints derived from a custom base URL and finally the well-known defaults.
func OAuthEndpoint(sp ServiceProviderConfiguration) oauth2.Endpoint {
	endpoint := oauth2.Endpoint{}
	if defaults, ok := DefaultsFor(sp.Name); ok {
		endpoint = defaults.Endpoint
	}

	if sp.ServiceProviderBaseUrl != "" {
		endpoint = createDefaultEndpoint(sp.Name, sp.ServiceProviderBaseUrl)
	}

	if sp.AuthUrl != "" {
		endpoint.AuthURL = sp.AuthUrl
	}
	if sp.TokenUrl != "" {
		endpoint.TokenURL = sp.TokenUrl
	}
	return endpoint
}

func createDefaultEndpoint(name ServiceProviderName, baseUrl string) oauth2.Endpoint {
	base := strings.TrimSuffix(baseUrl, "/")
	switch name {
	case ServiceProviderGitHub:
		return oauth2.Endpoint{AuthURL: base + "/login/oauth/authorize", TokenURL: base + "/login/oauth/access_token"}
	case ServiceProviderGitLab:
		return oauth2.Endpoint{AuthURL: base + "/oauth/authorize", TokenURL: base + "/oauth/token"}
	case ServiceProviderBitbucket:
		return oauth2.Endpoint{AuthURL: base + "/site/oauth2/authorize", TokenURL: base + "/site/oauth2/access_token"}
	}
	return oauth2.Endpoint{}
}

// DefaultScopes are the OAuth 2.0 scopes requested when the caller doesn't ask for any specific ones.
func DefaultScopes(name ServiceProviderName) []string {
	switch name {
	case ServiceProviderGitHub:
		return []string{"repo", "user:email", "read:user"}
	case ServiceProviderGitLab:
		return []string{"api", "write_repository", "openid"}
	case ServiceProviderBitbucket:
		return []string{"repository"}
	case ServiceProviderAzureDevOps:
		return []string{"vso.code_write"}
	}
	return nil
}
