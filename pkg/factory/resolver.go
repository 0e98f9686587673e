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

package factory

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v45/github"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/scmurl"
	"github.com/xanzy/go-gitlab"
	"gopkg.in/yaml.v3"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const maxDevfileSize = 1 << 20

// Devfile is the devfile found in the repository.
type Devfile struct {
	Provider      config.ServiceProviderName `json:"provider"`
	Filename      string                     `json:"filename"`
	Location      string                     `json:"location"`
	SchemaVersion string                     `json:"schemaVersion,omitempty"`
	Name          string                     `json:"name,omitempty"`
	Content       string                     `json:"content"`
}

type devfileHeader struct {
	SchemaVersion string `yaml:"schemaVersion"`
	Metadata      struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
}

// Resolver finds the devfile of a repository using the personal access tokens of the user.
type Resolver struct {
	Configuration config.SharedConfiguration
	UrlResolver   *scmurl.Resolver
	Credentials   credentials.Store
	HttpClient    *http.Client
}

// Resolve looks up the devfile in the repository. If the repository is private and the user has no usable token for
// it, *AuthorizationRequiredError is returned.
func (r *Resolver) Resolve(ctx context.Context, namespace string, repoUrl string) (*Devfile, error) {
	lg := log.FromContext(ctx).WithValues("repoUrl", repoUrl)
	defer logs.TimeTrack(lg, time.Now(), "resolve devfile")

	remote, ok := r.UrlResolver.Parse(repoUrl)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRepository, repoUrl)
	}
	lg = lg.WithValues("provider", remote.ProviderName(), "ref", remote.Ref())

	pat, err := r.Credentials.Get(ctx, namespace, remote.ProviderName(), remote.ServerUrl())
	if err != nil {
		return nil, fmt.Errorf("failed to look up the personal access token: %w", err)
	}

	for _, candidate := range scmurl.DevfileFileLocations(remote) {
		content, status, err := r.fetch(ctx, remote, candidate.Location, pat)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			lg.V(logs.DebugLevel).Info("devfile found", "location", candidate.Location)
			return parseDevfile(remote, candidate, content)
		case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
			if pat != nil {
				if status == http.StatusNotFound {
					continue
				}
				// the stored token is no longer valid
				lg.Info("the personal access token was refused by the provider", "status", status)
				return nil, r.authorizationRequired(remote)
			}
			private, err := r.isPrivate(ctx, remote, status)
			if err != nil {
				return nil, err
			}
			if private {
				return nil, r.authorizationRequired(remote)
			}
		default:
			return nil, fmt.Errorf("unexpected status %d when fetching %s", status, candidate.Location)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDevfileNotFound, repoUrl)
}

func (r *Resolver) fetch(ctx context.Context, remote scmurl.RemoteUrl, location string, pat *credentials.PersonalAccessToken) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create the request for %s: %w", location, err)
	}
	if pat != nil {
		req.Header.Set("Authorization", authorizationHeader(remote.ProviderName(), pat.TokenData))
	}

	resp, err := r.HttpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDevfileSize))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return string(body), resp.StatusCode, nil
}

// isPrivate checks whether the repository is hidden from the anonymous users.
func (r *Resolver) isPrivate(ctx context.Context, remote scmurl.RemoteUrl, status int) (bool, error) {
	switch u := remote.(type) {
	case *scmurl.GitHubUrl:
		client := github.NewClient(r.HttpClient)
		if u.IsEnterprise() {
			var err error
			client, err = github.NewEnterpriseClient(u.Server+"/api/v3/", u.Server+"/api/uploads/", r.HttpClient)
			if err != nil {
				return false, fmt.Errorf("failed to create the GitHub client: %w", err)
			}
		}
		_, resp, err := client.Repositories.Get(ctx, u.Owner, u.Repository)
		if resp == nil {
			return isHidden(nil, err)
		}
		return isHidden(resp.Response, err)
	case *scmurl.GitLabUrl:
		client, err := gitlab.NewClient("", gitlab.WithBaseURL(u.Server+"/api/v4"), gitlab.WithHTTPClient(r.HttpClient))
		if err != nil {
			return false, fmt.Errorf("failed to create the GitLab client: %w", err)
		}
		_, resp, err := client.Projects.GetProject(u.FullPath, nil, gitlab.WithContext(ctx))
		if resp == nil {
			return isHidden(nil, err)
		}
		return isHidden(resp.Response, err)
	}
	return status == http.StatusUnauthorized || status == http.StatusForbidden, nil
}

func isHidden(resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true, nil
		}
	}
	return false, fmt.Errorf("failed to check the visibility of the repository: %w", err)
}

func (r *Resolver) authorizationRequired(remote scmurl.RemoteUrl) error {
	sp, configured := r.Configuration.FindServiceProvider(remote.ProviderName())
	if !configured {
		return fmt.Errorf("%w: no OAuth application is configured for %s", ErrPrivateRepository, remote.ProviderName())
	}

	return &AuthorizationRequiredError{
		Provider:        remote.ProviderName(),
		ServerUrl:       remote.ServerUrl(),
		OAuthVersion:    sp.OAuthVersion(),
		AuthenticateUrl: AuthenticateUrl(r.Configuration.BaseUrl, sp),
	}
}

// AuthenticateUrl is the URL of the OAuth service endpoint starting the authorization flow with the provider.
func AuthenticateUrl(baseUrl string, sp config.ServiceProviderConfiguration) string {
	query := url.Values{}
	query.Set("oauth_provider", string(sp.Name))
	query.Set("request_method", http.MethodPost)
	query.Set("signature_method", "rsa")
	if sp.OAuthVersion() == config.OAuth1 {
		return baseUrl + "/oauth/1.0/authenticate?" + query.Encode()
	}
	query.Set("scope", strings.Join(config.DefaultScopes(sp.Name), " "))
	return baseUrl + "/oauth/authenticate?" + query.Encode()
}

func parseDevfile(remote scmurl.RemoteUrl, location scmurl.DevfileLocation, content string) (*Devfile, error) {
	header := devfileHeader{}
	if err := yaml.Unmarshal([]byte(content), &header); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDevfile, location.Location, err.Error())
	}
	return &Devfile{
		Provider:      remote.ProviderName(),
		Filename:      location.Filename,
		Location:      location.Location,
		SchemaVersion: header.SchemaVersion,
		Name:          header.Metadata.Name,
		Content:       content,
	}, nil
}

func authorizationHeader(provider config.ServiceProviderName, token string) string {
	if provider == config.ServiceProviderAzureDevOps {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+token))
	}
	return "Bearer " + token
}
