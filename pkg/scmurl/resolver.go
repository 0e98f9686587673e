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

package scmurl

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

// DefaultRef is used when the repository URL doesn't point to any particular branch, tag or commit.
const DefaultRef = "HEAD"

// DefaultDevfileFilenames are the file names looked up in a repository when the URL doesn't name a file explicitly.
var DefaultDevfileFilenames = []string{"devfile.yaml", ".devfile.yaml"}

// RemoteUrl is the description of a repository hosted by one of the supported SCM providers. The set of
// implementations is closed, a new provider is supported by adding a new variant to this package.
type RemoteUrl interface {
	// ProviderName is the name of the SCM provider hosting the repository.
	ProviderName() config.ServiceProviderName
	// ServerUrl is the base URL of the SCM server, e.g. https://github.com.
	ServerUrl() string
	// Ref is the branch, tag or commit of the repository, DefaultRef if the URL didn't specify any.
	Ref() string
	// DevfileFilenames are the candidate names of the devfile in the repository.
	DevfileFilenames() []string
	// RawFileLocation returns the URL from which the raw content of the file can be downloaded. It never does any
	// network I/O.
	RawFileLocation(fileName string) string

	remoteUrl()
}

// DevfileLocation pairs the name of a devfile with the URL of its raw content.
type DevfileLocation struct {
	Filename string
	Location string
}

// DevfileFileLocations returns the raw locations of all the candidate devfiles of the repository in the order of
// preference.
func DevfileFileLocations(u RemoteUrl) []DevfileLocation {
	locations := make([]DevfileLocation, 0, len(u.DevfileFilenames()))
	for _, f := range u.DevfileFilenames() {
		locations = append(locations, DevfileLocation{Filename: f, Location: u.RawFileLocation(f)})
	}
	return locations
}

type parser func(r *Resolver, u *url.URL) (RemoteUrl, bool)

// Resolver classifies repository URLs into one of the supported providers.
type Resolver struct {
	githubHosts          map[string]bool
	gitlabHosts          map[string]bool
	bitbucketServerHosts map[string]bool
	parsers              []parser
}

// NewResolver creates a new resolver recognizing the well-known SaaS hosts and the self-hosted servers from the
// provided configuration.
func NewResolver(cfg config.SharedConfiguration) *Resolver {
	r := &Resolver{
		githubHosts:          map[string]bool{config.GithubSaasHost: true},
		gitlabHosts:          map[string]bool{config.GitlabSaasHost: true},
		bitbucketServerHosts: map[string]bool{},
		// the order matters, Bitbucket Server path shapes must be checked before the Bitbucket Cloud ones
		parsers: []parser{parseGitHub, parseGitLab, parseBitbucketServer, parseBitbucket, parseAzureDevOps},
	}

	for _, sp := range cfg.ServiceProviders {
		if sp.ServiceProviderBaseUrl == "" {
			continue
		}
		host := config.NormalizeHost(sp.ServiceProviderBaseUrl)
		switch sp.Name {
		case config.ServiceProviderGitHub:
			r.githubHosts[host] = true
		case config.ServiceProviderGitLab:
			r.gitlabHosts[host] = true
		case config.ServiceProviderBitbucketServer:
			r.bitbucketServerHosts[host] = true
		}
	}

	return r
}

// Parse tries to match the provided URL with the supported providers. The second return value is false if no provider
// matched or if the URL could not be parsed at all.
func (r *Resolver) Parse(repoUrl string) (RemoteUrl, bool) {
	u, ok := normalize(repoUrl)
	if !ok {
		return nil, false
	}

	for _, p := range r.parsers {
		if remote, matched := p(r, u); matched {
			return remote, true
		}
	}

	return nil, false
}

var scpLikeUrlRegexp = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+):(?:\d+/)?(.+)$`)

// normalize rewrites the SSH forms of the repository URLs to their HTTPS equivalent and parses the result.
func normalize(repoUrl string) (*url.URL, bool) {
	raw := strings.TrimSpace(repoUrl)
	if raw == "" {
		return nil, false
	}

	if strings.HasPrefix(raw, "ssh://") {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return nil, false
		}
		raw = "https://" + u.Hostname() + u.Path
	} else if !strings.Contains(raw, "://") {
		if matches := scpLikeUrlRegexp.FindStringSubmatch(raw); matches != nil {
			raw = "https://" + matches[1] + "/" + strings.TrimPrefix(matches[2], "/")
		} else {
			raw = "https://" + raw
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Hostname() == "" {
		return nil, false
	}
	u.User = nil
	return u, true
}

func pathSegments(u *url.URL) []string {
	segments := []string{}
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func trimGitSuffix(repository string) string {
	return strings.TrimSuffix(repository, ".git")
}

func hostOf(u *url.URL) string {
	return config.NormalizeHost(u.Scheme + "://" + u.Host)
}

func serverOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// filenames returns the file named in the URL as the only candidate or the default devfile names.
func filenames(file string) []string {
	if file != "" {
		return []string{file}
	}
	return DefaultDevfileFilenames
}

func orDefaultRef(ref string) string {
	if ref == "" {
		return DefaultRef
	}
	return ref
}
