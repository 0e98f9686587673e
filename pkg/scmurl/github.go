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
	"strings"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

// GitHubUrl is a repository on github.com or on a GitHub Enterprise server.
type GitHubUrl struct {
	Server     string
	Owner      string
	Repository string
	Branch     string
	Filenames  []string
}

var _ RemoteUrl = (*GitHubUrl)(nil)

func (g *GitHubUrl) remoteUrl() {}

func (g *GitHubUrl) ProviderName() config.ServiceProviderName {
	return config.ServiceProviderGitHub
}

func (g *GitHubUrl) ServerUrl() string {
	return g.Server
}

func (g *GitHubUrl) Ref() string {
	return g.Branch
}

func (g *GitHubUrl) DevfileFilenames() []string {
	return g.Filenames
}

// IsEnterprise tells whether the repository is hosted on a GitHub Enterprise server.
func (g *GitHubUrl) IsEnterprise() bool {
	return config.NormalizeHost(g.Server) != config.GithubSaasHost
}

func (g *GitHubUrl) RawFileLocation(fileName string) string {
	file := strings.TrimPrefix(fileName, "/")
	if g.IsEnterprise() {
		return g.Server + "/raw/" + g.Owner + "/" + g.Repository + "/" + url.PathEscape(g.Branch) + "/" + file
	}
	return "https://raw.githubusercontent.com/" + g.Owner + "/" + g.Repository + "/" + url.PathEscape(g.Branch) + "/" + file
}

func parseGitHub(r *Resolver, u *url.URL) (RemoteUrl, bool) {
	host := hostOf(u)
	if !r.githubHosts[host] && !strings.Contains(host, "github") {
		return nil, false
	}

	segments := pathSegments(u)
	if len(segments) < 2 {
		return nil, false
	}

	remote := &GitHubUrl{
		Server:     serverOf(u),
		Owner:      segments[0],
		Repository: trimGitSuffix(segments[1]),
		Branch:     DefaultRef,
	}

	// only /blob/ points to a file, /tree/ keeps the default candidates
	file := ""
	if len(segments) >= 4 && (segments[2] == "tree" || segments[2] == "blob") {
		remote.Branch = segments[3]
		if segments[2] == "blob" {
			file = strings.Join(segments[4:], "/")
		}
	}
	remote.Filenames = filenames(file)

	return remote, true
}
