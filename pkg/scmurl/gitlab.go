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

// GitLabUrl is a repository on gitlab.com or on a self-hosted GitLab. The FullPath contains all the (sub)groups and
// the project name, e.g. `group/subgroup/project`.
type GitLabUrl struct {
	Server    string
	FullPath  string
	Branch    string
	Filenames []string
}

var _ RemoteUrl = (*GitLabUrl)(nil)

func (g *GitLabUrl) remoteUrl() {}

func (g *GitLabUrl) ProviderName() config.ServiceProviderName {
	return config.ServiceProviderGitLab
}

func (g *GitLabUrl) ServerUrl() string {
	return g.Server
}

func (g *GitLabUrl) Ref() string {
	return g.Branch
}

func (g *GitLabUrl) DevfileFilenames() []string {
	return g.Filenames
}

func (g *GitLabUrl) RawFileLocation(fileName string) string {
	return g.Server + "/api/v4/projects/" + url.PathEscape(g.FullPath) +
		"/repository/files/" + url.PathEscape(strings.TrimPrefix(fileName, "/")) +
		"/raw?ref=" + url.QueryEscape(g.Branch)
}

func parseGitLab(r *Resolver, u *url.URL) (RemoteUrl, bool) {
	host := hostOf(u)
	if !r.gitlabHosts[host] && !strings.Contains(host, "gitlab") {
		return nil, false
	}

	projectPath, rest, _ := strings.Cut("/"+strings.Trim(u.Path, "/"), "/-/")
	projectSegments := strings.Split(strings.TrimPrefix(projectPath, "/"), "/")
	if len(projectSegments) < 2 || projectSegments[0] == "" {
		return nil, false
	}
	projectSegments[len(projectSegments)-1] = trimGitSuffix(projectSegments[len(projectSegments)-1])

	remote := &GitLabUrl{
		Server:   serverOf(u),
		FullPath: strings.Join(projectSegments, "/"),
		Branch:   DefaultRef,
	}

	file := ""
	restSegments := strings.Split(rest, "/")
	if len(restSegments) >= 2 && (restSegments[0] == "tree" || restSegments[0] == "blob") {
		remote.Branch = restSegments[1]
		if restSegments[0] == "blob" {
			file = strings.Join(restSegments[2:], "/")
		}
	}
	remote.Filenames = filenames(file)

	return remote, true
}
