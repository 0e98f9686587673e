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

// BitbucketServerUrl is a repository on a self-hosted Bitbucket Server. Exactly one of Project and User is set,
// depending on whether the repository belongs to a project or is a personal repository.
type BitbucketServerUrl struct {
	Server     string
	Project    string
	User       string
	Repository string
	Branch     string
	Filenames  []string
}

var _ RemoteUrl = (*BitbucketServerUrl)(nil)

func (b *BitbucketServerUrl) remoteUrl() {}

func (b *BitbucketServerUrl) ProviderName() config.ServiceProviderName {
	return config.ServiceProviderBitbucketServer
}

func (b *BitbucketServerUrl) ServerUrl() string {
	return b.Server
}

func (b *BitbucketServerUrl) Ref() string {
	return b.Branch
}

func (b *BitbucketServerUrl) DevfileFilenames() []string {
	return b.Filenames
}

func (b *BitbucketServerUrl) RawFileLocation(fileName string) string {
	owner := "/projects/" + b.Project
	if b.User != "" {
		owner = "/users/" + b.User
	}
	location := b.Server + "/rest/api/1.0" + owner + "/repos/" + b.Repository + "/raw/" + strings.TrimPrefix(fileName, "/")
	if b.Branch != DefaultRef {
		location += "?at=" + url.QueryEscape(b.Branch)
	}
	return location
}

func parseBitbucketServer(r *Resolver, u *url.URL) (RemoteUrl, bool) {
	host := hostOf(u)
	if host == config.BitbucketSaasHost {
		return nil, false
	}

	segments := pathSegments(u)
	remote := &BitbucketServerUrl{Branch: orDefaultRef(u.Query().Get("at"))}

	file := ""
	matched := false
shapes:
	for i, s := range segments {
		rest := segments[i+1:]
		switch {
		case s == "scm" && len(rest) >= 2:
			// /scm/PROJECT/repo.git or /scm/~user/repo.git
			if strings.HasPrefix(rest[0], "~") {
				remote.User = strings.TrimPrefix(rest[0], "~")
			} else {
				remote.Project = rest[0]
			}
			remote.Repository = trimGitSuffix(rest[1])
		case (s == "projects" || s == "users") && len(rest) >= 3 && rest[1] == "repos":
			// /projects/PROJECT/repos/repo/browse/path or /users/user/repos/repo/browse/path
			if s == "users" {
				remote.User = rest[0]
			} else {
				remote.Project = rest[0]
			}
			remote.Repository = rest[2]
			if len(rest) > 4 && rest[3] == "browse" {
				file = strings.Join(rest[4:], "/")
			}
		default:
			continue
		}
		remote.Server = serverOf(u) + contextPath(segments[:i])
		matched = true
		break shapes
	}

	// the SSH clone URLs of the configured servers have no distinctive path shape, e.g.
	// ssh://git@bitbucket.acme.com:7999/project/repo.git
	if !matched && r.bitbucketServerHosts[host] && len(segments) == 2 {
		if strings.HasPrefix(segments[0], "~") {
			remote.User = strings.TrimPrefix(segments[0], "~")
		} else {
			remote.Project = segments[0]
		}
		remote.Repository = trimGitSuffix(segments[1])
		remote.Server = serverOf(u)
		matched = true
	}

	if !matched {
		return nil, false
	}

	remote.Filenames = filenames(file)
	return remote, true
}

func contextPath(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}
