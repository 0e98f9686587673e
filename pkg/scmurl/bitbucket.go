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

// BitbucketUrl is a repository on Bitbucket Cloud.
type BitbucketUrl struct {
	Workspace  string
	Repository string
	Branch     string
	Filenames  []string
}

var _ RemoteUrl = (*BitbucketUrl)(nil)

func (b *BitbucketUrl) remoteUrl() {}

func (b *BitbucketUrl) ProviderName() config.ServiceProviderName {
	return config.ServiceProviderBitbucket
}

func (b *BitbucketUrl) ServerUrl() string {
	return config.BitbucketSaasBaseUrl
}

func (b *BitbucketUrl) Ref() string {
	return b.Branch
}

func (b *BitbucketUrl) DevfileFilenames() []string {
	return b.Filenames
}

func (b *BitbucketUrl) RawFileLocation(fileName string) string {
	return "https://api.bitbucket.org/2.0/repositories/" + b.Workspace + "/" + b.Repository + "/src/" +
		url.PathEscape(b.Branch) + "/" + strings.TrimPrefix(fileName, "/")
}

func parseBitbucket(_ *Resolver, u *url.URL) (RemoteUrl, bool) {
	if hostOf(u) != config.BitbucketSaasHost {
		return nil, false
	}

	segments := pathSegments(u)
	if len(segments) < 2 {
		return nil, false
	}

	remote := &BitbucketUrl{
		Workspace:  segments[0],
		Repository: trimGitSuffix(segments[1]),
		Branch:     DefaultRef,
	}

	// /src/ is used for both the files and the directories, a directory keeps the default candidates
	file := ""
	if len(segments) >= 4 && segments[2] == "src" {
		remote.Branch = segments[3]
		if len(segments) > 4 && !strings.HasSuffix(u.Path, "/") && strings.Contains(segments[len(segments)-1], ".") {
			file = strings.Join(segments[4:], "/")
		}
	}
	remote.Filenames = filenames(file)

	return remote, true
}
