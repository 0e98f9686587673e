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

// AzureDevOpsUrl is a Git repository hosted on Azure DevOps Services.
type AzureDevOpsUrl struct {
	Organization string
	Project      string
	Repository   string
	Branch       string
	// RefType is one of "branch", "tag" or "commit".
	RefType   string
	Filenames []string
}

var _ RemoteUrl = (*AzureDevOpsUrl)(nil)

func (a *AzureDevOpsUrl) remoteUrl() {}

func (a *AzureDevOpsUrl) ProviderName() config.ServiceProviderName {
	return config.ServiceProviderAzureDevOps
}

func (a *AzureDevOpsUrl) ServerUrl() string {
	return config.AzureDevOpsSaasBaseUrl
}

func (a *AzureDevOpsUrl) Ref() string {
	return a.Branch
}

func (a *AzureDevOpsUrl) DevfileFilenames() []string {
	return a.Filenames
}

func (a *AzureDevOpsUrl) RawFileLocation(fileName string) string {
	q := url.Values{}
	q.Set("path", "/"+strings.TrimPrefix(fileName, "/"))
	q.Set("api-version", "7.0")
	if a.Branch != DefaultRef {
		q.Set("versionDescriptor.version", a.Branch)
		q.Set("versionDescriptor.versionType", a.RefType)
	}
	return config.AzureDevOpsSaasBaseUrl + "/" + a.Organization + "/" + a.Project + "/_apis/git/repositories/" +
		a.Repository + "/items?" + q.Encode()
}

var azureVersionPrefixes = map[string]string{
	"GB": "branch",
	"GT": "tag",
	"GC": "commit",
}

func parseAzureDevOps(_ *Resolver, u *url.URL) (RemoteUrl, bool) {
	host := hostOf(u)
	segments := pathSegments(u)

	var org string
	switch {
	case host == config.AzureDevOpsSaasHost:
		// https://dev.azure.com/org/project/_git/repo
		if len(segments) < 4 {
			return nil, false
		}
		org, segments = segments[0], segments[1:]
	case host == "ssh.dev.azure.com":
		// git@ssh.dev.azure.com:v3/org/project/repo
		if len(segments) != 4 || segments[0] != "v3" {
			return nil, false
		}
		segments = []string{segments[2], "_git", segments[3]}
		org = pathSegments(u)[1]
	case strings.HasSuffix(host, ".visualstudio.com"):
		// https://org.visualstudio.com/project/_git/repo
		org = strings.TrimSuffix(host, ".visualstudio.com")
	default:
		return nil, false
	}

	if len(segments) < 3 || segments[1] != "_git" {
		return nil, false
	}

	remote := &AzureDevOpsUrl{
		Organization: org,
		Project:      segments[0],
		Repository:   trimGitSuffix(segments[2]),
		Branch:       DefaultRef,
		RefType:      "branch",
	}

	query := u.Query()
	if version := query.Get("version"); len(version) > 2 {
		if refType, ok := azureVersionPrefixes[version[:2]]; ok {
			remote.Branch = version[2:]
			remote.RefType = refType
		}
	}
	remote.Filenames = filenames(strings.TrimPrefix(query.Get("path"), "/"))

	return remote, true
}
