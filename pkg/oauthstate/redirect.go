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

package oauthstate

import (
	"net/url"
	"strings"
)

// ErrorCodeParam is the query parameter carrying the error code when the flow redirects back after a failure.
const ErrorCodeParam = "error_code"

// RepairRedirect makes the redirect URL parsable by strict URI parsers. If the URL contains literal curly braces, its
// query component is percent-encoded as a whole. The scheme, host and path are left untouched. URLs without the braces
// are returned unchanged.
func RepairRedirect(redirect string) string {
	if !strings.ContainsAny(redirect, "{}") {
		return redirect
	}

	base, query, found := strings.Cut(redirect, "?")
	if !found {
		return redirect
	}
	return base + "?" + url.QueryEscape(query)
}

// AppendErrorCode repairs the redirect URL and adds the error_code query parameter to it.
func AppendErrorCode(redirect string, errorCode string) string {
	repaired := RepairRedirect(redirect)
	separator := "?"
	if strings.Contains(repaired, "?") {
		separator = "&"
	}
	return repaired + separator + ErrorCodeParam + "=" + url.QueryEscape(errorCode)
}

// RedirectTarget returns the repaired redirect of the state or the provided default if the state doesn't have any.
func (s OAuthState) RedirectTarget(defaultRedirect string) string {
	if s.RedirectAfterLogin == "" {
		return RepairRedirect(defaultRedirect)
	}
	return RepairRedirect(s.RedirectAfterLogin)
}
