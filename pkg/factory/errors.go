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
	"errors"
	"fmt"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

var (
	// ErrUnsupportedRepository is returned when the repository URL doesn't belong to any of the supported providers.
	ErrUnsupportedRepository = errors.New("the repository URL is not supported")
	// ErrDevfileNotFound is returned when none of the candidate devfiles exists in the repository.
	ErrDevfileNotFound = errors.New("no devfile found in the repository")
	// ErrPrivateRepository is returned for private repositories of the providers the user can't authorize with.
	ErrPrivateRepository = errors.New("the repository is private")
	// ErrInvalidDevfile is returned when the devfile is not a valid YAML document.
	ErrInvalidDevfile = errors.New("the devfile is not valid")
)

// AuthorizationRequiredError signals that the repository is private and the user needs to authorize the access to it
// by going through the OAuth flow on the AuthenticateUrl.
type AuthorizationRequiredError struct {
	Provider        config.ServiceProviderName
	ServerUrl       string
	OAuthVersion    config.OAuthVersion
	AuthenticateUrl string
}

func (e *AuthorizationRequiredError) Error() string {
	return fmt.Sprintf("authorization with %s (%s) is required to access the repository", e.Provider, e.ServerUrl)
}

// IsAuthorizationRequired checks whether the error is or wraps the AuthorizationRequiredError.
func IsAuthorizationRequired(err error) (*AuthorizationRequiredError, bool) {
	var are *AuthorizationRequiredError
	if errors.As(err, &are) {
		return are, true
	}
	return nil, false
}
