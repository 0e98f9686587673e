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

package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
)

// Controller implements the OAuth 2.0 flow. There are specific implementations for each service provider. These
// are usually instances of the commonController with service-provider-specific configuration.
type Controller interface {
	// Authenticate handles the initial OAuth request. It identifies the caller, composes the OAuth state and redirects
	// to the service-provider OAuth endpoint with the state.
	Authenticate(w http.ResponseWriter, r *http.Request)

	// Callback finishes the OAuth flow. It handles the final redirect from the OAuth flow of the service provider.
	Callback(ctx context.Context, w http.ResponseWriter, r *http.Request, state oauthstate.OAuthState)
}

var (
	errMissingOAuthEndpoint = errors.New("no OAuth 2.0 endpoint known for the service provider")
)

// InitController creates the OAuth 2.0 controller of the configured service provider.
func InitController(lg *logr.Logger, sp config.ServiceProviderConfiguration, cfg RouterConfiguration) (Controller, error) {
	endpoint := config.OAuthEndpoint(sp)
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, fmt.Errorf("%w '%s' base url '%s'", errMissingOAuthEndpoint, sp.Name, sp.BaseUrl())
	}

	lg.Info("initializing service provider controller", "provider", sp.Name, "url", sp.BaseUrl())
	if sp.ClientId == "" {
		lg.Info("no client id configured, the OAuth application must be configured in the user namespaces", "provider", sp.Name)
	}

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = &Authenticator{}
	}

	if cfg.StateCodec == nil {
		return nil, fmt.Errorf("no state codec configured for the service provider %s", sp.Name)
	}

	return &commonController{
		Config:        sp,
		Configuration: cfg.SharedConfiguration,
		Endpoint:      endpoint,
		K8sClient:     cfg.K8sClient,
		Credentials:   cfg.Credentials,
		Authenticator: authenticator,
		HttpClient:    cfg.HttpClient,
		StateCodec:    cfg.StateCodec,
	}, nil
}
