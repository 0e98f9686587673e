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
	"net/http"
	"time"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/factory"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

type tokenResponse struct {
	Token         string                     `json:"token"`
	TokenName     string                     `json:"tokenName"`
	OAuthProvider config.ServiceProviderName `json:"oauthProvider"`
	ProviderUrl   string                     `json:"providerUrl"`
	IsOAuthIssued bool                       `json:"isOAuthIssued"`
}

type link struct {
	Rel    string `json:"rel"`
	Href   string `json:"href"`
	Method string `json:"method"`
}

type providerDescriptor struct {
	Name         config.ServiceProviderName `json:"name"`
	EndpointUrl  string                     `json:"endpointUrl"`
	OAuthVersion config.OAuthVersion        `json:"oauthVersion"`
	Links        []link                     `json:"links"`
}

// TokenHandler serves the personal access tokens of the caller.
type TokenHandler struct {
	Configuration config.SharedConfiguration
	Authenticator *Authenticator
	Credentials   credentials.Store
	OAuth1        *OAuth1Controller
}

// Get answers the personal access token of the caller for the provider in the oauth_provider parameter.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := log.FromContext(ctx)
	defer logs.TimeTrack(lg, time.Now(), "GET /oauth/token")

	identity, provider, ok := h.identityAndProvider(w, r)
	if !ok {
		return
	}

	namespace := h.Configuration.UserNamespace(identity.UserId, identity.UserName)
	pat, err := h.Credentials.Get(ctx, namespace, provider, "")
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to look up the token", err)
		return
	}
	if pat == nil {
		LogDebugAndWriteResponse(ctx, w, http.StatusNotFound, "no token found for the provider "+string(provider))
		return
	}

	writeJson(ctx, w, http.StatusOK, tokenResponse{
		Token:         pat.TokenData,
		TokenName:     pat.TokenName,
		OAuthProvider: pat.ScmProviderName,
		ProviderUrl:   pat.ScmProviderUrl,
		IsOAuthIssued: pat.IsOAuthIssued,
	})
}

// Delete revokes all the tokens of the caller for the provider in the oauth_provider parameter. Revoking nothing is
// not an error.
func (h *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := log.FromContext(ctx)
	defer logs.TimeTrack(lg, time.Now(), "DELETE /oauth/token")

	identity, provider, ok := h.identityAndProvider(w, r)
	if !ok {
		return
	}

	namespace := h.Configuration.UserNamespace(identity.UserId, identity.UserName)
	deleted, err := h.Credentials.DeleteAll(ctx, namespace, provider)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to revoke the tokens", err)
		return
	}

	accessRevoked := false
	if h.OAuth1 != nil {
		if engine, found := h.OAuth1.Engines[provider]; found {
			if accessRevoked, err = engine.HasAccessCredential(ctx, identity.UserId); err != nil {
				LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to look up the OAuth 1.0a access token", err)
				return
			}
			if accessRevoked {
				if err := engine.ForgetAccessCredential(ctx, identity.UserId); err != nil {
					LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to revoke the OAuth 1.0a access token", err)
					return
				}
			}
		}
	}

	AuditLogWithTokenInfo(ctx, "tokens revoked", namespace, string(provider), "userId", identity.UserId, "count", deleted, "oauth1AccessRevoked", accessRevoked, "action", "DELETE")
	w.WriteHeader(http.StatusNoContent)
}

// Providers lists the configured service providers with the links starting the authorization with them.
func (h *TokenHandler) Providers(w http.ResponseWriter, r *http.Request) {
	descriptors := make([]providerDescriptor, 0, len(h.Configuration.ServiceProviders))
	for _, sp := range h.Configuration.ServiceProviders {
		descriptors = append(descriptors, providerDescriptor{
			Name:         sp.Name,
			EndpointUrl:  sp.BaseUrl(),
			OAuthVersion: sp.OAuthVersion(),
			Links: []link{{
				Rel:    "authenticate link",
				Href:   factory.AuthenticateUrl(h.Configuration.BaseUrl, sp),
				Method: http.MethodGet,
			}},
		})
	}
	writeJson(r.Context(), w, http.StatusOK, descriptors)
}

func (h *TokenHandler) identityAndProvider(w http.ResponseWriter, r *http.Request) (Identity, config.ServiceProviderName, bool) {
	ctx := r.Context()
	identity, err := h.Authenticator.GetIdentity(ctx, r)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "failed extract the identity of the caller", err)
		return Identity{}, "", false
	}

	provider := config.ServiceProviderName(r.URL.Query().Get(oauthstate.ProviderParam))
	if provider == "" {
		LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "the oauth_provider parameter is required")
		return Identity{}, "", false
	}
	return identity, provider, true
}
