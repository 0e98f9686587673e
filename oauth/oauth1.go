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
	"net/http"
	"strconv"
	"time"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	sperrors "github.com/redhat-appstudio/scm-oauth-service/pkg/errors"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauth1"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	errUnknownOAuth1Provider = errors.New("no OAuth 1.0a engine configured for the service provider")
)

// OAuth1Controller exposes the OAuth 1.0a engines over HTTP. The same callback URL is shared by all the engines, the
// provider is recovered from the state.
type OAuth1Controller struct {
	Configuration config.SharedConfiguration
	Engines       map[config.ServiceProviderName]*oauth1.Engine
	Authenticator *Authenticator
	Credentials   credentials.Store
	StateCodec    *oauthstate.Codec
}

func NewOAuth1Controller(cfg config.SharedConfiguration, authenticator *Authenticator, store credentials.Store, codec *oauthstate.Codec, engines ...*oauth1.Engine) *OAuth1Controller {
	c := &OAuth1Controller{
		Configuration: cfg,
		Engines:       map[config.ServiceProviderName]*oauth1.Engine{},
		Authenticator: authenticator,
		Credentials:   store,
		StateCodec:    codec,
	}
	for _, e := range engines {
		c.Engines[e.Provider()] = e
	}
	return c
}

func (c *OAuth1Controller) engine(provider config.ServiceProviderName) (*oauth1.Engine, error) {
	if e, ok := c.Engines[provider]; ok {
		return e, nil
	}
	return nil, sperrors.New(sperrors.ProtocolError, string(provider), errUnknownOAuth1Provider)
}

// Authenticate obtains the request token and redirects the user to the authorization page of the provider.
func (c *OAuth1Controller) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := log.FromContext(ctx)
	defer logs.TimeTrack(lg, time.Now(), "/oauth/1.0/authenticate")

	query := r.URL.Query()
	redirect := oauthstate.FromQuery(query).RedirectTarget(c.Configuration.DefaultRedirectUrl)

	identity, err := c.Authenticator.GetIdentity(ctx, r)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "No active session was found. Please use `/login` method to authorize your request and try again.", err)
		return
	}

	engine, err := c.engine(config.ServiceProviderName(query.Get(oauthstate.ProviderParam)))
	if err != nil {
		LogErrorAndRedirect(ctx, w, r, redirect, http.StatusTemporaryRedirect, err)
		return
	}

	// the query travels through the provider and comes back as the state of the callback
	namespace := c.Configuration.UserNamespace(identity.UserId, identity.UserName)
	query.Set(oauthstate.UserNameParam, identity.UserName)
	query.Set(oauthstate.NamespaceParam, namespace)
	query.Set(oauthstate.IssuedAtParam, strconv.FormatInt(time.Now().Unix(), 10))
	if redirectAfterLogin := query.Get(oauthstate.RedirectAfterLoginParam); redirectAfterLogin != "" {
		query.Set(oauthstate.RedirectAfterLoginParam, oauthstate.RepairRedirect(redirectAfterLogin))
	}
	stateUrl := *r.URL
	stateUrl.RawQuery = query.Encode()

	authorizeUrl, err := engine.GetAuthenticateUrl(ctx, &stateUrl, query.Get(oauthstate.RequestMethodParam), query.Get(oauthstate.SignatureMethodParam), identity.UserId)
	if err != nil {
		LogErrorAndRedirect(ctx, w, r, redirect, http.StatusTemporaryRedirect, err)
		return
	}

	AuditLogWithTokenInfo(ctx, "OAuth 1.0a authentication flow started", namespace, string(engine.Provider()), "userId", identity.UserId)
	http.Redirect(w, r, authorizeUrl, http.StatusTemporaryRedirect)
}

// Callback exchanges the authorized request token for the access token, issues the personal access token of the user
// and redirects back to the redirect_after_login from the state.
func (c *OAuth1Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := log.FromContext(ctx)
	defer logs.TimeTrack(lg, time.Now(), "/oauth/1.0/callback")

	state, err := c.StateCodec.Parse(r.URL.Query().Get("state"))
	if err != nil {
		LogErrorAndRedirect(ctx, w, r, c.Configuration.DefaultRedirectUrl, http.StatusTemporaryRedirect, sperrors.New(sperrors.ProtocolError, "failed to verify the state", err))
		return
	}
	redirect := state.RedirectTarget(c.Configuration.DefaultRedirectUrl)

	engine, err := c.engine(state.Provider)
	if err != nil {
		LogErrorAndRedirect(ctx, w, r, redirect, http.StatusTemporaryRedirect, err)
		return
	}

	state, err = engine.Callback(ctx, r.URL)
	if err == nil {
		err = c.issuePersonalAccessToken(ctx, engine, state)
	}
	if err != nil {
		observeFlowCompletion(engine.Provider(), config.OAuth1, sperrors.KindOf(err).ErrorCode(), state.IssuedAt)
		LogErrorAndRedirect(ctx, w, r, redirect, http.StatusTemporaryRedirect, err)
		return
	}

	observeFlowCompletion(engine.Provider(), config.OAuth1, flowStatusSuccess, state.IssuedAt)
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

func (c *OAuth1Controller) issuePersonalAccessToken(ctx context.Context, engine *oauth1.Engine, state oauthstate.OAuthState) error {
	identity, err := callbackIdentity(ctx, c.Authenticator, state)
	if err != nil {
		return err
	}
	namespace := c.Configuration.UserNamespace(identity.UserId, identity.UserName)

	issued, err := engine.IssuePersonalAccessToken(ctx, identity.UserId, credentials.NewTokenName())
	if err != nil {
		return err
	}

	pat, err := c.Credentials.Create(ctx, namespace, credentials.PersonalAccessToken{
		TokenName:       issued.Name,
		TokenData:       issued.Token,
		ScmProviderName: engine.Provider(),
		ScmProviderUrl:  engine.ServerUrl(),
		ScmUserId:       identity.UserId,
		ScmUserName:     issued.Username,
		IsOAuthIssued:   true,
	})
	if err != nil {
		return err
	}

	AuditLogWithTokenInfo(ctx, "OAuth 1.0a authentication completed successfully", namespace, string(engine.Provider()), "userId", identity.UserId, "secret", pat.SecretName)
	return nil
}

// Signature answers the value of the Authorization header signing the request described by the query parameters on
// behalf of the caller.
func (c *OAuth1Controller) Signature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := c.Authenticator.GetIdentity(ctx, r)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "No active session was found", err)
		return
	}

	query := r.URL.Query()
	engine, err := c.engine(config.ServiceProviderName(query.Get(oauthstate.ProviderParam)))
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusBadRequest, "unknown service provider", err)
		return
	}

	requestUrl := query.Get("request_url")
	if requestUrl == "" {
		LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "the request_url parameter is required")
		return
	}
	method := query.Get(oauthstate.RequestMethodParam)
	if method == "" {
		method = http.MethodGet
	}

	header, err := engine.ComputeAuthorizationHeader(ctx, identity.UserId, method, requestUrl)
	if err != nil {
		if sperrors.IsKind(err, sperrors.UnknownCredential) {
			LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "the user is not authorized with the service provider", err)
		} else {
			LogErrorAndWriteResponse(ctx, w, http.StatusBadRequest, "failed to compute the signature", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(header))
}
