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
	"net/http"
	"strings"
	"time"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	sperrors "github.com/redhat-appstudio/scm-oauth-service/pkg/errors"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"golang.org/x/oauth2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// CallbackPath is the path the OAuth 2.0 providers redirect to after the user authorization.
const CallbackPath = "/oauth/callback"

// commonController is the implementation of the Controller interface that assumes typical OAuth flow.
type commonController struct {
	Config        config.ServiceProviderConfiguration
	Configuration config.SharedConfiguration
	Endpoint      oauth2.Endpoint
	K8sClient     client.Client
	Credentials   credentials.Store
	Authenticator *Authenticator
	HttpClient    *http.Client
	StateCodec    *oauthstate.Codec
}

// redirectUrl constructs the URL to the callback endpoint so that it can be handled by this controller.
func (c *commonController) redirectUrl() string {
	return strings.TrimSuffix(c.Configuration.BaseUrl, "/") + CallbackPath
}

func (c *commonController) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := log.FromContext(ctx).WithValues("provider", c.Config.Name)
	defer logs.TimeTrack(lg, time.Now(), "/authenticate")

	identity, err := c.Authenticator.GetIdentity(ctx, r)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "No active session was found. Please use `/login` method to authorize your request and try again.", err)
		return
	}

	state := oauthstate.OAuthState{
		RedirectAfterLogin: oauthstate.RepairRedirect(r.FormValue(oauthstate.RedirectAfterLoginParam)),
		Provider:           c.Config.Name,
		UserId:             identity.UserId,
		UserName:           identity.UserName,
		Namespace:          c.Configuration.UserNamespace(identity.UserId, identity.UserName),
		IssuedAt:           time.Now().Unix(),
	}
	encodedState, err := c.StateCodec.Encode(state)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to encode the OAuth state", err)
		return
	}

	oauthCfg, err := c.obtainOauthConfig(ctx, state.Namespace)
	if err != nil {
		LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to create oauth configuration", err)
		return
	}
	oauthCfg.Scopes = scopesOf(r.FormValue("scope"), c.Config.Name)

	AuditLogWithTokenInfo(ctx, "OAuth authentication flow started", state.Namespace, string(c.Config.Name), "userId", identity.UserId, "scopes", oauthCfg.Scopes)
	redirect := oauthCfg.AuthCodeURL(encodedState)
	lg.V(logs.DebugLevel).Info("Redirecting", "url", redirect)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (c *commonController) Callback(ctx context.Context, w http.ResponseWriter, r *http.Request, state oauthstate.OAuthState) {
	lg := log.FromContext(ctx).WithValues("provider", c.Config.Name)
	defer logs.TimeTrack(lg, time.Now(), "/callback")

	redirect := state.RedirectTarget(c.Configuration.DefaultRedirectUrl)

	pat, namespace, err := c.finishOAuthExchange(ctx, r, state)
	if err != nil {
		observeFlowCompletion(c.Config.Name, config.OAuth2, sperrors.KindOf(err).ErrorCode(), state.IssuedAt)
		LogErrorAndRedirect(ctx, w, r, redirect, http.StatusFound, err)
		return
	}

	AuditLogWithTokenInfo(ctx, "OAuth authentication completed successfully", namespace, string(c.Config.Name), "userId", pat.ScmUserId, "secret", pat.SecretName)
	observeFlowCompletion(c.Config.Name, config.OAuth2, flowStatusSuccess, state.IssuedAt)
	http.Redirect(w, r, redirect, http.StatusFound)
}

// finishOAuthExchange implements the bulk of the Callback function. It exchanges the code for the access token and
// stores it as the personal access token of the user.
func (c *commonController) finishOAuthExchange(ctx context.Context, r *http.Request, state oauthstate.OAuthState) (*credentials.PersonalAccessToken, string, error) {
	code := r.FormValue("code")
	if code == "" {
		return nil, "", sperrors.New(sperrors.ProtocolError, "the code parameter is required", nil)
	}

	identity, err := callbackIdentity(ctx, c.Authenticator, state)
	if err != nil {
		return nil, "", err
	}
	namespace := c.Configuration.UserNamespace(identity.UserId, identity.UserName)

	oauthCfg, err := c.obtainOauthConfig(ctx, namespace)
	if err != nil {
		return nil, namespace, err
	}

	exchangeCtx := ctx
	if c.HttpClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, c.HttpClient)
	}
	token, err := oauthCfg.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, namespace, sperrors.New(sperrors.ProviderExchangeFailure, "failed to finish the OAuth exchange", err)
	}

	pat, err := c.Credentials.Create(ctx, namespace, credentials.PersonalAccessToken{
		TokenData:       token.AccessToken,
		ScmProviderName: c.Config.Name,
		ScmProviderUrl:  c.Config.BaseUrl(),
		ScmUserId:       identity.UserId,
		ScmUserName:     identity.UserName,
		IsOAuthIssued:   true,
	})
	if err != nil {
		return nil, namespace, err
	}
	return pat, namespace, nil
}

// callbackIdentity is the user a callback stores the token for. The session identity wins, the signed state is used
// when the provider redirects without the session cookie. A session of another user than the one who started the flow
// is refused.
func callbackIdentity(ctx context.Context, authenticator *Authenticator, state oauthstate.OAuthState) (Identity, error) {
	identity, fromSession := Identity{}, false
	if authenticator != nil {
		identity, fromSession = authenticator.SessionIdentity(ctx)
	}
	if !fromSession {
		identity = Identity{UserId: state.UserId, UserName: state.UserName}
	}
	if identity.UserId == "" {
		return Identity{}, sperrors.New(sperrors.ProtocolError, "the state doesn't identify the user", nil)
	}
	if fromSession && state.UserId != "" && state.UserId != identity.UserId {
		return Identity{}, sperrors.New(sperrors.ProtocolError, "the flow was started by another user", nil)
	}
	return identity, nil
}

func scopesOf(scope string, provider config.ServiceProviderName) []string {
	scopes := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(scopes) == 0 {
		return config.DefaultScopes(provider)
	}
	return scopes
}
