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

package oauth1

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	sperrors "github.com/redhat-appstudio/scm-oauth-service/pkg/errors"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/kvstore"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	// CallbackPath is the path of the OAuth service endpoint the provider redirects to after the user authorization.
	CallbackPath = "/oauth/1.0/callback"

	requestTokenPath = "/plugins/servlet/oauth/request-token"
	authorizePath    = "/plugins/servlet/oauth/authorize"
	accessTokenPath  = "/plugins/servlet/oauth/access-token"

	deniedVerifier = "denied"

	// DefaultRequestTokenTtl is how long the secret of a request token is kept when the user doesn't finish the flow.
	DefaultRequestTokenTtl = 10 * time.Minute
)

// AccessCredential is the access token obtained at the end of the three-legged flow.
type AccessCredential struct {
	Token  string `json:"token"`
	Secret string `json:"secret,omitempty"`
	// SignatureMethod is the method the flow was finished with, the requests of the user are signed the same way.
	SignatureMethod SignatureMethod `json:"signatureMethod,omitempty"`
}

// EngineConfig holds the collaborators of the Engine.
type EngineConfig struct {
	// ServiceProvider is the configuration of the provider, it must have the consumer key set.
	ServiceProvider config.ServiceProviderConfiguration
	// BaseUrl is the URL the OAuth service is reachable on. It is used to compose the callback URL.
	BaseUrl string
	// TemporaryTokens stores the secrets of the request tokens between the first and the second leg of the flow.
	TemporaryTokens kvstore.Store
	// AccessCredentials stores the access tokens of the users.
	AccessCredentials kvstore.Store
	// StateCodec signs the state passed through the provider and verifies it in the callback.
	StateCodec *oauthstate.Codec
	// RequestTokenTtl limits the time the user has to finish the flow. DefaultRequestTokenTtl is used when zero.
	RequestTokenTtl time.Duration
	HttpClient      *http.Client
}

// Engine executes the OAuth 1.0a three-legged flow against a single service provider and signs the requests of the
// authorized users.
type Engine struct {
	provider          config.ServiceProviderName
	serverUrl         string
	callbackUrl       string
	signer            *Signer
	defaultSigMethod  SignatureMethod
	stateCodec        *oauthstate.Codec
	temporaryTokens   kvstore.Store
	accessCredentials kvstore.Store
	requestTokenTtl   time.Duration
	httpClient        *http.Client
}

// NewEngine creates the engine for the configured service provider.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	sp := cfg.ServiceProvider
	if sp.ConsumerKey == "" {
		return nil, fmt.Errorf("service provider %s has no consumer key configured", sp.Name)
	}
	if cfg.TemporaryTokens == nil || cfg.AccessCredentials == nil {
		return nil, fmt.Errorf("token stores not configured for the service provider %s", sp.Name)
	}
	if cfg.StateCodec == nil {
		return nil, fmt.Errorf("state codec not configured for the service provider %s", sp.Name)
	}

	var privateKey *rsa.PrivateKey
	defaultSigMethod := HmacSha1
	if sp.PrivateKey != "" {
		key, err := ParsePrivateKey(sp.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key of the service provider %s: %w", sp.Name, err)
		}
		privateKey = key
		defaultSigMethod = RsaSha1
	} else if sp.SharedSecret == "" {
		return nil, fmt.Errorf("service provider %s has neither the private key nor the shared secret configured", sp.Name)
	}

	ttl := cfg.RequestTokenTtl
	if ttl <= 0 {
		ttl = DefaultRequestTokenTtl
	}

	httpClient := cfg.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Engine{
		provider:    sp.Name,
		serverUrl:   sp.BaseUrl(),
		callbackUrl: strings.TrimSuffix(cfg.BaseUrl, "/") + CallbackPath,
		signer: &Signer{
			ConsumerKey:    sp.ConsumerKey,
			ConsumerSecret: sp.SharedSecret,
			PrivateKey:     privateKey,
		},
		defaultSigMethod:  defaultSigMethod,
		stateCodec:        cfg.StateCodec,
		temporaryTokens:   cfg.TemporaryTokens,
		accessCredentials: cfg.AccessCredentials,
		requestTokenTtl:   ttl,
		httpClient:        httpClient,
	}, nil
}

// Provider is the name of the service provider the engine talks to.
func (e *Engine) Provider() config.ServiceProviderName {
	return e.provider
}

// ServerUrl is the base URL of the service provider.
func (e *Engine) ServerUrl() string {
	return e.serverUrl
}

// GetAuthenticateUrl obtains a request token from the provider and returns the URL the user must visit to authorize
// it. The query of the requestUrl is passed through the provider and is available again in the callback as the state.
// If the query contains the userId parameter, it must match the currentUserId.
func (e *Engine) GetAuthenticateUrl(ctx context.Context, requestUrl *url.URL, requestMethod string, signatureMethod string, currentUserId string) (string, error) {
	lg := log.FromContext(ctx).WithValues("provider", e.provider)
	defer logs.TimeTrack(lg, time.Now(), "oauth1 request token")
	lg.V(logs.DebugLevel).Info("starting the authorization", "stage", StageStart)

	query := requestUrl.Query()
	if userId := query.Get(oauthstate.UserIdParam); userId != "" && userId != currentUserId {
		return "", sperrors.New(sperrors.ProtocolError, "the userId parameter doesn't match the current user", nil)
	}
	query.Set(oauthstate.UserIdParam, currentUserId)
	// the callback signs the access token request the same way
	if requestMethod != "" {
		query.Set(oauthstate.RequestMethodParam, requestMethod)
	}
	if signatureMethod != "" {
		query.Set(oauthstate.SignatureMethodParam, signatureMethod)
	}

	sigMethod, err := e.signatureMethod(signatureMethod)
	if err != nil {
		return "", sperrors.New(sperrors.ProtocolError, "invalid signature method", err)
	}

	state := oauthstate.FromQuery(query)
	state.Provider = e.provider
	signedState, err := e.stateCodec.SignedValues(state)
	if err != nil {
		return "", err
	}
	callback := e.callbackUrl + "?state=" + url.QueryEscape(signedState.Encode())

	values, err := e.exchange(ctx, httpMethodOf(requestMethod), requestTokenPath, sigMethod, "", map[string]string{
		CallbackParam: callback,
	})
	if err != nil {
		lg.V(logs.DebugLevel).Info("request token not obtained", "stage", StageFailed, "error", err.Error())
		return "", err
	}

	token := values.Get(TokenParam)
	secret := values.Get(TokenSecretParam)
	if token == "" {
		return "", sperrors.New(sperrors.ProtocolError, "the provider didn't return the request token", nil)
	}

	if err := e.temporaryTokens.Set(ctx, e.temporaryTokenKey(token), secret, e.requestTokenTtl); err != nil {
		return "", fmt.Errorf("failed to store the request token secret: %w", err)
	}
	lg.V(logs.DebugLevel).Info("request token obtained", "stage", StageRequestTokenObtained)

	return e.serverUrl + authorizePath + "?" + TokenParam + "=" + url.QueryEscape(token), nil
}

// Callback finishes the flow by exchanging the authorized request token for the access token. The state is returned
// even on failure whenever it could be read from the request, so that the caller can redirect the user back.
func (e *Engine) Callback(ctx context.Context, requestUrl *url.URL) (oauthstate.OAuthState, error) {
	lg := log.FromContext(ctx).WithValues("provider", e.provider)
	defer logs.TimeTrack(lg, time.Now(), "oauth1 callback")

	query := requestUrl.Query()
	state, stateErr := e.stateCodec.Parse(query.Get("state"))

	if query.Get(VerifierParam) == deniedVerifier {
		lg.V(logs.DebugLevel).Info("authorization denied by the user", "stage", StageDenied)
		return state, sperrors.New(sperrors.UserDenied, "the user denied the authorization", nil)
	}

	token := query.Get(TokenParam)
	verifier := query.Get(VerifierParam)
	if token == "" || verifier == "" {
		return state, sperrors.New(sperrors.ProtocolError, "the oauth_token and oauth_verifier parameters are required", nil)
	}
	if stateErr != nil || state.UserId == "" {
		return state, sperrors.New(sperrors.ProtocolError, "the state doesn't identify the user", stateErr)
	}
	if state.Provider != e.provider {
		return state, sperrors.New(sperrors.ProtocolError, "the state was issued for another service provider", nil)
	}

	// the secret is consumed even if the exchange fails, the request token can't be used twice
	tokenSecret, err := e.temporaryTokens.Take(ctx, e.temporaryTokenKey(token))
	if errors.Is(err, kvstore.ErrNotFound) {
		return state, sperrors.New(sperrors.UnknownCredential, "unknown or already used request token", nil)
	} else if err != nil {
		return state, fmt.Errorf("failed to read the request token secret: %w", err)
	}
	lg.V(logs.DebugLevel).Info("request token authorized by the user", "stage", StageUserAuthorizing)

	sigMethod, err := e.signatureMethod(state.SignatureMethod)
	if err != nil {
		return state, sperrors.New(sperrors.ProtocolError, "invalid signature method", err)
	}

	values, err := e.exchange(ctx, httpMethodOf(state.RequestMethod), accessTokenPath, sigMethod, tokenSecret, map[string]string{
		TokenParam:    token,
		VerifierParam: verifier,
	})
	if err != nil {
		lg.V(logs.DebugLevel).Info("access token not obtained", "stage", StageFailed, "error", err.Error())
		return state, err
	}
	lg.V(logs.DebugLevel).Info("access token obtained", "stage", StageExchanged)

	credential := AccessCredential{Token: values.Get(TokenParam), Secret: values.Get(TokenSecretParam), SignatureMethod: sigMethod}
	if credential.Token == "" {
		return state, sperrors.New(sperrors.ProviderExchangeFailure, "the provider didn't return the access token", nil)
	}
	if err := e.storeAccessCredential(ctx, state.UserId, credential); err != nil {
		return state, err
	}

	logs.AuditLog(ctx).Info("oauth1 access token stored", "provider", e.provider, "userId", state.UserId, "stage", StageActive)
	return state, nil
}

// ComputeAuthorizationHeader signs the request on behalf of the user and returns the value of the Authorization
// header to send with it.
func (e *Engine) ComputeAuthorizationHeader(ctx context.Context, userId string, method string, requestUrl string) (string, error) {
	credential, err := e.accessCredential(ctx, userId)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(requestUrl)
	if err != nil || u.Host == "" {
		return "", sperrors.New(sperrors.ProtocolError, "invalid request url", err)
	}

	sigMethod := credential.SignatureMethod
	if sigMethod == "" {
		sigMethod = e.defaultSigMethod
	}
	header, err := e.signer.SignedAuthorizationHeader(sigMethod, method, u, credential.Secret, map[string]string{
		TokenParam: credential.Token,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign the request: %w", err)
	}
	return header, nil
}

// signatureMethod parses the requested signature method, the method matching the configured keys is used when none
// is requested.
func (e *Engine) signatureMethod(value string) (SignatureMethod, error) {
	if strings.TrimSpace(value) == "" {
		return e.defaultSigMethod, nil
	}
	return ParseSignatureMethod(value)
}

// HasAccessCredential tells whether the user finished the flow with this provider.
func (e *Engine) HasAccessCredential(ctx context.Context, userId string) (bool, error) {
	_, err := e.accessCredential(ctx, userId)
	if sperrors.IsKind(err, sperrors.UnknownCredential) {
		return false, nil
	}
	return err == nil, err
}

// ForgetAccessCredential removes the stored access token of the user.
func (e *Engine) ForgetAccessCredential(ctx context.Context, userId string) error {
	if err := e.accessCredentials.Delete(ctx, e.accessCredentialKey(userId)); err != nil {
		return fmt.Errorf("failed to delete the access credential: %w", err)
	}
	return nil
}

func (e *Engine) accessCredential(ctx context.Context, userId string) (AccessCredential, error) {
	data, err := e.accessCredentials.Get(ctx, e.accessCredentialKey(userId))
	if errors.Is(err, kvstore.ErrNotFound) {
		return AccessCredential{}, sperrors.New(sperrors.UnknownCredential, "no access credential stored for the user", nil)
	} else if err != nil {
		return AccessCredential{}, fmt.Errorf("failed to read the access credential: %w", err)
	}

	credential := AccessCredential{}
	if err := json.Unmarshal([]byte(data), &credential); err != nil {
		return AccessCredential{}, fmt.Errorf("failed to parse the stored access credential: %w", err)
	}
	return credential, nil
}

func (e *Engine) storeAccessCredential(ctx context.Context, userId string, credential AccessCredential) error {
	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to serialize the access credential: %w", err)
	}
	if err := e.accessCredentials.Set(ctx, e.accessCredentialKey(userId), string(data), 0); err != nil {
		return fmt.Errorf("failed to store the access credential: %w", err)
	}
	return nil
}

// exchange performs one of the token requests and parses the form encoded response.
func (e *Engine) exchange(ctx context.Context, method string, path string, sigMethod SignatureMethod, tokenSecret string, extra map[string]string) (url.Values, error) {
	endpoint, err := url.Parse(e.serverUrl + path)
	if err != nil {
		return nil, sperrors.New(sperrors.ProtocolError, "invalid provider url", err)
	}

	header, err := e.signer.SignedAuthorizationHeader(sigMethod, method, endpoint, tokenSecret, extra)
	if err != nil {
		return nil, sperrors.New(sperrors.ProtocolError, "failed to sign the token request", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create the token request: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, sperrors.New(sperrors.ProviderExchangeFailure, "failed to reach the service provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		spErr := sperrors.FromHttpResponse(resp)
		if spErr == nil {
			spErr = sperrors.ServiceProviderError{StatusCode: resp.StatusCode}
		}
		return nil, sperrors.New(sperrors.ProviderExchangeFailure, "the token request was refused", spErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sperrors.New(sperrors.ProtocolError, "failed to read the token response", err)
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, sperrors.New(sperrors.ProtocolError, "the token response is not form encoded", err)
	}
	return values, nil
}

func (e *Engine) temporaryTokenKey(token string) string {
	return "oauth1:" + string(e.provider) + ":request-token:" + token
}

func (e *Engine) accessCredentialKey(userId string) string {
	return "oauth1:" + string(e.provider) + ":access:" + userId
}

func httpMethodOf(requestMethod string) string {
	if strings.EqualFold(requestMethod, http.MethodPost) {
		return http.MethodPost
	}
	return http.MethodGet
}
