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
	"errors"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	sperrors "github.com/redhat-appstudio/scm-oauth-service/pkg/errors"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/factory"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauth1"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	AuthenticatePath       = "/oauth/authenticate"
	OAuth1AuthenticatePath = "/oauth/1.0/authenticate"
	OAuth1SignaturePath    = "/oauth/1.0/signature"
	TokenPath              = "/oauth/token"
)

var (
	errUnknownServiceProvider = errors.New("unknown service provider")
	errNoStateCodec           = errors.New("no state codec configured")
)

// Router holds service provider controllers and is responsible for providing matching controller for incoming requests.
type Router struct {
	controllers map[config.ServiceProviderName]Controller
	oauth1      *OAuth1Controller
	tokens      *TokenHandler
	cfg         RouterConfiguration
}

// CallbackRoute route for /oauth/callback requests
type CallbackRoute struct {
	router *Router
}

// AuthenticateRoute route for /oauth/authenticate requests
type AuthenticateRoute struct {
	router *Router
}

// RouterConfiguration configuration needed to create new Router
type RouterConfiguration struct {
	OAuthServiceConfiguration
	Authenticator *Authenticator
	// K8sClient reads the per-namespace OAuth application configuration, can be nil.
	K8sClient     client.Client
	Credentials   credentials.Store
	OAuth1Engines []*oauth1.Engine
	Resolver      *factory.Resolver
	HttpClient    *http.Client
	// StateCodec signs the state of the OAuth flows, the callbacks refuse any state it can't verify.
	StateCodec *oauthstate.Codec
}

func NewRouter(lg *logr.Logger, cfg RouterConfiguration) (*Router, error) {
	if cfg.StateCodec == nil {
		return nil, errNoStateCodec
	}
	router := &Router{
		controllers: map[config.ServiceProviderName]Controller{},
		oauth1:      NewOAuth1Controller(cfg.SharedConfiguration, cfg.Authenticator, cfg.Credentials, cfg.StateCodec, cfg.OAuth1Engines...),
		cfg:         cfg,
	}
	router.tokens = &TokenHandler{
		Configuration: cfg.SharedConfiguration,
		Authenticator: cfg.Authenticator,
		Credentials:   cfg.Credentials,
		OAuth1:        router.oauth1,
	}

	for _, sp := range cfg.ServiceProviders {
		if sp.OAuthVersion() == config.OAuth1 {
			if _, ok := router.oauth1.Engines[sp.Name]; !ok {
				return nil, fmt.Errorf("no OAuth 1.0a engine initialized for the service provider %s", sp.Name)
			}
			continue
		}
		if _, ok := router.controllers[sp.Name]; ok {
			return nil, fmt.Errorf("service provider %s configured more than once", sp.Name)
		}

		controller, err := InitController(lg, sp, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize controller for SP %s on base URL %s: %w", sp.Name, sp.BaseUrl(), err)
		}
		router.controllers[sp.Name] = controller
	}

	return router, nil
}

func (r *Router) Callback() *CallbackRoute {
	return &CallbackRoute{router: r}
}

func (r *Router) Authenticate() *AuthenticateRoute {
	return &AuthenticateRoute{router: r}
}

// RegisterRoutes adds all the endpoints of the service to the provided router.
func (r *Router) RegisterRoutes(router *mux.Router) {
	// service state routes
	router.HandleFunc("/health", OkHandler).Methods("GET")
	router.HandleFunc("/ready", OkHandler).Methods("GET")

	// auth
	router.HandleFunc("/login", r.cfg.Authenticator.Login).Methods("POST")
	router.HandleFunc("/logout", r.cfg.Authenticator.Logout).Methods("POST")

	// oauth 2.0
	router.NewRoute().Path(CallbackPath).Queries("error", "").Handler(CSPHandler(CallbackErrorHandler())).Methods("GET")
	router.NewRoute().Path(CallbackPath).Handler(r.Callback()).Methods("GET")
	router.NewRoute().Path(AuthenticatePath).Handler(r.Authenticate()).Methods("GET")

	// oauth 1.0a
	router.HandleFunc(OAuth1AuthenticatePath, r.oauth1.Authenticate).Methods("GET")
	router.HandleFunc(oauth1.CallbackPath, r.oauth1.Callback).Methods("GET")
	router.HandleFunc(OAuth1SignaturePath, r.oauth1.Signature).Methods("GET")

	// tokens
	router.HandleFunc("/oauth", r.tokens.Providers).Methods("GET")
	router.HandleFunc(TokenPath, r.tokens.Get).Methods("GET")
	router.HandleFunc(TokenPath, r.tokens.Delete).Methods("DELETE")
	router.HandleFunc("/personal-access-token", HandleUpload(r.cfg.Authenticator, r.cfg.SharedConfiguration, &StoreTokenUploader{Store: r.cfg.Credentials})).Methods("POST")

	if r.cfg.Resolver != nil {
		router.HandleFunc("/factory/resolve", HandleResolve(r.cfg.Authenticator, r.cfg.SharedConfiguration, r.cfg.Resolver)).Methods("GET")
	}
}

func (r *Router) findController(provider config.ServiceProviderName) (Controller, error) {
	controller := r.controllers[provider]
	if controller == nil {
		return nil, sperrors.New(sperrors.ProtocolError, string(provider), errUnknownServiceProvider)
	}
	return controller, nil
}

func (r *CallbackRoute) ServeHTTP(wrt http.ResponseWriter, req *http.Request) {
	redirect := r.router.cfg.DefaultRedirectUrl

	state, err := r.router.cfg.StateCodec.Parse(req.FormValue("state"))
	if err != nil {
		LogErrorAndRedirect(req.Context(), wrt, req, redirect, http.StatusFound, sperrors.New(sperrors.ProtocolError, "failed to verify the state", err))
		return
	}

	ctrl, err := r.router.findController(state.Provider)
	if err != nil {
		LogErrorAndRedirect(req.Context(), wrt, req, state.RedirectTarget(redirect), http.StatusFound, err)
		return
	}

	ctrl.Callback(req.Context(), wrt, req, state)
}

func (r *AuthenticateRoute) ServeHTTP(wrt http.ResponseWriter, req *http.Request) {
	ctrl, err := r.router.findController(config.ServiceProviderName(req.FormValue(oauthstate.ProviderParam)))
	if err != nil {
		LogErrorAndWriteResponse(req.Context(), wrt, http.StatusBadRequest, "failed to find the service provider", err)
		return
	}

	ctrl.Authenticate(wrt, req)
}
