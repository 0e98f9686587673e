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

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/alexflint/go-arg"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redhat-appstudio/scm-oauth-service/cmd"
	cli "github.com/redhat-appstudio/scm-oauth-service/cmd/oauth/oauthcli"
	"github.com/redhat-appstudio/scm-oauth-service/oauth"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/factory"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/metrics"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauth1"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/scmurl"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

func main() {
	args := cli.OAuthServiceCliArgs{}
	arg.MustParse(&args)

	if err := logs.InitLoggers(args.LogOptions()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.IntoContext(ctx, ctrl.Log)
	setupLog := log.FromContext(ctx).WithName("setup")

	setupLog.Info("Starting OAuth service", "configuration", &args)

	if err := config.SetupCustomValidations(config.CustomValidationOptions{AllowInsecureURLs: args.AllowInsecureURLs}); err != nil {
		setupLog.Error(err, "failed to initialize the validators")
		os.Exit(1)
	}

	cfg, err := oauth.LoadOAuthServiceConfiguration(args.ConfigFile, args.BaseUrl)
	if err != nil {
		setupLog.Error(err, "failed to initialize the configuration")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	go metrics.ServeMetrics(ctx, args.MetricsAddr, registry)

	k8sClient, err := createK8sClient(args)
	if err != nil {
		setupLog.Error(err, "failed to create the kubernetes client")
		os.Exit(1)
	}

	store := &credentials.MetricsCollectingStore{
		MetricsRegisterer: registry,
		Store:             &credentials.SecretStore{Client: k8sClient},
	}
	if err := store.Initialize(); err != nil {
		setupLog.Error(err, "failed to initialize the credential store")
		os.Exit(1)
	}

	kvStores, err := cmd.InitKVStores(ctx, &args.KVStoreCliArgs)
	if err != nil {
		setupLog.Error(err, "failed to initialize the key-value store")
		os.Exit(1)
	}

	stateCodec, err := oauthstate.NewCodec(cfg.StateSigningSecret)
	if err != nil {
		setupLog.Error(err, "failed to initialize the state codec")
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: args.ProviderTimeout}

	engines, err := createOAuth1Engines(setupLog, cfg, kvStores, stateCodec, args.RequestTokenTtl, httpClient)
	if err != nil {
		setupLog.Error(err, "failed to initialize the OAuth 1.0a engines")
		os.Exit(1)
	}

	// the session has 15 minutes timeout and stale sessions are cleaned every 5 minutes
	sessionManager := scs.New()
	sessionManager.Store = memstore.NewWithCleanupInterval(5 * time.Minute)
	sessionManager.IdleTimeout = 15 * time.Minute
	sessionManager.Lifetime = time.Hour
	sessionManager.Cookie.Persist = false
	sessionManager.Cookie.Name = "scm_oauth_session"
	sessionManager.Cookie.SameSite = http.SameSiteNoneMode
	sessionManager.Cookie.Secure = true

	routerCfg := oauth.RouterConfiguration{
		OAuthServiceConfiguration: cfg,
		Authenticator:             oauth.NewAuthenticator(sessionManager),
		K8sClient:                 k8sClient,
		Credentials:               store,
		OAuth1Engines:             engines,
		HttpClient:                httpClient,
		StateCodec:                stateCodec,
	}
	if args.ResolveDevfiles {
		routerCfg.Resolver = &factory.Resolver{
			Configuration: cfg.SharedConfiguration,
			UrlResolver:   scmurl.NewResolver(cfg.SharedConfiguration),
			Credentials:   store,
			HttpClient:    httpClient,
		}
	}

	oauthRouter, err := oauth.NewRouter(&setupLog, routerCfg)
	if err != nil {
		setupLog.Error(err, "failed to initialize oauth router")
		os.Exit(1)
	}

	router := mux.NewRouter()
	oauthRouter.RegisterRoutes(router)

	handler, err := oauth.MiddlewareHandler(registry, strings.Split(args.AllowedOrigins, ","), router)
	if err != nil {
		setupLog.Error(err, "failed to initialize the middleware")
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              args.ServiceAddr,
		WriteTimeout:      time.Second * 15,
		ReadTimeout:       time.Second * 15,
		ReadHeaderTimeout: time.Second * 15,
		IdleTimeout:       time.Second * 60,
		Handler:           sessionManager.LoadAndSave(handler),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	if args.DisableHTTP2 {
		server.TLSConfig = cmd.TLSConfigWithDisabledHTTP2
	}

	go func() {
		var err error
		if args.TLSCertFile != "" {
			err = server.ListenAndServeTLS(args.TLSCertFile, args.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "failed to start the HTTP server")
			cancel()
		}
	}()
	setupLog.Info("Server is up and running", "addr", args.ServiceAddr)

	<-ctx.Done()
	setupLog.Info("Server got a termination signal, going to gracefully shutdown the server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		setupLog.Error(err, "OAuth server shutdown failed")
		os.Exit(1)
	}
	setupLog.Info("OAuth server exited properly")
}

func createK8sClient(args cli.OAuthServiceCliArgs) (client.Client, error) {
	var restConfig *rest.Config
	var err error
	if args.KubeConfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", args.KubeConfig)
	} else {
		restConfig, err = ctrl.GetConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load the kubernetes configuration: %w", err)
	}

	if args.KubeInsecureTLS {
		restConfig.Insecure = true
		restConfig.TLSClientConfig.CAData = nil
		restConfig.TLSClientConfig.CAFile = ""
	}

	k8sClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create the kubernetes client: %w", err)
	}
	return k8sClient, nil
}

// createOAuth1Engines creates an engine for every provider configured with a consumer key. The engines share the stores,
// their keys are prefixed by the provider name.
func createOAuth1Engines(lg logr.Logger, cfg oauth.OAuthServiceConfiguration, stores cmd.KVStores, codec *oauthstate.Codec, requestTokenTtl time.Duration, httpClient *http.Client) ([]*oauth1.Engine, error) {
	engines := []*oauth1.Engine{}
	for _, sp := range cfg.ServiceProviders {
		if sp.OAuthVersion() != config.OAuth1 {
			continue
		}

		engine, err := oauth1.NewEngine(oauth1.EngineConfig{
			ServiceProvider:   sp,
			BaseUrl:           cfg.BaseUrl,
			TemporaryTokens:   stores.TemporaryTokens,
			AccessCredentials: stores.AccessCredentials,
			StateCodec:        codec,
			RequestTokenTtl:   requestTokenTtl,
			HttpClient:        httpClient,
		})
		if err != nil {
			return nil, err
		}
		lg.Info("initialized the OAuth 1.0a engine", "provider", sp.Name, "url", sp.BaseUrl())
		engines = append(engines, engine)
	}
	return engines, nil
}
