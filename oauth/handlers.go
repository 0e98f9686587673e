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
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/factory"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// OkHandler is a Handler implementation that responds only with http.StatusOK.
// Typically, used for the liveness and readiness checks
func OkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// viewData structure is used to pass parameters during the error page processing.
type viewData struct {
	Title   string
	Message string
}

var callbackErrorTemplate = template.Must(template.New("callback_error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Authorization failed</title>
</head>
<body>
  <h1>{{ .Title }}</h1>
  <p>{{ .Message }}</p>
  <p>The service provider refused to authorize the access. Please check the OAuth application configuration.</p>
</body>
</html>
`))

// CallbackErrorHandler is a Handler implementation that responds with HTML page describing the error reported by the
// service provider. The page is rendered instead of redirecting back, a misconfigured OAuth application would
// otherwise cause a redirect loop.
func CallbackErrorHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		errorMsg := q.Get("error")
		errorDescription := q.Get("error_description")
		logs.AuditLog(r.Context()).Info("OAuth authentication flow failed.", "message", errorMsg, "description", errorDescription)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := callbackErrorTemplate.Execute(w, viewData{Title: errorMsg, Message: errorDescription}); err != nil {
			log.FromContext(r.Context()).Error(err, "failed to process template")
		}
	})
}

type personalAccessTokenRequest struct {
	ScmProviderName string `json:"gitProvider,omitempty"`
	ScmProviderUrl  string `json:"gitProviderEndpoint"`
	ScmUserName     string `json:"gitProviderUsername,omitempty"`
	TokenName       string `json:"tokenName,omitempty"`
	Token           string `json:"token"`
}

type personalAccessTokenResponse struct {
	TokenName       string                     `json:"tokenName"`
	ScmProviderName config.ServiceProviderName `json:"gitProvider"`
	ScmProviderUrl  string                     `json:"gitProviderEndpoint"`
	ScmUserName     string                     `json:"gitProviderUsername,omitempty"`
	IsOAuthIssued   bool                       `json:"isOAuthIssued"`
}

func toPersonalAccessTokenResponse(pat *credentials.PersonalAccessToken) personalAccessTokenResponse {
	return personalAccessTokenResponse{
		TokenName:       pat.TokenName,
		ScmProviderName: pat.ScmProviderName,
		ScmProviderUrl:  pat.ScmProviderUrl,
		ScmUserName:     pat.ScmUserName,
		IsOAuthIssued:   pat.IsOAuthIssued,
	}
}

// HandleUpload returns Handler implementation that is relied on provided TokenUploader to persist the personal access
// token supplied by the user.
func HandleUpload(authenticator *Authenticator, cfg config.SharedConfiguration, uploader TokenUploader) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, err := authenticator.GetIdentity(ctx, r)
		if err != nil {
			LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "failed extract the identity of the caller", err)
			return
		}

		data := &personalAccessTokenRequest{}
		if err := json.NewDecoder(r.Body).Decode(data); err != nil {
			LogErrorAndWriteResponse(ctx, w, http.StatusBadRequest, "failed to decode request body as personal access token JSON", err)
			return
		}

		if data.Token == "" {
			LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "token can't be omitted or empty")
			return
		}
		if data.ScmProviderUrl == "" {
			LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "gitProviderEndpoint can't be omitted or empty")
			return
		}

		// the token names are used as values of the secret annotations and labels of the linked objects
		if data.TokenName != "" {
			if errs := validation.IsValidLabelValue(data.TokenName); len(errs) > 0 {
				LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "Incorrect token name parameter. Must comply with common label value format. Details: "+strings.Join(errs, ";"))
				return
			}
		}

		provider := config.ServiceProviderName(strings.ToLower(data.ScmProviderName))
		if provider == "" {
			classified, ok := credentials.ClassifyProvider(data.ScmProviderUrl)
			if !ok {
				LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "unable to determine the service provider of "+data.ScmProviderUrl)
				return
			}
			provider = classified
		} else if _, known := config.DefaultsFor(provider); !known {
			LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "unsupported service provider "+data.ScmProviderName)
			return
		}

		namespace := cfg.UserNamespace(identity.UserId, identity.UserName)
		stored, err := uploader.Upload(ctx, namespace, credentials.PersonalAccessToken{
			TokenName:       data.TokenName,
			TokenData:       data.Token,
			ScmProviderName: provider,
			ScmProviderUrl:  strings.TrimSuffix(data.ScmProviderUrl, "/"),
			ScmUserId:       identity.UserId,
			ScmUserName:     data.ScmUserName,
		})
		if err != nil {
			LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to upload the token", err)
			return
		}

		writeJson(ctx, w, http.StatusCreated, toPersonalAccessTokenResponse(stored))
	}
}

// HandleResolve returns Handler implementation resolving the devfile of the repository in the url query parameter.
// Private repositories the caller has no token for are answered by 401 with the authentication URL in the attributes.
func HandleResolve(authenticator *Authenticator, cfg config.SharedConfiguration, resolver *factory.Resolver) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, err := authenticator.GetIdentity(ctx, r)
		if err != nil {
			LogErrorAndWriteResponse(ctx, w, http.StatusUnauthorized, "failed extract the identity of the caller", err)
			return
		}

		repoUrl := r.URL.Query().Get("url")
		if repoUrl == "" {
			LogDebugAndWriteResponse(ctx, w, http.StatusBadRequest, "the url parameter is required")
			return
		}

		devfile, err := resolver.Resolve(ctx, cfg.UserNamespace(identity.UserId, identity.UserName), repoUrl)
		if err == nil {
			writeJson(ctx, w, http.StatusOK, devfile)
			return
		}

		if are, ok := factory.IsAuthorizationRequired(err); ok {
			log.FromContext(ctx).Info("authorization required", "provider", are.Provider, "url", repoUrl)
			writeErrorResponse(ctx, w, http.StatusUnauthorized, ErrorResponse{
				ErrorCode: errorCodeFor(http.StatusUnauthorized, err),
				Message:   err.Error(),
				Attributes: map[string]string{
					"oauth_provider":           string(are.Provider),
					"oauth_version":            string(are.OAuthVersion),
					"oauth_authentication_url": are.AuthenticateUrl,
				},
			})
			return
		}

		switch {
		case errors.Is(err, factory.ErrUnsupportedRepository), errors.Is(err, factory.ErrInvalidDevfile):
			LogErrorAndWriteResponse(ctx, w, http.StatusBadRequest, "failed to resolve the devfile", err)
		case errors.Is(err, factory.ErrDevfileNotFound):
			LogErrorAndWriteResponse(ctx, w, http.StatusNotFound, "failed to resolve the devfile", err)
		case errors.Is(err, factory.ErrPrivateRepository):
			LogErrorAndWriteResponse(ctx, w, http.StatusForbidden, "failed to resolve the devfile", err)
		default:
			LogErrorAndWriteResponse(ctx, w, http.StatusInternalServerError, "failed to resolve the devfile", err)
		}
	}
}

// CSPHandler is a Handler that writes into response a CSP headers allowing inline styles and denying everything else,
// including framing
func CSPHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none';")
		h.ServeHTTP(w, r)
	})
}

// BypassHandler is a Handler that redirects a request that has URL with certain prefix to a bypassHandler
// all remaining requests are redirected to mainHandler.
func BypassHandler(mainHandler http.Handler, bypassPathPrefixes []string, bypassHandler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, bypassPath := range bypassPathPrefixes {
			if strings.HasPrefix(r.URL.Path, bypassPath) {
				bypassHandler.ServeHTTP(w, r)
				return
			}
		}
		mainHandler.ServeHTTP(w, r)
	})
}

// MiddlewareHandler is a Handler that composed couple of different responsibilities.
// Like:
// - Service metrics
// - Request logging
// - CORS processing
func MiddlewareHandler(reg prometheus.Registerer, allowedOrigins []string, h http.Handler) (http.Handler, error) {
	if err := RegisterMetrics(reg); err != nil {
		return nil, err
	}

	middlewareHandler := HttpServiceInstrumentMetricHandler(
		handlers.LoggingHandler(logs.AccessLogWriter(),
			handlers.CORS(handlers.AllowedOrigins(allowedOrigins),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
				handlers.AllowedHeaders([]string{
					"Accept",
					"Accept-Language",
					"Content-Language",
					"Content-Type",
					"Origin",
					"Authorization"}))(h)))

	return BypassHandler(middlewareHandler, []string{"/health", "/ready"}, h), nil
}
