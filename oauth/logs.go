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
	"encoding/json"
	"net/http"

	sperrors "github.com/redhat-appstudio/scm-oauth-service/pkg/errors"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrorResponse is the body of the failed synchronous API calls.
type ErrorResponse struct {
	ErrorCode  string            `json:"errorCode"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func LogErrorAndWriteResponse(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	log.FromContext(ctx).Error(err, msg)
	writeErrorResponse(ctx, w, status, ErrorResponse{ErrorCode: errorCodeFor(status, err), Message: msg + ": " + err.Error()})
}

func LogDebugAndWriteResponse(ctx context.Context, w http.ResponseWriter, status int, msg string, keysAndValues ...interface{}) {
	log.FromContext(ctx).V(logs.DebugLevel).Info(msg, keysAndValues...)
	writeErrorResponse(ctx, w, status, ErrorResponse{ErrorCode: errorCodeFor(status, nil), Message: msg})
}

func writeErrorResponse(ctx context.Context, w http.ResponseWriter, status int, body ErrorResponse) {
	writeJson(ctx, w, status, body)
}

func writeJson(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.FromContext(ctx).Error(err, "error recording the response")
	}
}

func errorCodeFor(status int, err error) string {
	switch {
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= 500:
		return "server_error"
	case err != nil:
		return sperrors.KindOf(err).ErrorCode()
	}
	return sperrors.ProtocolError.ErrorCode()
}

// LogErrorAndRedirect sends the browser back to the redirect URL with the error_code parameter describing the failure.
func LogErrorAndRedirect(ctx context.Context, w http.ResponseWriter, r *http.Request, redirect string, status int, err error) {
	errorCode := sperrors.KindOf(err).ErrorCode()
	log.FromContext(ctx).Error(err, "OAuth flow failed", "errorCode", errorCode, "serviceProviderFailure", sperrors.IsServiceProviderError(err))
	http.Redirect(w, r, oauthstate.AppendErrorCode(redirect, errorCode), status)
}

// AuditLogWithTokenInfo logs message related to the personal access tokens of the user into audit logger
func AuditLogWithTokenInfo(ctx context.Context, msg string, namespace string, provider string, keysAndValues ...interface{}) {
	keysAndValues = append(keysAndValues, "namespace", namespace, "provider", provider)
	logs.AuditLog(ctx).Info(msg, keysAndValues...)
}
