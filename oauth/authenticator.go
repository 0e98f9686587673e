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
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	// UserIdHeader is set by the authenticating proxy in front of the service.
	UserIdHeader = "X-Forwarded-User"
	// UserNameHeader is set by the authenticating proxy in front of the service.
	UserNameHeader = "X-Forwarded-Preferred-Username"

	sessionUserIdKey   = "userId"
	sessionUserNameKey = "userName"
)

var (
	noIdentityFoundError = errors.New("no identity associated with the given session or provided by the authenticating proxy")
)

// Authenticator establishes the identity of the caller. The identity provided by the authenticating proxy takes
// precedence over the one stored in the session by /login.
type Authenticator struct {
	SessionManager *scs.SessionManager
}

func NewAuthenticator(sessionManager *scs.SessionManager) *Authenticator {
	return &Authenticator{
		SessionManager: sessionManager,
	}
}

func (a *Authenticator) GetIdentity(ctx context.Context, r *http.Request) (Identity, error) {
	lg := log.FromContext(ctx)
	defer logs.TimeTrack(lg, time.Now(), "/GetIdentity")

	if identity, ok := identityFromHeaders(r); ok {
		return identity, nil
	}
	if identity, ok := a.SessionIdentity(ctx); ok {
		return identity, nil
	}
	return Identity{}, noIdentityFoundError
}

// SessionIdentity returns the identity stored in the session of the request.
func (a *Authenticator) SessionIdentity(ctx context.Context) (Identity, bool) {
	if a.SessionManager == nil {
		return Identity{}, false
	}
	userId := a.SessionManager.GetString(ctx, sessionUserIdKey)
	if userId == "" {
		return Identity{}, false
	}
	return Identity{UserId: userId, UserName: a.SessionManager.GetString(ctx, sessionUserNameKey)}, true
}

func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	lg := log.FromContext(r.Context())
	defer logs.TimeTrack(lg, time.Now(), "/Login")

	identity, ok := identityFromHeaders(r)
	if !ok {
		LogDebugAndWriteResponse(r.Context(), w, http.StatusUnauthorized, "failed extract the identity from the headers")
		logs.AuditLog(r.Context()).Info("unsuccessful login attempt without identity headers")
		return
	}

	if err := a.SessionManager.RenewToken(r.Context()); err != nil {
		LogErrorAndWriteResponse(r.Context(), w, http.StatusInternalServerError, "failed to renew the session token", err)
		return
	}
	a.SessionManager.Put(r.Context(), sessionUserIdKey, identity.UserId)
	a.SessionManager.Put(r.Context(), sessionUserNameKey, identity.UserName)
	logs.AuditLog(r.Context()).Info("successful login", "userId", identity.UserId, "action", "ADD")
	w.WriteHeader(http.StatusOK)
}

func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	lg := log.FromContext(r.Context())
	defer logs.TimeTrack(lg, time.Now(), "/logout")

	if err := a.SessionManager.Destroy(r.Context()); err != nil {
		LogErrorAndWriteResponse(r.Context(), w, http.StatusInternalServerError, "failed to destroy the user session", err)
		logs.AuditLog(r.Context()).Info("unsuccessful attempt to clear the user session")
		return
	}

	logs.AuditLog(r.Context()).Info("successfully cleared the user session", "action", "DELETE")
	w.WriteHeader(http.StatusOK)
}

func identityFromHeaders(r *http.Request) (Identity, bool) {
	userId := r.Header.Get(UserIdHeader)
	if userId == "" {
		return Identity{}, false
	}
	userName := r.Header.Get(UserNameHeader)
	if userName == "" {
		userName = userId
	}
	return Identity{UserId: userId, UserName: userName}, true
}
