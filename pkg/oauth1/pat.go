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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	sperrors "github.com/redhat-appstudio/scm-oauth-service/pkg/errors"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	whoamiPath       = "/plugins/servlet/applinks/whoami"
	usersPath        = "/rest/api/1.0/users"
	accessTokensPath = "/rest/access-tokens/1.0/users/"

	usernameHeader = "X-Ausername"

	// PersonalAccessTokenExpiryDays is the validity of the issued personal access tokens.
	PersonalAccessTokenExpiryDays = 90
)

// PersonalAccessTokenPermissions are the permissions of the issued personal access tokens.
var PersonalAccessTokenPermissions = []string{"PROJECT_WRITE", "REPO_WRITE"}

// IssuedToken is the personal access token created in Bitbucket Server on behalf of the user.
type IssuedToken struct {
	Id       string
	Name     string
	Token    string
	Username string
}

type bitbucketUser struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type bitbucketAccessToken struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
}

type bitbucketPage[T any] struct {
	Values        []T  `json:"values"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
}

type createAccessTokenRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiryDays  int      `json:"expiryDays"`
}

// IssuePersonalAccessToken uses the access credential of the user to create a Bitbucket Server personal access token
// with the given name. The existing tokens of the same name are deleted first so that there's always at most one.
func (e *Engine) IssuePersonalAccessToken(ctx context.Context, userId string, tokenName string) (IssuedToken, error) {
	lg := log.FromContext(ctx).WithValues("provider", e.provider, "tokenName", tokenName)

	username, err := e.whoami(ctx, userId)
	if err != nil {
		return IssuedToken{}, err
	}

	slug, err := e.userSlug(ctx, userId, username)
	if err != nil {
		return IssuedToken{}, err
	}

	existing, err := e.listAccessTokens(ctx, userId, slug)
	if err != nil {
		return IssuedToken{}, err
	}
	for _, t := range existing {
		if t.Name != tokenName {
			continue
		}
		if err := e.deleteAccessToken(ctx, userId, slug, t.Id); err != nil {
			return IssuedToken{}, err
		}
		lg.V(logs.DebugLevel).Info("deleted the previous personal access token", "tokenId", t.Id)
	}

	created, err := e.createAccessToken(ctx, userId, slug, tokenName)
	if err != nil {
		return IssuedToken{}, err
	}

	logs.AuditLog(ctx).Info("personal access token issued", "provider", e.provider, "userId", userId, "username", username, "tokenId", created.Id)
	return IssuedToken{Id: created.Id, Name: created.Name, Token: created.Token, Username: username}, nil
}

func (e *Engine) whoami(ctx context.Context, userId string) (string, error) {
	resp, err := e.signedRequest(ctx, userId, http.MethodGet, e.serverUrl+whoamiPath, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "whoami"); err != nil {
		return "", err
	}

	username := resp.Header.Get(usernameHeader)
	if username == "" {
		body, _ := io.ReadAll(resp.Body)
		username = strings.TrimSpace(string(body))
	}
	if username == "" {
		return "", sperrors.New(sperrors.UnknownCredential, "the provider doesn't recognize the user", nil)
	}
	return username, nil
}

func (e *Engine) userSlug(ctx context.Context, userId string, username string) (string, error) {
	page := bitbucketPage[bitbucketUser]{}
	if err := e.getJson(ctx, userId, e.serverUrl+usersPath+"?filter="+url.QueryEscape(username), &page); err != nil {
		return "", err
	}

	for _, u := range page.Values {
		if u.Name == username {
			return u.Slug, nil
		}
	}
	return "", sperrors.New(sperrors.ProtocolError, fmt.Sprintf("user %s not found in the service provider", username), nil)
}

func (e *Engine) listAccessTokens(ctx context.Context, userId string, slug string) ([]bitbucketAccessToken, error) {
	tokens := []bitbucketAccessToken{}
	start := 0
	for {
		page := bitbucketPage[bitbucketAccessToken]{}
		listUrl := e.serverUrl + accessTokensPath + url.PathEscape(slug) + "?start=" + strconv.Itoa(start)
		if err := e.getJson(ctx, userId, listUrl, &page); err != nil {
			return nil, err
		}
		tokens = append(tokens, page.Values...)
		if page.IsLastPage || page.NextPageStart <= start {
			return tokens, nil
		}
		start = page.NextPageStart
	}
}

func (e *Engine) deleteAccessToken(ctx context.Context, userId string, slug string, tokenId string) error {
	resp, err := e.signedRequest(ctx, userId, http.MethodDelete, e.serverUrl+accessTokensPath+url.PathEscape(slug)+"/"+url.PathEscape(tokenId), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// somebody else might have deleted the token in the meantime
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "delete personal access token")
}

func (e *Engine) createAccessToken(ctx context.Context, userId string, slug string, tokenName string) (bitbucketAccessToken, error) {
	body, err := json.Marshal(createAccessTokenRequest{
		Name:        tokenName,
		Permissions: PersonalAccessTokenPermissions,
		ExpiryDays:  PersonalAccessTokenExpiryDays,
	})
	if err != nil {
		return bitbucketAccessToken{}, fmt.Errorf("failed to serialize the token request: %w", err)
	}

	resp, err := e.signedRequest(ctx, userId, http.MethodPut, e.serverUrl+accessTokensPath+url.PathEscape(slug), body)
	if err != nil {
		return bitbucketAccessToken{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "create personal access token"); err != nil {
		return bitbucketAccessToken{}, err
	}

	token := bitbucketAccessToken{}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return bitbucketAccessToken{}, sperrors.New(sperrors.ProtocolError, "failed to parse the created personal access token", err)
	}
	if token.Token == "" {
		return bitbucketAccessToken{}, sperrors.New(sperrors.ProtocolError, "the service provider didn't return the token value", nil)
	}
	return token, nil
}

func (e *Engine) getJson(ctx context.Context, userId string, requestUrl string, dest interface{}) error {
	resp, err := e.signedRequest(ctx, userId, http.MethodGet, requestUrl, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, requestUrl); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return sperrors.New(sperrors.ProtocolError, "failed to parse the response of "+requestUrl, err)
	}
	return nil
}

func (e *Engine) signedRequest(ctx context.Context, userId string, method string, requestUrl string, body []byte) (*http.Response, error) {
	header, err := e.ComputeAuthorizationHeader(ctx, userId, method, requestUrl)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, requestUrl, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create the request: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, sperrors.New(sperrors.ProviderExchangeFailure, "failed to reach the service provider", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, operation string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	spErr := sperrors.FromHttpResponse(resp)
	if spErr == nil {
		spErr = sperrors.ServiceProviderError{StatusCode: resp.StatusCode}
	}
	kind := sperrors.ProviderExchangeFailure
	if resp.StatusCode == http.StatusUnauthorized {
		kind = sperrors.UnknownCredential
	}
	return sperrors.New(kind, operation+" failed", spErr)
}
