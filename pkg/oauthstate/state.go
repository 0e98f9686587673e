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

package oauthstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

// The names of the query parameters the state is built from when it is passed around as a plain query string.
const (
	RedirectAfterLoginParam = "redirect_after_login"
	ProviderParam           = "oauth_provider"
	UserIdParam             = "userId"
	UserNameParam           = "userName"
	NamespaceParam          = "namespace"
	IssuedAtParam           = "issuedAt"
	RequestMethodParam      = "request_method"
	SignatureMethodParam    = "signature_method"
	StateSignatureParam     = "state_signature"
)

var (
	errEmptyState   = errors.New("empty state")
	errGarbledState = errors.New("the state is neither base64 encoded JSON nor a query string")
)

// OAuthState is the data carried through the redirect to the service provider and back. The callback handlers
// may be invoked without the session of the user that started the flow so everything needed to finish the flow must
// be present here.
type OAuthState struct {
	RedirectAfterLogin string                     `json:"redirectAfterLogin,omitempty"`
	Provider           config.ServiceProviderName `json:"oauthProvider,omitempty"`
	UserId             string                     `json:"userId,omitempty"`
	UserName           string                     `json:"userName,omitempty"`
	Namespace          string                     `json:"namespace,omitempty"`
	IssuedAt           int64                      `json:"issuedAt,omitempty"`
	RequestMethod      string                     `json:"requestMethod,omitempty"`
	SignatureMethod    string                     `json:"signatureMethod,omitempty"`
	// Signature is the detached JWS over the other fields, see Codec.
	Signature string `json:"signature,omitempty"`
}

// Encode serializes the provided state as base64 encoded JSON.
func Encode(state interface{}) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to serialize the state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// ParseInto decodes the base64 encoded JSON into the dest object. Note that no validation is done on the parsed object.
func ParseInto(encoded string, dest interface{}) error {
	data, err := decodeBase64(encoded)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Parse decodes the state. The base64 encoded JSON is tried first, the plain URL encoded query string (as produced by
// the OAuth 1.0 flow) is used as the fallback.
func Parse(encoded string) (OAuthState, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return OAuthState{}, errEmptyState
	}

	state := OAuthState{}
	if err := ParseInto(encoded, &state); err == nil {
		return state, nil
	}

	query, err := url.ParseQuery(encoded)
	if err != nil {
		return OAuthState{}, fmt.Errorf("%w: %s", errGarbledState, err.Error())
	}
	if !hasStateParam(query) {
		return OAuthState{}, errGarbledState
	}
	return FromQuery(query), nil
}

// FromQuery reads the state from the query parameters.
func FromQuery(query url.Values) OAuthState {
	state := OAuthState{
		RedirectAfterLogin: query.Get(RedirectAfterLoginParam),
		Provider:           config.ServiceProviderName(query.Get(ProviderParam)),
		UserId:             query.Get(UserIdParam),
		UserName:           query.Get(UserNameParam),
		Namespace:          query.Get(NamespaceParam),
		RequestMethod:      query.Get(RequestMethodParam),
		SignatureMethod:    query.Get(SignatureMethodParam),
		Signature:          query.Get(StateSignatureParam),
	}
	if issuedAt, err := strconv.ParseInt(query.Get(IssuedAtParam), 10, 64); err == nil {
		state.IssuedAt = issuedAt
	}
	return state
}

// Values returns the state as query parameters. Only the non-empty fields are included.
func (s OAuthState) Values() url.Values {
	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set(RedirectAfterLoginParam, s.RedirectAfterLogin)
	set(ProviderParam, string(s.Provider))
	set(UserIdParam, s.UserId)
	set(UserNameParam, s.UserName)
	set(NamespaceParam, s.Namespace)
	set(RequestMethodParam, s.RequestMethod)
	set(SignatureMethodParam, s.SignatureMethod)
	set(StateSignatureParam, s.Signature)
	if s.IssuedAt > 0 {
		values.Set(IssuedAtParam, strconv.FormatInt(s.IssuedAt, 10))
	}
	return values
}

func decodeBase64(encoded string) ([]byte, error) {
	var lastErr error
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
		data, err := enc.DecodeString(encoded)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to decode the state: %w", lastErr)
}

func hasStateParam(query url.Values) bool {
	for _, key := range []string{RedirectAfterLoginParam, ProviderParam, UserIdParam, UserNameParam, NamespaceParam} {
		if query.Has(key) {
			return true
		}
	}
	return false
}
