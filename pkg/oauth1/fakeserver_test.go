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
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by RFC 5849
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// fakeBitbucketServer implements the parts of the Bitbucket Server API used by the engine. It verifies the signatures
// of all the requests.
type fakeBitbucketServer struct {
	t              *testing.T
	server         *httptest.Server
	publicKey      *rsa.PublicKey
	consumerSecret string
	username       string

	lock          sync.Mutex
	requestTokens map[string]string
	accessTokens  map[string]string
	callbacks     []string
	tokens        []bitbucketAccessToken
	lastId        int
	refuseTokens  bool
}

func newFakeBitbucketServer(t *testing.T, publicKey *rsa.PublicKey, consumerSecret string) *fakeBitbucketServer {
	f := &fakeBitbucketServer{
		t:              t,
		publicKey:      publicKey,
		consumerSecret: consumerSecret,
		username:       "jdoe@acme.com",
		requestTokens:  map[string]string{},
		accessTokens:   map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(requestTokenPath, f.handleRequestToken)
	mux.HandleFunc(accessTokenPath, f.handleAccessToken)
	mux.HandleFunc(whoamiPath, f.authenticated(f.handleWhoami))
	mux.HandleFunc(usersPath, f.authenticated(f.handleUsers))
	mux.HandleFunc(accessTokensPath, f.authenticated(f.handleAccessTokens))

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBitbucketServer) URL() string {
	return f.server.URL
}

func (f *fakeBitbucketServer) TokenNames() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	names := []string{}
	for _, t := range f.tokens {
		names = append(names, t.Name)
	}
	return names
}

func (f *fakeBitbucketServer) LastCallback() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.callbacks) == 0 {
		return ""
	}
	return f.callbacks[len(f.callbacks)-1]
}

func (f *fakeBitbucketServer) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	params, ok := f.verify(w, r, "")
	if !ok {
		return
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.refuseTokens {
		http.Error(w, "consumer_key_unknown", http.StatusUnauthorized)
		return
	}

	token := fmt.Sprintf("request-token-%d", len(f.requestTokens)+1)
	f.requestTokens[token] = "request-secret-" + token
	f.callbacks = append(f.callbacks, params[CallbackParam])

	_, _ = w.Write([]byte(url.Values{
		TokenParam:                 {token},
		TokenSecretParam:           {f.requestTokens[token]},
		"oauth_callback_confirmed": {"true"},
	}.Encode()))
}

func (f *fakeBitbucketServer) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	params := parseAuthorizationHeader(r.Header.Get("Authorization"))

	f.lock.Lock()
	secret, known := f.requestTokens[params[TokenParam]]
	f.lock.Unlock()

	if !known {
		http.Error(w, "oauth_problem=token_rejected", http.StatusUnauthorized)
		return
	}
	if _, ok := f.verify(w, r, secret); !ok {
		return
	}
	if params[VerifierParam] != "verifier" {
		http.Error(w, "oauth_problem=parameter_rejected", http.StatusUnauthorized)
		return
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	accessToken := "access-" + params[TokenParam]
	f.accessTokens[accessToken] = f.username

	_, _ = w.Write([]byte(url.Values{
		TokenParam:       {accessToken},
		TokenSecretParam: {"access-secret"},
	}.Encode()))
}

func (f *fakeBitbucketServer) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, ok := f.verify(w, r, "access-secret")
		if !ok {
			return
		}
		f.lock.Lock()
		_, known := f.accessTokens[params[TokenParam]]
		f.lock.Unlock()
		if !known {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeBitbucketServer) handleWhoami(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(usernameHeader, f.username)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeBitbucketServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	page := bitbucketPage[bitbucketUser]{IsLastPage: true, Values: []bitbucketUser{}}
	if filter := r.URL.Query().Get("filter"); strings.HasPrefix(f.username, filter) {
		page.Values = append(page.Values,
			bitbucketUser{Name: f.username + ".old", Slug: "old"},
			bitbucketUser{Name: f.username, Slug: "jdoe_acme.com"})
	}
	f.writeJson(w, page)
}

func (f *fakeBitbucketServer) handleAccessTokens(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, accessTokensPath)
	slug, tokenId, _ := strings.Cut(rest, "/")
	if slug != "jdoe_acme.com" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	switch r.Method {
	case http.MethodGet:
		// one token per page to exercise the paging
		start := 0
		_, _ = fmt.Sscanf(r.URL.Query().Get("start"), "%d", &start)
		page := bitbucketPage[bitbucketAccessToken]{Values: []bitbucketAccessToken{}, IsLastPage: true}
		if start < len(f.tokens) {
			page.Values = append(page.Values, bitbucketAccessToken{Id: f.tokens[start].Id, Name: f.tokens[start].Name})
			page.IsLastPage = start+1 >= len(f.tokens)
			page.NextPageStart = start + 1
		}
		f.writeJson(w, page)
	case http.MethodDelete:
		for i, t := range f.tokens {
			if t.Id == tokenId {
				f.tokens = append(f.tokens[:i], f.tokens[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		req := createAccessTokenRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.ExpiryDays != PersonalAccessTokenExpiryDays || len(req.Permissions) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastId++
		token := bitbucketAccessToken{Id: fmt.Sprintf("%d", f.lastId), Name: req.Name, Token: fmt.Sprintf("pat-%d", f.lastId)}
		f.tokens = append(f.tokens, token)
		f.writeJson(w, token)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBitbucketServer) writeJson(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		f.t.Error(err)
	}
}

// verify checks the signature of the request and returns the protocol parameters from the Authorization header.
func (f *fakeBitbucketServer) verify(w http.ResponseWriter, r *http.Request, tokenSecret string) (map[string]string, bool) {
	params := parseAuthorizationHeader(r.Header.Get("Authorization"))

	signed := r.URL.Query()
	for k, v := range params {
		signed.Set(k, v)
	}
	base := SignatureBaseString(r.Method, &url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}, signed)

	valid := false
	switch SignatureMethod(params[SignatureMethodParam]) {
	case RsaSha1:
		signature, err := base64.StdEncoding.DecodeString(params[SignatureParam])
		digest := sha1.Sum([]byte(base)) //nolint:gosec // SHA-1 is mandated by RFC 5849
		valid = err == nil && rsa.VerifyPKCS1v15(f.publicKey, crypto.SHA1, digest[:], signature) == nil
	case HmacSha1:
		expected, err := (&Signer{ConsumerSecret: f.consumerSecret}).Sign(HmacSha1, base, tokenSecret)
		valid = err == nil && expected == params[SignatureParam]
	}

	if !valid || params[ConsumerKeyParam] != "consumer-key" || len(params[NonceParam]) != 32 {
		http.Error(w, "oauth_problem=signature_invalid", http.StatusUnauthorized)
		return nil, false
	}
	return params, true
}

func parseAuthorizationHeader(header string) map[string]string {
	params := map[string]string{}
	for _, pair := range strings.Split(strings.TrimPrefix(header, "OAuth "), ", ") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		value, err := url.PathUnescape(strings.Trim(v, `"`))
		if err != nil {
			continue
		}
		params[k] = value
	}
	return params
}
