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
	"net/http/httptest"
	"net/url"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("OAuth 1.0a flow", func() {
	var env *testEnv

	BeforeEach(func() {
		env = startTestEnv()
	})

	AfterEach(func() {
		env.Close()
	})

	authenticate := func() *httptest.ResponseRecorder {
		return env.Do(authenticated(httptest.NewRequest(http.MethodGet,
			"/oauth/1.0/authenticate?oauth_provider=bitbucket-server&request_method=POST&signature_method=rsa&redirect_after_login="+url.QueryEscape(dashboardUrl), nil)))
	}

	signature := func(requestUrl string) *httptest.ResponseRecorder {
		return env.Do(authenticated(httptest.NewRequest(http.MethodGet,
			"/oauth/1.0/signature?oauth_provider=bitbucket-server&request_url="+url.QueryEscape(requestUrl), nil)))
	}

	Describe("Authenticate", func() {
		It("redirects to the authorization page with the request token", func() {
			res := authenticate()

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal(env.Bitbucket.URL() + "/plugins/servlet/oauth/authorize?oauth_token=request-token"))

			callback, err := url.Parse(env.Bitbucket.LastCallback())
			Expect(err).NotTo(HaveOccurred())
			Expect(callback.Scheme + "://" + callback.Host + callback.Path).To(Equal(serviceBaseUrl + "/oauth/1.0/callback"))

			state, err := env.Codec.Parse(callback.Query().Get("state"))
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Provider).To(Equal(config.ServiceProviderBitbucketServer))
			Expect(state.UserId).To(Equal(testUserId))
			Expect(state.UserName).To(Equal(testUserName))
			Expect(state.Namespace).To(Equal(testNamespace))
			Expect(state.RedirectAfterLogin).To(Equal(dashboardUrl))
			Expect(state.RequestMethod).To(Equal(http.MethodPost))
			Expect(state.IssuedAt).To(BeNumerically(">", 0))
		})

		It("requires the identity of the caller", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/1.0/authenticate?oauth_provider=bitbucket-server", nil))

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
		})

		It("redirects back with the error code for an unknown provider", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet,
				"/oauth/1.0/authenticate?oauth_provider=github&redirect_after_login="+url.QueryEscape(dashboardUrl), nil)))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl + "?error_code=invalid_request"))
		})

		It("refuses the flow started on behalf of another user", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet,
				"/oauth/1.0/authenticate?oauth_provider=bitbucket-server&userId=somebody-else", nil)))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal("/?error_code=invalid_request"))
		})
	})

	Describe("Callback", func() {
		It("issues and stores the personal access token", func() {
			Expect(authenticate().Code).To(Equal(http.StatusTemporaryRedirect))

			res := env.Do(callbackRequest(env.Bitbucket.LastCallback(), "verifier"))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl))

			Expect(env.Bitbucket.IssuedTokenNames()).To(HaveLen(1))
			tokenName := env.Bitbucket.IssuedTokenNames()[0]
			Expect(tokenName).To(MatchRegexp("^che-token-[a-z0-9]{8}$"))

			pat, err := env.Store.Get(context.TODO(), testNamespace, config.ServiceProviderBitbucketServer, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(pat).NotTo(BeNil())
			Expect(pat.TokenData).To(Equal("bbs-pat"))
			Expect(pat.TokenName).To(Equal(tokenName))
			Expect(pat.ScmUserName).To(Equal("jdoe@acme.com"))
			Expect(pat.ScmProviderUrl).To(Equal(env.Bitbucket.URL()))
			Expect(pat.IsOAuthIssued).To(BeTrue())
		})

		It("redirects with access_denied when the user denies the authorization", func() {
			Expect(authenticate().Code).To(Equal(http.StatusTemporaryRedirect))

			res := env.Do(callbackRequest(env.Bitbucket.LastCallback(), "denied"))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl + "?error_code=access_denied"))
			Expect(env.Bitbucket.IssuedTokenNames()).To(BeEmpty())
		})

		It("doesn't accept the same request token twice", func() {
			Expect(authenticate().Code).To(Equal(http.StatusTemporaryRedirect))
			callback := env.Bitbucket.LastCallback()
			Expect(env.Do(callbackRequest(callback, "verifier")).Header().Get("Location")).To(Equal(dashboardUrl))

			res := env.Do(callbackRequest(callback, "verifier"))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl + "?error_code=invalid_request"))
			Expect(env.Bitbucket.IssuedTokenNames()).To(HaveLen(1))
		})

		It("refuses the state with a tampered user", func() {
			Expect(authenticate().Code).To(Equal(http.StatusTemporaryRedirect))
			callback, err := url.Parse(env.Bitbucket.LastCallback())
			Expect(err).NotTo(HaveOccurred())
			state, err := url.ParseQuery(callback.Query().Get("state"))
			Expect(err).NotTo(HaveOccurred())
			state.Set(oauthstate.UserIdParam, "u-admin")
			state.Set(oauthstate.NamespaceParam, "kube-system")
			callback.RawQuery = url.Values{"state": {state.Encode()}}.Encode()

			res := env.Do(callbackRequest(callback.String(), "verifier"))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal("/?error_code=invalid_request"))
			Expect(env.Bitbucket.IssuedTokenNames()).To(BeEmpty())
			tokens, err := env.Store.ListAll(context.TODO(), "kube-system")
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens).To(BeEmpty())
		})

		It("redirects to the default location without the state", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/1.0/callback?oauth_token=request-token&oauth_verifier=verifier", nil))

			Expect(res.Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(res.Header().Get("Location")).To(Equal("/?error_code=invalid_request"))
		})
	})

	Describe("Signature", func() {
		It("signs the requests of the authorized user", func() {
			Expect(authenticate().Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(env.Do(callbackRequest(env.Bitbucket.LastCallback(), "verifier")).Code).To(Equal(http.StatusTemporaryRedirect))

			res := signature(env.Bitbucket.URL() + "/rest/api/1.0/projects")

			Expect(res.Code).To(Equal(http.StatusOK))
			Expect(res.Header().Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(res.Body.String()).To(HavePrefix("OAuth "))
			Expect(res.Body.String()).To(ContainSubstring(`oauth_token="access-token"`))
			Expect(res.Body.String()).To(ContainSubstring(`oauth_signature_method="RSA-SHA1"`))
		})

		It("returns 401 when the user didn't finish the flow", func() {
			res := signature(env.Bitbucket.URL() + "/rest/api/1.0/projects")

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
		})

		It("forgets the access token when the tokens are revoked", func() {
			Expect(authenticate().Code).To(Equal(http.StatusTemporaryRedirect))
			Expect(env.Do(callbackRequest(env.Bitbucket.LastCallback(), "verifier")).Code).To(Equal(http.StatusTemporaryRedirect))

			res := env.Do(authenticated(httptest.NewRequest(http.MethodDelete, "/oauth/token?oauth_provider=bitbucket-server", nil)))
			Expect(res.Code).To(Equal(http.StatusNoContent))

			Expect(signature(env.Bitbucket.URL() + "/rest/api/1.0/projects").Code).To(Equal(http.StatusUnauthorized))
		})

		It("requires the request url", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/1.0/signature?oauth_provider=bitbucket-server", nil)))

			Expect(res.Code).To(Equal(http.StatusBadRequest))
		})

		It("refuses unknown providers", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/1.0/signature?oauth_provider=github&request_url=https%3A%2F%2Fgithub.com", nil)))

			Expect(res.Code).To(Equal(http.StatusBadRequest))
		})

		It("requires the identity of the caller", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/1.0/signature?oauth_provider=bitbucket-server&request_url=https%3A%2F%2Fgithub.com", nil))

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
