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
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("OAuth 2.0 flow", func() {
	var env *testEnv

	BeforeEach(func() {
		env = startTestEnv()
	})

	AfterEach(func() {
		env.Close()
	})

	encodedState := func(redirect string) string {
		state, err := env.Codec.Encode(oauthstate.OAuthState{
			RedirectAfterLogin: redirect,
			Provider:           config.ServiceProviderGitHub,
			UserId:             testUserId,
			UserName:           testUserName,
			Namespace:          testNamespace,
			IssuedAt:           time.Now().Unix(),
		})
		Expect(err).NotTo(HaveOccurred())
		return state
	}

	Describe("Authenticate", func() {
		It("redirects to the authorization endpoint of the provider", func() {
			req := authenticated(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=github&redirect_after_login="+url.QueryEscape(dashboardUrl), nil))

			res := env.Do(req)

			Expect(res.Code).To(Equal(http.StatusFound))
			location, err := url.Parse(res.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			Expect(location.Scheme + "://" + location.Host + location.Path).To(Equal(env.GitHub.URL() + "/login/oauth/authorize"))

			query := location.Query()
			Expect(query.Get("client_id")).To(Equal("client-id"))
			Expect(query.Get("redirect_uri")).To(Equal(serviceBaseUrl + CallbackPath))
			Expect(query.Get("response_type")).To(Equal("code"))
			Expect(query.Get("scope")).To(Equal("repo user:email read:user"))

			state, err := env.Codec.Parse(query.Get("state"))
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Provider).To(Equal(config.ServiceProviderGitHub))
			Expect(state.UserId).To(Equal(testUserId))
			Expect(state.UserName).To(Equal(testUserName))
			Expect(state.Namespace).To(Equal(testNamespace))
			Expect(state.RedirectAfterLogin).To(Equal(dashboardUrl))
			Expect(state.IssuedAt).To(BeNumerically(">", 0))
		})

		It("requests the scopes asked for", func() {
			req := authenticated(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=github&scope=repo,gist", nil))

			res := env.Do(req)

			Expect(res.Code).To(Equal(http.StatusFound))
			location, err := url.Parse(res.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			Expect(location.Query().Get("scope")).To(Equal("repo gist"))
		})

		It("repairs the redirect with curly braces", func() {
			redirect := "https://che.acme.com/f?url={repo}"
			req := authenticated(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=github&redirect_after_login="+url.QueryEscape(redirect), nil))

			res := env.Do(req)

			location, err := url.Parse(res.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			state, err := oauthstate.Parse(location.Query().Get("state"))
			Expect(err).NotTo(HaveOccurred())
			Expect(state.RedirectAfterLogin).To(Equal("https://che.acme.com/f?url%3D%7Brepo%7D"))
		})

		It("requires the identity of the caller", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=github", nil))

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeErrorResponse(res).ErrorCode).To(Equal("unauthorized"))
		})

		It("refuses unknown providers", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=sourceforge", nil)))

			Expect(res.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeErrorResponse(res).ErrorCode).To(Equal("invalid_request"))
		})

		It("uses the OAuth application configured in the user namespace", func() {
			Expect(env.K8sClient.Create(context.TODO(), &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      "github-oauth-config",
					Namespace: testNamespace,
					Labels: map[string]string{
						credentials.PartOfLabel:    credentials.PartOfLabelValue,
						credentials.ComponentLabel: ComponentOAuthConfigValue,
						ServiceProviderLabel:       string(config.ServiceProviderGitHub),
					},
				},
				Data: map[string][]byte{
					"clientId":     []byte("namespace-client-id"),
					"clientSecret": []byte("namespace-client-secret"),
				},
			})).To(Succeed())

			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=github", nil)))

			Expect(res.Code).To(Equal(http.StatusFound))
			location, err := url.Parse(res.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			Expect(location.Query().Get("client_id")).To(Equal("namespace-client-id"))
		})

		It("fails on an incomplete OAuth application in the user namespace", func() {
			Expect(env.K8sClient.Create(context.TODO(), &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      "github-oauth-config",
					Namespace: testNamespace,
					Labels: map[string]string{
						credentials.PartOfLabel:    credentials.PartOfLabelValue,
						credentials.ComponentLabel: ComponentOAuthConfigValue,
						ServiceProviderLabel:       string(config.ServiceProviderGitHub),
					},
				},
				Data: map[string][]byte{
					"clientId": []byte("namespace-client-id"),
				},
			})).To(Succeed())

			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/authenticate?oauth_provider=github", nil)))

			Expect(res.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeErrorResponse(res).ErrorCode).To(Equal("server_error"))
		})
	})

	Describe("Callback", func() {
		It("stores the issued token and redirects back", func() {
			req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+encodedState(dashboardUrl), nil)

			res := env.Do(req)

			Expect(res.Code).To(Equal(http.StatusFound))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl))

			pat, err := env.Store.Get(context.TODO(), testNamespace, config.ServiceProviderGitHub, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(pat).NotTo(BeNil())
			Expect(pat.TokenData).To(Equal("gho_token"))
			Expect(pat.TokenName).To(MatchRegexp("^che-token-[a-z0-9]{8}$"))
			Expect(pat.ScmProviderUrl).To(Equal(env.GitHub.URL()))
			Expect(pat.ScmUserId).To(Equal(testUserId))
			Expect(pat.IsOAuthIssued).To(BeTrue())
			Expect(env.GitHub.LastClientId()).To(Equal("client-id"))
		})

		It("replaces the token of the previous authorization", func() {
			for i := 0; i < 2; i++ {
				res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+encodedState(dashboardUrl), nil))
				Expect(res.Code).To(Equal(http.StatusFound))
			}

			tokens, err := env.Store.ListAll(context.TODO(), testNamespace)
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens).To(HaveLen(1))
		})

		It("redirects with the error code when the exchange fails", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=bad-code&state="+encodedState(dashboardUrl), nil))

			Expect(res.Code).To(Equal(http.StatusFound))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl + "?error_code=invalid_request"))

			tokens, err := env.Store.ListAll(context.TODO(), testNamespace)
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens).To(BeEmpty())
		})

		It("redirects with the error code when the code is missing", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?state="+encodedState(dashboardUrl), nil))

			Expect(res.Code).To(Equal(http.StatusFound))
			Expect(res.Header().Get("Location")).To(Equal(dashboardUrl + "?error_code=invalid_request"))
		})

		It("refuses the state with a tampered namespace", func() {
			signed, err := env.Codec.Parse(encodedState(dashboardUrl))
			Expect(err).NotTo(HaveOccurred())
			signed.Namespace = "kube-system"
			tampered, err := oauthstate.Encode(signed)
			Expect(err).NotTo(HaveOccurred())

			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+tampered, nil))

			Expect(res.Code).To(Equal(http.StatusFound))
			Expect(res.Header().Get("Location")).To(Equal("/?error_code=invalid_request"))
			for _, ns := range []string{"kube-system", testNamespace} {
				tokens, err := env.Store.ListAll(context.TODO(), ns)
				Expect(err).NotTo(HaveOccurred())
				Expect(tokens).To(BeEmpty())
			}
		})

		It("refuses the unsigned state", func() {
			unsigned, err := oauthstate.Encode(oauthstate.OAuthState{
				Provider: config.ServiceProviderGitHub,
				UserId:   testUserId,
				UserName: testUserName,
			})
			Expect(err).NotTo(HaveOccurred())

			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+unsigned, nil))

			Expect(res.Code).To(Equal(http.StatusFound))
			Expect(res.Header().Get("Location")).To(Equal("/?error_code=invalid_request"))
			tokens, err := env.Store.ListAll(context.TODO(), testNamespace)
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens).To(BeEmpty())
		})

		It("stores the token in the namespace of the user regardless of the namespace in the state", func() {
			state, err := env.Codec.Encode(oauthstate.OAuthState{
				Provider:  config.ServiceProviderGitHub,
				UserId:    testUserId,
				UserName:  testUserName,
				Namespace: "kube-system",
				IssuedAt:  time.Now().Unix(),
			})
			Expect(err).NotTo(HaveOccurred())

			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+state, nil))

			Expect(res.Code).To(Equal(http.StatusFound))
			tokens, err := env.Store.ListAll(context.TODO(), "kube-system")
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens).To(BeEmpty())
			tokens, err = env.Store.ListAll(context.TODO(), testNamespace)
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens).To(HaveLen(1))
		})

		It("redirects to the default location when the state is garbled", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state=not-a-state", nil))

			Expect(res.Code).To(Equal(http.StatusFound))
			Expect(res.Header().Get("Location")).To(Equal("/?error_code=invalid_request"))
		})

		It("renders the error page when the provider refuses the authorization", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&error_description=not+allowed", nil))

			Expect(res.Code).To(Equal(http.StatusOK))
			Expect(res.Header().Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(res.Header().Get("Content-Security-Policy")).NotTo(BeEmpty())
			Expect(res.Body.String()).To(ContainSubstring("access_denied"))
			Expect(res.Body.String()).To(ContainSubstring("not allowed"))
		})
	})
})

var _ = Describe("callbackIdentity", func() {
	state := oauthstate.OAuthState{UserId: testUserId, UserName: testUserName}

	It("takes the identity from the state without a session", func() {
		identity, err := callbackIdentity(context.TODO(), NewAuthenticator(scs.New()), state)

		Expect(err).NotTo(HaveOccurred())
		Expect(identity).To(Equal(Identity{UserId: testUserId, UserName: testUserName}))
	})

	It("refuses the state without the user", func() {
		_, err := callbackIdentity(context.TODO(), nil, oauthstate.OAuthState{})

		Expect(err).To(HaveOccurred())
	})

	It("refuses the flow started by another user than the one in the session", func() {
		sessionManager := scs.New()
		ctx, err := sessionManager.Load(context.TODO(), "")
		Expect(err).NotTo(HaveOccurred())
		sessionManager.Put(ctx, sessionUserIdKey, "someone-else")

		_, err = callbackIdentity(ctx, NewAuthenticator(sessionManager), state)

		Expect(err).To(HaveOccurred())
	})

	It("prefers the session identity", func() {
		sessionManager := scs.New()
		ctx, err := sessionManager.Load(context.TODO(), "")
		Expect(err).NotTo(HaveOccurred())
		sessionManager.Put(ctx, sessionUserIdKey, testUserId)
		sessionManager.Put(ctx, sessionUserNameKey, "session-name")

		identity, err := callbackIdentity(ctx, NewAuthenticator(sessionManager), state)

		Expect(err).NotTo(HaveOccurred())
		Expect(identity.UserName).To(Equal("session-name"))
	})
})

var _ = Describe("scopesOf", func() {
	It("splits on spaces and commas", func() {
		Expect(scopesOf("repo, gist user", config.ServiceProviderGitHub)).To(Equal([]string{"repo", "gist", "user"}))
	})

	It("falls back to the default scopes", func() {
		Expect(scopesOf("", config.ServiceProviderGitLab)).To(Equal(config.DefaultScopes(config.ServiceProviderGitLab)))
	})
})
