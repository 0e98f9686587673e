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
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/factory"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/oauthstate"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewRouter", func() {
	lg := logr.Discard()
	codec, _ := oauthstate.NewCodec([]byte("secret"))

	It("requires the state codec", func() {
		_, err := NewRouter(&lg, RouterConfiguration{
			OAuthServiceConfiguration: OAuthServiceConfiguration{SharedConfiguration: config.SharedConfiguration{
				ServiceProviders: []config.ServiceProviderConfiguration{{Name: config.ServiceProviderGitHub, ClientId: "a"}},
			}},
		})

		Expect(err).To(MatchError(errNoStateCodec))
	})

	It("requires an engine for every OAuth 1.0a provider", func() {
		_, err := NewRouter(&lg, RouterConfiguration{
			StateCodec: codec,
			OAuthServiceConfiguration: OAuthServiceConfiguration{SharedConfiguration: config.SharedConfiguration{
				ServiceProviders: []config.ServiceProviderConfiguration{{
					Name:                   config.ServiceProviderBitbucketServer,
					ServiceProviderBaseUrl: "https://bitbucket.acme.com",
					ConsumerKey:            "consumer-key",
				}},
			}},
		})

		Expect(err).To(HaveOccurred())
	})

	It("refuses the providers configured twice", func() {
		_, err := NewRouter(&lg, RouterConfiguration{
			StateCodec: codec,
			OAuthServiceConfiguration: OAuthServiceConfiguration{SharedConfiguration: config.SharedConfiguration{
				ServiceProviders: []config.ServiceProviderConfiguration{
					{Name: config.ServiceProviderGitHub, ClientId: "a"},
					{Name: config.ServiceProviderGitHub, ClientId: "b"},
				},
			}},
		})

		Expect(err).To(HaveOccurred())
	})

	It("refuses the OAuth 2.0 providers without a known endpoint", func() {
		_, err := NewRouter(&lg, RouterConfiguration{
			StateCodec: codec,
			OAuthServiceConfiguration: OAuthServiceConfiguration{SharedConfiguration: config.SharedConfiguration{
				ServiceProviders: []config.ServiceProviderConfiguration{{
					Name:                   config.ServiceProviderBitbucketServer,
					ServiceProviderBaseUrl: "https://bitbucket.acme.com",
					ClientId:               "client-id",
				}},
			}},
		})

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("bitbucket-server"))
	})

	It("initializes the controllers of the well-known providers", func() {
		router, err := NewRouter(&lg, RouterConfiguration{
			StateCodec: codec,
			OAuthServiceConfiguration: OAuthServiceConfiguration{SharedConfiguration: config.SharedConfiguration{
				ServiceProviders: []config.ServiceProviderConfiguration{
					{Name: config.ServiceProviderGitHub, ClientId: "a"},
					{Name: config.ServiceProviderGitLab, ClientId: "b"},
					{Name: config.ServiceProviderAzureDevOps, ClientId: "c"},
				},
			}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(router.controllers).To(HaveLen(3))
	})
})

var _ = Describe("Routes", func() {
	var env *testEnv

	BeforeEach(func() {
		env = startTestEnv()
	})

	AfterEach(func() {
		env.Close()
	})

	It("answers the health checks", func() {
		Expect(env.Do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code).To(Equal(http.StatusOK))
		Expect(env.Do(httptest.NewRequest(http.MethodGet, "/ready", nil)).Code).To(Equal(http.StatusOK))
	})

	Describe("Login and Logout", func() {
		It("keeps the identity in the session", func() {
			login := authenticated(httptest.NewRequest(http.MethodPost, "/login", nil))
			res := env.Do(login)
			Expect(res.Code).To(Equal(http.StatusOK))

			cookies := res.Result().Cookies()
			Expect(cookies).NotTo(BeEmpty())

			get := httptest.NewRequest(http.MethodGet, "/oauth/token?oauth_provider=github", nil)
			for _, c := range cookies {
				get.AddCookie(c)
			}
			// authenticated by the session, there's just no token yet
			Expect(env.Do(get).Code).To(Equal(http.StatusNotFound))

			logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
			for _, c := range cookies {
				logout.AddCookie(c)
			}
			Expect(env.Do(logout).Code).To(Equal(http.StatusOK))

			get = httptest.NewRequest(http.MethodGet, "/oauth/token?oauth_provider=github", nil)
			for _, c := range cookies {
				get.AddCookie(c)
			}
			Expect(env.Do(get).Code).To(Equal(http.StatusUnauthorized))
		})

		It("refuses to log in without the identity headers", func() {
			res := env.Do(httptest.NewRequest(http.MethodPost, "/login", nil))

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Resolve", func() {
		resolve := func(repoUrl string) *httptest.ResponseRecorder {
			return env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/factory/resolve?url="+url.QueryEscape(repoUrl), nil)))
		}

		It("returns the devfile of a public repository", func() {
			res := resolve(env.GitHub.URL() + "/acme/public")

			Expect(res.Code).To(Equal(http.StatusOK))
			devfile := factory.Devfile{}
			Expect(json.Unmarshal(res.Body.Bytes(), &devfile)).To(Succeed())
			Expect(devfile.Provider).To(Equal(config.ServiceProviderGitHub))
			Expect(devfile.Name).To(Equal("nodejs-app"))
			Expect(devfile.Content).To(Equal(devfileContent))
		})

		It("asks for the authorization of a private repository", func() {
			res := resolve(env.GitHub.URL() + "/acme/private")

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
			body := decodeErrorResponse(res)
			Expect(body.ErrorCode).To(Equal("unauthorized"))
			Expect(body.Attributes).To(HaveKeyWithValue("oauth_provider", "github"))
			Expect(body.Attributes).To(HaveKeyWithValue("oauth_version", "2.0"))
			Expect(body.Attributes["oauth_authentication_url"]).To(HavePrefix(serviceBaseUrl + "/oauth/authenticate?"))
		})

		It("refuses the unsupported repositories", func() {
			res := resolve("https://sourceforge.net/p/acme/code")

			Expect(res.Code).To(Equal(http.StatusBadRequest))
		})

		It("requires the url", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/factory/resolve", nil)))

			Expect(res.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("MiddlewareHandler", func() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	It("counts the requests", func() {
		handler, err := MiddlewareHandler(prometheus.NewRegistry(), []string{"https://che.acme.com"}, ok)
		Expect(err).NotTo(HaveOccurred())

		before := testutil.ToFloat64(HttpServiceRequestCountMetric.WithLabelValues("200", "get"))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/oauth", nil))
		Expect(testutil.ToFloat64(HttpServiceRequestCountMetric.WithLabelValues("200", "get"))).To(Equal(before + 1))
	})

	It("doesn't count the health checks", func() {
		handler, err := MiddlewareHandler(prometheus.NewRegistry(), []string{"https://che.acme.com"}, ok)
		Expect(err).NotTo(HaveOccurred())

		before := testutil.ToFloat64(HttpServiceRequestCountMetric.WithLabelValues("200", "get"))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(testutil.ToFloat64(HttpServiceRequestCountMetric.WithLabelValues("200", "get"))).To(Equal(before))
	})

	It("allows the configured origins", func() {
		handler, err := MiddlewareHandler(prometheus.NewRegistry(), []string{"https://che.acme.com"}, ok)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, "/oauth", nil)
		req.Header.Set("Origin", "https://che.acme.com")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		Expect(res.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://che.acme.com"))
	})

	It("registers the metrics only once", func() {
		reg := prometheus.NewRegistry()
		Expect(RegisterMetrics(reg)).To(Succeed())
		Expect(RegisterMetrics(reg)).To(Succeed())
	})
})

var _ = Describe("Flow metrics", func() {
	It("observes the completed flows", func() {
		env := startTestEnv()
		defer env.Close()

		state, err := env.Codec.Encode(oauthstate.OAuthState{
			Provider:  config.ServiceProviderGitHub,
			UserId:    testUserId,
			UserName:  testUserName,
			Namespace: testNamespace,
			IssuedAt:  time.Now().Add(-time.Minute).Unix(),
		})
		Expect(err).NotTo(HaveOccurred())

		res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+state, nil))

		Expect(res.Code).To(Equal(http.StatusFound))
		Expect(testutil.CollectAndCount(OAuthFlowCompleteTimeMetric)).To(BeNumerically(">", 0))
	})
})
