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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Token endpoints", func() {
	var env *testEnv

	BeforeEach(func() {
		env = startTestEnv()
	})

	AfterEach(func() {
		env.Close()
	})

	upload := func(body string) *httptest.ResponseRecorder {
		return env.Do(authenticated(httptest.NewRequest(http.MethodPost, "/personal-access-token", strings.NewReader(body))))
	}

	getToken := func(provider string) *httptest.ResponseRecorder {
		return env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/token?oauth_provider="+provider, nil)))
	}

	deleteToken := func(provider string) *httptest.ResponseRecorder {
		return env.Do(authenticated(httptest.NewRequest(http.MethodDelete, "/oauth/token?oauth_provider="+provider, nil)))
	}

	Describe("Upload", func() {
		It("stores the uploaded token", func() {
			res := upload(`{"gitProvider": "github", "gitProviderEndpoint": "https://github.com/", "tokenName": "my-token", "token": "ghp_123"}`)

			Expect(res.Code).To(Equal(http.StatusCreated))
			stored := personalAccessTokenResponse{}
			Expect(json.Unmarshal(res.Body.Bytes(), &stored)).To(Succeed())
			Expect(stored.TokenName).To(Equal("my-token"))
			Expect(stored.ScmProviderName).To(Equal(config.ServiceProviderGitHub))
			Expect(stored.ScmProviderUrl).To(Equal("https://github.com"))
			Expect(stored.IsOAuthIssued).To(BeFalse())
		})

		It("determines the provider from the endpoint", func() {
			res := upload(`{"gitProviderEndpoint": "https://gitlab.com", "token": "glpat-123"}`)

			Expect(res.Code).To(Equal(http.StatusCreated))
			stored := personalAccessTokenResponse{}
			Expect(json.Unmarshal(res.Body.Bytes(), &stored)).To(Succeed())
			Expect(stored.ScmProviderName).To(Equal(config.ServiceProviderGitLab))
			Expect(stored.TokenName).To(HavePrefix("che-token-"))
		})

		for name, body := range map[string]string{
			"not a JSON":            `token=123`,
			"missing token":         `{"gitProviderEndpoint": "https://github.com"}`,
			"missing endpoint":      `{"token": "123"}`,
			"invalid token name":    `{"gitProviderEndpoint": "https://github.com", "token": "123", "tokenName": "not a label!"}`,
			"unknown provider":      `{"gitProvider": "sourceforge", "gitProviderEndpoint": "https://sourceforge.net", "token": "123"}`,
			"unrecognized endpoint": `{"gitProviderEndpoint": "https://git.acme.com", "token": "123"}`,
		} {
			body := body
			It("rejects the request with "+name, func() {
				res := upload(body)

				Expect(res.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeErrorResponse(res).ErrorCode).To(Equal("invalid_request"))
			})
		}

		It("requires the identity of the caller", func() {
			res := env.Do(httptest.NewRequest(http.MethodPost, "/personal-access-token", strings.NewReader(`{"gitProviderEndpoint": "https://github.com", "token": "123"}`)))

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Get and Delete", func() {
		It("returns the stored token", func() {
			Expect(upload(`{"gitProviderEndpoint": "https://github.com", "tokenName": "my-token", "token": "ghp_123"}`).Code).To(Equal(http.StatusCreated))

			res := getToken("github")

			Expect(res.Code).To(Equal(http.StatusOK))
			token := tokenResponse{}
			Expect(json.Unmarshal(res.Body.Bytes(), &token)).To(Succeed())
			Expect(token.Token).To(Equal("ghp_123"))
			Expect(token.TokenName).To(Equal("my-token"))
			Expect(token.OAuthProvider).To(Equal(config.ServiceProviderGitHub))
			Expect(token.ProviderUrl).To(Equal("https://github.com"))
		})

		It("returns 404 when there is no token", func() {
			res := getToken("github")

			Expect(res.Code).To(Equal(http.StatusNotFound))
			Expect(decodeErrorResponse(res).ErrorCode).To(Equal("not_found"))
		})

		It("revokes the tokens idempotently", func() {
			Expect(upload(`{"gitProviderEndpoint": "https://github.com", "token": "ghp_123"}`).Code).To(Equal(http.StatusCreated))
			Expect(upload(`{"gitProviderEndpoint": "https://gitlab.com", "token": "glpat-123"}`).Code).To(Equal(http.StatusCreated))

			Expect(deleteToken("github").Code).To(Equal(http.StatusNoContent))
			Expect(getToken("github").Code).To(Equal(http.StatusNotFound))
			Expect(getToken("gitlab").Code).To(Equal(http.StatusOK))

			Expect(deleteToken("github").Code).To(Equal(http.StatusNoContent))
		})

		It("requires the provider", func() {
			res := env.Do(authenticated(httptest.NewRequest(http.MethodGet, "/oauth/token", nil)))

			Expect(res.Code).To(Equal(http.StatusBadRequest))
		})

		It("requires the identity of the caller", func() {
			res := env.Do(httptest.NewRequest(http.MethodDelete, "/oauth/token?oauth_provider=github", nil))

			Expect(res.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Providers", func() {
		It("lists the configured providers with their authenticate links", func() {
			res := env.Do(httptest.NewRequest(http.MethodGet, "/oauth", nil))

			Expect(res.Code).To(Equal(http.StatusOK))
			providers := []providerDescriptor{}
			Expect(json.Unmarshal(res.Body.Bytes(), &providers)).To(Succeed())
			Expect(providers).To(HaveLen(2))

			Expect(providers[0].Name).To(Equal(config.ServiceProviderGitHub))
			Expect(providers[0].EndpointUrl).To(Equal(env.GitHub.URL()))
			Expect(providers[0].OAuthVersion).To(Equal(config.OAuth2))
			Expect(providers[0].Links).To(HaveLen(1))
			Expect(providers[0].Links[0].Href).To(HavePrefix(serviceBaseUrl + "/oauth/authenticate?"))
			Expect(providers[0].Links[0].Href).To(ContainSubstring("oauth_provider=github"))

			Expect(providers[1].Name).To(Equal(config.ServiceProviderBitbucketServer))
			Expect(providers[1].OAuthVersion).To(Equal(config.OAuth1))
			Expect(providers[1].Links[0].Href).To(HavePrefix(serviceBaseUrl + "/oauth/1.0/authenticate?"))
		})
	})
})

var _ = Describe("HandleUpload", func() {
	It("reports the failures of the uploader", func() {
		uploader := UploadFunc(func(_ context.Context, namespace string, pat credentials.PersonalAccessToken) (*credentials.PersonalAccessToken, error) {
			Expect(namespace).To(Equal(testNamespace))
			Expect(pat.ScmProviderName).To(Equal(config.ServiceProviderGitHub))
			return nil, errors.New("storage unavailable")
		})
		handler := HandleUpload(NewAuthenticator(nil), config.SharedConfiguration{}, uploader)

		res := httptest.NewRecorder()
		handler(res, authenticated(httptest.NewRequest(http.MethodPost, "/personal-access-token",
			strings.NewReader(`{"gitProviderEndpoint": "https://github.com", "token": "ghp_123"}`))))

		Expect(res.Code).To(Equal(http.StatusInternalServerError))
		Expect(decodeErrorResponse(res).ErrorCode).To(Equal("server_error"))
	})
})
