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

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceProviderName is the identifier of the SCM provider as used in the `oauth_provider` query parameters and in
// the metadata of the stored personal access tokens.
type ServiceProviderName string

const (
	ServiceProviderGitHub          ServiceProviderName = "github"
	ServiceProviderGitLab          ServiceProviderName = "gitlab"
	ServiceProviderBitbucket       ServiceProviderName = "bitbucket"
	ServiceProviderBitbucketServer ServiceProviderName = "bitbucket-server"
	ServiceProviderAzureDevOps     ServiceProviderName = "azure-devops"
)

// OAuthVersion distinguishes the two supported authorization protocols.
type OAuthVersion string

const (
	OAuth1 OAuthVersion = "1.0"
	OAuth2 OAuthVersion = "2.0"
)

const (
	MetricsNamespace = "redhat_appstudio"
	MetricsSubsystem = "scm_oauth"

	defaultUserNamespaceTemplate = "<username>-devspaces"
)

type persistedConfiguration struct {
	// ServiceProviders is the list of configuration options for the individual service providers
	ServiceProviders []ServiceProviderConfiguration `yaml:"serviceProviders" validate:"dive"`

	// DefaultRedirectUrl is where the browser is sent when the redirect target of an OAuth flow is unknown.
	DefaultRedirectUrl string `yaml:"defaultRedirectUrl,omitempty"`

	// UserNamespaceTemplate is the template of the namespace holding the personal access tokens of a user. The
	// `<username>` and `<userid>` placeholders are replaced by the identity of the caller.
	UserNamespaceTemplate string `yaml:"userNamespaceTemplate,omitempty"`

	// StateSigningSecret signs the state of the OAuth flows so that the callbacks can trust the identity in it.
	StateSigningSecret string `yaml:"stateSigningSecret" validate:"required"`
}

type SharedConfiguration struct {
	// ServiceProviders is the list of configuration options for the individual service providers
	ServiceProviders []ServiceProviderConfiguration

	// BaseUrl is the URL on which the OAuth service is deployed. It is used to compose the callback URLs for the
	// service providers, e.g. `${BASE_URL}/oauth/callback`.
	BaseUrl string

	DefaultRedirectUrl string

	UserNamespaceTemplate string

	StateSigningSecret []byte
}

type ServiceProviderConfiguration struct {
	// Name is the name of the service provider. This must be one of github, gitlab, bitbucket, bitbucket-server or
	// azure-devops.
	Name ServiceProviderName `yaml:"name" validate:"required,oneof=github gitlab bitbucket bitbucket-server azure-devops"`

	// ServiceProviderBaseUrl is the base URL of the service provider. This can be omitted for the providers that
	// have a well-known SaaS instance.
	ServiceProviderBaseUrl string `yaml:"baseUrl,omitempty" validate:"omitempty,https_only"`

	// ClientId is the client ID of the OAuth 2.0 application registered in the service provider.
	ClientId string `yaml:"clientId,omitempty"`

	// ClientSecret is the client secret of the OAuth 2.0 application registered in the service provider.
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// AuthUrl overrides the default authorization endpoint.
	AuthUrl string `yaml:"authUrl,omitempty" validate:"omitempty,https_only"`

	// TokenUrl overrides the default token endpoint.
	TokenUrl string `yaml:"tokenUrl,omitempty" validate:"omitempty,https_only"`

	// ConsumerKey is the consumer key of the OAuth 1.0a application link. Setting it makes the provider use OAuth 1.0a.
	ConsumerKey string `yaml:"consumerKey,omitempty"`

	// PrivateKey is the RSA private key used for RSA-SHA1 signatures, either PEM or base64 encoded DER. An OAuth 1.0a
	// provider needs either this or the SharedSecret.
	PrivateKey string `yaml:"privateKey,omitempty"`

	// SharedSecret is the consumer secret used for HMAC-SHA1 signatures.
	SharedSecret string `yaml:"sharedSecret,omitempty"`
}

// OAuthVersion returns the version of the OAuth protocol that the configured provider uses.
func (c ServiceProviderConfiguration) OAuthVersion() OAuthVersion {
	if c.ConsumerKey != "" {
		return OAuth1
	}
	return OAuth2
}

// BaseUrl returns the configured base URL or the default one of the provider.
func (c ServiceProviderConfiguration) BaseUrl() string {
	if c.ServiceProviderBaseUrl != "" {
		return strings.TrimSuffix(c.ServiceProviderBaseUrl, "/")
	}
	if defaults, ok := DefaultsFor(c.Name); ok {
		return defaults.BaseUrl
	}
	return ""
}

// FindServiceProvider returns the configuration of the service provider with given name.
func (c SharedConfiguration) FindServiceProvider(name ServiceProviderName) (ServiceProviderConfiguration, bool) {
	for _, sp := range c.ServiceProviders {
		if strings.EqualFold(string(sp.Name), string(name)) {
			return sp, true
		}
	}
	return ServiceProviderConfiguration{}, false
}

// UserNamespace computes the namespace holding the credentials of the user with the given identity.
func (c SharedConfiguration) UserNamespace(userId, userName string) string {
	tmpl := c.UserNamespaceTemplate
	if tmpl == "" {
		tmpl = defaultUserNamespaceTemplate
	}
	ns := strings.ReplaceAll(tmpl, "<username>", userName)
	ns = strings.ReplaceAll(ns, "<userid>", userId)
	return strings.ToLower(ns)
}

func (c persistedConfiguration) convert() SharedConfiguration {
	return SharedConfiguration{
		ServiceProviders:      c.ServiceProviders,
		DefaultRedirectUrl:    c.DefaultRedirectUrl,
		UserNamespaceTemplate: c.UserNamespaceTemplate,
		StateSigningSecret:    []byte(c.StateSigningSecret),
	}
}

// LoadFrom loads the configuration from the YAML file on the provided path and validates it.
func LoadFrom(configFile, baseUrl string) (SharedConfiguration, error) {
	pcfg, err := loadFrom(configFile)
	if err != nil {
		return SharedConfiguration{}, err
	}

	if err := ValidateStruct(&pcfg); err != nil {
		return SharedConfiguration{}, fmt.Errorf("invalid configuration in %s: %w", configFile, err)
	}

	cfg := pcfg.convert()
	cfg.BaseUrl = strings.TrimSuffix(baseUrl, "/")
	if cfg.DefaultRedirectUrl == "" {
		cfg.DefaultRedirectUrl = "/"
	}

	return cfg, nil
}

func loadFrom(path string) (persistedConfiguration, error) {
	file, err := os.Open(path)
	if err != nil {
		return persistedConfiguration{}, fmt.Errorf("error opening the config file from %s: %w", path, err)
	}
	defer file.Close()

	return readFrom(file)
}

func readFrom(rdr io.Reader) (persistedConfiguration, error) {
	conf := persistedConfiguration{}

	bytes, err := io.ReadAll(rdr)
	if err != nil {
		return conf, fmt.Errorf("error reading the config file: %w", err)
	}

	if err := yaml.Unmarshal(bytes, &conf); err != nil {
		return conf, fmt.Errorf("error parsing the config file as YAML: %w", err)
	}

	return conf, nil
}
