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

package oauthcli

import (
	"time"

	"github.com/redhat-appstudio/scm-oauth-service/cmd"
)

type OAuthServiceCliArgs struct {
	cmd.CommonCliArgs
	cmd.LoggingCliArgs
	cmd.KVStoreCliArgs
	ServiceAddr     string        `arg:"--service-addr, env" default:"0.0.0.0:8000" help:"Service address to listen on"`
	AllowedOrigins  string        `arg:"--allowed-origins, env" default:"https://che.eclipse.org" help:"Comma-separated list of domains allowed for cross-domain requests"`
	KubeConfig      string        `arg:"--kubeconfig, env" default:"" help:"The kubeconfig to use outside of the cluster"`
	KubeInsecureTLS bool          `arg:"--kube-insecure-tls, env" default:"false" help:"Whether is allowed or not insecure kubernetes tls connection."`
	TLSCertFile     string        `arg:"--tls-cert-file, env" default:"" help:"The certificate to serve HTTPS with, plain HTTP is served when empty"`
	TLSKeyFile      string        `arg:"--tls-key-file, env" default:"" help:"The private key of the TLS certificate"`
	ProviderTimeout time.Duration `arg:"--provider-timeout, env" default:"30s" help:"The timeout of the requests to the service providers"`
	ResolveDevfiles bool          `arg:"--resolve-devfiles, env" default:"true" help:"Whether to expose the devfile resolution endpoint"`
}
