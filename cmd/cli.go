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

package cmd

import (
	"crypto/tls"
	"time"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
)

type KVStoreType string

const (
	MemoryKVStore KVStoreType = "memory"
	RedisKVStore  KVStoreType = "redis"
)

type CommonCliArgs struct {
	ConfigFile        string `arg:"--config-file, env" default:"/etc/scm-oauth/config.yaml" help:"The location of the configuration file."`
	BaseUrl           string `arg:"--base-url, env" help:"The externally accessible URL on which the OAuth service is listening. This is used to construct the callback URLs."`
	MetricsAddr       string `arg:"--metrics-bind-address, env" default:"127.0.0.1:8080" help:"The address the metric endpoint binds to."`
	AllowInsecureURLs bool   `arg:"--allow-insecure-urls, env" default:"false" help:"Whether is allowed or not to use insecure http URLs in service provider or OAuth service configurations."`
	DisableHTTP2      bool   `arg:"--disable-http2, env" default:"true" help:"whether to disable access using the HTTP/2 protocol."`
}

type LoggingCliArgs struct {
	ZapDevel           bool   `arg:"--zap-devel, env" default:"false" help:"Development Mode defaults(encoder=consoleEncoder,logLevel=Debug,stackTraceLevel=Warn) Production Mode defaults(encoder=jsonEncoder,logLevel=Info,stackTraceLevel=Error)"`
	ZapEncoder         string `arg:"--zap-encoder, env" default:"" help:"Zap log encoding (‘json’ or ‘console’)"`
	ZapLogLevel        string `arg:"--zap-log-level, env" default:"" help:"Zap Level to configure the verbosity of logging"`
	ZapStackTraceLevel string `arg:"--zap-stacktrace-level, env" default:"" help:"Zap Level at and above which stacktraces are captured"`
	ZapTimeEncoding    string `arg:"--zap-time-encoding, env" default:"iso8601" help:"one of 'epoch', 'millis', 'nano', 'iso8601', 'rfc3339' or 'rfc3339nano'"`
}

func (a *LoggingCliArgs) LogOptions() logs.Options {
	return logs.Options{
		Development:     a.ZapDevel,
		Encoder:         a.ZapEncoder,
		LogLevel:        a.ZapLogLevel,
		StackTraceLevel: a.ZapStackTraceLevel,
		TimeEncoding:    a.ZapTimeEncoding,
	}
}

// KVStoreCliArgs configure the store of the OAuth 1.0a request token secrets and access credentials.
type KVStoreCliArgs struct {
	KVStore         KVStoreType   `arg:"--kv-store, env" default:"memory" help:"The store of the in-flight OAuth 1.0a flows, either 'memory' or 'redis'. Use 'redis' with more than one replica."`
	RedisAddr       string        `arg:"--redis-addr, env" default:"localhost:6379" help:"host:port of the Redis server"`
	RedisPassword   string        `arg:"--redis-password, env" default:"" help:"The password of the Redis server"`
	RedisDB         int           `arg:"--redis-db, env" default:"0" help:"The Redis database to use"`
	RedisKeyPrefix  string        `arg:"--redis-key-prefix, env" default:"scm-oauth:" help:"The prefix of all the keys stored in Redis"`
	RequestTokenTtl time.Duration `arg:"--request-token-ttl, env" default:"10m" help:"How long the user has to finish an OAuth 1.0a flow"`
}

var TLSConfigWithDisabledHTTP2 = &tls.Config{
	MinVersion: tls.VersionTLS12,
	NextProtos: []string{"http/1.1"},
}
