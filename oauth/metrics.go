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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

const (
	flowStatusSuccess = "success"
)

var (
	// HttpServiceRequestCountMetric is the metric that collects the request counts for OAuth Service.
	HttpServiceRequestCountMetric = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.MetricsNamespace,
			Subsystem: config.MetricsSubsystem,
			Name:      "oauth_service_requests_total",
			Help:      "The request counts to OAuth service categorized by HTTP method status code.",
		},
		[]string{"code", "method"},
	)

	OAuthFlowCompleteTimeMetric = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.MetricsNamespace,
		Subsystem: config.MetricsSubsystem,
		Name:      "oauth_flow_complete_time_seconds",
		Help:      "The time needed to complete OAuth flow by provider and the result of the flow",
	}, []string{"provider", "oauth_version", "status"})
)

// RegisterMetrics registers the metrics of the OAuth service. Registering the same metrics repeatedly is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{HttpServiceRequestCountMetric, OAuthFlowCompleteTimeMetric} {
		if err := reg.Register(c); err != nil {
			are := prometheus.AlreadyRegisteredError{}
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("failed to register the OAuth service metrics: %w", err)
		}
	}
	return nil
}

// HttpServiceInstrumentMetricHandler is a http.Handler that collects statistical information about
// incoming HTTP request.
func HttpServiceInstrumentMetricHandler(handler http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(HttpServiceRequestCountMetric, handler)
}

// observeFlowCompletion records the duration of the OAuth flow started at the issuedAt unix time.
func observeFlowCompletion(provider config.ServiceProviderName, version config.OAuthVersion, status string, issuedAt int64) {
	if issuedAt <= 0 {
		return
	}
	OAuthFlowCompleteTimeMetric.WithLabelValues(string(provider), string(version), status).Observe(time.Since(time.Unix(issuedAt, 0)).Seconds())
}
