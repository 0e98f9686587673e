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

package credentials

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/metrics"
)

var (
	accessHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.MetricsNamespace,
		Subsystem: config.MetricsSubsystem,
		Name:      "credential_store_access_duration_seconds",
		Help:      "The time to complete the requests to the personal access token store",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 0.7, 1},
	}, []string{"access_type", "is_err"})

	getObserver = metrics.ValueObserverFunc2[*PersonalAccessToken, error](func(_ *PersonalAccessToken, err error, secs float64) {
		recordAccess("get", err, secs)
	})
	listObserver = metrics.ValueObserverFunc2[[]PersonalAccessToken, error](func(_ []PersonalAccessToken, err error, secs float64) {
		recordAccess("list", err, secs)
	})
	createObserver = metrics.ValueObserverFunc2[*PersonalAccessToken, error](func(_ *PersonalAccessToken, err error, secs float64) {
		recordAccess("create", err, secs)
	})
	deleteObserver = metrics.ValueObserverFunc1[error](func(err error, secs float64) {
		recordAccess("delete", err, secs)
	})
	deleteAllObserver = metrics.ValueObserverFunc2[int, error](func(_ int, err error, secs float64) {
		recordAccess("delete_all", err, secs)
	})
)

// MetricsCollectingStore records the duration of the calls to the wrapped store.
type MetricsCollectingStore struct {
	MetricsRegisterer prometheus.Registerer
	Store             Store
}

var _ Store = (*MetricsCollectingStore)(nil)

// Initialize registers the metrics. It must be called once before the store is used.
func (m *MetricsCollectingStore) Initialize() error {
	if err := m.MetricsRegisterer.Register(accessHist); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	return nil
}

func (m *MetricsCollectingStore) Get(ctx context.Context, namespace string, provider config.ServiceProviderName, endpointHint string) (*PersonalAccessToken, error) {
	//nolint:wrapcheck // this is just propagating our error
	return metrics.NewValueTimer2[*PersonalAccessToken, error](getObserver).ObserveValuesAndDuration(m.Store.Get(ctx, namespace, provider, endpointHint))
}

func (m *MetricsCollectingStore) ListAll(ctx context.Context, namespace string) ([]PersonalAccessToken, error) {
	//nolint:wrapcheck // this is just propagating our error
	return metrics.NewValueTimer2[[]PersonalAccessToken, error](listObserver).ObserveValuesAndDuration(m.Store.ListAll(ctx, namespace))
}

func (m *MetricsCollectingStore) Create(ctx context.Context, namespace string, pat PersonalAccessToken) (*PersonalAccessToken, error) {
	//nolint:wrapcheck // this is just propagating our error
	return metrics.NewValueTimer2[*PersonalAccessToken, error](createObserver).ObserveValuesAndDuration(m.Store.Create(ctx, namespace, pat))
}

func (m *MetricsCollectingStore) Delete(ctx context.Context, namespace string, pat PersonalAccessToken) error {
	//nolint:wrapcheck // this is just propagating our error
	return metrics.NewValueTimer1[error](deleteObserver).ObserveValuesAndDuration(m.Store.Delete(ctx, namespace, pat))
}

func (m *MetricsCollectingStore) DeleteAll(ctx context.Context, namespace string, provider config.ServiceProviderName) (int, error) {
	//nolint:wrapcheck // this is just propagating our error
	return metrics.NewValueTimer2[int, error](deleteAllObserver).ObserveValuesAndDuration(m.Store.DeleteAll(ctx, namespace, provider))
}

func recordAccess(accessType string, err error, secs float64) {
	accessHist.WithLabelValues(accessType, fmt.Sprint(err != nil)).Observe(secs)
}
