// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
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

package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics on a private registry so tests can
// create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	syncInsertedTotal  *prometheus.CounterVec
	syncSkippedTotal   *prometheus.CounterVec
	syncPassesTotal    *prometheus.CounterVec
	storeRecords       *prometheus.GaugeVec
	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a metrics collector with all collectors registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		syncInsertedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eonsync_records_inserted_total",
				Help: "Total number of consumption records inserted by sync passes.",
			},
			[]string{"meter_serial"},
		),
		syncSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eonsync_records_skipped_total",
				Help: "Total number of duplicate consumption records skipped by sync passes.",
			},
			[]string{"meter_serial"},
		),
		syncPassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eonsync_sync_passes_total",
				Help: "Total number of completed sync passes.",
			},
			[]string{"meter_serial"},
		),
		storeRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eonsync_store_records",
				Help: "Number of records in the store after the most recent sync pass.",
			},
			[]string{"meter_serial"},
		),
		apiRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eonsync_api_requests_total",
				Help: "Total number of Eon Next API requests.",
			},
			[]string{"operation", "status"},
		),
		apiRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eonsync_api_request_duration_seconds",
				Help:    "Eon Next API request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPIRequest records one API call
func (m *Metrics) ObserveAPIRequest(operation string, statusCode int, durationSeconds float64) {
	m.apiRequestsTotal.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	m.apiRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordSyncResult records the outcome of one sync pass
func (m *Metrics) RecordSyncResult(result *SyncResult) {
	m.syncInsertedTotal.WithLabelValues(result.MeterSerial).Add(float64(result.Inserted))
	m.syncSkippedTotal.WithLabelValues(result.MeterSerial).Add(float64(result.Skipped))
	m.syncPassesTotal.WithLabelValues(result.MeterSerial).Inc()
	m.storeRecords.WithLabelValues(result.MeterSerial).Set(float64(result.TotalAfter))
}
