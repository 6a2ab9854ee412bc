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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// WebServer exposes the store and syncer over a small JSON API, plus the
// Prometheus metrics endpoint. There is no HTML dashboard.
type WebServer struct {
	store   *Store
	syncer  *Syncer
	meter   Meter
	logger  *Logger
	metrics *Metrics
	server  *http.Server
}

// NewWebServer builds the API server. syncer may be nil when no credentials
// are configured, in which case the sync endpoint reports an error.
func NewWebServer(store *Store, syncer *Syncer, meter Meter, logger *Logger, metrics *Metrics, port int) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		store:   store,
		syncer:  syncer,
		meter:   meter,
		logger:  logger.WithComponent("web"),
		metrics: metrics,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: WebReadHeaderTimeout,
		},
	}

	mux.HandleFunc("/api/usage", ws.handleUsageAPI)
	mux.HandleFunc("/api/stats", ws.handleStatsAPI)
	mux.HandleFunc("/api/count", ws.handleCountAPI)
	mux.HandleFunc("/api/sync", ws.handleSyncAPI)
	mux.HandleFunc("/healthz", ws.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())

	return ws
}

func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.server.Addr)
	return ws.server.ListenAndServe()
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}

// handleUsageAPI returns stored records, filtered by the optional meter,
// start and end query parameters (ISO-8601, inclusive on interval_start).
func (ws *WebServer) handleUsageAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	meterSerial := r.URL.Query().Get("meter")
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")

	records, err := ws.store.Query(meterSerial, start, end)
	if err != nil {
		ws.logger.Error("Usage query failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// handleStatsAPI returns consumption statistics for the last N days of
// stored data for one meter.
func (ws *WebServer) handleStatsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	meterSerial := r.URL.Query().Get("meter")
	if meterSerial == "" {
		meterSerial = ws.meter.Serial
	}

	days := WebDefaultUsageDays
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 || parsed > WebMaxUsageDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", WebMaxUsageDays))
			return
		}
		days = parsed
	}

	now := time.Now()
	start := now.AddDate(0, 0, -days).Format(time.RFC3339)
	records, err := ws.store.Query(meterSerial, start, "")
	if err != nil {
		ws.logger.Error("Stats query failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	stats := ComputeStats(records)
	if stats == nil {
		writeError(w, http.StatusNotFound, "no consumption data available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"meter_serial": meterSerial,
		"days":         days,
		"stats":        stats,
	})
}

// handleCountAPI returns the number of stored records, optionally for one
// meter.
func (ws *WebServer) handleCountAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	meterSerial := r.URL.Query().Get("meter")
	count, err := ws.store.Count(meterSerial)
	if err != nil {
		ws.logger.Error("Count query failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "count failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"meter_serial": meterSerial,
		"count":        count,
	})
}

// handleSyncAPI triggers one sync pass for the configured meter.
func (ws *WebServer) handleSyncAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if ws.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not available: no credentials configured")
		return
	}

	fallbackDays := DefaultFallbackDays
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		fallbackDays = parsed
	}

	accountNumber, err := ws.syncer.client.GetAccountNumberWithCache(ws.syncer.client.state)
	if err != nil {
		ws.logger.Error("Account lookup failed", "error", err.Error())
		writeError(w, http.StatusBadGateway, "account lookup failed")
		return
	}

	result, err := ws.syncer.SyncMeter(accountNumber, ws.meter, fallbackDays)
	if err != nil {
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (ws *WebServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := ws.store.Count(""); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": GetVersion()})
}
