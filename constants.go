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

import "time"

// Cache durations - tuned based on real-world Kraken API update patterns
const (
	// CacheDurationMeters - Smart meter list for an account rarely changes
	CacheDurationMeters = 7 * 24 * time.Hour
)

// JWT token settings
const (
	// JWTRefreshBuffer - Refresh JWT tokens this many minutes before expiry
	JWTRefreshBuffer = 5 * time.Minute
)

// HTTP client settings
const (
	// HTTPClientTimeout - Maximum time for HTTP requests
	HTTPClientTimeout = 30 * time.Second

	// HTTPMinInterval - Minimum time between API requests (rate limiting)
	HTTPMinInterval = 1 * time.Second

	// HTTPMaxRetries - Maximum number of retries for failed requests
	HTTPMaxRetries = 3
)

// Kraken API error codes (Eon Next runs on Kraken)
const (
	// KrakenErrorCodeJWTExpired - JWT token has expired
	KrakenErrorCodeJWTExpired = "KT-CT-1139"

	// KrakenErrorCodeInvalidAuth - Invalid authorization header
	KrakenErrorCodeInvalidAuth = "KT-CT-1143"

	// KrakenErrorCodeBadCredentials - Invalid email/password combination
	KrakenErrorCodeBadCredentials = "KT-CT-1138"
)

// Consumption data settings
const (
	// IntervalsPerDay - Half-hour consumption intervals per day
	IntervalsPerDay = 48

	// DefaultFallbackDays - Lookback window when a meter has no stored data
	DefaultFallbackDays = 30

	// ConsumptionPageSize - Records requested per measurements page
	ConsumptionPageSize = 500
)

// Web API settings
const (
	// WebDefaultPort - Default port for the JSON API server
	WebDefaultPort = 8080

	// WebMaxUsageDays - Maximum number of days of usage data that can be requested
	WebMaxUsageDays = 90

	// WebDefaultUsageDays - Default number of days returned by the stats endpoint
	WebDefaultUsageDays = 7

	// WebReadHeaderTimeout - Header read timeout for the API server
	WebReadHeaderTimeout = 10 * time.Second
)
