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

// PlanWindow computes the [start, end) window to request from the API for
// one meter. When the store already holds data for the meter, the window
// resumes from the latest stored interval_start (inclusive); otherwise it
// falls back to the last fallbackDays days. Always returns start <= end;
// fallbackDays <= 0 on an empty meter degenerates to start == end, which
// callers may treat as nothing to fetch.
//
// Resuming re-fetches the boundary interval and relies on the store's dedup
// to skip it. If the remote ever omits the boundary record on resume this
// leaves a one-interval gap.
func PlanWindow(meterSerial string, now time.Time, fallbackDays int, store *Store) (time.Time, time.Time, error) {
	end := now

	latest, ok, err := store.LatestIntervalStart(meterSerial)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if ok {
		if start, perr := time.Parse(time.RFC3339, latest); perr == nil {
			if start.After(end) {
				start = end
			}
			return start, end, nil
		}
		// Unparseable stored timestamp: fall through to the fallback window
	}

	start := now.AddDate(0, 0, -fallbackDays)
	if start.After(end) {
		start = end
	}

	return start, end, nil
}
