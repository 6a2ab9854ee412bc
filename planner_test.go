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
	"testing"
	"time"
)

func TestPlanWindowFallback(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	start, end, err := PlanWindow("METER123", now, 7, store)
	if err != nil {
		t.Fatalf("PlanWindow failed: %v", err)
	}

	if !end.Equal(now) {
		t.Errorf("Expected end %v, got %v", now, end)
	}
	wantStart := now.AddDate(0, 0, -7)
	if !start.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, start)
	}
}

func TestPlanWindowResume(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	records := sampleDayRecords("METER123", "electricity", base, 48)
	if _, _, err := store.InsertBatch(records); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	latest := base.Add(47 * 30 * time.Minute)

	// The fallback window must be irrelevant once data exists
	for _, fallbackDays := range []int{1, 7, 365} {
		start, end, err := PlanWindow("METER123", now, fallbackDays, store)
		if err != nil {
			t.Fatalf("PlanWindow failed: %v", err)
		}
		if !start.Equal(latest) {
			t.Errorf("fallbackDays=%d: expected start %v, got %v", fallbackDays, latest, start)
		}
		if !end.Equal(now) {
			t.Errorf("fallbackDays=%d: expected end %v, got %v", fallbackDays, now, end)
		}
	}
}

func TestPlanWindowPerMeter(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, _, err := store.InsertBatch(sampleDayRecords("ELEC123", "electricity", base, 48)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// A different meter still gets the fallback window
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	start, _, err := PlanWindow("GAS456", now, 7, store)
	if err != nil {
		t.Fatalf("PlanWindow failed: %v", err)
	}
	wantStart := now.AddDate(0, 0, -7)
	if !start.Equal(wantStart) {
		t.Errorf("Expected fallback start %v for fresh meter, got %v", wantStart, start)
	}
}

func TestPlanWindowDegenerate(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name         string
		fallbackDays int
	}{
		{name: "Zero fallback", fallbackDays: 0},
		{name: "Negative fallback", fallbackDays: -3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := PlanWindow("METER123", now, tc.fallbackDays, store)
			if err != nil {
				t.Fatalf("PlanWindow failed: %v", err)
			}
			if start.After(end) {
				t.Errorf("Expected start <= end, got start=%v end=%v", start, end)
			}
			if !start.Equal(end) {
				t.Errorf("Expected degenerate start == end, got start=%v end=%v", start, end)
			}
		})
	}
}

func TestPlanWindowFutureLatestClamped(t *testing.T) {
	store := newTestStore(t)

	// Stored data ahead of now (clock skew) must not produce start > end
	future := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	if _, _, err := store.InsertBatch(sampleDayRecords("METER123", "electricity", future, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	start, end, err := PlanWindow("METER123", now, 7, store)
	if err != nil {
		t.Fatalf("PlanWindow failed: %v", err)
	}
	if start.After(end) {
		t.Errorf("Expected start <= end, got start=%v end=%v", start, end)
	}
}

func TestPlanWindowUnparseableLatest(t *testing.T) {
	store := newTestStore(t)

	bad := IntervalRecord{
		MeterSerial:    "METER123",
		MeterType:      "electricity",
		IntervalStart:  "not-a-timestamp",
		IntervalEnd:    "also-not",
		ConsumptionKWh: 0.1,
	}
	if _, _, err := store.InsertBatch([]IntervalRecord{bad}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Garbage in the store falls back to the lookback window
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	start, end, err := PlanWindow("METER123", now, 7, store)
	if err != nil {
		t.Fatalf("PlanWindow failed: %v", err)
	}
	if !start.Equal(now.AddDate(0, 0, -7)) {
		t.Errorf("Expected fallback start, got %v", start)
	}
	if !end.Equal(now) {
		t.Errorf("Expected end %v, got %v", now, end)
	}
}
