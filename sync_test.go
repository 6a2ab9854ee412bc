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
	"errors"
	"testing"
	"time"
)

// sampleRawRecords builds n consecutive half-hour raw records starting at base
func sampleRawRecords(base time.Time, n int) []RawRecord {
	raws := make([]RawRecord, 0, n)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * 30 * time.Minute)
		end := start.Add(30 * time.Minute)
		raws = append(raws, RawRecord{
			StartAt: start.Format(time.RFC3339),
			EndAt:   end.Format(time.RFC3339),
			Value:   "0.5",
			Unit:    "kWh",
		})
	}
	return raws
}

func TestSyncInitialLoad(t *testing.T) {
	store := newTestStore(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := day.AddDate(0, 0, 1)

	var gotStart, gotEnd time.Time
	fetch := func(start, end time.Time) ([]RawRecord, error) {
		gotStart, gotEnd = start, end
		return sampleRawRecords(day, 48), nil
	}

	result, err := Sync("M1", "electricity", now, 30, store, fetch)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if result.Inserted != 48 || result.Skipped != 0 || result.TotalAfter != 48 {
		t.Errorf("Expected {48 0 48}, got {%d %d %d}", result.Inserted, result.Skipped, result.TotalAfter)
	}

	// Empty store means the fallback window was used
	if !gotEnd.Equal(now) {
		t.Errorf("Expected fetch end %v, got %v", now, gotEnd)
	}
	if !gotStart.Equal(now.AddDate(0, 0, -30)) {
		t.Errorf("Expected fetch start %v, got %v", now.AddDate(0, 0, -30), gotStart)
	}
}

func TestSyncIncremental(t *testing.T) {
	store := newTestStore(t)
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first := func(start, end time.Time) ([]RawRecord, error) {
		return sampleRawRecords(day1, 48), nil
	}
	if _, err := Sync("M1", "electricity", day2, 30, store, first); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	// Second pass resumes from the latest stored interval; the remote
	// returns the day 1 records again plus day 2
	var gotStart time.Time
	second := func(start, end time.Time) ([]RawRecord, error) {
		gotStart = start
		return append(sampleRawRecords(day1, 48), sampleRawRecords(day2, 48)...), nil
	}
	result, err := Sync("M1", "electricity", day2.AddDate(0, 0, 1), 30, store, second)
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	if result.Inserted != 48 || result.Skipped != 48 || result.TotalAfter != 96 {
		t.Errorf("Expected {48 48 96}, got {%d %d %d}", result.Inserted, result.Skipped, result.TotalAfter)
	}

	latest := day1.Add(47 * 30 * time.Minute)
	if !gotStart.Equal(latest) {
		t.Errorf("Expected resume from %v, got %v", latest, gotStart)
	}
}

func TestSyncEmptyFetch(t *testing.T) {
	store := newTestStore(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := func(start, end time.Time) ([]RawRecord, error) {
		return sampleRawRecords(day, 48), nil
	}
	if _, err := Sync("M1", "electricity", day.AddDate(0, 0, 1), 30, store, seed); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	empty := func(start, end time.Time) ([]RawRecord, error) {
		return nil, nil
	}
	result, err := Sync("M1", "electricity", day.AddDate(0, 0, 2), 30, store, empty)
	if err != nil {
		t.Fatalf("Empty sync failed: %v", err)
	}

	if result.Inserted != 0 || result.Skipped != 0 {
		t.Errorf("Expected zero-change result, got {%d %d}", result.Inserted, result.Skipped)
	}
	if result.TotalAfter != 48 {
		t.Errorf("Expected total unchanged at 48, got %d", result.TotalAfter)
	}
}

func TestSyncFetchFailure(t *testing.T) {
	store := newTestStore(t)
	fetchErr := &AuthError{Message: "invalid credentials"}

	fetch := func(start, end time.Time) ([]RawRecord, error) {
		return nil, fetchErr
	}

	_, err := Sync("M1", "electricity", time.Now(), 30, store, fetch)
	if err == nil {
		t.Fatal("Expected fetch failure to propagate")
	}

	// The failure must propagate unmodified
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("Expected AuthError, got %T: %v", err, err)
	}

	// The store must be untouched
	count, cerr := store.Count("")
	if cerr != nil {
		t.Fatalf("Count failed: %v", cerr)
	}
	if count != 0 {
		t.Errorf("Expected empty store after failed fetch, got %d records", count)
	}
}

func TestSyncValueDefaulting(t *testing.T) {
	store := newTestStore(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fetch := func(start, end time.Time) ([]RawRecord, error) {
		return []RawRecord{
			{StartAt: day.Format(time.RFC3339), EndAt: day.Add(30 * time.Minute).Format(time.RFC3339)},
		}, nil
	}

	result, err := Sync("M1", "gas", day.AddDate(0, 0, 1), 30, store, fetch)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Inserted != 1 {
		t.Fatalf("Expected 1 inserted, got %d", result.Inserted)
	}

	records, err := store.Query("M1", "", "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if records[0].ConsumptionKWh != 0 {
		t.Errorf("Expected missing value to default to 0, got %v", records[0].ConsumptionKWh)
	}
	if records[0].MeterType != "gas" {
		t.Errorf("Expected meter type gas, got %s", records[0].MeterType)
	}
}
