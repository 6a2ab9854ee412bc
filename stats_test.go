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
	"math"
	"strings"
	"testing"
	"time"
)

func TestComputeStatsEmpty(t *testing.T) {
	if stats := ComputeStats(nil); stats != nil {
		t.Errorf("Expected nil stats for no records, got %+v", stats)
	}
	if stats := ComputeStats([]IntervalRecord{}); stats != nil {
		t.Errorf("Expected nil stats for empty slice, got %+v", stats)
	}
}

func TestComputeStats(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []IntervalRecord{
		{IntervalStart: base.Format(time.RFC3339), ConsumptionKWh: 0.5},
		{IntervalStart: base.Add(30 * time.Minute).Format(time.RFC3339), ConsumptionKWh: 1.5},
		{IntervalStart: base.Add(60 * time.Minute).Format(time.RFC3339), ConsumptionKWh: 1.0},
		{IntervalStart: base.Add(90 * time.Minute).Format(time.RFC3339), ConsumptionKWh: 0.25},
	}

	stats := ComputeStats(records)
	if stats == nil {
		t.Fatal("Expected stats, got nil")
	}

	if stats.Intervals != 4 {
		t.Errorf("Expected 4 intervals, got %d", stats.Intervals)
	}
	if math.Abs(stats.TotalKWh-3.25) > 1e-9 {
		t.Errorf("Expected total 3.25 kWh, got %f", stats.TotalKWh)
	}
	if math.Abs(stats.AvgIntervalKWh-0.8125) > 1e-9 {
		t.Errorf("Expected avg interval 0.8125 kWh, got %f", stats.AvgIntervalKWh)
	}
	// 4 intervals = 1/12 of a day, so daily average is total * 12
	if math.Abs(stats.AvgDailyKWh-39.0) > 1e-9 {
		t.Errorf("Expected avg daily 39.0 kWh, got %f", stats.AvgDailyKWh)
	}
	if stats.PeakKWh != 1.5 {
		t.Errorf("Expected peak 1.5 kWh, got %f", stats.PeakKWh)
	}
	if stats.PeakTime != base.Add(30*time.Minute).Format(time.RFC3339) {
		t.Errorf("Unexpected peak time: %s", stats.PeakTime)
	}
}

func TestComputeStatsFullDay(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]IntervalRecord, IntervalsPerDay)
	for i := range records {
		records[i] = IntervalRecord{
			IntervalStart:  base.Add(time.Duration(i) * 30 * time.Minute).Format(time.RFC3339),
			ConsumptionKWh: 0.5,
		}
	}

	stats := ComputeStats(records)
	if stats == nil {
		t.Fatal("Expected stats, got nil")
	}
	if math.Abs(stats.TotalKWh-24.0) > 1e-9 {
		t.Errorf("Expected total 24.0 kWh, got %f", stats.TotalKWh)
	}
	// Exactly one day of intervals, so daily average equals the total
	if math.Abs(stats.AvgDailyKWh-stats.TotalKWh) > 1e-9 {
		t.Errorf("Expected daily average to equal total for one day, got %f", stats.AvgDailyKWh)
	}
}

func TestFormatReport(t *testing.T) {
	stats := &ConsumptionStats{
		Intervals:      336,
		TotalKWh:       84.5,
		AvgDailyKWh:    12.07,
		AvgIntervalKWh: 0.251,
		PeakKWh:        2.4,
		PeakTime:       "2024-01-03T18:00:00Z",
	}
	meter := Meter{Serial: "ELEC123", Type: "electricity"}

	report := stats.FormatReport(meter, 7)

	for _, substr := range []string{
		"Electricity Meter",
		"ELEC123",
		"7 days (336 half-hour intervals)",
		"84.50 kWh",
		"12.07 kWh/day",
		"0.251 kWh",
		"2.40 kWh",
		"2024-01-03T18:00:00Z",
	} {
		if !strings.Contains(report, substr) {
			t.Errorf("Expected report to contain %q:\n%s", substr, report)
		}
	}
}
