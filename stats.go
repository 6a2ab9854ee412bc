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
	"fmt"
	"strings"
)

// ConsumptionStats summarizes a set of consumption records.
type ConsumptionStats struct {
	Intervals      int     `json:"intervals"`
	TotalKWh       float64 `json:"total_kwh"`
	AvgDailyKWh    float64 `json:"avg_daily_kwh"`
	AvgIntervalKWh float64 `json:"avg_interval_kwh"`
	PeakKWh        float64 `json:"peak_kwh"`
	PeakTime       string  `json:"peak_time"`
}

// ComputeStats calculates consumption statistics over the given records.
// Returns nil when there are no records to analyze.
func ComputeStats(records []IntervalRecord) *ConsumptionStats {
	if len(records) == 0 {
		return nil
	}

	stats := &ConsumptionStats{
		Intervals: len(records),
	}

	for _, r := range records {
		stats.TotalKWh += r.ConsumptionKWh
		if r.ConsumptionKWh >= stats.PeakKWh {
			stats.PeakKWh = r.ConsumptionKWh
			stats.PeakTime = r.IntervalStart
		}
	}

	// 48 half-hour intervals per day
	numDays := float64(len(records)) / IntervalsPerDay
	if numDays > 0 {
		stats.AvgDailyKWh = stats.TotalKWh / numDays
	}
	stats.AvgIntervalKWh = stats.TotalKWh / float64(len(records))

	return stats
}

// FormatReport renders a stats report for terminal output.
func (s *ConsumptionStats) FormatReport(meter Meter, days int) string {
	var b strings.Builder
	divider := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "\n%s\n", divider)
	fmt.Fprintf(&b, "  Consumption Statistics - %s Meter\n", titleCase(meter.Type))
	fmt.Fprintf(&b, "%s\n", divider)
	fmt.Fprintf(&b, "\nMeter Serial: %s\n", meter.Serial)
	fmt.Fprintf(&b, "Period: %d days (%d half-hour intervals)\n", days, s.Intervals)
	fmt.Fprintf(&b, "\nTotal Consumption: %.2f kWh\n", s.TotalKWh)
	fmt.Fprintf(&b, "Average Daily: %.2f kWh/day\n", s.AvgDailyKWh)
	fmt.Fprintf(&b, "Average per interval: %.3f kWh\n", s.AvgIntervalKWh)
	fmt.Fprintf(&b, "\nPeak Usage: %.2f kWh\n", s.PeakKWh)
	fmt.Fprintf(&b, "Peak Time: %s\n", s.PeakTime)
	fmt.Fprintf(&b, "\n%s\n", divider)

	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
