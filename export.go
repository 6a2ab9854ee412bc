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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes consumption records as CSV with a header row. The column
// layout matches what earlier exports produced, so downstream tooling keeps
// working.
func WriteCSV(w io.Writer, records []IntervalRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"interval_start", "interval_end", "consumption_kwh"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.IntervalStart,
			r.IntervalEnd,
			strconv.FormatFloat(r.ConsumptionKWh, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
