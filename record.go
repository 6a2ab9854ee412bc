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
	"strconv"
)

// IntervalRecord is one half-hourly consumption reading as persisted in the
// store. IntervalStart and IntervalEnd are ISO-8601 text describing the
// half-open interval [start, end); CreatedAt is stamped by the store at
// insert time.
type IntervalRecord struct {
	ID             int64   `json:"id,omitempty"`
	MeterSerial    string  `json:"meter_serial"`
	MeterType      string  `json:"meter_type"`
	IntervalStart  string  `json:"interval_start"`
	IntervalEnd    string  `json:"interval_end"`
	ConsumptionKWh float64 `json:"consumption_kwh"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// flexValue accepts both string and numeric JSON encodings. The measurements
// endpoint returns values as strings, other endpoints as numbers.
type flexValue string

func (v *flexValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = flexValue(s)
		return nil
	}
	if string(data) == "null" {
		*v = ""
		return nil
	}
	*v = flexValue(data)
	return nil
}

func (v flexValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(v))
}

// RawRecord is a consumption reading as returned by the Kraken measurements
// query.
type RawRecord struct {
	StartAt string    `json:"startAt"`
	EndAt   string    `json:"endAt"`
	Value   flexValue `json:"value"`
	Unit    string    `json:"unit,omitempty"`
}

// ValueAsFloat64 parses the measurement value, defaulting to 0 when the
// field is missing or malformed
func (r *RawRecord) ValueAsFloat64() float64 {
	if val, err := strconv.ParseFloat(string(r.Value), 64); err == nil {
		return val
	}
	return 0
}

// toIntervalRecord converts an API record into the stored shape for the
// given meter. Defaulting happens here, at the store boundary, so callers
// never see a partially-populated record.
func toIntervalRecord(raw RawRecord, meterSerial, meterType string) IntervalRecord {
	return IntervalRecord{
		MeterSerial:    meterSerial,
		MeterType:      meterType,
		IntervalStart:  raw.StartAt,
		IntervalEnd:    raw.EndAt,
		ConsumptionKWh: raw.ValueAsFloat64(),
	}
}

// toIntervalRecords converts a fetched batch in order.
func toIntervalRecords(raws []RawRecord, meterSerial, meterType string) []IntervalRecord {
	records := make([]IntervalRecord, 0, len(raws))
	for _, raw := range raws {
		records = append(records, toIntervalRecord(raw, meterSerial, meterType))
	}
	return records
}
