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
	"os"
	"path/filepath"
	"strings"
	"time"
)

type CachedMeters struct {
	Data      []Meter   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState holds per-account state that survives between runs: the
// cached JWT so repeated invocations skip login, and the discovered meter
// list which rarely changes.
type SessionState struct {
	JWTToken       string        `json:"jwt_token,omitempty"`
	JWTTokenExpiry time.Time     `json:"jwt_token_expiry,omitempty"`
	AccountNumber  string        `json:"account_number,omitempty"`
	CachedMeters   *CachedMeters `json:"cached_meters,omitempty"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// sanitizeStateKey maps a username (email) to a filesystem-safe token
func sanitizeStateKey(username string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, username)
}

func getStateFilePath(username string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "eonsync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use the username in the filename to separate state per account
	return filepath.Join(configDir, fmt.Sprintf("state_%s.json", sanitizeStateKey(username))), nil
}

func LoadSessionState(username string) (*SessionState, error) {
	statePath, err := getStateFilePath(username)
	if err != nil {
		return nil, err
	}

	// If file doesn't exist, return empty state
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return &SessionState{
			LastUpdated: time.Now(),
		}, nil
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return &state, nil
}

func (s *SessionState) Save(username string) error {
	statePath, err := getStateFilePath(username)
	if err != nil {
		return err
	}

	s.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(statePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

func (s *SessionState) IsCacheValid(cacheTime time.Time, maxAge time.Duration) bool {
	return time.Since(cacheTime) < maxAge
}
