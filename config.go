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
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Meter        string `yaml:"meter"`
	DBPath       string `yaml:"db_path"`
	FallbackDays int    `yaml:"fallback_days"`
	WebPort      int    `yaml:"web_port"`
	Debug        bool   `yaml:"debug"`
	JSONLogs     bool   `yaml:"json_logs"`
}

func LoadConfig(configPath string) (*Config, error) {
	config := &Config{
		DBPath:       "./eonsync.db",
		FallbackDays: DefaultFallbackDays,
		WebPort:      WebDefaultPort,
		Debug:        false,
	}

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./eonsync.db"
	}
	if c.FallbackDays <= 0 {
		c.FallbackDays = DefaultFallbackDays
	}
	if c.WebPort <= 0 {
		c.WebPort = WebDefaultPort
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errors []string

	// Validate credentials
	if c.Username == "" {
		errors = append(errors, "username is required")
	} else if !strings.Contains(c.Username, "@") {
		errors = append(errors, fmt.Sprintf("username should be an email address, got: %s", c.Username))
	}

	if c.Password == "" {
		errors = append(errors, "password is required")
	}

	// Validate database path
	if c.DBPath == "" {
		errors = append(errors, "database path is required")
	}

	// Validate fallback window
	if c.FallbackDays < 1 {
		errors = append(errors, fmt.Sprintf("fallback days must be at least 1, got: %d", c.FallbackDays))
	}
	if c.FallbackDays > 365 {
		errors = append(errors, fmt.Sprintf("fallback days seems too long (%d days), the API rarely holds more than a year", c.FallbackDays))
	}

	// Validate web port
	if c.WebPort < 1 || c.WebPort > 65535 {
		errors = append(errors, fmt.Sprintf("web port must be between 1-65535, got: %d", c.WebPort))
	}
	if c.WebPort < 1024 && c.WebPort != 0 {
		errors = append(errors, fmt.Sprintf("warning: port %d requires root privileges (consider using 8080 or higher)", c.WebPort))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
