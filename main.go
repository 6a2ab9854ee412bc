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
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

func main() {
	var username, password, meterSerial, configPath, dbPath, output string
	var doSync, doExport, doStats, doServe, fromStore, debug, jsonLogs, showVersion bool
	var days, webPort int

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.StringVar(&username, "username", os.Getenv("EON_USERNAME"), "Eon Next account username (email)")
	flag.StringVar(&password, "password", os.Getenv("EON_PASSWORD"), "Eon Next account password")
	flag.StringVar(&meterSerial, "meter", "", "Meter serial number (auto-selected when the account has one meter)")
	flag.StringVar(&dbPath, "db", "", "Path to the consumption database (default: ./eonsync.db)")
	flag.IntVar(&days, "days", 0, "Days of historical data to fetch when the store is empty (default: 30)")
	flag.BoolVar(&doSync, "sync", false, "Fetch new consumption data and store it")
	flag.BoolVar(&doExport, "export", false, "Export consumption data as CSV")
	flag.BoolVar(&doStats, "stats", false, "Display consumption statistics from the store")
	flag.BoolVar(&doServe, "serve", false, "Run the JSON API server")
	flag.BoolVar(&fromStore, "from-store", false, "Export from the local store instead of fetching from the API")
	flag.StringVar(&output, "output", "", "Output file for export (default: stdout)")
	flag.IntVar(&webPort, "port", 0, "JSON API server port (default: 8080)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	flag.Parse()

	if showVersion {
		fmt.Printf("eonsync %s\n", GetVersion())
		fmt.Printf("User-Agent: %s\n", GetUserAgent())
		os.Exit(0)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
		os.Exit(1)
	}
	config.ApplyDefaults()

	// Command line arguments and environment variables override config file
	if username != "" {
		config.Username = username
	}
	if password != "" {
		config.Password = password
	}
	if meterSerial != "" {
		config.Meter = meterSerial
	}
	if dbPath != "" {
		config.DBPath = dbPath
	}
	if days > 0 {
		config.FallbackDays = days
	}
	if webPort > 0 {
		config.WebPort = webPort
	}
	if debug {
		config.Debug = true
	}
	if jsonLogs {
		config.JSONLogs = true
	}

	var logger *Logger
	if config.JSONLogs {
		logger = NewJSONLogger(config.Debug)
	} else {
		logger = NewLogger(config.Debug)
	}

	switch {
	case doSync:
		err = runSync(config, logger)
	case doExport:
		err = runExport(config, logger, fromStore, output)
	case doStats:
		err = runStats(config, logger)
	case doServe:
		err = runServe(config, logger)
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s -sync | -export | -stats | -serve\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Set credentials via EON_USERNAME and EON_PASSWORD environment variables,\n")
		fmt.Fprintf(os.Stderr, "a configuration file (-config), or the -username and -password options.\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Command failed", "error", err.Error())
		os.Exit(1)
	}
}

// connect authenticates and resolves the account and meter to operate on.
func connect(config *Config, logger *Logger) (*EonNextClient, *SessionState, string, Meter, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, "", Meter{}, err
	}

	logger = logger.WithUsername(config.Username)

	client := NewEonNextClient(config.Username, config.Password, config.Debug)

	state, err := LoadSessionState(config.Username)
	if err != nil {
		logger.Warn("Failed to load session state, starting fresh", "error", err.Error())
		state = &SessionState{}
	}
	client.SetState(state)

	logger.Info("Authenticating...")
	if err := client.Login(); err != nil {
		return nil, nil, "", Meter{}, err
	}

	accountNumber, err := client.GetAccountNumberWithCache(state)
	if err != nil {
		return nil, nil, "", Meter{}, err
	}
	logger.Info("Using account", "account_number", accountNumber)

	meters, err := client.GetMetersWithCache(state, accountNumber)
	if err != nil {
		return nil, nil, "", Meter{}, err
	}

	meter, err := SelectMeter(meters, config.Meter)
	if err != nil {
		return nil, nil, "", Meter{}, err
	}
	logger.Info("Selected meter", "meter_serial", meter.Serial, "meter_type", meter.Type)

	return client, state, accountNumber, meter, nil
}

func runSync(config *Config, logger *Logger) error {
	client, state, accountNumber, meter, err := connect(config, logger)
	if err != nil {
		return err
	}

	store, err := OpenStore(config.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := NewSyncer(client, store, logger, nil)
	result, err := syncer.SyncMeter(accountNumber, meter, config.FallbackDays)
	if err != nil {
		return err
	}

	if err := state.Save(config.Username); err != nil {
		logger.Warn("Failed to save session state", "error", err.Error())
	}

	logger.UserMessage("Synced meter %s: %d inserted, %d skipped, %d records total",
		meter.Serial, result.Inserted, result.Skipped, result.TotalAfter)
	return nil
}

func runExport(config *Config, logger *Logger, fromStore bool, output string) error {
	var records []IntervalRecord

	if fromStore {
		store, err := OpenStore(config.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err = store.Query(config.Meter, "", "")
		if err != nil {
			return err
		}
	} else {
		client, state, accountNumber, meter, err := connect(config, logger)
		if err != nil {
			return err
		}

		end := time.Now()
		start := end.AddDate(0, 0, -config.FallbackDays)
		raws, err := client.GetConsumption(accountNumber, meter, start, end, func(page, total int) {
			logger.Info("Fetching consumption data", "page", page, "records_so_far", total)
		})
		if err != nil {
			return err
		}
		records = toIntervalRecords(raws, meter.Serial, meter.Type)

		if err := state.Save(config.Username); err != nil {
			logger.Warn("Failed to save session state", "error", err.Error())
		}
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := WriteCSV(w, records); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Successfully exported %d records.\n", len(records))
	return nil
}

func runStats(config *Config, logger *Logger) error {
	store, err := OpenStore(config.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	days := config.FallbackDays
	start := time.Now().AddDate(0, 0, -days).Format(time.RFC3339)
	records, err := store.Query(config.Meter, start, "")
	if err != nil {
		return err
	}

	stats := ComputeStats(records)
	if stats == nil {
		logger.UserMessage("No consumption data available for analysis. Run -sync first.")
		return nil
	}

	meter := Meter{Serial: config.Meter, Type: "electricity"}
	if len(records) > 0 {
		meter.Serial = records[0].MeterSerial
		meter.Type = records[0].MeterType
	}

	logger.UserMessagef("%s", stats.FormatReport(meter, days))
	return nil
}

func runServe(config *Config, logger *Logger) error {
	store, err := OpenStore(config.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := NewMetrics()

	// Credentials are optional for serving: without them the API is
	// read-only over existing store data.
	var syncer *Syncer
	meter := Meter{Serial: config.Meter}
	if config.Username != "" && config.Password != "" {
		client, _, _, selected, err := connect(config, logger)
		if err != nil {
			return err
		}
		client.SetMetrics(metrics)
		meter = selected
		syncer = NewSyncer(client, store, logger, metrics)
	} else {
		logger.Info("No credentials configured, serving store data only")
	}

	ws := NewWebServer(store, syncer, meter, logger, metrics, config.WebPort)
	return ws.Start()
}
