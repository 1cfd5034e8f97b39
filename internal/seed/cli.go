package seed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/ekpsearch/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the global logger on stdout, teeing into logFile
// when it is set. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	var (
		out     io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out, closeFn = io.MultiWriter(os.Stdout, f), f.Close
	}
	if err := logger.InitWithOptions(logger.Options{Output: out}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	os.Stdout.WriteString(`EKP Search Seed Tool
====================

Generates a synthetic sports calendar, submits it to a running service,
rebuilds the index and checks that every sampled record finds itself.

Usage:
  go run ./cmd/seed [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -records int
        Number of records to generate (default 5000)
  -batch int
        Records per request (default 100)
  -workers int
        Concurrent submitters (default CPU cores)
  -rps float
        Client-side request rate, 0 for unlimited (default 40)
  -samples int
        Records re-queried for verification (default 100)
  -seed uint
        Generator seed, 0 picks one from the clock
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        How long to wait for ingestion to drain (default 2m)
  -output string
        Write generated records to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  go run ./cmd/seed -records 20000 -workers 8
  go run ./cmd/seed -seed 42 -output calendar.json
`)
}
