package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/ekpsearch/internal/seed"
)

// Default configuration constants.
const (
	defaultNumRecords = 5000
	defaultBatchSize  = 100
	defaultRPS        = 40
	defaultSamples    = 100
	defaultTimeout    = 30 * time.Second
	defaultSettle     = 2 * time.Minute
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numRecords = flag.Int("records", defaultNumRecords, "Number of records to generate")
		batchSize  = flag.Int("batch", defaultBatchSize, "Records per request")
		workers    = flag.Int("workers", runtime.NumCPU(), "Concurrent submitters")
		rps        = flag.Float64("rps", defaultRPS, "Client-side request rate, 0 for unlimited")
		samples    = flag.Int("samples", defaultSamples, "Records re-queried for verification")
		seedVal    = flag.Uint64("seed", 0, "Generator seed, 0 picks one from the clock")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "How long to wait for ingestion to drain")
		outputFile = flag.String("output", "", "Write generated records to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return 0
	}

	closeLog, err := seed.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:       *baseURL,
		NumRecords:    *numRecords,
		BatchSize:     *batchSize,
		Workers:       *workers,
		RPS:           *rps,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		Samples:       *samples,
		Seed:          *seedVal,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := seed.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Seed run failed: " + err.Error() + "\n")
		return 1
	}
	return 0
}
