package seed

import (
	"time"

	"github.com/okian/ekpsearch/internal/domain/model"
)

// Config holds configuration for a seed run.
type Config struct {
	BaseURL       string        // Base URL of the service
	NumRecords    int           // Number of records to generate
	BatchSize     int           // Records per POST /competitions
	Workers       int           // Concurrent submitters
	RPS           float64       // Client-side request rate; 0 is unlimited
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for ingestion to drain
	Samples       int           // Records re-queried for self-match checks
	Seed          uint64        // Generator seed; 0 picks one from the clock
	OutputFile    string        // Output file for records
	Verbose       bool
}

// Stats holds run statistics.
type Stats struct {
	RecordsGenerated int
	BatchesSubmitted int
	RecordsAccepted  int
	RecordsDuplicate int
	BatchesFailed    int
	BatchesThrottled int
	Indexed          int
	Vocabulary       int
	SelfMatchChecked int
	SelfMatchHits    int
	KeywordChecked   int
	KeywordRelevant  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// submitResponse mirrors the body of POST /competitions.
type submitResponse struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

// searchResponse mirrors the body of GET /search.
type searchResponse struct {
	Query  string `json:"query"`
	Events []struct {
		model.CompetitionRecord
		Distance float64 `json:"distance"`
	} `json:"events"`
	Message string `json:"message"`
}

// statsResponse picks the fields of GET /stats the runner polls.
type statsResponse struct {
	QueueLength   int `json:"queue_length"`
	StoredRecords int `json:"stored_records"`
}

// reindexResponse picks the fields of POST /admin/reindex.
type reindexResponse struct {
	State      string `json:"state"`
	Indexed    int    `json:"indexed"`
	Vocabulary int    `json:"vocabulary"`
}
