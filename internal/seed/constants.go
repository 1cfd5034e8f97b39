package seed

import "time"

// Runner configuration constants.
const (
	pollInterval         = 200 * time.Millisecond
	throttleBackoff      = 250 * time.Millisecond
	maxSubmitAttempts    = 5
	percentageMultiplier = 100
)
