package ingest

import (
	"fmt"
	"time"
)

// State is the position of one (symbol, day) in the ingestion loop.
type State int

const (
	Idle State = iota
	Resolving
	FetchingDay
	Decoding
	Aggregating
	Persisting
	Committed
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case FetchingDay:
		return "fetching_day"
	case Decoding:
		return "decoding"
	case Aggregating:
		return "aggregating"
	case Persisting:
		return "persisting"
	case Committed:
		return "committed"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result class of one processed day.
type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeNotPublished
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeNotPublished:
		return "not_published"
	default:
		return "failed"
	}
}

// DayResult reports one day handed to the committer.
type DayResult struct {
	Symbol   string
	Day      time.Time
	Outcome  Outcome
	Records  int
	Crossed  int64
	Duration time.Duration
	Err      error
}

// Summary totals a run across symbols.
type Summary struct {
	Venue   string
	Symbols int
	Days    int
	Skipped int
	Records int
	Failed  int
	Crossed int64
	Stopped bool
}

func (s *Summary) add(r DayResult) {
	switch r.Outcome {
	case OutcomeCommitted:
		s.Days++
		s.Records += r.Records
		s.Crossed += r.Crossed
	case OutcomeNotPublished:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

// BackfillSummary totals a ticker backfill pass.
type BackfillSummary struct {
	Months  int
	Skipped int
	Gaps    int
	Filled  int
}
