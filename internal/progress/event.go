// Package progress defines the events emitted while discovery jobs run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart         Stage = "JOB_START"
	StageSearchDone       Stage = "SEARCH_DONE"
	StageAnalyzeDone      Stage = "ANALYZE_DONE"
	StageLeadCreated      Stage = "LEAD_CREATED"
	StageDuplicateSkipped Stage = "DUPLICATE_SKIPPED"
	StageJobDone          Stage = "JOB_DONE"
	StageJobError         Stage = "JOB_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for analyzed sites.
const (
	Status2xx         StatusClass = "2xx"
	Status3xx         StatusClass = "3xx"
	Status4xx         StatusClass = "4xx"
	Status5xx         StatusClass = "5xx"
	StatusUnreachable StatusClass = "unreachable"
	StatusOther       StatusClass = "other"
)

// Event captures one step of a discovery job.
type Event struct {
	// JobID uniquely identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Source is the search provider that surfaced the candidate (e.g. duckduckgo).
	Source string
	// URL is the business website, when known.
	URL string
	// Results counts search hits on SEARCH_DONE.
	Results int64
	// Score is the website score on ANALYZE_DONE; -1 when analysis failed.
	Score int
	Grade string
	Bytes int64
	// StatusClass groups the website's HTTP response code.
	StatusClass StatusClass
	Dur         time.Duration
	// Note carries the lead ID, duplicate reason or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageSearchDone:
		if e.Source == "" {
			return errors.New("search done requires source")
		}
		if e.Results < 0 {
			return errors.New("results must be >= 0")
		}
	case StageAnalyzeDone:
		if e.URL == "" {
			return errors.New("analyze done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("analyze done requires status class")
		}
	case StageLeadCreated:
		if e.Note == "" {
			return errors.New("lead created requires lead id note")
		}
	case StageDuplicateSkipped:
		if e.Note == "" {
			return errors.New("duplicate skipped requires reason note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for analysis events. Zero means the
// site could not be reached at all.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == 0:
		return StatusUnreachable
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
