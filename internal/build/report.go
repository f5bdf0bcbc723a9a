package build

import "time"

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Report captures high-level metrics about one build run.
type Report struct {
	BuildID         string
	Start           time.Time
	End             time.Time
	Outcome         Outcome
	CompletedStages []string
	StageDurations  map[string]time.Duration
	StageErrorKinds map[string]StageErrorKind
	Errors          []error
	TargetFiles     int // files found in the target directory listing
	Converted       int // artifacts written by the converter batch
	Skipped         int // files skipped by incremental mode
	Published       bool
}

func newReport(buildID string) *Report {
	return &Report{
		BuildID:         buildID,
		Start:           time.Now(),
		StageDurations:  make(map[string]time.Duration),
		StageErrorKinds: make(map[string]StageErrorKind),
	}
}

func (r *Report) recordStageError(stage string, se *StageError) {
	r.StageErrorKinds[stage] = se.Kind
	r.Errors = append(r.Errors, se)
}

func (r *Report) finalize(err error) {
	r.End = time.Now()
	switch {
	case err == nil:
		r.Outcome = OutcomeSuccess
	case isCanceled(err):
		r.Outcome = OutcomeCanceled
	default:
		r.Outcome = OutcomeFailed
	}
}

func isCanceled(err error) bool {
	se, ok := err.(*StageError)
	return ok && se.Kind == StageErrorCanceled
}

// Duration returns the total wall-clock build time.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }
