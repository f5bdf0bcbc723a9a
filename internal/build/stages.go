package build

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage names in execution order.
const (
	StagePrepare = "prepare"
	StageCompile = "compile"
	StageConvert = "convert"
	StagePublish = "publish"
)

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// Stage is a discrete unit of work in the build chain.
type Stage func(ctx context.Context, bs *State) error

type stageEntry struct {
	name string
	fn   Stage
}

// runStages executes stages strictly in order, recording timing and stopping at
// the first failure. A later stage can never observe an earlier one unfinished.
func runStages(ctx context.Context, bs *State, stages []stageEntry) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.name, ctx.Err())
			bs.Report.recordStageError(st.name, se)
			return se
		default:
		}

		t0 := time.Now()
		err := st.fn(ctx, bs)
		bs.Report.StageDurations[st.name] = time.Since(t0)

		if err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				se = newFatalStageError(st.name, err)
			}
			bs.Report.recordStageError(st.name, se)
			return se
		}
		bs.Report.CompletedStages = append(bs.Report.CompletedStages, st.name)
	}
	return nil
}
