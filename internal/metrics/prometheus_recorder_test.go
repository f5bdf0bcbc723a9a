package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("convert", 150*time.Millisecond)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.IncStageResult("convert", ResultSuccess)
	pr.IncBuildOutcome("success")
	pr.AddFilesConverted(3)
	pr.AddFilesSkipped(1)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNoopRecorder_SafeToCall(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("convert", time.Second)
	r.ObserveBuildDuration(time.Second)
	r.IncStageResult("convert", ResultFatal)
	r.IncBuildOutcome("failure")
	r.AddFilesConverted(1)
	r.AddFilesSkipped(1)
}
