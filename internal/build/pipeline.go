package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabdulradi/pan-tut/internal/config"
	"github.com/tabdulradi/pan-tut/internal/docs"
	"github.com/tabdulradi/pan-tut/internal/events"
	"github.com/tabdulradi/pan-tut/internal/metrics"
	"github.com/tabdulradi/pan-tut/internal/state"
)

// Publisher pushes the finished artifact tree to its destination. It runs only
// after compile and convert both succeeded.
type Publisher interface {
	Publish(ctx context.Context, artifactDir, message string) error
}

// State carries mutable state across stages of one build.
type State struct {
	Config  *config.Config
	Targets []docs.TargetFile
	Report  *Report

	pipeline *Pipeline
}

func (bs *State) publishStageCompleted(stage string) {
	bs.pipeline.events.Publish(events.Event{
		Type:    events.EventStageCompleted,
		BuildID: bs.Report.BuildID,
		Stage:   stage,
	})
}

// Pipeline assembles and runs the build chain: prepare → compile → convert →
// publish, strictly in that order.
type Pipeline struct {
	cfg       *config.Config
	compiler  Compiler
	converter *Converter
	publisher Publisher
	store     *state.Store
	recorder  metrics.Recorder
	events    events.Publisher
}

// NewPipeline builds a Pipeline with exec-backed compiler and converter and
// no-op observability. Use the With* helpers to swap pieces.
func NewPipeline(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		compiler:  &BinaryCompiler{Command: cfg.Compiler.Command, Args: cfg.Compiler.Args},
		converter: NewConverter(cfg.Converter.Command, cfg.Converter.Args, cfg.Converter.Extension),
		recorder:  metrics.NoopRecorder{},
		events:    events.NoopPublisher{},
	}
}

// WithCompiler injects a custom compiler (tests, pre-populated target dirs).
func (p *Pipeline) WithCompiler(c Compiler) *Pipeline {
	if c != nil {
		p.compiler = c
	}
	return p
}

// WithRunner injects a custom converter runner.
func (p *Pipeline) WithRunner(r Runner) *Pipeline {
	if r != nil {
		p.converter.Runner = r
	}
	return p
}

// WithPublisher injects the publish step implementation.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	if pub != nil {
		p.publisher = pub
	}
	return p
}

// WithStore attaches the build-state store (history + incremental fingerprints).
func (p *Pipeline) WithStore(s *state.Store) *Pipeline {
	if s != nil {
		p.store = s
	}
	return p
}

// WithRecorder attaches a metrics recorder.
func (p *Pipeline) WithRecorder(r metrics.Recorder) *Pipeline {
	if r != nil {
		p.recorder = r
	}
	return p
}

// WithEvents attaches a build-event publisher.
func (p *Pipeline) WithEvents(e events.Publisher) *Pipeline {
	if e != nil {
		p.events = e
	}
	return p
}

// Run executes the full build chain.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	return p.run(ctx, []stageEntry{
		{StagePrepare, stagePrepare},
		{StageCompile, stageCompile},
		{StageConvert, stageConvert},
		{StagePublish, stagePublish},
	})
}

// CompileOnly runs preparation and the compiler invocation.
func (p *Pipeline) CompileOnly(ctx context.Context) (*Report, error) {
	return p.run(ctx, []stageEntry{
		{StagePrepare, stagePrepare},
		{StageCompile, stageCompile},
	})
}

// ConvertOnly runs the converter batch against an existing target directory.
func (p *Pipeline) ConvertOnly(ctx context.Context) (*Report, error) {
	return p.run(ctx, []stageEntry{
		{StageConvert, stageConvert},
	})
}

func (p *Pipeline) run(ctx context.Context, stages []stageEntry) (*Report, error) {
	report := newReport(uuid.New().String())
	bs := &State{Config: p.cfg, Report: report, pipeline: p}

	p.events.Publish(events.Event{Type: events.EventBuildStarted, BuildID: report.BuildID})
	slog.Info("Starting build", "build_id", report.BuildID, "source", p.cfg.Source.Directory, "target", p.cfg.Source.Target)

	err := runStages(ctx, bs, stages)
	report.finalize(err)

	p.recordObservations(report)
	p.recordHistory(ctx, report, err)

	if err != nil {
		p.events.Publish(events.Event{Type: events.EventBuildFailed, BuildID: report.BuildID, Error: err.Error()})
		return report, err
	}
	p.events.Publish(events.Event{Type: events.EventBuildSucceeded, BuildID: report.BuildID})
	slog.Info("Build completed", "build_id", report.BuildID, "converted", report.Converted, "skipped", report.Skipped, "duration", report.Duration())
	return report, nil
}

func (p *Pipeline) recordObservations(report *Report) {
	for stage, d := range report.StageDurations {
		p.recorder.ObserveStageDuration(stage, d)
	}
	for _, stage := range report.CompletedStages {
		p.recorder.IncStageResult(stage, metrics.ResultSuccess)
	}
	for stage, kind := range report.StageErrorKinds {
		label := metrics.ResultFatal
		if kind == StageErrorCanceled {
			label = metrics.ResultCanceled
		}
		p.recorder.IncStageResult(stage, label)
	}
	p.recorder.ObserveBuildDuration(report.Duration())
	p.recorder.IncBuildOutcome(string(report.Outcome))
	p.recorder.AddFilesConverted(report.Converted)
	p.recorder.AddFilesSkipped(report.Skipped)
}

func (p *Pipeline) recordHistory(ctx context.Context, report *Report, buildErr error) {
	if p.store == nil {
		return
	}
	outcome := state.OutcomeSuccess
	errText := ""
	if buildErr != nil {
		outcome = state.OutcomeFailure
		errText = buildErr.Error()
	}
	rec := state.BuildRecord{
		ID:        report.BuildID,
		StartedAt: report.Start,
		Finished:  report.End,
		Outcome:   outcome,
		Converted: report.Converted,
		Skipped:   report.Skipped,
		Error:     errText,
	}
	// History is advisory; a storage error must not mask the build result.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.RecordBuild(storeCtx, rec); err != nil {
		slog.Warn("Failed to record build history", "build_id", report.BuildID, "error", err)
	}
}

func stagePrepare(_ context.Context, bs *State) error {
	if _, err := os.Stat(bs.Config.Source.Directory); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceDirMissing, bs.Config.Source.Directory)
		}
		return fmt.Errorf("stat source directory: %w", err)
	}
	if err := os.MkdirAll(bs.Config.Source.Target, 0o750); err != nil {
		return fmt.Errorf("ensure target directory: %w", err)
	}
	return nil
}

func stageCompile(ctx context.Context, bs *State) error {
	if err := bs.pipeline.compiler.Compile(ctx, bs.Config.Source.Directory, bs.Config.Source.Target); err != nil {
		return err
	}
	bs.publishStageCompleted(StageCompile)
	return nil
}

func stageConvert(ctx context.Context, bs *State) error {
	files, err := docs.ListTarget(bs.Config.Source.Target)
	if err != nil {
		return err
	}
	bs.Targets = files
	bs.Report.TargetFiles = len(files)

	pending := files
	var digests map[string]string
	if bs.Config.Converter.Incremental && bs.pipeline.store != nil {
		// Incremental mode only considers compiler output; artifacts left over
		// from earlier runs are not batch candidates.
		candidates := excludeArtifacts(files, bs.Config.Converter.Extension)
		pending, digests, err = bs.pipeline.filterUnchanged(ctx, candidates, bs.Config.Converter.Extension)
		if err != nil {
			return err
		}
		bs.Report.Skipped = len(candidates) - len(pending)
	}

	converted, convErr := bs.pipeline.converter.ConvertAll(ctx, pending)
	bs.Report.Converted = converted

	// Fingerprints advance only for files actually converted; a fail-fast abort
	// leaves the remainder unchanged so the next run retries them.
	for i := 0; i < converted; i++ {
		path := pending[i].Path
		if digests == nil {
			continue
		}
		if err := bs.pipeline.store.SetFingerprint(ctx, path, digests[path]); err != nil {
			slog.Warn("Failed to store fingerprint", "path", path, "error", err)
		}
	}

	if convErr != nil {
		return convErr
	}
	bs.publishStageCompleted(StageConvert)
	return nil
}

// excludeArtifacts drops files already carrying the derived artifact extension.
func excludeArtifacts(files []docs.TargetFile, extension string) []docs.TargetFile {
	suffix := "." + extension
	kept := make([]docs.TargetFile, 0, len(files))
	for _, file := range files {
		if strings.HasSuffix(file.Name, suffix) {
			continue
		}
		kept = append(kept, file)
	}
	return kept
}

// filterUnchanged drops files whose content fingerprint matches the store and
// whose artifact already exists. Order of the remaining files is preserved.
func (p *Pipeline) filterUnchanged(ctx context.Context, files []docs.TargetFile, extension string) ([]docs.TargetFile, map[string]string, error) {
	pending := make([]docs.TargetFile, 0, len(files))
	digests := make(map[string]string, len(files))
	for _, file := range files {
		digest, err := state.FingerprintFile(file.Path)
		if err != nil {
			return nil, nil, err
		}
		digests[file.Path] = digest

		stored, err := p.store.Fingerprint(ctx, file.Path)
		if err != nil {
			return nil, nil, err
		}
		if stored == digest {
			if _, statErr := os.Stat(file.ArtifactPath(extension)); statErr == nil {
				slog.Debug("Skipping unchanged file", "path", file.Path)
				continue
			}
		}
		pending = append(pending, file)
	}
	return pending, digests, nil
}

func stagePublish(ctx context.Context, bs *State) error {
	if !bs.Config.Publish.Enabled {
		return nil
	}
	if bs.pipeline.publisher == nil {
		return fmt.Errorf("%w: publishing enabled but no publisher configured", ErrPublishFailed)
	}
	message := fmt.Sprintf("Publish build %s (%d artifacts)", bs.Report.BuildID, bs.Report.Converted)
	if err := bs.pipeline.publisher.Publish(ctx, bs.Config.Source.Target, message); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	bs.Report.Published = true
	bs.publishStageCompleted(StagePublish)
	return nil
}
