package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabdulradi/pan-tut/internal/config"
	"github.com/tabdulradi/pan-tut/internal/state"
)

// scriptedCompiler records that it ran and populates the target directory the
// way the external literate-doc compiler would.
type scriptedCompiler struct {
	trace *[]string
	files map[string]string // name -> rendered content
	fail  bool
}

func compilerFor(trace *[]string, names ...string) *scriptedCompiler {
	files := make(map[string]string, len(names))
	for _, name := range names {
		files[name] = "# " + name + "\n"
	}
	return &scriptedCompiler{trace: trace, files: files}
}

func (c *scriptedCompiler) Compile(_ context.Context, _, targetDir string) error {
	*c.trace = append(*c.trace, "compile")
	if c.fail {
		return errors.New("compiler exploded")
	}
	for name, content := range c.files {
		if err := os.WriteFile(filepath.Join(targetDir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// tracingRunner is a fakeRunner that also appends to a shared trace.
type tracingRunner struct {
	fakeRunner
	trace *[]string
}

func (r *tracingRunner) Run(ctx context.Context, name string, args ...string) error {
	*r.trace = append(*r.trace, "convert:"+filepath.Base(args[0]))
	return r.fakeRunner.Run(ctx, name, args...)
}

type recordingPublisher struct {
	trace  *[]string
	called int
	dir    string
}

func (p *recordingPublisher) Publish(_ context.Context, artifactDir, _ string) error {
	*p.trace = append(*p.trace, "publish")
	p.called++
	p.dir = artifactDir
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	sourceDir := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(sourceDir, 0o755))
	return &config.Config{
		Source:    config.SourceConfig{Directory: sourceDir, Target: filepath.Join(root, "target")},
		Compiler:  config.CompilerConfig{Command: "mdoc"},
		Converter: config.ConverterConfig{Command: "pandoc", Extension: "html"},
	}
}

func TestRun_ConvertsEveryCompiledFile(t *testing.T) {
	cfg := testConfig(t)
	var trace []string
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md", "b.md")).
		WithRunner(&tracingRunner{trace: &trace})

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	require.Equal(t, 2, report.TargetFiles)
	require.Equal(t, 2, report.Converted)

	entries, err := os.ReadDir(cfg.Source.Target)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"a.md", "a.md.html", "b.md", "b.md.html"}, names)
}

func TestRun_ConvertNeverPrecedesCompile(t *testing.T) {
	cfg := testConfig(t)
	var trace []string
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md")).
		WithRunner(&tracingRunner{trace: &trace})

	_, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"compile", "convert:a.md"}, trace)
}

func TestRun_CompilerFailure_AbortsBeforeConversion(t *testing.T) {
	cfg := testConfig(t)
	var trace []string
	runner := &tracingRunner{trace: &trace}
	pipeline := NewPipeline(cfg).
		WithCompiler(&scriptedCompiler{trace: &trace, fail: true}).
		WithRunner(runner)

	report, err := pipeline.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.Equal(t, StageErrorFatal, report.StageErrorKinds[StageCompile])
	require.Empty(t, runner.calls)
	require.Equal(t, []string{"compile"}, trace)
}

func TestRun_ConversionFailure_ReportsFailedOutcome(t *testing.T) {
	cfg := testConfig(t)
	var trace []string
	runner := &tracingRunner{fakeRunner: fakeRunner{failOn: 1}, trace: &trace}
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md", "b.md")).
		WithRunner(runner)

	report, err := pipeline.Run(context.Background())
	require.ErrorIs(t, err, ErrConversionFailed)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.Equal(t, StageErrorFatal, report.StageErrorKinds[StageConvert])
	require.Zero(t, report.Converted)
	require.Len(t, runner.calls, 1)
}

func TestRun_EmptyTargetDir_SucceedsWithZeroInvocations(t *testing.T) {
	cfg := testConfig(t)
	var trace []string
	runner := &tracingRunner{trace: &trace}
	pipeline := NewPipeline(cfg).
		WithCompiler(&scriptedCompiler{trace: &trace}).
		WithRunner(runner)

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.TargetFiles)
	require.Zero(t, report.Converted)
	require.Empty(t, runner.calls)
}

func TestRun_MissingSourceDir_FailsInPrepare(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(cfg.Source.Directory))
	pipeline := NewPipeline(cfg).WithCompiler(NoopCompiler{}).WithRunner(&fakeRunner{})

	report, err := pipeline.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceDirMissing)
	require.Equal(t, StageErrorFatal, report.StageErrorKinds[StagePrepare])
}

func TestRun_CanceledContext_ReportsCanceledOutcome(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(cfg).WithCompiler(NoopCompiler{}).WithRunner(&fakeRunner{})
	report, err := pipeline.Run(ctx)
	require.Error(t, err)
	require.Equal(t, OutcomeCanceled, report.Outcome)
}

func TestRun_PublishRunsOnlyAfterSuccessfulConversion(t *testing.T) {
	cfg := testConfig(t)
	cfg.Publish.Enabled = true
	var trace []string
	pub := &recordingPublisher{trace: &trace}
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md")).
		WithRunner(&tracingRunner{trace: &trace}).
		WithPublisher(pub)

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Published)
	require.Equal(t, 1, pub.called)
	require.Equal(t, cfg.Source.Target, pub.dir)
	require.Equal(t, []string{"compile", "convert:a.md", "publish"}, trace)
}

func TestRun_PublishSkippedWhenConversionFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Publish.Enabled = true
	var trace []string
	pub := &recordingPublisher{trace: &trace}
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md")).
		WithRunner(&tracingRunner{fakeRunner: fakeRunner{failOn: 1}, trace: &trace}).
		WithPublisher(pub)

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)
	require.Zero(t, pub.called)
}

func TestRun_PublishDisabled_PublisherNotCalled(t *testing.T) {
	cfg := testConfig(t)
	var trace []string
	pub := &recordingPublisher{trace: &trace}
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md")).
		WithRunner(&tracingRunner{trace: &trace}).
		WithPublisher(pub)

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Published)
	require.Zero(t, pub.called)
}

func TestConvertOnly_SkipsCompiler(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Source.Target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Source.Target, "a.md"), []byte("# a\n"), 0o644))

	var trace []string
	pipeline := NewPipeline(cfg).
		WithCompiler(&scriptedCompiler{trace: &trace, fail: true}). // would fail if invoked
		WithRunner(&tracingRunner{trace: &trace})

	report, err := pipeline.ConvertOnly(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Converted)
	require.Equal(t, []string{"convert:a.md"}, trace)
}

func TestRun_IncrementalSkipsUnchangedFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Converter.Incremental = true
	store, err := state.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var trace []string
	compiler := compilerFor(&trace, "a.md", "b.md")
	newPipeline := func(r Runner) *Pipeline {
		return NewPipeline(cfg).WithCompiler(compiler).WithRunner(r).WithStore(store)
	}

	first, err := newPipeline(&tracingRunner{trace: &trace}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Converted)
	require.Zero(t, first.Skipped)

	second, err := newPipeline(&tracingRunner{trace: &trace}).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Converted)
	require.Equal(t, 2, second.Skipped)

	// A changed compiler output reconverts only that file.
	compiler.files["b.md"] = "# changed\n"
	runner := &tracingRunner{trace: &trace}
	third, err := newPipeline(runner).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, third.Converted)
	require.Equal(t, 1, third.Skipped)
	require.Len(t, runner.calls, 1)
}

func TestRun_RecordsBuildHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := state.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var trace []string
	pipeline := NewPipeline(cfg).
		WithCompiler(compilerFor(&trace, "a.md")).
		WithRunner(&tracingRunner{trace: &trace}).
		WithStore(store)

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	rec, err := store.LastBuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, report.BuildID, rec.ID)
	require.Equal(t, state.OutcomeSuccess, rec.Outcome)
	require.Equal(t, 1, rec.Converted)
}
