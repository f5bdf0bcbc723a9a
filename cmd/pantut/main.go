package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tabdulradi/pan-tut/internal/build"
	"github.com/tabdulradi/pan-tut/internal/config"
	"github.com/tabdulradi/pan-tut/internal/daemon"
	"github.com/tabdulradi/pan-tut/internal/docs"
	"github.com/tabdulradi/pan-tut/internal/events"
	"github.com/tabdulradi/pan-tut/internal/lint"
	"github.com/tabdulradi/pan-tut/internal/publish"
	"github.com/tabdulradi/pan-tut/internal/state"
	"github.com/tabdulradi/pan-tut/internal/verify"
	"github.com/tabdulradi/pan-tut/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pantut.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Publish bool `short:"p" help:"Run the publish step after a successful conversion"`
	} `cmd:"" help:"Compile the tutorial sources and convert every output file"`

	Compile struct{} `cmd:"" help:"Run only the literate-doc compiler invocation"`

	Convert struct{} `cmd:"" help:"Run only the converter batch against the target directory"`

	Lint struct{} `cmd:"" help:"Check annotated snippet fences in the tutorial sources"`

	Verify struct{} `cmd:"" help:"Check the produced HTML artifacts"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Watch struct{} `cmd:"" help:"Rebuild on source changes and serve a local preview"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "build":
		cfg := loadConfigOrExit()
		if CLI.Build.Publish {
			cfg.Publish.Enabled = true
		}
		runOrExit("Build", func() error { return runBuild(cfg) })
	case "compile":
		cfg := loadConfigOrExit()
		runOrExit("Compile", func() error {
			_, err := build.NewPipeline(cfg).CompileOnly(context.Background())
			return err
		})
	case "convert":
		cfg := loadConfigOrExit()
		runOrExit("Convert", func() error { return runConvert(cfg) })
	case "lint":
		cfg := loadConfigOrExit()
		runOrExit("Lint", func() error { return runLint(cfg) })
	case "verify":
		cfg := loadConfigOrExit()
		runOrExit("Verify", func() error { return runVerify(cfg) })
	case "init":
		runOrExit("Init", func() error { return config.Init(CLI.Config, CLI.Init.Force) })
	case "watch":
		cfg := loadConfigOrExit()
		runOrExit("Watch", func() error { return runWatch(cfg) })
	case "version":
		fmt.Printf("pantut %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func runOrExit(name string, fn func() error) {
	if err := fn(); err != nil {
		slog.Error(name+" failed", "error", err)
		os.Exit(1)
	}
}

// assemblePipeline wires the pipeline with state, publish, and event publishing
// according to configuration. The returned cleanup releases those resources.
func assemblePipeline(cfg *config.Config) (*build.Pipeline, func(), error) {
	pipeline := build.NewPipeline(cfg)
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}
	cleanups = append(cleanups, func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close state store", "error", err)
		}
	})
	pipeline.WithStore(store)

	if cfg.Publish.Enabled {
		pipeline.WithPublisher(publish.NewGitPublisher(cfg.Publish))
	}

	if cfg.Events.Enabled {
		publisher, err := events.NewNATSPublisher(cfg.Events)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, publisher.Close)
		pipeline.WithEvents(publisher)
	}

	return pipeline, cleanup, nil
}

func runBuild(cfg *config.Config) error {
	pipeline, cleanup, err := assemblePipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = pipeline.Run(context.Background())
	return err
}

func runConvert(cfg *config.Config) error {
	pipeline, cleanup, err := assemblePipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := pipeline.ConvertOnly(context.Background())
	if err != nil {
		return err
	}
	slog.Info("Conversion completed", "files", report.TargetFiles, "converted", report.Converted, "skipped", report.Skipped)
	return nil
}

func runLint(cfg *config.Config) error {
	sources, err := docs.DiscoverSources(cfg.Source.Directory)
	if err != nil {
		return err
	}

	total := 0
	for _, source := range sources {
		issues, err := lint.CheckFile(source)
		if err != nil {
			return err
		}
		for _, issue := range issues {
			fmt.Println(issue)
			total++
		}
	}
	if total > 0 {
		return fmt.Errorf("lint found %d issue(s) in %d file(s)", total, len(sources))
	}
	slog.Info("Lint passed", "files", len(sources))
	return nil
}

func runVerify(cfg *config.Config) error {
	files, err := docs.ListTarget(cfg.Source.Target)
	if err != nil {
		return err
	}

	result, err := verify.Artifacts(files, cfg.Converter.Extension)
	if err != nil {
		return err
	}
	for _, problem := range result.Problems {
		fmt.Println(problem)
	}
	if !result.OK() {
		return fmt.Errorf("verify found %d defective artifact(s) of %d checked", len(result.Problems), result.Checked)
	}
	slog.Info("Verify passed", "artifacts", result.Checked)
	return nil
}

func runWatch(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline, cleanup, err := assemblePipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	d, err := daemon.New(cfg, pipeline)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	slog.Info("Watch mode started, waiting for shutdown signal...")

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	return nil
}
