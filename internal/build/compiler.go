package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Compiler abstracts the external literate-doc compiler invocation. The tool is
// opaque: it consumes a directory of annotated markdown and writes rendered
// output files to the target directory. Swapping the binary for a no-op keeps
// stage orchestration testable without the tool installed.
type Compiler interface {
	Compile(ctx context.Context, sourceDir, targetDir string) error
}

// BinaryCompiler invokes the configured compiler binary from PATH as
// `<command> [args...] --in <source> --out <target>`.
type BinaryCompiler struct {
	Command string
	Args    []string
}

func (b *BinaryCompiler) Compile(ctx context.Context, sourceDir, targetDir string) error {
	if _, err := exec.LookPath(b.Command); err != nil {
		return fmt.Errorf("%w: %w", ErrCompilerNotFound, err)
	}

	args := append(append([]string{}, b.Args...), "--in", sourceDir, "--out", targetDir)
	cmd := exec.CommandContext(ctx, b.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("Running literate-doc compiler", "command", b.Command, "source", sourceDir, "target", targetDir)
	err := cmd.Run()

	if out := stdout.String(); out != "" {
		slog.Debug("compiler stdout", "output", out)
	}
	if errOut := stderr.String(); errOut != "" {
		slog.Warn("compiler stderr", "error_output", errOut)
	}

	if err != nil {
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		if output != "" {
			return fmt.Errorf("%w: %w: %s", ErrCompilerFailed, err, output)
		}
		return fmt.Errorf("%w: %w", ErrCompilerFailed, err)
	}
	return nil
}

// NoopCompiler performs no compilation; useful in tests or when the target
// directory is already populated.
type NoopCompiler struct{}

func (NoopCompiler) Compile(ctx context.Context, sourceDir, targetDir string) error {
	slog.Debug("NoopCompiler skipping compilation", "source", sourceDir, "target", targetDir)
	return nil
}
