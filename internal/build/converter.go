package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tabdulradi/pan-tut/internal/docs"
)

// Runner executes one external command synchronously. The exec-backed
// implementation is swapped for a recording fake in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands via os/exec, capturing output for diagnostics.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %w", ErrConverterNotFound, err)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if out := stdout.String(); out != "" {
		slog.Debug("converter stdout", "output", out)
	}
	if errOut := stderr.String(); errOut != "" {
		slog.Warn("converter stderr", "error_output", errOut)
	}
	if err != nil {
		if output := stderr.String(); output != "" {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(output))
		}
		return err
	}
	return nil
}

// Converter turns each compiled target file into an output artifact by invoking
// the external document converter as `<command> <input> [args...] -o <input>.<ext>`.
// Invocations are strictly sequential in listing order; the first failure aborts
// the remaining batch. Existing artifacts are overwritten by the converter.
type Converter struct {
	Command   string
	Args      []string
	Extension string
	Runner    Runner
}

// NewConverter builds a Converter backed by ExecRunner.
func NewConverter(command string, args []string, extension string) *Converter {
	return &Converter{Command: command, Args: args, Extension: extension, Runner: ExecRunner{}}
}

// ConvertAll processes the batch. An empty file list performs zero invocations
// and returns nil. Returns the number of artifacts written.
func (c *Converter) ConvertAll(ctx context.Context, files []docs.TargetFile) (int, error) {
	converted := 0
	for _, file := range files {
		artifact := file.ArtifactPath(c.Extension)
		args := append(append([]string{file.Path}, c.Args...), "-o", artifact)

		slog.Info("Converting document", "command", c.Command+" "+strings.Join(args, " "))
		if err := c.Runner.Run(ctx, c.Command, args...); err != nil {
			return converted, fmt.Errorf("%w: %s: %w", ErrConversionFailed, file.Name, err)
		}
		converted++
	}
	return converted, nil
}
