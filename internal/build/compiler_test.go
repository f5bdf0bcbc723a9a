package build

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinaryCompiler_MissingBinary_ReturnsTypedError(t *testing.T) {
	compiler := &BinaryCompiler{Command: fmt.Sprintf("pantut-no-such-compiler-%d", os.Getpid())}

	err := compiler.Compile(context.Background(), "src", "dst")
	require.ErrorIs(t, err, ErrCompilerNotFound)
}

func TestBinaryCompiler_NonzeroExit_ReturnsTypedError(t *testing.T) {
	compiler := &BinaryCompiler{Command: "false"}

	err := compiler.Compile(context.Background(), "src", "dst")
	require.ErrorIs(t, err, ErrCompilerFailed)
}

func TestBinaryCompiler_ZeroExit_Succeeds(t *testing.T) {
	compiler := &BinaryCompiler{Command: "true"}

	require.NoError(t, compiler.Compile(context.Background(), "src", "dst"))
}

func TestNoopCompiler_DoesNothing(t *testing.T) {
	require.NoError(t, NoopCompiler{}.Compile(context.Background(), "src", "dst"))
}
