package verify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabdulradi/pan-tut/internal/docs"
)

func targetWithArtifact(t *testing.T, artifactContent *string) (docs.TargetFile, string) {
	t.Helper()
	dir := t.TempDir()
	target := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(target, []byte("# a\n"), 0o644))
	artifact := target + ".html"
	if artifactContent != nil {
		require.NoError(t, os.WriteFile(artifact, []byte(*artifactContent), 0o644))
	}
	return docs.TargetFile{Path: target, Name: "a.md"}, artifact
}

func ptr(s string) *string { return &s }

func TestArtifacts_WellFormedHTML_Passes(t *testing.T) {
	file, _ := targetWithArtifact(t, ptr("<html><body><h1>Doc</h1></body></html>"))

	result, err := Artifacts([]docs.TargetFile{file}, "html")
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Equal(t, 1, result.Checked)
}

func TestArtifacts_MissingArtifact_Flagged(t *testing.T) {
	file, _ := targetWithArtifact(t, nil)

	result, err := Artifacts([]docs.TargetFile{file}, "html")
	require.NoError(t, err)
	require.False(t, result.OK())
	require.Contains(t, result.Problems[0].Message, "missing")
}

func TestArtifacts_EmptyArtifact_Flagged(t *testing.T) {
	file, _ := targetWithArtifact(t, ptr(""))

	result, err := Artifacts([]docs.TargetFile{file}, "html")
	require.NoError(t, err)
	require.False(t, result.OK())
	require.Contains(t, result.Problems[0].Message, "empty")
}

func TestArtifacts_NoVisibleText_Flagged(t *testing.T) {
	file, _ := targetWithArtifact(t, ptr("<html><body><script>1</script></body></html>"))

	result, err := Artifacts([]docs.TargetFile{file}, "html")
	require.NoError(t, err)
	require.False(t, result.OK())
	require.Contains(t, result.Problems[0].Message, "no visible text")
}

func TestArtifacts_PriorArtifactsInListing_NotChecked(t *testing.T) {
	file, artifact := targetWithArtifact(t, ptr("<p>ok</p>"))
	listing := []docs.TargetFile{
		file,
		{Path: artifact, Name: filepath.Base(artifact)},
	}

	result, err := Artifacts(listing, "html")
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Equal(t, 1, result.Checked)
}

func TestArtifacts_EmptyBatch_OK(t *testing.T) {
	result, err := Artifacts(nil, "html")
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Zero(t, result.Checked)
}

func TestCheckReader_PlainText_HasVisibleText(t *testing.T) {
	problem, err := CheckReader(strings.NewReader("converted body"))
	require.NoError(t, err)
	require.Empty(t, problem)
}
