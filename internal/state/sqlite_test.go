package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordBuild_RoundTripsThroughLastBuild(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	rec := BuildRecord{
		ID:        "build-1",
		StartedAt: started,
		Finished:  started.Add(30 * time.Second),
		Outcome:   OutcomeSuccess,
		Converted: 4,
		Skipped:   1,
	}
	require.NoError(t, store.RecordBuild(ctx, rec))

	got, err := store.LastBuild(ctx)
	require.NoError(t, err)
	require.Equal(t, "build-1", got.ID)
	require.Equal(t, OutcomeSuccess, got.Outcome)
	require.Equal(t, 4, got.Converted)
	require.Equal(t, 1, got.Skipped)
	require.Equal(t, started.Unix(), got.StartedAt.Unix())
}

func TestLastBuild_EmptyHistory_ReturnsNoRows(t *testing.T) {
	store := openTestStore(t)

	_, err := store.LastBuild(context.Background())
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLastBuild_ReturnsMostRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-time.Hour)
	require.NoError(t, store.RecordBuild(ctx, BuildRecord{ID: "old", StartedAt: older, Finished: older, Outcome: OutcomeFailure, Error: "boom"}))
	require.NoError(t, store.RecordBuild(ctx, BuildRecord{ID: "new", StartedAt: newer, Finished: newer, Outcome: OutcomeSuccess}))

	got, err := store.LastBuild(ctx)
	require.NoError(t, err)
	require.Equal(t, "new", got.ID)
}

func TestFingerprint_MissingPath_ReturnsEmpty(t *testing.T) {
	store := openTestStore(t)

	digest, err := store.Fingerprint(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, digest)
}

func TestSetFingerprint_UpsertsDigest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetFingerprint(ctx, "a.md", "d1"))
	require.NoError(t, store.SetFingerprint(ctx, "a.md", "d2"))

	digest, err := store.Fingerprint(ctx, "a.md")
	require.NoError(t, err)
	require.Equal(t, "d2", digest)
}

func TestFingerprintFile_StableForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	d1, err := FingerprintFile(path)
	require.NoError(t, err)
	d2, err := FingerprintFile(path)
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	d3, err := FingerprintFile(path)
	require.NoError(t, err)
	require.NotEqual(t, d1, d3)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	_, err = os.Stat(path)
	require.NoError(t, err)
}
