package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "manifest.db"))
	require.NoError(t, err)
	defer s.Close()

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordEntries(ctx, []Entry{
		{RunID: "run-a", Key: "k1", RecordID: "r2", Windows: 4, Positives: 3, Path: "k1/r2.gob", CreatedAt: t0},
		{RunID: "run-a", Key: "k1", RecordID: "r1", Windows: 2, Positives: 0, Path: "k1/r1.gob", CreatedAt: t0},
		{RunID: "run-a", Key: "k2", RecordID: "r1", Windows: 7, Positives: 1, Path: "k2/r1.gob", CreatedAt: t0},
	}))

	got, err := s.Entries(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "r1", got[0].RecordID)
	require.Equal(t, "r2", got[1].RecordID)
	require.Equal(t, 4, got[1].Windows)
	require.True(t, got[1].CreatedAt.Equal(t0))

	all, err := s.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	// same key and record replaces the row
	require.NoError(t, s.RecordEntry(ctx, Entry{RunID: "run-b", Key: "k1", RecordID: "r1", Windows: 2, Cached: true,
		Path: "k1/r1.gob", CreatedAt: t0.Add(time.Hour)}))
	got, err = s.Entries(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "run-b", got[0].RunID)
	require.True(t, got[0].Cached)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"run-b", "run-a"}, runs)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manifest.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordEntry(ctx, Entry{RunID: "r", Key: "k", RecordID: "x", Windows: 1}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Entries(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "x", got[0].RecordID)
}
