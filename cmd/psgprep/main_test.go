package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/datasets"
	"github.com/Noofbiz/sleepEvents/records"
)

// writeFixture stores five 30 s records and a configuration pointing at
// them; it returns the configuration path.
func writeFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "records")
	for r := 0; r < 5; r++ {
		rec := &records.Record{
			ID:       fmt.Sprintf("mros-%02d", r),
			Fs:       10,
			Channels: []string{"C3"},
			Events:   []records.Event{{Start: 120, Duration: 30, Label: "apnea"}},
			Signal:   [][]float32{make([]float32, 300)},
		}
		for i := range rec.Signal[0] {
			rec.Signal[0][i] = float32(i % 17)
		}
		require.NoError(t, records.WriteDir(data, rec))
	}
	cfg := fmt.Sprintf(`data_dir = %q
n_test = 1
n_eval = 1
fs = 10.0
window_duration = 10.0
picks = ["C3"]
default_event_window_duration = [2.0, 4.0]
scaling = "none"
n_jobs = 2
batch_size = 2

[events]
apnea = 0
`, data)
	path := filepath.Join(root, "psg.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestSplitAndAnchors(t *testing.T) {
	cfg := writeFixture(t)

	out := run(t, "split", "--config", cfg, "--list")
	require.Contains(t, out, "train 3 records")
	require.Contains(t, out, "eval  1 records")
	require.Contains(t, out, "test  1 records")
	require.Contains(t, out, "  mros-")

	out = run(t, "anchors", "--config", cfg, "--list")
	require.Contains(t, out, "window: 100 samples")
	require.Contains(t, out, "2s (20 samples): 9 anchors")
	require.Contains(t, out, "4s (40 samples): 4 anchors")
	require.Contains(t, out, "total: 13 anchors")
}

func TestPrecomputeAndInspect(t *testing.T) {
	cfg := writeFixture(t)
	cache := t.TempDir()

	out := run(t, "precompute", "--config", cfg, "--cache-dir", cache)
	require.Contains(t, out, "train 9 windows from 3 records")
	require.Contains(t, out, "eval  3 windows from 1 records")

	out = run(t, "inspect", "--config", cfg, "--cache-dir", cache)
	require.Contains(t, out, "5 entries, 15 windows")
	require.Contains(t, out, "false")

	// the second run reads every entry back
	run(t, "precompute", "--config", cfg, "--cache-dir", cache, "--subsets", "train")
	out = run(t, "inspect", "--config", cfg, "--cache-dir", cache)
	require.Contains(t, out, "true")

	out = run(t, "inspect", "--config", cfg, "--cache-dir", cache, "--key", "nope")
	require.Contains(t, out, "no cache entries")
}

func TestPlotCommand(t *testing.T) {
	cfg := writeFixture(t)
	png := filepath.Join(t.TempDir(), "plots", "item.png")
	out := run(t, "plot", "--config", cfg, "--index", "1", "--out", png)
	require.Contains(t, out, "1 events")

	st, err := os.Stat(png)
	require.NoError(t, err)
	require.Positive(t, st.Size())
}

func TestPlotItemTransformed(t *testing.T) {
	as, err := anchors.Generate(100, []int{20}, 1)
	require.NoError(t, err)
	it := datasets.Item{
		RecordID: "r",
		Shape:    []int{1, 17, 11},
		Input:    make([]float32, 17*11),
		Classes:  make([]int32, len(as)),
		Events:   []records.Event{{Start: 20, Duration: 20, Label: "apnea"}},
	}
	it.Classes[1] = 1
	png := filepath.Join(t.TempDir(), "stft.png")
	require.NoError(t, plotItem(png, it, as, 10, 100))
	_, err = os.Stat(png)
	require.NoError(t, err)
}

func TestConfigErrors(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"split", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, cmd.Execute())

	cfg := writeFixture(t)
	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"precompute", "--config", cfg})
	require.Error(t, cmd.Execute())
}
