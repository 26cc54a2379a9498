package records

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// writeFile writes the given lines to path.
func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}

func testRecord(id string) *Record {
	return &Record{
		ID:       id,
		Fs:       10,
		Channels: []string{"C3", "C4"},
		Signal: [][]float32{
			{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			{9, 8, 7, 6, 5, 4, 3, 2, 1, 0.5},
		},
		Events: []Event{
			{Start: 6, Duration: 2, Label: "arousal"},
			{Start: 1, Duration: 3, Label: "apnea"},
		},
	}
}

func TestDirSourceRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteDir(root, testRecord("b")))
	require.NoError(t, WriteDir(root, testRecord("a")))
	// stray file and directory without a signal are ignored
	writeFile(t, filepath.Join(root, "README"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	src, err := NewDirSource(root)
	require.NoError(t, err)
	ids, err := src.IDs()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	rec, err := src.Load("a")
	require.NoError(t, err)
	want := testRecord("a")
	require.NoError(t, want.Validate())
	require.Equal(t, want, rec)

	_, err = src.Load("missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDirSourceHandWritten(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "rec01")
	require.NoError(t, os.MkdirAll(dir, 0755))
	writeFile(t, filepath.Join(dir, MetaFile), "fs = 4.0")
	writeFile(t, filepath.Join(dir, SignalFile), "EEG, EOG", "1,2", "3,4", "5,6")
	writeFile(t, filepath.Join(dir, EventsFile), "Start,Duration,Label", "0.25,0.5,apnea", "0.5,0,skipped")

	src, err := NewDirSource(root)
	require.NoError(t, err)
	rec, err := src.Load("rec01")
	require.NoError(t, err)
	require.Equal(t, []string{"EEG", "EOG"}, rec.Channels)
	require.Equal(t, [][]float32{{1, 3, 5}, {2, 4, 6}}, rec.Signal)
	require.Equal(t, []Event{{Start: 1, Duration: 2, Label: "apnea"}}, rec.Events)
	require.Equal(t, 3, rec.Len())
	require.Equal(t, 1, rec.Channel("EOG"))
	require.Equal(t, -1, rec.Channel("EMG"))
}

func TestDirSourceBadSignal(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(dir, 0755))
	writeFile(t, filepath.Join(dir, MetaFile), "fs = 4.0")
	writeFile(t, filepath.Join(dir, SignalFile), "EEG", "1", "oops")

	src, err := NewDirSource(root)
	require.NoError(t, err)
	_, err = src.Load("bad")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	rec := testRecord("x")
	rec.Signal[1] = rec.Signal[1][:5]
	require.Error(t, rec.Validate())

	rec = testRecord("x")
	rec.Fs = 0
	require.Error(t, rec.Validate())

	rec = testRecord("x")
	require.NoError(t, rec.Validate())
	require.Equal(t, 1.0, rec.Events[0].Start)
}

func TestMemorySource(t *testing.T) {
	src, err := NewMemorySource(testRecord("z"), testRecord("y"))
	require.NoError(t, err)
	ids, err := src.IDs()
	require.NoError(t, err)
	require.Equal(t, []string{"y", "z"}, ids)

	_, err = NewMemorySource(testRecord("z"), testRecord("z"))
	require.Error(t, err)
}

// countingSource counts Load calls on the wrapped source.
type countingSource struct {
	Source
	loads int
}

func (c *countingSource) Load(id string) (*Record, error) {
	c.loads++
	return c.Source.Load(id)
}

func TestCachedSourceEvictionAndTTL(t *testing.T) {
	mem, err := NewMemorySource(testRecord("a"), testRecord("b"), testRecord("c"))
	require.NoError(t, err)
	inner := &countingSource{Source: mem}
	cached := NewCachedSource(inner, 2, time.Hour)

	for _, id := range []string{"a", "b", "a"} {
		_, err := cached.Load(id)
		require.NoError(t, err)
	}
	require.Equal(t, 2, inner.loads)

	// c evicts b, the least recently used
	_, err = cached.Load("c")
	require.NoError(t, err)
	_, err = cached.Load("a")
	require.NoError(t, err)
	require.Equal(t, 3, inner.loads)
	_, err = cached.Load("b")
	require.NoError(t, err)
	require.Equal(t, 4, inner.loads)

	short := NewCachedSource(inner, 2, 50*time.Millisecond)
	_, err = short.Load("a")
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)
	_, err = short.Load("a")
	require.NoError(t, err)
	require.Equal(t, 6, inner.loads)

	ids, err := cached.IDs()
	require.NoError(t, err)
	require.Len(t, ids, 3)
}

func TestParseAnnotations(t *testing.T) {
	notes := "+0 0 Recording starts\n+30.5 10 Obstructive apnea\n+40 0 Lights off\n+100 3.5 Arousal\n"
	got := parseAnnotations(notes, 2)
	require.Equal(t, []Event{
		{Start: 61, Duration: 20, Label: "Obstructive apnea"},
		{Start: 200, Duration: 7, Label: "Arousal"},
	}, got)

	s := &EDFSource{Keep: []string{"Arousal"}}
	require.Equal(t, []Event{{Start: 200, Duration: 7, Label: "Arousal"}}, s.keep(got))
}
