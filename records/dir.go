package records

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// File names inside a record directory.
const (
	SignalFile = "signal.csv"
	EventsFile = "events.csv"
	MetaFile   = "record.toml"
)

// Meta is the per-record metadata file.
type Meta struct {
	Fs float64 `toml:"fs"`
}

// DirSource loads records stored one per directory under Root:
//
//	<Root>/<id>/signal.csv   header of channel names, one row per sample
//	<Root>/<id>/events.csv   start,duration,label in seconds
//	<Root>/<id>/record.toml  fs = <sampling frequency>
//
// A missing events.csv means a record without events.
type DirSource struct {
	Root string
}

// NewDirSource returns a source rooted at dir.
func NewDirSource(dir string) (*DirSource, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "records: open %s", dir)
	}
	if !st.IsDir() {
		return nil, errors.Errorf("records: %s is not a directory", dir)
	}
	return &DirSource{Root: dir}, nil
}

// IDs lists the sub-directories holding a signal file, sorted.
func (d *DirSource) IDs() ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "records: list %s", d.Root)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.Root, e.Name(), SignalFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads the record directory for id.
func (d *DirSource) Load(id string) (*Record, error) {
	dir := filepath.Join(d.Root, id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, errors.Wrapf(err, "records: %s", id)
	}

	var meta Meta
	if _, err := toml.DecodeFile(filepath.Join(dir, MetaFile), &meta); err != nil {
		return nil, errors.Wrapf(err, "records: %s: decode %s", id, MetaFile)
	}

	channels, signal, err := readSignalCSV(filepath.Join(dir, SignalFile))
	if err != nil {
		return nil, errors.Wrapf(err, "records: %s: read signal", id)
	}

	var events []Event
	evPath := filepath.Join(dir, EventsFile)
	if _, err := os.Stat(evPath); err == nil {
		events, err = readEventsCSV(evPath, meta.Fs)
		if err != nil {
			return nil, errors.Wrapf(err, "records: %s: read events", id)
		}
	}

	rec := &Record{ID: id, Fs: meta.Fs, Channels: channels, Signal: signal, Events: events}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// readSignalCSV reads a channel-per-column CSV into channel-major slices.
func readSignalCSV(path string) ([]string, [][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}
	channels := make([]string, len(header))
	for i, h := range header {
		channels[i] = strings.TrimSpace(h)
	}

	signal := make([][]float32, len(channels))
	for row := 0; ; row++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read row %d", row)
		}
		for c := range channels {
			v, err := parseFloat32(rec[c])
			if err != nil {
				return nil, nil, errors.Wrapf(err, "row %d: parse %s", row, channels[c])
			}
			signal[c] = append(signal[c], v)
		}
	}
	return channels, signal, nil
}

// WriteDir stores rec under root in the DirSource layout.
func WriteDir(root string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	dir := filepath.Join(root, rec.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	meta, err := os.Create(filepath.Join(dir, MetaFile))
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(meta).Encode(Meta{Fs: rec.Fs}); err != nil {
		meta.Close()
		return errors.Wrap(err, "encode meta")
	}
	if err := meta.Close(); err != nil {
		return err
	}

	sig, err := os.Create(filepath.Join(dir, SignalFile))
	if err != nil {
		return err
	}
	w := csv.NewWriter(sig)
	if err := w.Write(rec.Channels); err != nil {
		sig.Close()
		return err
	}
	row := make([]string, len(rec.Channels))
	for i := 0; i < rec.Len(); i++ {
		for c := range rec.Signal {
			row[c] = strconv.FormatFloat(float64(rec.Signal[c][i]), 'g', -1, 32)
		}
		if err := w.Write(row); err != nil {
			sig.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		sig.Close()
		return err
	}
	if err := sig.Close(); err != nil {
		return err
	}

	return writeEventsCSV(filepath.Join(dir, EventsFile), rec.Events, rec.Fs)
}
