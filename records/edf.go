package records

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ishiikurisu/edf"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EDFSource loads <Dir>/<id>.edf recordings. Events come from a sidecar
// <id>.events.csv when present, else from the EDF+ annotation channel.
// When Keep is non-empty only annotations with those labels are retained,
// since scored EDF+ files also carry stage and technician notes.
type EDFSource struct {
	Dir  string
	Keep []string
}

// IDs lists the .edf files in Dir, sorted.
func (s *EDFSource) IDs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.edf"))
	if err != nil {
		return nil, errors.Wrapf(err, "records: glob %s", s.Dir)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".edf"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load parses the EDF file of id.
func (s *EDFSource) Load(id string) (rec *Record, err error) {
	path := filepath.Join(s.Dir, id+".edf")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, errors.Wrapf(err, "records: %s", id)
	}

	// the edf reader panics on malformed headers instead of returning errors.
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, errors.Errorf("records: %s: malformed edf: %v", id, r)
		}
	}()
	data := edf.ReadFile(path)

	if data.GetDuration() <= 0 {
		return nil, errors.Errorf("records: %s: data record duration %v", id, data.GetDuration())
	}
	fs := float64(data.GetSampling()) / data.GetDuration()

	labels := data.GetLabels()
	rec = &Record{ID: id, Fs: fs}
	for i, series := range data.PhysicalRecords {
		name := strings.TrimSpace(labels[i])
		if name == "EDF Annotations" || name == "Crc16" {
			continue
		}
		sig := make([]float32, len(series))
		for j, v := range series {
			sig[j] = float32(v)
		}
		rec.Channels = append(rec.Channels, name)
		rec.Signal = append(rec.Signal, sig)
	}
	truncate(rec)

	sidecar := filepath.Join(s.Dir, id+".events.csv")
	if _, statErr := os.Stat(sidecar); statErr == nil {
		rec.Events, err = readEventsCSV(sidecar, fs)
		if err != nil {
			return nil, errors.Wrapf(err, "records: %s: read events", id)
		}
	} else {
		rec.Events = parseAnnotations(data.WriteNotes(), fs)
	}
	rec.Events = s.keep(rec.Events)

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	klog.V(2).Infof("records: loaded %s: %d channels, %d samples at %v Hz, %d events",
		id, len(rec.Channels), rec.Len(), fs, len(rec.Events))
	return rec, nil
}

func (s *EDFSource) keep(events []Event) []Event {
	if len(s.Keep) == 0 {
		return events
	}
	allowed := make(map[string]bool, len(s.Keep))
	for _, k := range s.Keep {
		allowed[k] = true
	}
	out := events[:0]
	for _, e := range events {
		if allowed[e.Label] {
			out = append(out, e)
		}
	}
	return out
}

// truncate cuts every channel to the shortest one. Channels sampled at a
// different rate than the first are reported by Validate later on, so this
// only evens out the trailing partial data record.
func truncate(rec *Record) {
	n := math.MaxInt
	for _, s := range rec.Signal {
		n = min(n, len(s))
	}
	for i := range rec.Signal {
		if len(rec.Signal[i]) > n {
			klog.V(1).Infof("records: %s: truncating %s from %d to %d samples",
				rec.ID, rec.Channels[i], len(rec.Signal[i]), n)
			rec.Signal[i] = rec.Signal[i][:n]
		}
	}
}

var annotationRE = regexp.MustCompile(`^\+([\d.]+)\s([\d.]+)\s(.+)\s*`)

// parseAnnotations reads "+onset duration label" lines of the EDF+ notes.
// Annotations without a duration are skipped.
func parseAnnotations(notes string, fs float64) []Event {
	var events []Event
	for _, line := range strings.Split(notes, "\n") {
		match := annotationRE.FindStringSubmatch(line)
		if len(match) < 4 {
			continue
		}
		onset, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		duration, err := strconv.ParseFloat(match[2], 64)
		if err != nil || duration <= 0 {
			continue
		}
		label := strings.TrimSpace(match[3])
		if label == "" || label == "Recording starts" {
			continue
		}
		events = append(events, Event{
			Start:    math.Round(onset * fs),
			Duration: math.Round(duration * fs),
			Label:    label,
		})
	}
	return events
}

// String implements fmt.Stringer.
func (s *EDFSource) String() string { return fmt.Sprintf("edf:%s", s.Dir) }
