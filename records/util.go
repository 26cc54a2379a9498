package records

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty string")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}

func parseFloat64(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty string")
	}
	return strconv.ParseFloat(s, 64)
}

// readEventsCSV reads a "start,duration,label" file with times in seconds and
// returns events in samples at fs. Zero-length events are dropped.
func readEventsCSV(path string, fs float64) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	col := make(map[string]int)
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, name := range []string{"start", "duration", "label"} {
		if _, ok := col[name]; !ok {
			return nil, errors.Errorf("required column %q not found in %s", name, path)
		}
	}

	var events []Event
	for row := 0; ; row++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read row %d", row)
		}
		start, err := parseFloat64(rec[col["start"]])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: start", row)
		}
		dur, err := parseFloat64(rec[col["duration"]])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: duration", row)
		}
		if dur <= 0 {
			continue
		}
		events = append(events, Event{
			Start:    math.Round(start * fs),
			Duration: math.Round(dur * fs),
			Label:    strings.TrimSpace(rec[col["label"]]),
		})
	}
	return events, nil
}

// writeEventsCSV is the inverse of readEventsCSV.
func writeEventsCSV(path string, events []Event, fs float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"start", "duration", "label"}); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{
			strconv.FormatFloat(e.Start/fs, 'f', -1, 64),
			strconv.FormatFloat(e.Duration/fs, 'f', -1, 64),
			e.Label,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
