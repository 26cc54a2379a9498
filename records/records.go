// Package records exposes polysomnography recordings as immutable Records
// and provides the on-disk sources they are loaded from.
package records

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by sources for unknown record ids.
var ErrNotFound = errors.New("records: record not found")

// Event is a labelled interval in samples. Start is absolute for events held
// by a Record and window-relative once extracted into a window.
type Event struct {
	Start    float64
	Duration float64
	Label    string
}

// End returns the exclusive end sample of the event.
func (e Event) End() float64 { return e.Start + e.Duration }

// Record is one recording: a channel-major signal sampled at Fs and its
// labelled events, ordered by start.
type Record struct {
	ID       string
	Fs       float64
	Channels []string
	Signal   [][]float32
	Events   []Event
}

// Len returns the number of samples per channel.
func (r *Record) Len() int {
	if r == nil || len(r.Signal) == 0 {
		return 0
	}
	return len(r.Signal[0])
}

// Channel returns the index of the named channel or -1.
func (r *Record) Channel(name string) int {
	for i, c := range r.Channels {
		if c == name {
			return i
		}
	}
	return -1
}

// Validate checks the record is internally consistent and sorts its events.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errors.New("records: empty record id")
	}
	if r.Fs <= 0 {
		return errors.Errorf("records: %s: sampling frequency %v", r.ID, r.Fs)
	}
	if len(r.Channels) != len(r.Signal) {
		return errors.Errorf("records: %s: %d channel names for %d signals", r.ID, len(r.Channels), len(r.Signal))
	}
	n := r.Len()
	for i, s := range r.Signal {
		if len(s) != n {
			return errors.Errorf("records: %s: channel %q has %d samples, want %d", r.ID, r.Channels[i], len(s), n)
		}
	}
	sort.SliceStable(r.Events, func(i, j int) bool { return r.Events[i].Start < r.Events[j].Start })
	return nil
}

// Source resolves record ids to Records.
type Source interface {
	IDs() ([]string, error)
	Load(id string) (*Record, error)
}

// MemorySource serves records held in memory.
type MemorySource struct {
	byID map[string]*Record
}

// NewMemorySource validates recs and returns a source serving them.
func NewMemorySource(recs ...*Record) (*MemorySource, error) {
	m := &MemorySource{byID: make(map[string]*Record, len(recs))}
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.byID[r.ID]; dup {
			return nil, errors.Errorf("records: duplicate record id %s", r.ID)
		}
		m.byID[r.ID] = r
	}
	return m, nil
}

// IDs returns the sorted record ids.
func (m *MemorySource) IDs() ([]string, error) {
	ids := make([]string, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load returns the record with the given id.
func (m *MemorySource) Load(id string) (*Record, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return r, nil
}
