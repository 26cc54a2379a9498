// Package windows cuts records into fixed-length analysis windows.
//
// Channel selection, tiling and event extraction all happen in raw sample
// coordinates; scaling and the transform run on each finished window, so
// event coordinates never depend on the transform.
package windows

import (
	"math"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/sleepEvents/records"
	"github.com/Noofbiz/sleepEvents/transforms"
)

var (
	// ErrSampleRate is returned when a record's sampling frequency differs
	// from the configured one.
	ErrSampleRate = errors.New("windows: sampling frequency mismatch")

	// ErrMissingChannel is returned when a picked channel is absent.
	ErrMissingChannel = errors.New("windows: missing channel")
)

// Subset selects which windows of a record are kept.
type Subset string

const (
	// SubsetAll keeps every window.
	SubsetAll Subset = "all"
	// SubsetEvents keeps only windows holding at least one event.
	SubsetEvents Subset = "events"
)

// EventPolicy decides which events belong to a window.
type EventPolicy string

const (
	// EventsPartial keeps every event overlapping the window, clipped to it.
	EventsPartial EventPolicy = "partial"
	// EventsFull keeps only events lying entirely inside the window.
	EventsFull EventPolicy = "full"
)

// Options configures a Loader. Durations are in seconds. It is also the
// loader's contribution to dataset cache keys, so every field that changes
// the produced windows lives here.
type Options struct {
	WindowDuration float64           `json:"window_duration"`
	Fs             float64           `json:"fs"`
	Picks          []string          `json:"picks"`
	Transform      transforms.Config `json:"transform"`
	Scaling        string            `json:"scaling"`
	// StrideDuration is the distance between window starts; zero tiles the
	// record with non-overlapping windows.
	StrideDuration float64     `json:"stride_duration"`
	MaxWindows     int         `json:"max_windows"`
	Subset         Subset      `json:"subset"`
	Events         EventPolicy `json:"events"`
	// EventBufferDuration is the shortest remainder of a clipped event that
	// is still kept.
	EventBufferDuration float64 `json:"event_buffer_duration"`
	// PadShort zero-pads records shorter than one window into a single
	// window; otherwise such records are skipped with a warning.
	PadShort bool `json:"pad_short"`
}

// Window is one analysis window of a record.
type Window struct {
	RecordID string
	Index    int
	Start    int
	Size     int
	Data     []float32
	Shape    []int
	Events   []records.Event
}

// Loader extracts windows from records. It holds no per-record state and is
// safe for concurrent use.
type Loader struct {
	opts       Options
	size       int
	stride     int
	minEvent   float64
	transform  transforms.Transform
	scaler     transforms.Scaler
	outputDims []int
}

// NewLoader validates opts and builds the transform and scaler.
func NewLoader(opts Options) (*Loader, error) {
	if opts.Fs <= 0 {
		return nil, errors.Errorf("windows: fs must be positive, got %v", opts.Fs)
	}
	if opts.WindowDuration <= 0 {
		return nil, errors.Errorf("windows: window duration must be positive, got %v", opts.WindowDuration)
	}
	if len(opts.Picks) == 0 {
		return nil, errors.New("windows: no channels picked")
	}
	if opts.StrideDuration < 0 || opts.MaxWindows < 0 || opts.EventBufferDuration < 0 {
		return nil, errors.New("windows: stride, max windows and event buffer must not be negative")
	}
	if opts.Subset == "" {
		opts.Subset = SubsetAll
	}
	if opts.Events == "" {
		opts.Events = EventsPartial
	}
	switch opts.Subset {
	case SubsetAll, SubsetEvents:
	default:
		return nil, errors.Errorf("windows: unknown subset %q", opts.Subset)
	}
	switch opts.Events {
	case EventsPartial, EventsFull:
	default:
		return nil, errors.Errorf("windows: unknown event policy %q", opts.Events)
	}

	tr, err := transforms.New(opts.Transform, opts.Fs)
	if err != nil {
		return nil, err
	}
	sc, err := transforms.NewScaler(opts.Scaling)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		opts:      opts,
		size:      int(math.Round(opts.WindowDuration * opts.Fs)),
		minEvent:  opts.EventBufferDuration * opts.Fs,
		transform: tr,
		scaler:    sc,
	}
	l.stride = l.size
	if opts.StrideDuration > 0 {
		l.stride = int(math.Round(opts.StrideDuration * opts.Fs))
	}
	if l.size <= 0 || l.stride <= 0 {
		return nil, errors.Errorf("windows: window of %d samples with stride %d", l.size, l.stride)
	}
	l.outputDims = tr.OutputDims(len(opts.Picks), l.size)
	return l, nil
}

// Options returns the normalized options.
func (l *Loader) Options() Options { return l.opts }

// WindowSize returns the window length in samples.
func (l *Loader) WindowSize() int { return l.size }

// OutputDims returns the shape of one window's tensor.
func (l *Loader) OutputDims() []int {
	return append([]int(nil), l.outputDims...)
}

// Starts returns the window start offsets for a record of n samples before
// subset selection. Records shorter than a window yield a single start when
// padding is enabled and none otherwise.
func (l *Loader) Starts(n int) []int {
	if n < l.size {
		if l.opts.PadShort && n > 0 {
			return []int{0}
		}
		return nil
	}
	starts := make([]int, 0, (n-l.size)/l.stride+1)
	for s := 0; s+l.size <= n; s += l.stride {
		starts = append(starts, s)
	}
	return starts
}

// Load extracts the windows of rec.
func (l *Loader) Load(rec *records.Record) ([]Window, error) {
	if math.Abs(rec.Fs-l.opts.Fs) > 1e-6 {
		return nil, errors.Wrapf(ErrSampleRate, "record %s at %v Hz, configured %v Hz", rec.ID, rec.Fs, l.opts.Fs)
	}
	picked := make([][]float32, len(l.opts.Picks))
	for i, name := range l.opts.Picks {
		c := rec.Channel(name)
		if c < 0 {
			return nil, errors.Wrapf(ErrMissingChannel, "record %s has no channel %q", rec.ID, name)
		}
		picked[i] = rec.Signal[c]
	}

	starts := l.Starts(rec.Len())
	if len(starts) == 0 {
		klog.Warningf("windows: skipping record %s: %d samples, window is %d", rec.ID, rec.Len(), l.size)
		return nil, nil
	}

	type span struct {
		start  int
		events []records.Event
	}
	spans := make([]span, 0, len(starts))
	for _, s := range starts {
		evs := l.Events(rec.Events, s)
		if l.opts.Subset == SubsetEvents && len(evs) == 0 {
			continue
		}
		spans = append(spans, span{start: s, events: evs})
	}
	if l.opts.MaxWindows > 0 && len(spans) > l.opts.MaxWindows {
		kept := make([]span, l.opts.MaxWindows)
		for i := range kept {
			kept[i] = spans[i*len(spans)/l.opts.MaxWindows]
		}
		spans = kept
	}

	out := make([]Window, 0, len(spans))
	for i, sp := range spans {
		data, err := l.tensor(picked, sp.start)
		if err != nil {
			return nil, errors.Wrapf(err, "record %s window at %d", rec.ID, sp.start)
		}
		out = append(out, Window{
			RecordID: rec.ID,
			Index:    i,
			Start:    sp.start,
			Size:     l.size,
			Data:     data,
			Shape:    l.OutputDims(),
			Events:   sp.events,
		})
	}
	return out, nil
}

// Events returns the events of a window starting at start, translated to
// window-relative samples and clipped to the window.
func (l *Loader) Events(events []records.Event, start int) []records.Event {
	lo, hi := float64(start), float64(start+l.size)
	var out []records.Event
	for _, e := range events {
		s, t := math.Max(e.Start, lo), math.Min(e.End(), hi)
		if t <= s {
			continue
		}
		clipped := e.Start < lo || e.End() > hi
		if clipped && l.opts.Events == EventsFull {
			continue
		}
		if clipped && t-s < l.minEvent {
			continue
		}
		out = append(out, records.Event{Start: s - lo, Duration: t - s, Label: e.Label})
	}
	return out
}

// tensor slices, scales and transforms one window of the picked channels.
func (l *Loader) tensor(picked [][]float32, start int) ([]float32, error) {
	x := make([][]float32, len(picked))
	for c, ch := range picked {
		w := make([]float32, l.size)
		if start < len(ch) {
			copy(w, ch[start:min(len(ch), start+l.size)])
		}
		x[c] = w
	}
	if l.scaler != nil {
		x = l.scaler.Scale(x)
	}
	return l.transform.Apply(x)
}
