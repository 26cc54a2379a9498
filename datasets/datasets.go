// Package datasets turns the records of a partition into an indexable
// collection of training items.
//
// Every record is windowed and every window matched against the shared
// anchor set once, when the dataset is built. Records are processed by a
// bounded worker pool; results are merged in record order, so item indices
// do not depend on worker scheduling. With caching enabled each record's
// windows and matches are persisted under a key derived from the complete
// configuration and read back on later builds and on item access.
//
// Layout of an Item:
//   - Input: the window tensor, flat, with Shape (e.g. [channels, samples] or
//     [channels, freqs, frames] when a spectrogram transform is configured).
//   - Classes: one class per anchor (matching.Background, matching.Ignore or
//     a positive class).
//   - Targets: two regression values per anchor, zero for non-positive ones.
//   - Events: the window's events in window-relative samples.
package datasets

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/manifest"
	"github.com/Noofbiz/sleepEvents/matching"
	"github.com/Noofbiz/sleepEvents/records"
	"github.com/Noofbiz/sleepEvents/windows"
)

// ErrIndex is returned for item indices outside [0, Len()).
var ErrIndex = errors.New("datasets: index out of range")

// Default sizes of the in-memory entry cache used when CacheData is set.
const (
	DefaultCacheEntries = 64
	DefaultCacheTTL     = 10 * time.Minute
)

// Options configures a Dataset.
type Options struct {
	Loader  *windows.Loader
	Anchors []anchors.Anchor
	Matcher *matching.Matcher

	// CacheData persists each record's entry under CacheDir.
	CacheData bool
	CacheDir  string
	// CacheEntries and CacheTTL bound the decoded entries kept in memory
	// when CacheData is set.
	CacheEntries int
	CacheTTL     time.Duration

	// Jobs is the number of records preprocessed in parallel. Values below
	// zero use every CPU; 0 and 1 run sequentially.
	Jobs int
	// NRecords caps the number of records used; 0 uses all of them.
	NRecords int
	// SkipUnreadable logs and drops records whose files cannot be read
	// instead of failing the build.
	SkipUnreadable bool
	// Manifest, when set, receives one entry per cached record.
	Manifest *manifest.Store
	// Name labels log lines, e.g. "train".
	Name string
	// ProgressInterval is the period of progress logs; zero means 3s.
	ProgressInterval time.Duration
}

func (o Options) validate() error {
	if o.Loader == nil || o.Matcher == nil {
		return errors.New("datasets: loader and matcher are required")
	}
	if len(o.Anchors) == 0 {
		return errors.Wrap(anchors.ErrNoAnchors, "datasets")
	}
	if o.CacheData && o.CacheDir == "" {
		return errors.New("datasets: caching enabled without a cache directory")
	}
	return nil
}

// Item is one window of a record with its anchor targets. Slices may be
// shared with the dataset and must not be modified.
type Item struct {
	RecordID string
	Window   int
	Start    int
	Input    []float32
	Shape    []int
	Classes  []int32
	Targets  []float32
	Events   []records.Event
}

// Dataset is an ordered, indexable collection of Items. After New returns it
// is safe for concurrent use.
type Dataset struct {
	opts   Options
	source records.Source
	key    string

	ids     []string
	offsets []int // offsets[r] is the index of record r's first item

	entries []*entry // all entries, when not caching to disk
	cache   *expirable.LRU[string, *entry]
}

// New builds the dataset over the records ids of source. The order of ids is
// preserved.
func New(ctx context.Context, ids []string, source records.Source, opts Options) (*Dataset, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	key, err := Key(opts.Loader, opts.Anchors, opts.Matcher)
	if err != nil {
		return nil, err
	}
	if opts.NRecords > 0 && opts.NRecords < len(ids) {
		ids = ids[:opts.NRecords]
	}
	if opts.Name == "" {
		opts.Name = "dataset"
	}
	d := &Dataset{opts: opts, source: source, key: key}
	if opts.CacheData {
		n, ttl := opts.CacheEntries, opts.CacheTTL
		if n <= 0 {
			n = DefaultCacheEntries
		}
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		d.cache = expirable.NewLRU[string, *entry](n, nil, ttl)
	}

	results, err := d.precompute(ctx, ids)
	if err != nil {
		return nil, err
	}
	d.offsets = []int{0}
	for _, r := range results {
		if r.skipped {
			continue
		}
		d.ids = append(d.ids, r.id)
		d.offsets = append(d.offsets, d.offsets[len(d.offsets)-1]+r.windows)
		if !opts.CacheData {
			d.entries = append(d.entries, r.entry)
		}
	}
	if err := d.recordManifest(ctx, results); err != nil {
		return nil, err
	}
	return d, nil
}

// Len returns the total number of windows.
func (d *Dataset) Len() int { return d.offsets[len(d.offsets)-1] }

// Key returns the configuration hash the cache entries are stored under.
func (d *Dataset) Key() string { return d.key }

// IDs returns the records in item order, skipped records excluded.
func (d *Dataset) IDs() []string { return append([]string(nil), d.ids...) }

// OutputDims returns the shape of one item's Input.
func (d *Dataset) OutputDims() []int { return d.opts.Loader.OutputDims() }

// NAnchors returns the number of anchors, i.e. rows of Classes.
func (d *Dataset) NAnchors() int { return len(d.opts.Anchors) }

// Anchors returns the shared anchor set.
func (d *Dataset) Anchors() []anchors.Anchor { return d.opts.Anchors }

// Labels returns the event labels ordered by class id.
func (d *Dataset) Labels() []string { return d.opts.Matcher.Labels() }

// ClassOf returns the class of an event label.
func (d *Dataset) ClassOf(label string) (int, error) { return d.opts.Matcher.Class(label) }

// Item returns item i.
func (d *Dataset) Item(i int) (Item, error) {
	if i < 0 || i >= d.Len() {
		return Item{}, errors.Wrapf(ErrIndex, "%d of %d", i, d.Len())
	}
	r := sort.Search(len(d.ids), func(r int) bool { return d.offsets[r+1] > i })
	e, err := d.entry(r)
	if err != nil {
		return Item{}, err
	}
	w := e.Windows[i-d.offsets[r]]
	return Item{
		RecordID: e.RecordID,
		Window:   w.Index,
		Start:    w.Start,
		Input:    w.Data,
		Shape:    e.Shape,
		Classes:  w.Classes,
		Targets:  w.Targets,
		Events:   w.Events,
	}, nil
}

// Summary counts anchor outcomes over every item.
func (d *Dataset) Summary() (matching.Summary, error) {
	var s matching.Summary
	for i := 0; i < d.Len(); i++ {
		it, err := d.Item(i)
		if err != nil {
			return s, err
		}
		for _, c := range it.Classes {
			switch {
			case c > matching.Background:
				s.Positive++
			case c == matching.Ignore:
				s.Ignored++
			default:
				s.Background++
			}
		}
	}
	return s, nil
}

// entry returns the entry of record r, reading it from disk when caching.
func (d *Dataset) entry(r int) (*entry, error) {
	if !d.opts.CacheData {
		return d.entries[r], nil
	}
	id := d.ids[r]
	if e, ok := d.cache.Get(id); ok {
		return e, nil
	}
	want := d.offsets[r+1] - d.offsets[r]
	e, err := d.readEntry(id)
	if err == nil && len(e.Windows) != want {
		err = errors.Errorf("%d windows, expected %d", len(e.Windows), want)
	}
	if err != nil {
		warnMiss(id, err)
		rec, lerr := d.source.Load(id)
		if lerr != nil {
			return nil, errors.Wrapf(lerr, "datasets: reload record %s", id)
		}
		if e, err = d.compute(rec); err != nil {
			return nil, err
		}
		if len(e.Windows) != want {
			return nil, errors.Errorf("datasets: record %s now has %d windows, indexed %d", id, len(e.Windows), want)
		}
		if err := d.writeEntry(e); err != nil {
			return nil, err
		}
	}
	d.cache.Add(id, e)
	return e, nil
}

// compute windows rec and matches every window against the anchors.
func (d *Dataset) compute(rec *records.Record) (*entry, error) {
	ws, err := d.opts.Loader.Load(rec)
	if err != nil {
		return nil, err
	}
	nAnchors := len(d.opts.Anchors)
	e := &entry{
		Version:   cacheVersion,
		Key:       d.key,
		RecordID:  rec.ID,
		Shape:     d.opts.Loader.OutputDims(),
		NAnchors:  nAnchors,
		CreatedAt: time.Now().Unix(),
		Windows:   make([]entryWindow, 0, len(ws)),
	}
	for _, w := range ws {
		ms, err := d.opts.Matcher.Match(d.opts.Anchors, w.Events)
		if err != nil {
			return nil, errors.Wrapf(err, "datasets: record %s window %d", rec.ID, w.Index)
		}
		classes := make([]int32, nAnchors)
		targets := make([]float32, 2*nAnchors)
		for a, m := range ms {
			classes[a] = int32(m.Class)
			if m.Positive() {
				targets[2*a], targets[2*a+1] = m.Target[0], m.Target[1]
			}
		}
		e.Windows = append(e.Windows, entryWindow{
			Index:   w.Index,
			Start:   w.Start,
			Data:    w.Data,
			Events:  w.Events,
			Classes: classes,
			Targets: targets,
		})
	}
	return e, nil
}

func (d *Dataset) recordManifest(ctx context.Context, results []*result) error {
	if d.opts.Manifest == nil || !d.opts.CacheData {
		return nil
	}
	var entries []manifest.Entry
	for _, r := range results {
		if r.skipped {
			continue
		}
		entries = append(entries, manifest.Entry{
			RunID:     r.runID,
			Key:       d.key,
			RecordID:  r.id,
			Windows:   r.windows,
			Positives: r.positives,
			Cached:    r.cached,
			Path:      d.entryPath(r.id),
		})
	}
	return d.opts.Manifest.RecordEntries(ctx, entries)
}
