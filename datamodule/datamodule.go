// Package datamodule wires the data pipeline together: it opens the record
// store, splits it into partitions, generates the anchors once and builds the
// per-partition datasets and batch loaders.
package datamodule

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/datasets"
	"github.com/Noofbiz/sleepEvents/manifest"
	"github.com/Noofbiz/sleepEvents/matching"
	"github.com/Noofbiz/sleepEvents/partition"
	"github.com/Noofbiz/sleepEvents/records"
	"github.com/Noofbiz/sleepEvents/windows"
)

// Stages accepted by Setup.
const (
	StageFit  = "fit"
	StageTest = "test"
)

// DataModule holds the shared state of one configuration.
type DataModule struct {
	cfg       Config
	source    records.Source
	partition partition.Partition
	loader    *windows.Loader
	anchors   []anchors.Anchor
	matcher   *matching.Matcher
	manifest  *manifest.Store

	Train, Eval, Test *datasets.Dataset
	outputDims        []int
}

// New validates cfg, splits the records found in cfg.DataDir and generates
// the anchors.
func New(cfg Config) (*DataModule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src, err := OpenSource(cfg)
	if err != nil {
		return nil, err
	}
	ids, err := src.IDs()
	if err != nil {
		return nil, err
	}
	part, err := partition.Split(ids, cfg.NTest, cfg.NEval, cfg.Seed)
	if err != nil {
		return nil, err
	}
	klog.Infof("datamodule: %d records: %d train, %d eval, %d test",
		len(ids), len(part.Train), len(part.Eval), len(part.Test))

	loader, err := windows.NewLoader(LoaderOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	as, err := anchors.Generate(loader.WindowSize(), anchors.Seconds(cfg.DefaultEventDurations, cfg.Fs), cfg.FactorOverlap)
	if err != nil {
		return nil, err
	}
	m, err := matching.NewMatcher(cfg.MatchingOverlap, cfg.MinimumOverlap, cfg.Events)
	if err != nil {
		return nil, err
	}
	return &DataModule{
		cfg:       cfg,
		source:    src,
		partition: part,
		loader:    loader,
		anchors:   as,
		matcher:   m,
	}, nil
}

// OpenSource returns the record store of cfg, wrapped in an in-memory LRU.
func OpenSource(cfg Config) (records.Source, error) {
	var src records.Source
	switch cfg.Format {
	case "", FormatDir:
		dir, err := records.NewDirSource(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		src = dir
	case FormatEDF:
		keep := make([]string, 0, len(cfg.Events))
		for label := range cfg.Events {
			keep = append(keep, label)
		}
		sort.Strings(keep)
		src = &records.EDFSource{Dir: cfg.DataDir, Keep: keep}
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "format %q", cfg.Format)
	}
	return records.NewCachedSource(src, cfg.RecordCacheEntries, 0), nil
}

// LoaderOptions maps cfg to window loader options.
func LoaderOptions(cfg Config) windows.Options {
	return windows.Options{
		WindowDuration:      cfg.WindowDuration,
		Fs:                  cfg.Fs,
		Picks:               cfg.Picks,
		Transform:           cfg.Transform,
		Scaling:             cfg.Scaling,
		StrideDuration:      cfg.StrideDuration,
		MaxWindows:          cfg.MaxWindows,
		Subset:              windows.Subset(cfg.Subset),
		Events:              windows.EventPolicy(cfg.EventPolicy),
		EventBufferDuration: cfg.EventBufferDuration,
		PadShort:            cfg.PadShortRecords,
	}
}

// Config returns the configuration.
func (m *DataModule) Config() Config { return m.cfg }

// Partition returns the record split.
func (m *DataModule) Partition() partition.Partition { return m.partition }

// Anchors returns the anchor set shared by every dataset.
func (m *DataModule) Anchors() []anchors.Anchor { return m.anchors }

// Matcher returns the event matcher.
func (m *DataModule) Matcher() *matching.Matcher { return m.matcher }

// WindowSize returns the window length in samples.
func (m *DataModule) WindowSize() int { return m.loader.WindowSize() }

// NClasses returns the number of event classes, background excluded.
func (m *DataModule) NClasses() int { return len(m.cfg.Events) }

// Setup builds the datasets of a stage: StageFit builds Train and Eval,
// StageTest builds Test.
func (m *DataModule) Setup(ctx context.Context, stage string) error {
	switch stage {
	case StageFit:
		train, err := m.Dataset(ctx, "train")
		if err != nil {
			return err
		}
		eval, err := m.Dataset(ctx, "eval")
		if err != nil {
			return err
		}
		m.Train, m.Eval = train, eval
		m.outputDims = append([]int{m.cfg.BatchSize}, train.OutputDims()...)
	case StageTest:
		test, err := m.Dataset(ctx, "test")
		if err != nil {
			return err
		}
		m.Test = test
		m.outputDims = append([]int{m.cfg.BatchSize}, test.OutputDims()...)
	default:
		return errors.Errorf("datamodule: unknown stage %q", stage)
	}
	return nil
}

// Dataset builds the dataset of one partition subset.
func (m *DataModule) Dataset(ctx context.Context, subset string) (*datasets.Dataset, error) {
	ids, err := m.partition.Get(subset)
	if err != nil {
		return nil, err
	}
	store, err := m.openManifest()
	if err != nil {
		return nil, err
	}
	return datasets.New(ctx, ids, m.source, datasets.Options{
		Loader:         m.loader,
		Anchors:        m.anchors,
		Matcher:        m.matcher,
		CacheData:      m.cfg.CacheData,
		CacheDir:       m.cfg.CacheDir,
		Jobs:           m.cfg.NJobs,
		NRecords:       m.cfg.NRecords,
		SkipUnreadable: m.cfg.SkipUnreadable,
		Manifest:       store,
		Name:           subset,
	})
}

func (m *DataModule) openManifest() (*manifest.Store, error) {
	if m.manifest != nil || !m.cfg.CacheData {
		return m.manifest, nil
	}
	path := m.cfg.Manifest
	if path == "" {
		path = filepath.Join(m.cfg.CacheDir, "manifest.db")
	}
	store, err := manifest.Open(path)
	if err != nil {
		return nil, err
	}
	m.manifest = store
	return store, nil
}

// OutputDims returns [batch size, item dims...] of the last Setup.
func (m *DataModule) OutputDims() []int { return append([]int(nil), m.outputDims...) }

// TrainLoader iterates Train in shuffled batches.
func (m *DataModule) TrainLoader() *Loader {
	return NewLoader("train", m.Train, m.cfg.BatchSize, true, m.cfg.Seed, m.cfg.NumWorkers)
}

// EvalLoader iterates Eval in order.
func (m *DataModule) EvalLoader() *Loader {
	return NewLoader("eval", m.Eval, m.cfg.BatchSize, false, m.cfg.Seed, m.cfg.NumWorkers)
}

// TestLoader iterates Test in order.
func (m *DataModule) TestLoader() *Loader {
	return NewLoader("test", m.Test, m.cfg.BatchSize, false, m.cfg.Seed, m.cfg.NumWorkers)
}

// Close releases the manifest database.
func (m *DataModule) Close() error {
	if m.manifest == nil {
		return nil
	}
	err := m.manifest.Close()
	m.manifest = nil
	return err
}
