package datamodule

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Noofbiz/sleepEvents/transforms"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("datamodule: invalid configuration")

// Record storage formats.
const (
	FormatDir = "dir"
	FormatEDF = "edf"
)

// Config holds every setting of the data pipeline. Durations are seconds.
type Config struct {
	// Partition
	DataDir string `toml:"data_dir"`
	Format  string `toml:"format"`
	NTest   int    `toml:"n_test"`
	NEval   int    `toml:"n_eval"`
	Seed    int64  `toml:"seed"`

	// Dataset
	Events                map[string]int    `toml:"events"`
	WindowDuration        float64           `toml:"window_duration"`
	StrideDuration        float64           `toml:"stride_duration"`
	MaxWindows            int               `toml:"max_windows"`
	Subset                string            `toml:"subset"`
	EventPolicy           string            `toml:"event_policy"`
	CacheData             bool              `toml:"cache_data"`
	CacheDir              string            `toml:"cache_dir"`
	Manifest              string            `toml:"manifest"`
	DefaultEventDurations []float64         `toml:"default_event_window_duration"`
	EventBufferDuration   float64           `toml:"event_buffer_duration"`
	FactorOverlap         int               `toml:"factor_overlap"`
	Fs                    float64           `toml:"fs"`
	MatchingOverlap       float64           `toml:"matching_overlap"`
	MinimumOverlap        float64           `toml:"minimum_overlap"`
	NJobs                 int               `toml:"n_jobs"`
	NRecords              int               `toml:"n_records"`
	Picks                 []string          `toml:"picks"`
	Transform             transforms.Config `toml:"transform"`
	Scaling               string            `toml:"scaling"`
	SkipUnreadable        bool              `toml:"skip_unreadable"`
	PadShortRecords       bool              `toml:"pad_short_records"`
	RecordCacheEntries    int               `toml:"record_cache_entries"`

	// Loader
	BatchSize  int `toml:"batch_size"`
	NumWorkers int `toml:"num_workers"`
}

// DefaultConfig returns the settings used for MrOS apnea and arousal
// detection: 5 minute windows of four channels at 128 Hz.
func DefaultConfig() Config {
	return Config{
		DataDir:               "data/mros/processed",
		Format:                FormatDir,
		NTest:                 1000,
		NEval:                 200,
		Seed:                  1337,
		Events:                map[string]int{"ar": 0, "sdb": 1},
		WindowDuration:        300,
		DefaultEventDurations: []float64{3, 15, 30},
		EventBufferDuration:   3,
		FactorOverlap:         2,
		Fs:                    128,
		MatchingOverlap:       0.5,
		MinimumOverlap:        0.1,
		NJobs:                 -1,
		Picks:                 []string{"c3", "c4", "eogl", "eogr", "chin"},
		Scaling:               "robust",
		BatchSize:             32,
		NumWorkers:            0,
	}
}

// LoadConfig decodes the TOML file at path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, errors.Wrapf(err, "datamodule: stat config %s", path)
	}
	// tables decode into an existing map key by key; start from nil so the
	// file replaces the default events instead of extending them
	cfg.Events = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "datamodule: decode config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "unknown keys %v", undecoded)
	}
	if cfg.Events == nil {
		cfg.Events = DefaultConfig().Events
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.Wrap(ErrInvalidConfig, "data_dir is empty")
	case c.Format != "" && c.Format != FormatDir && c.Format != FormatEDF:
		return errors.Wrapf(ErrInvalidConfig, "format %q", c.Format)
	case c.NTest < 0 || c.NEval < 0:
		return errors.Wrap(ErrInvalidConfig, "n_test and n_eval must not be negative")
	case len(c.Events) == 0:
		return errors.Wrap(ErrInvalidConfig, "no events configured")
	case len(c.Picks) == 0:
		return errors.Wrap(ErrInvalidConfig, "no channels picked")
	case c.Fs <= 0:
		return errors.Wrapf(ErrInvalidConfig, "fs %v", c.Fs)
	case c.WindowDuration <= 0:
		return errors.Wrapf(ErrInvalidConfig, "window_duration %v", c.WindowDuration)
	case len(c.DefaultEventDurations) == 0:
		return errors.Wrap(ErrInvalidConfig, "no default event durations")
	case c.FactorOverlap < 1:
		return errors.Wrapf(ErrInvalidConfig, "factor_overlap %d", c.FactorOverlap)
	case c.MinimumOverlap < 0 || c.MatchingOverlap > 1 || c.MinimumOverlap > c.MatchingOverlap:
		return errors.Wrapf(ErrInvalidConfig, "overlaps minimum=%v matching=%v", c.MinimumOverlap, c.MatchingOverlap)
	case c.EventBufferDuration < 0 || c.StrideDuration < 0 || c.MaxWindows < 0 || c.NRecords < 0:
		return errors.Wrap(ErrInvalidConfig, "negative event buffer, stride, max windows or n_records")
	case c.BatchSize < 1:
		return errors.Wrapf(ErrInvalidConfig, "batch_size %d", c.BatchSize)
	case c.NumWorkers < 0:
		return errors.Wrapf(ErrInvalidConfig, "num_workers %d", c.NumWorkers)
	case c.CacheData && c.CacheDir == "":
		return errors.Wrap(ErrInvalidConfig, "cache_data without cache_dir")
	}
	for _, d := range c.DefaultEventDurations {
		if d <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "default event duration %v", d)
		}
	}
	return nil
}
