package datasets

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/matching"
	"github.com/Noofbiz/sleepEvents/records"
	"github.com/Noofbiz/sleepEvents/windows"
)

// cacheVersion is incremented when the on-disk entry format changes.
const cacheVersion = 1

// entry is the on-disk form of one record's windows and matches.
type entry struct {
	Version   int
	Key       string
	RecordID  string
	Shape     []int
	NAnchors  int
	CreatedAt int64
	Windows   []entryWindow
}

type entryWindow struct {
	Index   int
	Start   int
	Data    []float32
	Events  []records.Event
	Classes []int32
	Targets []float32
}

func (e *entry) positives() int {
	n := 0
	for _, w := range e.Windows {
		for _, c := range w.Classes {
			if c > matching.Background {
				n++
			}
		}
	}
	return n
}

// Key hashes everything that changes the produced items: the loader
// options (window duration, fs, picks, transform, scaling and window
// policies), the anchors and the matcher configuration.
func Key(loader *windows.Loader, anchorSet []anchors.Anchor, matcher *matching.Matcher) (string, error) {
	payload := struct {
		Version         int              `json:"version"`
		Loader          windows.Options  `json:"loader"`
		Anchors         []anchors.Anchor `json:"anchors"`
		MatchingOverlap float64          `json:"matching_overlap"`
		MinimumOverlap  float64          `json:"minimum_overlap"`
		Classes         map[string]int   `json:"classes"`
	}{
		Version:         cacheVersion,
		Loader:          loader.Options(),
		Anchors:         anchorSet,
		MatchingOverlap: matcher.MatchingOverlap,
		MinimumOverlap:  matcher.MinimumOverlap,
		Classes:         matcher.Classes,
	}
	// map keys are marshalled sorted, so equal configurations hash equally
	b, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "datasets: marshal cache key")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// entryPath escapes id into a single file name; distinct ids never share a
// file.
func (d *Dataset) entryPath(id string) string {
	return filepath.Join(d.opts.CacheDir, d.key[:16], url.PathEscape(id)+".gob")
}

// readEntry reads and validates the cached entry of record id. Any error
// means the entry must be recomputed.
func (d *Dataset) readEntry(id string) (*entry, error) {
	path := d.entryPath(id)
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var e entry
	if err := gob.NewDecoder(fh).Decode(&e); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if e.Version != cacheVersion {
		return nil, errors.Errorf("cache version mismatch: cache=%d expected=%d", e.Version, cacheVersion)
	}
	if e.Key != d.key || e.RecordID != id {
		return nil, errors.Errorf("cache entry is for %s/%s", e.Key, e.RecordID)
	}
	want := d.opts.Loader.OutputDims()
	if !slices.Equal(e.Shape, want) {
		return nil, errors.Errorf("cache shape mismatch: cache=%v expected=%v", e.Shape, want)
	}
	if e.NAnchors != len(d.opts.Anchors) {
		return nil, errors.Errorf("cache anchors mismatch: cache=%d expected=%d", e.NAnchors, len(d.opts.Anchors))
	}
	size := 1
	for _, s := range want {
		size *= s
	}
	for i, w := range e.Windows {
		if len(w.Data) != size || len(w.Classes) != e.NAnchors || len(w.Targets) != 2*e.NAnchors {
			return nil, errors.Errorf("cache window %d has %d values, %d classes, %d targets",
				i, len(w.Data), len(w.Classes), len(w.Targets))
		}
	}
	return &e, nil
}

// writeEntry persists e. The entry is encoded to a temporary file in the
// target directory and renamed into place, so readers never observe a
// partial entry.
func (d *Dataset) writeEntry(e *entry) error {
	path := d.entryPath(e.RecordID)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "datasets: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "datasets: create temp cache file")
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if err := gob.NewEncoder(tmp).Encode(e); err != nil {
		return errors.Wrapf(err, "datasets: encode cache entry %s", e.RecordID)
	}
	if err := tmp.Sync(); err != nil {
		klog.Warningf("datasets: sync temp cache file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "datasets: close temp cache file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "datasets: rename temp cache file")
	}
	return nil
}

func warnMiss(id string, err error) {
	if os.IsNotExist(errors.Cause(err)) {
		klog.V(1).Infof("datasets: no cache entry for %s", id)
		return
	}
	klog.Warningf("datasets: discarding cache entry for %s: %v", id, err)
}
