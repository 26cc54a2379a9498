package datasets

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const defaultProgressInterval = 3 * time.Second

// result is the outcome of preprocessing one record.
type result struct {
	id        string
	runID     string
	entry     *entry // nil when the entry lives on disk only
	windows   int
	positives int
	cached    bool
	skipped   bool
}

// workers returns the pool size for n records.
func (d *Dataset) workers(n int) int {
	w := d.opts.Jobs
	if w < 0 {
		w = runtime.NumCPU()
	}
	if w < 1 {
		w = 1
	}
	return min(w, max(n, 1))
}

// precompute prepares every record with a bounded pool of workers. Each
// worker writes only its own result slot and its own cache entry; results
// come back in the order of ids. The first error cancels the remaining work.
func (d *Dataset) precompute(ctx context.Context, ids []string) ([]*result, error) {
	n := len(ids)
	results := make([]*result, n)
	if n == 0 {
		return results, nil
	}
	runID := uuid.NewString()
	workers := d.workers(n)
	klog.Infof("[%s] preparing %s records with %d workers (run %s, key %s)",
		d.opts.Name, humanize.Comma(int64(n)), workers, runID, d.key[:16])

	var done int64
	interval := d.opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	stopProgress := make(chan struct{})
	var progress sync.WaitGroup
	progress.Add(1)
	go func() {
		defer progress.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c := atomic.LoadInt64(&done)
				klog.Infof("[%s] progress: %s/%s records (%.1f%%)", d.opts.Name,
					humanize.Comma(c), humanize.Comma(int64(n)), 100*float64(c)/float64(n))
			case <-stopProgress:
				return
			}
		}
	}()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for pos, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := d.prepare(id)
			if err != nil {
				return err
			}
			r.runID = runID
			results[pos] = r
			atomic.AddInt64(&done, 1)
			return nil
		})
	}
	err := g.Wait()
	close(stopProgress)
	progress.Wait()
	if err != nil {
		return nil, err
	}

	var windows, cached, skipped int
	for _, r := range results {
		windows += r.windows
		if r.cached {
			cached++
		}
		if r.skipped {
			skipped++
		}
	}
	klog.Infof("[%s] completed: %s windows from %s records in %s (%d from cache, %d skipped)",
		d.opts.Name, humanize.Comma(int64(windows)), humanize.Comma(int64(n-skipped)),
		time.Since(start).Round(time.Millisecond), cached, skipped)
	return results, nil
}

// prepare loads the cached entry of record id or computes it.
func (d *Dataset) prepare(id string) (*result, error) {
	if d.opts.CacheData {
		e, err := d.readEntry(id)
		if err == nil {
			d.cache.Add(id, e)
			return &result{id: id, windows: len(e.Windows), positives: e.positives(), cached: true}, nil
		}
		warnMiss(id, err)
	}

	rec, err := d.source.Load(id)
	if err != nil {
		if d.opts.SkipUnreadable {
			klog.Warningf("[%s] skipping unreadable record %s: %v", d.opts.Name, id, err)
			return &result{id: id, skipped: true}, nil
		}
		return nil, errors.Wrapf(err, "datasets: record %s", id)
	}
	e, err := d.compute(rec)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("[%s] record %s: %d windows", d.opts.Name, id, len(e.Windows))

	r := &result{id: id, windows: len(e.Windows), positives: e.positives()}
	if !d.opts.CacheData {
		r.entry = e
		return r, nil
	}
	if err := d.writeEntry(e); err != nil {
		return nil, err
	}
	d.cache.Add(id, e)
	return r, nil
}
