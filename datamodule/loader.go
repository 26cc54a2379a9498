package datamodule

import (
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/sleepEvents/datasets"
)

// Loader iterates a dataset in collated batches. The last batch of an epoch
// may be short. A Loader is not safe for concurrent use.
type Loader struct {
	name      string
	ds        *datasets.Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	workers   int

	order []int
	pos   int
}

var _ train.Dataset = (*Loader)(nil)

// NewLoader returns a loader over ds. With shuffle set the item order is
// permuted at the start of every epoch by a generator seeded with seed.
// workers items are fetched in parallel; 0 fetches them sequentially.
func NewLoader(name string, ds *datasets.Dataset, batchSize int, shuffle bool, seed int64, workers int) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	l := &Loader{
		name:      name,
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		workers:   workers,
		order:     make([]int, ds.Len()),
	}
	for i := range l.order {
		l.order[i] = i
	}
	l.Reset()
	return l
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// Len returns the number of batches per epoch.
func (l *Loader) Len() int { return (len(l.order) + l.batchSize - 1) / l.batchSize }

// Reset implements train.Dataset. It starts a new epoch.
func (l *Loader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) { l.order[i], l.order[j] = l.order[j], l.order[i] })
	}
}

// Next returns the next batch, or io.EOF at the end of the epoch.
func (l *Loader) Next() (*datasets.Batch, error) {
	if l.pos >= len(l.order) {
		return nil, io.EOF
	}
	idx := l.order[l.pos:min(l.pos+l.batchSize, len(l.order))]
	items := make([]datasets.Item, len(idx))

	var g errgroup.Group
	g.SetLimit(max(l.workers, 1))
	for k, i := range idx {
		g.Go(func() error {
			it, err := l.ds.Item(i)
			if err != nil {
				return err
			}
			items[k] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "datamodule: %s batch at %d", l.name, l.pos)
	}
	l.pos += len(idx)
	return datasets.Collate(items)
}

// Yield implements train.Dataset. spec is the *datasets.Batch the tensors
// were built from.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, err := l.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, labels, err = b.ToGomlxTensors(l.ds.ClassOf)
	if err != nil {
		return nil, nil, nil, err
	}
	return b, inputs, labels, nil
}
