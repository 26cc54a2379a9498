// Package partition splits record ids into train, eval and test sets.
package partition

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// ErrNotEnoughRecords is returned when more test and eval records are
// requested than exist.
var ErrNotEnoughRecords = errors.New("partition: not enough records")

// Partition holds disjoint record id sets.
type Partition struct {
	Train []string
	Eval  []string
	Test  []string
}

// Split deterministically partitions ids. The ids are sorted and
// de-duplicated first, so the result only depends on the id set and the
// seed, never on listing order. The first nTest shuffled ids form the test
// set, the next nEval the eval set and the rest the train set.
func Split(ids []string, nTest, nEval int, seed int64) (Partition, error) {
	if nTest < 0 || nEval < 0 {
		return Partition{}, errors.Errorf("partition: negative sizes test=%d eval=%d", nTest, nEval)
	}
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)
	if nTest+nEval > len(uniq) {
		return Partition{}, errors.Wrapf(ErrNotEnoughRecords, "requested %d test + %d eval of %d records",
			nTest, nEval, len(uniq))
	}

	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(uniq), func(i, j int) { uniq[i], uniq[j] = uniq[j], uniq[i] })

	return Partition{
		Test:  uniq[:nTest:nTest],
		Eval:  uniq[nTest : nTest+nEval : nTest+nEval],
		Train: uniq[nTest+nEval:],
	}, nil
}

// Get returns the ids of a named subset: "train", "eval" or "test".
func (p Partition) Get(subset string) ([]string, error) {
	switch subset {
	case "train":
		return p.Train, nil
	case "eval", "validation":
		return p.Eval, nil
	case "test":
		return p.Test, nil
	default:
		return nil, errors.Errorf("partition: unknown subset %q", subset)
	}
}
