package datasets

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/Noofbiz/sleepEvents/records"
)

// Batch is a collated list of items. Fixed-size tensors are stacked along a
// leading batch dimension; the variable number of events per item is
// flattened, with EventItem giving the item index of every event and
// EventCounts the number of events per item.
type Batch struct {
	Size     int
	Shape    []int // of one item
	NAnchors int

	RecordIDs []string
	Starts    []int

	Inputs  []float32 // [Size, Shape...]
	Classes []int32   // [Size, NAnchors]
	Targets []float32 // [Size, NAnchors, 2]

	Events      []records.Event
	EventItem   []int32
	EventCounts []int32
}

// Collate stacks items into a Batch. All items must share one input shape
// and anchor count.
func Collate(items []Item) (*Batch, error) {
	if len(items) == 0 {
		return nil, errors.New("datasets: empty batch")
	}
	shape := items[0].Shape
	nAnchors := len(items[0].Classes)
	size := len(items[0].Input)

	b := &Batch{
		Size:        len(items),
		Shape:       append([]int(nil), shape...),
		NAnchors:    nAnchors,
		RecordIDs:   make([]string, 0, len(items)),
		Starts:      make([]int, 0, len(items)),
		Inputs:      make([]float32, 0, len(items)*size),
		Classes:     make([]int32, 0, len(items)*nAnchors),
		Targets:     make([]float32, 0, len(items)*nAnchors*2),
		EventCounts: make([]int32, 0, len(items)),
	}
	for i, it := range items {
		if !slices.Equal(it.Shape, shape) || len(it.Input) != size {
			return nil, errors.Errorf("datasets: item %d has shape %v (%d values), batch shape %v (%d values)",
				i, it.Shape, len(it.Input), shape, size)
		}
		if len(it.Classes) != nAnchors || len(it.Targets) != 2*nAnchors {
			return nil, errors.Errorf("datasets: item %d has %d anchors, batch has %d", i, len(it.Classes), nAnchors)
		}
		b.RecordIDs = append(b.RecordIDs, it.RecordID)
		b.Starts = append(b.Starts, it.Start)
		b.Inputs = append(b.Inputs, it.Input...)
		b.Classes = append(b.Classes, it.Classes...)
		b.Targets = append(b.Targets, it.Targets...)
		b.Events = append(b.Events, it.Events...)
		for range it.Events {
			b.EventItem = append(b.EventItem, int32(i))
		}
		b.EventCounts = append(b.EventCounts, int32(len(it.Events)))
	}
	return b, nil
}

// InputDims returns the dimensions of Inputs.
func (b *Batch) InputDims() []int {
	return append([]int{b.Size}, b.Shape...)
}

// Regroup rebuilds the per-item event lists from the flat event columns.
func (b *Batch) Regroup() [][]records.Event {
	out := make([][]records.Event, b.Size)
	for k, e := range b.Events {
		i := b.EventItem[k]
		out[i] = append(out[i], e)
	}
	return out
}

// ToGomlxTensors converts the batch to gomlx tensors. Inputs holds the window
// tensor; labels hold the classes [B, A], the regression targets [B, A, 2],
// the flat events as [E, 3] (start, duration, class) and the event item
// column [E]. classOf maps an event label to its class; unknown labels are
// an error.
func (b *Batch) ToGomlxTensors(classOf func(string) (int, error)) (inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	events := make([]float32, 0, 3*len(b.Events))
	for _, e := range b.Events {
		c, err := classOf(e.Label)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, float32(e.Start), float32(e.Duration), float32(c))
	}
	eventItem := b.EventItem
	if eventItem == nil {
		eventItem = []int32{}
	}

	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.Inputs, b.InputDims()...),
	}
	labels = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.Classes, b.Size, b.NAnchors),
		tensors.FromFlatDataAndDimensions(b.Targets, b.Size, b.NAnchors, 2),
		tensors.FromFlatDataAndDimensions(events, len(b.Events), 3),
		tensors.FromAnyValue(eventItem),
	}
	return inputs, labels, nil
}
