package datasets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/sleepEvents/records"
)

func TestCollate(t *testing.T) {
	d, err := New(context.Background(), ids, testSource(t), testOptions(t))
	require.NoError(t, err)
	items := allItems(t, d)

	b, err := Collate(items)
	require.NoError(t, err)
	require.Equal(t, 6, b.Size)
	require.Equal(t, []int{6, 1, 100}, b.InputDims())
	require.Len(t, b.Inputs, 6*100)
	require.Len(t, b.Classes, 6*13)
	require.Len(t, b.Targets, 6*13*2)
	require.Equal(t, []string{"r1", "r1", "r1", "r2", "r2", "r3"}, b.RecordIDs)

	// item 4 starts at sample 100 of r2
	require.Equal(t, float32(100), b.Inputs[4*100])
	require.Equal(t, items[3].Classes, b.Classes[3*13:4*13])

	require.Equal(t, []int32{0, 1, 0, 1, 0, 0}, b.EventCounts)
	require.Equal(t, []int32{1, 3}, b.EventItem)
	require.Equal(t, []records.Event{
		{Start: 20, Duration: 30, Label: "apnea"},
		{Start: 10, Duration: 15, Label: "arousal"},
	}, b.Events)

	groups := b.Regroup()
	require.Len(t, groups, 6)
	for i, it := range items {
		require.Equal(t, it.Events, groups[i], "item %d", i)
	}
}

func TestCollateRejectsMixedShapes(t *testing.T) {
	a := Item{Input: make([]float32, 4), Shape: []int{1, 4}, Classes: make([]int32, 2), Targets: make([]float32, 4)}
	b := Item{Input: make([]float32, 6), Shape: []int{1, 6}, Classes: make([]int32, 2), Targets: make([]float32, 4)}
	_, err := Collate([]Item{a, b})
	require.Error(t, err)

	c := Item{Input: make([]float32, 4), Shape: []int{1, 4}, Classes: make([]int32, 3), Targets: make([]float32, 6)}
	_, err = Collate([]Item{a, c})
	require.Error(t, err)

	_, err = Collate(nil)
	require.Error(t, err)
}

func TestToGomlxTensors(t *testing.T) {
	d, err := New(context.Background(), ids, testSource(t), testOptions(t))
	require.NoError(t, err)
	items := allItems(t, d)

	b, err := Collate(items[:4])
	require.NoError(t, err)
	inputs, labels, err := b.ToGomlxTensors(d.opts.Matcher.Class)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Len(t, labels, 4)
	require.Equal(t, []int{4, 1, 100}, inputs[0].Shape().Dimensions)
	require.Equal(t, []int{4, 13}, labels[0].Shape().Dimensions)
	require.Equal(t, []int{4, 13, 2}, labels[1].Shape().Dimensions)
	require.Equal(t, []int{2, 3}, labels[2].Shape().Dimensions)
	require.Equal(t, []int{2}, labels[3].Shape().Dimensions)

	// apnea is class 1, arousal class 2
	events := labels[2].Value().([][]float32)
	require.Equal(t, []float32{20, 30, 1}, events[0])
	require.Equal(t, []float32{10, 15, 2}, events[1])
}
