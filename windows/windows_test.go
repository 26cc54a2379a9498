package windows

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/sleepEvents/records"
	"github.com/Noofbiz/sleepEvents/transforms"
)

// ramp builds a record whose samples equal their index (plus 1000 per channel).
func ramp(id string, n int, events ...records.Event) *records.Record {
	rec := &records.Record{ID: id, Fs: 10, Channels: []string{"C3", "C4", "EMG"}}
	for c := range rec.Channels {
		s := make([]float32, n)
		for i := range s {
			s[i] = float32(c*1000 + i)
		}
		rec.Signal = append(rec.Signal, s)
	}
	rec.Events = events
	return rec
}

func newLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	if opts.Fs == 0 {
		opts.Fs = 10
	}
	if opts.WindowDuration == 0 {
		opts.WindowDuration = 10
	}
	if opts.Picks == nil {
		opts.Picks = []string{"C4", "C3"}
	}
	l, err := NewLoader(opts)
	require.NoError(t, err)
	return l
}

func TestLoadTilesAndPicks(t *testing.T) {
	l := newLoader(t, Options{})
	rec := ramp("r1", 350)

	ws, err := l.Load(rec)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	for i, w := range ws {
		require.Equal(t, i*100, w.Start)
		require.Equal(t, i, w.Index)
		require.Equal(t, []int{2, 100}, w.Shape)
		require.Len(t, w.Data, 200)
		// C4 first, then C3
		require.Equal(t, float32(1000+w.Start), w.Data[0])
		require.Equal(t, float32(w.Start), w.Data[100])
	}
	require.Equal(t, []int{2, 100}, l.OutputDims())
}

func TestLoadOverlappingStride(t *testing.T) {
	l := newLoader(t, Options{StrideDuration: 5})
	require.Equal(t, []int{0, 50, 100, 150, 200}, l.Starts(300))
}

func TestEventsClippingAndTranslation(t *testing.T) {
	events := []records.Event{
		{Start: 90, Duration: 30, Label: "apnea"},   // crosses 100
		{Start: 120, Duration: 20, Label: "arousal"}, // inside second window
		{Start: 198, Duration: 10, Label: "arousal"}, // 2 samples in second, 8 in third
	}
	l := newLoader(t, Options{})
	rec := ramp("r1", 300, events...)
	ws, err := l.Load(rec)
	require.NoError(t, err)
	require.Len(t, ws, 3)

	require.Equal(t, []records.Event{{Start: 90, Duration: 10, Label: "apnea"}}, ws[0].Events)
	require.Equal(t, []records.Event{
		{Start: 0, Duration: 20, Label: "apnea"},
		{Start: 20, Duration: 20, Label: "arousal"},
		{Start: 98, Duration: 2, Label: "arousal"},
	}, ws[1].Events)
	require.Equal(t, []records.Event{{Start: 0, Duration: 8, Label: "arousal"}}, ws[2].Events)

	for _, w := range ws {
		for _, e := range w.Events {
			require.GreaterOrEqual(t, e.Start, 0.0)
			require.LessOrEqual(t, e.End(), float64(w.Size))
		}
	}
}

func TestEventsBufferAndFullPolicy(t *testing.T) {
	events := []records.Event{
		{Start: 90, Duration: 30, Label: "apnea"},
		{Start: 120, Duration: 20, Label: "arousal"},
	}
	// clipped remainders shorter than 1.5 s (15 samples) are dropped
	l := newLoader(t, Options{EventBufferDuration: 1.5})
	require.Empty(t, l.Events(events, 0))
	require.Equal(t, []records.Event{
		{Start: 0, Duration: 20, Label: "apnea"},
		{Start: 20, Duration: 20, Label: "arousal"},
	}, l.Events(events, 100))

	full := newLoader(t, Options{Events: EventsFull})
	require.Equal(t, []records.Event{{Start: 20, Duration: 20, Label: "arousal"}}, full.Events(events, 100))
}

func TestSubsetAndMaxWindows(t *testing.T) {
	rec := ramp("r1", 1000, records.Event{Start: 310, Duration: 20, Label: "apnea"},
		records.Event{Start: 720, Duration: 20, Label: "apnea"})

	l := newLoader(t, Options{Subset: SubsetEvents})
	ws, err := l.Load(rec)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	require.Equal(t, 300, ws[0].Start)
	require.Equal(t, 700, ws[1].Start)

	capped := newLoader(t, Options{MaxWindows: 4})
	ws, err = capped.Load(rec)
	require.NoError(t, err)
	require.Len(t, ws, 4)
	starts := []int{ws[0].Start, ws[1].Start, ws[2].Start, ws[3].Start}
	require.Equal(t, []int{0, 200, 500, 700}, starts)
}

func TestShortRecordPolicy(t *testing.T) {
	rec := ramp("short", 40, records.Event{Start: 10, Duration: 50, Label: "apnea"})

	ws, err := newLoader(t, Options{}).Load(rec)
	require.NoError(t, err)
	require.Empty(t, ws)

	ws, err = newLoader(t, Options{PadShort: true}).Load(rec)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	require.Len(t, ws[0].Data, 200)
	require.Equal(t, float32(1039), ws[0].Data[39])
	require.Equal(t, float32(0), ws[0].Data[40])
	require.Equal(t, []records.Event{{Start: 10, Duration: 50, Label: "apnea"}}, ws[0].Events)
}

func TestLoadErrors(t *testing.T) {
	l := newLoader(t, Options{Picks: []string{"EOG"}})
	_, err := l.Load(ramp("r", 200))
	require.True(t, errors.Is(err, ErrMissingChannel))

	l = newLoader(t, Options{})
	rec := ramp("r", 200)
	rec.Fs = 256
	_, err = l.Load(rec)
	require.True(t, errors.Is(err, ErrSampleRate))

	_, err = NewLoader(Options{Fs: 10, WindowDuration: 10})
	require.Error(t, err)
	_, err = NewLoader(Options{Fs: 10, WindowDuration: 10, Picks: []string{"C3"}, Subset: "random"})
	require.Error(t, err)
}

func TestTransformAndScalingAfterWindowing(t *testing.T) {
	l := newLoader(t, Options{
		Picks:     []string{"C3"},
		Scaling:   "standard",
		Transform: transforms.Config{Name: "stft", SegmentSize: 20, StepSize: 10, NFFT: 32},
	})
	require.Equal(t, []int{1, 17, 11}, l.OutputDims())

	ws, err := l.Load(ramp("r", 200, records.Event{Start: 150, Duration: 10, Label: "apnea"}))
	require.NoError(t, err)
	require.Len(t, ws, 2)
	require.Len(t, ws[1].Data, 17*11)
	// events stay in raw sample space regardless of the transform
	require.Equal(t, []records.Event{{Start: 50, Duration: 10, Label: "apnea"}}, ws[1].Events)
}
