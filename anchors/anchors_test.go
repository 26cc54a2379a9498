package anchors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestGenerateConcreteScenario(t *testing.T) {
	got, err := Generate(3000, []int{300, 600}, 2)
	require.NoError(t, err)
	require.Len(t, got, 28)

	// duration-major, position-ascending
	for i := 0; i < 19; i++ {
		require.Equal(t, 300.0, got[i].Duration)
		require.InDelta(t, 150.0+float64(i)*150, got[i].Center, 1e-9)
	}
	for i := 0; i < 9; i++ {
		a := got[19+i]
		require.Equal(t, 600.0, a.Duration)
		require.InDelta(t, 300.0+float64(i)*300, a.Center, 1e-9)
	}
}

func TestGenerateBoundsAndCounts(t *testing.T) {
	cases := []struct {
		window    int
		durations []int
		factor    int
	}{
		{3000, []int{300, 600}, 2},
		{1000, []int{7, 13, 999, 1000}, 3},
		{128, []int{1, 2, 64}, 1},
		{500, []int{33, 250}, 4},
		{63, []int{9}, 7},
		{400, []int{3, 7, 11, 399}, 6},
	}
	for _, c := range cases {
		got, err := Generate(c.window, c.durations, c.factor)
		require.NoError(t, err)

		want := 0
		for _, d := range c.durations {
			n := 0
			if d <= c.window {
				n = c.factor*(c.window-d)/d + 1
			}
			require.Equal(t, n, Count(c.window, d, c.factor), "count for d=%d", d)
			require.Len(t, ForDuration(c.window, d, c.factor), n)
			want += n
		}
		require.Len(t, got, want)

		for _, a := range got {
			require.GreaterOrEqual(t, a.Start(), 0.0)
			require.LessOrEqual(t, a.End(), float64(c.window))
		}
	}
}

func TestForDurationStaysInWindow(t *testing.T) {
	for w := 1; w <= 400; w += 7 {
		for d := 1; d <= w; d += 3 {
			for k := 1; k <= 7; k++ {
				as := ForDuration(w, d, k)
				require.Len(t, as, Count(w, d, k))
				for _, a := range as {
					require.GreaterOrEqual(t, a.Start(), 0.0, "w=%d d=%d k=%d", w, d, k)
					require.LessOrEqual(t, a.End(), float64(w), "w=%d d=%d k=%d", w, d, k)
				}
			}
		}
	}

	last := ForDuration(63, 9, 7)
	require.Len(t, last, 43)
	require.Equal(t, 54.0, last[42].Start())
	require.Equal(t, 63.0, last[42].End())
}

func TestGenerateDurationLargerThanWindow(t *testing.T) {
	got, err := Generate(100, []int{50, 200}, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Empty(t, ForDuration(100, 200, 2))
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(3840, []int{384, 768, 1536}, 4)
	require.NoError(t, err)
	b, err := Generate(3840, []int{384, 768, 1536}, 4)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestGenerateErrors(t *testing.T) {
	_, err := Generate(100, []int{200, 300}, 2)
	require.True(t, errors.Is(err, ErrNoAnchors))

	_, err = Generate(100, []int{10}, 0)
	require.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Generate(100, []int{0}, 1)
	require.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Generate(0, []int{10}, 1)
	require.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Generate(100, nil, 1)
	require.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSeconds(t *testing.T) {
	require.Equal(t, []int{300, 600, 1280}, Seconds([]float64{3, 6, 12.8}, 100))
}
