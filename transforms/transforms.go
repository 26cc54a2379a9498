// Package transforms turns a raw multi-channel window into the tensor fed to
// the model. A Transform declares its output shape up front so datasets can
// report output dimensions without computing a window.
package transforms

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownTransform is returned for transform or scaling names without an
// implementation.
var ErrUnknownTransform = errors.New("transforms: unknown transform")

// Transform maps a channel-major window to a flat row-major tensor whose
// shape is OutputDims(channels, windowSize).
type Transform interface {
	Apply(x [][]float32) ([]float32, error)
	OutputDims(channels, windowSize int) []int
}

// Config selects and parametrizes a Transform.
type Config struct {
	Name        string `toml:"name" json:"name"`
	SegmentSize int    `toml:"segment_size" json:"segment_size,omitempty"`
	StepSize    int    `toml:"step_size" json:"step_size,omitempty"`
	NFFT        int    `toml:"nfft" json:"nfft,omitempty"`
}

// New builds the Transform named by cfg. An empty name or "none" selects
// Identity.
func New(cfg Config, fs float64) (Transform, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "none", "identity":
		return Identity{}, nil
	case "stft":
		return NewSTFT(fs, cfg.SegmentSize, cfg.StepSize, cfg.NFFT)
	default:
		return nil, errors.Wrapf(ErrUnknownTransform, "%q", cfg.Name)
	}
}

// Identity flattens the window unchanged: shape (channels, windowSize).
type Identity struct{}

// Apply implements Transform.
func (Identity) Apply(x [][]float32) ([]float32, error) {
	if len(x) == 0 {
		return nil, nil
	}
	n := len(x[0])
	out := make([]float32, 0, len(x)*n)
	for c, ch := range x {
		if len(ch) != n {
			return nil, errors.Errorf("transforms: channel %d has %d samples, want %d", c, len(ch), n)
		}
		out = append(out, ch...)
	}
	return out, nil
}

// OutputDims implements Transform.
func (Identity) OutputDims(channels, windowSize int) []int {
	return []int{channels, windowSize}
}
