package transforms

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
)

// topDB is the dynamic range kept below the spectrogram maximum; values are
// divided by it so the output lies in [-1, max/topDB].
const topDB = 50.0

// STFT computes a log-power spectrogram per channel. Frames are centred
// (the signal is zero padded by NFFT/2 on both sides) and windowed with a
// periodic Hann window of SegmentSize samples. Output shape is
// (channels, NFFT/2+1, windowSize/StepSize+1).
type STFT struct {
	Fs          float64
	SegmentSize int
	StepSize    int
	NFFT        int

	window []float64
}

// NewSTFT validates the parameters and precomputes the window.
func NewSTFT(fs float64, segmentSize, stepSize, nfft int) (*STFT, error) {
	if segmentSize <= 0 || stepSize <= 0 || nfft <= 0 {
		return nil, errors.Errorf("transforms: stft needs positive segment, step and nfft, got %d, %d, %d",
			segmentSize, stepSize, nfft)
	}
	if segmentSize > nfft {
		return nil, errors.Errorf("transforms: stft segment size %d exceeds nfft %d", segmentSize, nfft)
	}
	s := &STFT{Fs: fs, SegmentSize: segmentSize, StepSize: stepSize, NFFT: nfft}
	s.window = paddedHann(segmentSize, nfft)
	return s, nil
}

// OutputDims implements Transform.
func (s *STFT) OutputDims(channels, windowSize int) []int {
	return []int{channels, s.NFFT/2 + 1, windowSize/s.StepSize + 1}
}

// Apply implements Transform.
func (s *STFT) Apply(x [][]float32) ([]float32, error) {
	if len(x) == 0 {
		return nil, nil
	}
	dims := s.OutputDims(len(x), len(x[0]))
	nFreq, nFrames := dims[1], dims[2]
	out := make([]float32, 0, dims[0]*nFreq*nFrames)

	fft := fourier.NewFFT(s.NFFT)
	frame := make([]float64, s.NFFT)
	coeffs := make([]complex128, nFreq)
	power := make([]float64, nFreq*nFrames)

	for c, ch := range x {
		if len(ch) != len(x[0]) {
			return nil, errors.Errorf("transforms: channel %d has %d samples, want %d", c, len(ch), len(x[0]))
		}
		for t := 0; t < nFrames; t++ {
			start := t*s.StepSize - s.NFFT/2
			for k := range frame {
				idx := start + k
				if idx >= 0 && idx < len(ch) {
					frame[k] = float64(ch[idx]) * s.window[k]
				} else {
					frame[k] = 0
				}
			}
			coeffs = fft.Coefficients(coeffs, frame)
			for f := 0; f < nFreq; f++ {
				re, im := real(coeffs[f]), imag(coeffs[f])
				// frequency-major so each channel is a (F, T) image
				power[f*nFrames+t] = re*re + im*im
			}
		}
		out = append(out, powerToDB(power)...)
	}
	return out, nil
}

// powerToDB converts power to decibels, clips to topDB below the maximum and
// scales by 1/topDB.
func powerToDB(power []float64) []float32 {
	const amin = 1e-10
	db := make([]float64, len(power))
	maxDB := math.Inf(-1)
	for i, p := range power {
		db[i] = 10 * math.Log10(math.Max(amin, p))
		maxDB = math.Max(maxDB, db[i])
	}
	out := make([]float32, len(db))
	for i, v := range db {
		out[i] = float32(math.Max(v, maxDB-topDB) / topDB)
	}
	return out
}

// paddedHann returns a periodic Hann window of size n centred in nfft zeros.
func paddedHann(n, nfft int) []float64 {
	w := make([]float64, nfft)
	offset := (nfft - n) / 2
	for i := 0; i < n; i++ {
		w[offset+i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}
