package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Periodogram is the power of a series at each resolvable period.
type Periodogram struct {
	Periods []float64
	Power   []float64
}

// Spectrum returns the periodogram of a series sampled every dt, mean
// removed. The zero frequency is dropped, so periods run from the series
// length down to 2*dt.
func Spectrum(series dynamo.Series, dt float64) Periodogram {
	n := len(series)
	if n < 2 {
		return Periodogram{}
	}
	mean := stat.Mean(series, nil)
	detrended := make([]float64, n)
	for i, v := range series {
		detrended[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, detrended)

	pg := Periodogram{
		Periods: make([]float64, 0, len(coeffs)-1),
		Power:   make([]float64, 0, len(coeffs)-1),
	}
	for i := 1; i < len(coeffs); i++ {
		a := cmplx.Abs(coeffs[i])
		pg.Periods = append(pg.Periods, dt/fft.Freq(i))
		pg.Power = append(pg.Power, a*a/float64(n))
	}
	return pg
}

// Dominant returns the period with the most power, or 0 for an empty
// periodogram.
func (p Periodogram) Dominant() float64 {
	best := -1
	for i, v := range p.Power {
		if best < 0 || v > p.Power[best] {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return p.Periods[best]
}
