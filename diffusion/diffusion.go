//Package diffusion estimates position-dependent diffusion coefficients
//from umbrella-restrained trajectories, following the autocorrelation
//method of Hummer (New J. Phys. 7, 34, 2005): D = var(x)/tau, where tau is
//the integral of the normalized position autocorrelation function over its
//positive support.
package diffusion

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

//DecorrelationError means the normalized autocorrelation function of a
//position series never crossed zero within the available lags, so the
//correlation-time integral has no defined support. It usually means the
//series is too short, too strongly correlated, or constant.
type DecorrelationError struct {
	Lags   int    //number of lags that were available
	Reason string //what exactly went wrong
}

func (e *DecorrelationError) Error() string {
	return fmt.Sprintf("diffusion: no autocorrelation decay within %d lags: %s", e.Lags, e.Reason)
}

//Estimator computes diffusion coefficients from position time series. The
//timing metadata describes how the series was recorded: Dt is the physical
//integration timestep and Stride the number of timesteps between recorded
//points, so consecutive samples are Stride*Dt apart.
type Estimator struct {
	Steps  int     //expected series length; 0 means take len(x) as is
	Dt     float64 //integration timestep
	Stride int     //recording stride, in timesteps
}

//Compute returns the diffusion coefficient for the position series x,
//which must already be unwrapped (no periodic-boundary jumps; that is the
//caller's obligation). It fails with a *DecorrelationError if the
//autocorrelation of x never turns negative, and with a plain error on
//malformed input.
func (e *Estimator) Compute(x []float64) (float64, error) {
	n := len(x)
	if e.Steps > 0 && n != e.Steps {
		return 0, fmt.Errorf("diffusion: got %d positions, expected %d", n, e.Steps)
	}
	if n < 2 {
		return 0, fmt.Errorf("diffusion: series of length %d is too short", n)
	}
	if e.Dt <= 0 || e.Stride <= 0 {
		return 0, fmt.Errorf("diffusion: timestep and stride must be positive, got %g and %d", e.Dt, e.Stride)
	}
	varx := stat.Variance(x, nil)
	if varx == 0 {
		return 0, &DecorrelationError{Lags: n, Reason: "series has zero variance"}
	}
	c := autocorr(x)
	//the method is only valid over the lags where the correlation function
	//stays positive; find where that support ends
	h := -1
	for i, v := range c {
		if v < 0 {
			h = i
			break
		}
	}
	if h < 0 {
		return 0, &DecorrelationError{Lags: n, Reason: "correlation function never becomes negative"}
	}
	if h < 2 {
		return 0, &DecorrelationError{Lags: n, Reason: "correlation function positive only at zero lag; the recording stride exceeds the correlation time"}
	}
	ts := make([]float64, h)
	for i := range ts {
		ts[i] = float64(i) * float64(e.Stride) * e.Dt
	}
	tau := integrate.Trapezoidal(ts, c[:h])
	return varx / tau, nil
}

//autocorr returns the raw autocorrelation of x at non-negative lags,
//normalized so the zero-lag value is 1. A direct evaluation is O(N^2),
//prohibitive for the multi-million-step series this package is meant for,
//so it goes through a zero-padded FFT instead.
func autocorr(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	pad := make([]complex128, 2*n) //zero padding kills the circular wrap-around
	for i, v := range x {
		pad[i] = complex(v-mean, 0)
	}
	f := fourier.NewCmplxFFT(len(pad))
	f.Coefficients(pad, pad)
	for i, v := range pad {
		pad[i] = v * cmplx.Conj(v)
	}
	f.Sequence(pad, pad)
	//the inverse transform carries a factor len(pad); it cancels in the
	//normalization by the zero-lag value below, as does everything else
	c := make([]float64, n)
	c0 := real(pad[0])
	for i := range c {
		c[i] = real(pad[i]) / c0
	}
	return c
}
