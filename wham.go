package unbias

import (
	"fmt"
	"log"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//Options holds the adjustable parameters of a WHAM solve. The zero value of
//each field means "use the default", so callers can set only what they need.
type Options struct {
	//FrameWeight holds a prior multiplicity per frame (e.g. a subsampling
	//rate). nil means every frame weighs 1.
	FrameWeight []float64
	//TrajWeight holds a prior multiplicity per trajectory (e.g. to account
	//for unequal trajectory lengths). nil means every trajectory weighs 1.
	//A trajectory with zero weight is allowed and contributes nothing.
	TrajWeight []float64
	//T is the temperature scale the bias is divided by. Defaults to 1.
	T float64
	//MaxIter caps the number of self-consistent iterations. Defaults to 5000.
	MaxIter int
	//Threshold is the convergence criterion on the squared change of the
	//log partition functions. Defaults to 1e-8.
	Threshold float64
	//Verbose makes the solver report progress every 10th iteration through
	//Logger. It has no effect on the results.
	Verbose bool
	//Logger receives the Verbose progress lines. nil means stderr.
	Logger *log.Logger
}

//Default solver parameters.
const (
	DefaultMaxIter   = 5000
	DefaultThreshold = 1e-8
)

//Result is the outcome of one WHAM solve. It is immutable once returned:
//the solver never keeps a reference to it.
type Result struct {
	//LogW is the unbiased log-weight of each frame, normalized so the
	//exponentiated weights sum to 1.
	LogW []float64
	//LogZ is the log partition function of each trajectory, up to a common
	//additive constant. The underlying Z are normalized so that
	//sum_t Z[t]*TrajWeight[t] == 1.
	LogZ []float64
	//Iterations is the number of self-consistent iterations actually run,
	//starting from 1. If Iterations == MaxIter and Residual >= Threshold
	//the solve did not converge.
	Iterations int
	//Residual is the last value of the convergence criterion,
	//sum_t log(Z[t]/Zold[t])^2.
	Residual float64
}

//Converged reports whether the residual met the given threshold. Note that
//Solve does not fail on non-convergence; inspecting the returned Result is
//the caller's job.
func (r *Result) Converged(threshold float64) bool {
	return r.Residual < threshold
}

//Solve runs the Weighted Histogram Analysis Method on bias, a dense
//frames x trajectories matrix where entry (f,t) is the biasing potential
//that trajectory t would exert on the configuration sampled at frame f.
//The matrix is only read. opts can be nil, meaning all defaults.
//
//Solve returns an error only for malformed input (empty matrix, weight
//vectors of the wrong length, all-zero trajectory weights). Exhausting
//MaxIter without reaching Threshold is NOT an error: the last state is
//returned and the caller decides what to do with it.
func Solve(bias *mat.Dense, opts *Options) (*Result, error) {
	nframes, ntraj := bias.Dims()
	if nframes < 1 || ntraj < 1 {
		return nil, fmt.Errorf("unbias.Solve: bias matrix needs at least one frame and one trajectory, got %dx%d", nframes, ntraj)
	}
	if opts == nil {
		opts = &Options{}
	}
	T := opts.T
	if T == 0 {
		T = 1.0
	}
	maxiter := opts.MaxIter
	if maxiter <= 0 {
		maxiter = DefaultMaxIter
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	fw := opts.FrameWeight
	if fw == nil {
		fw = ones(nframes)
	} else if len(fw) != nframes {
		return nil, fmt.Errorf("unbias.Solve: frame weights have length %d, want %d", len(fw), nframes)
	}
	tw := opts.TrajWeight
	if tw == nil {
		tw = ones(ntraj)
	} else if len(tw) != ntraj {
		return nil, fmt.Errorf("unbias.Solve: trajectory weights have length %d, want %d", len(tw), ntraj)
	}
	twtot := floats.Sum(tw)
	if twtot <= 0 {
		return nil, fmt.Errorf("unbias.Solve: total trajectory weight must be positive, got %g", twtot)
	}

	//Stabilize the exponentials: divide by T, then subtract the per-column
	//minimum (shift0) and the per-row minimum of what remains (shift1).
	//Every entry of exp(-b) then lands in (0,1], so no overflow is possible.
	//Both shift vectors are added back into the log outputs at the end, so
	//the results are unaffected.
	b := mat.DenseCopyOf(bias)
	b.Scale(1/T, b)
	shift0 := make([]float64, ntraj)
	for t := 0; t < ntraj; t++ {
		shift0[t] = math.Inf(1)
		for f := 0; f < nframes; f++ {
			if v := b.At(f, t); v < shift0[t] {
				shift0[t] = v
			}
		}
	}
	shift1 := make([]float64, nframes)
	for f := 0; f < nframes; f++ {
		shift1[f] = math.Inf(1)
		for t := 0; t < ntraj; t++ {
			if v := b.At(f, t) - shift0[t]; v < shift1[f] {
				shift1[f] = v
			}
		}
	}
	//expv is computed once and reused every iteration; it dominates the
	//per-iteration cost.
	for f := 0; f < nframes; f++ {
		for t := 0; t < ntraj; t++ {
			b.Set(f, t, math.Exp(-(b.At(f, t) - shift0[t] - shift1[f])))
		}
	}
	expv := b

	//The partition functions start uniform, scaled to satisfy the same
	//normalization the loop enforces (sum_t Z[t]*tw[t] == 1). Starting
	//instead from bare ones would make the residual of the first iteration
	//measure the normalization jump rather than actual fixed-point movement.
	z := make([]float64, ntraj)
	for t := range z {
		z[t] = 1.0 / twtot
	}
	zold := make([]float64, ntraj)
	copy(zold, z)

	weight := make([]float64, nframes)
	tz := make([]float64, ntraj)
	wvec := mat.NewVecDense(nframes, weight)
	zvec := mat.NewVecDense(ntraj, z)
	tzvec := mat.NewVecDense(ntraj, tz)

	if opts.Verbose {
		logger.Printf("WHAM: start, %d frames, %d trajectories", nframes, ntraj)
	}
	var nit int
	eps := math.Inf(1)
	for nit = 1; nit <= maxiter; nit++ {
		for t := range tz {
			tz[t] = tw[t] / z[t]
		}
		//weight[f] = fw[f] / sum_t expv[f,t]*tw[t]/z[t]
		wvec.MulVec(expv, tzvec)
		for f := range weight {
			weight[f] = fw[f] / weight[f]
		}
		//z[t] = sum_f weight[f]*expv[f,t], then renormalized.
		zvec.MulVec(expv.T(), wvec)
		floats.Scale(1/floats.Dot(z, tw), z)
		eps = 0.0
		for t := range z {
			d := math.Log(z[t] / zold[t])
			eps += d * d
		}
		copy(zold, z)
		if opts.Verbose && nit%10 == 0 {
			logger.Printf("WHAM: iteration %d eps %g", nit, eps)
		}
		if eps < threshold {
			break
		}
	}
	if nit > maxiter {
		nit = maxiter //the loop ran out
	}
	if opts.Verbose {
		logger.Printf("WHAM: end, %d iterations, eps %g", nit, eps)
	}

	logW := make([]float64, nframes)
	for f := range logW {
		logW[f] = math.Log(weight[f]) + shift1[f]
	}
	normalizeLog(logW)
	logZ := make([]float64, ntraj)
	for t := range logZ {
		logZ[t] = math.Log(z[t]) - shift0[t]
	}
	return &Result{LogW: logW, LogZ: logZ, Iterations: nit, Residual: eps}, nil
}

//normalizeLog shifts lw in place so that sum(exp(lw)) == 1, using the
//usual max-subtraction to avoid overflow.
func normalizeLog(lw []float64) {
	m := floats.Max(lw)
	var s float64
	for _, v := range lw {
		s += math.Exp(v - m)
	}
	floats.AddConst(-(m + math.Log(s)), lw)
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1.0
	}
	return v
}
