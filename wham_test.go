package unbias

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func closeEnough(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

//TestWHAMFlat checks the fully degenerate scenario: two trajectories of
//four frames each, all-zero bias. The solver must converge in a single
//iteration to uniform weights, log(1/8) per frame, with equal partition
//functions for both trajectories.
func TestWHAMFlat(Te *testing.T) {
	bias := mat.NewDense(8, 2, nil)
	r, err := Solve(bias, &Options{Threshold: 1e-8})
	if err != nil {
		Te.Fatal(err)
	}
	fmt.Println("flat bias result:", r.Iterations, r.Residual)
	if r.Iterations != 1 {
		Te.Errorf("flat bias took %d iterations, want 1", r.Iterations)
	}
	if !r.Converged(1e-8) {
		Te.Errorf("flat bias did not converge, residual %g", r.Residual)
	}
	want := math.Log(1.0 / 8.0)
	for i, v := range r.LogW {
		if !closeEnough(v, want, 1e-12) {
			Te.Errorf("LogW[%d] = %g, want %g", i, v, want)
		}
	}
	if !closeEnough(r.LogZ[0], r.LogZ[1], 1e-12) {
		Te.Errorf("partition functions differ for identical trajectories: %v", r.LogZ)
	}
	//the Z behind LogZ are normalized against the trajectory weights
	if s := math.Exp(r.LogZ[0]) + math.Exp(r.LogZ[1]); !closeEnough(s, 1.0, 1e-12) {
		Te.Errorf("sum of Z = %g, want 1", s)
	}
}

//TestWHAMSingleTraj checks the single-trajectory reduction: with one
//trajectory and a constant bias column the converged log-weights are just
//the normalized log frame weights, after at most one iteration. The
//reduction needs the bias to be constant; a varying single-trajectory bias
//reweights the frames (see TestWHAMSingleTrajReweight).
func TestWHAMSingleTraj(Te *testing.T) {
	nframes := 5
	col := make([]float64, nframes)
	for i := range col {
		col[i] = 2.5
	}
	bias := mat.NewDense(nframes, 1, col)
	fw := []float64{1, 2, 3, 2, 1}
	r, err := Solve(bias, &Options{FrameWeight: fw})
	if err != nil {
		Te.Fatal(err)
	}
	if r.Iterations > 1 {
		Te.Errorf("single trajectory took %d iterations, want at most 1", r.Iterations)
	}
	var tot float64
	for _, v := range fw {
		tot += v
	}
	for i, v := range r.LogW {
		want := math.Log(fw[i]) - math.Log(tot)
		if !closeEnough(v, want, 1e-12) {
			Te.Errorf("LogW[%d] = %g, want %g", i, v, want)
		}
	}
}

//TestWHAMSingleTrajReweight: with one trajectory and a varying bias the
//exp(+b/T) reweighting survives, so the normalized log-weights are
//log(fw) + b/T up to the normalization constant.
func TestWHAMSingleTrajReweight(Te *testing.T) {
	b := []float64{3.0, 1.5, 0.0, -2.0, 7.0}
	fw := []float64{1, 2, 3, 2, 1}
	T := 1.7
	bias := mat.NewDense(len(b), 1, b)
	r, err := Solve(bias, &Options{FrameWeight: fw, T: T})
	if err != nil {
		Te.Fatal(err)
	}
	raw := make([]float64, len(b))
	max := math.Inf(-1)
	for i := range raw {
		raw[i] = math.Log(fw[i]) + b[i]/T
		if raw[i] > max {
			max = raw[i]
		}
	}
	var s float64
	for _, v := range raw {
		s += math.Exp(v - max)
	}
	norm := max + math.Log(s)
	for i, v := range r.LogW {
		if !closeEnough(v, raw[i]-norm, 1e-12) {
			Te.Errorf("LogW[%d] = %g, want %g", i, v, raw[i]-norm)
		}
	}
}

func randomBias(rnd *rand.Rand, nframes, ntraj int) *mat.Dense {
	b := mat.NewDense(nframes, ntraj, nil)
	for t := 0; t < ntraj; t++ {
		//one zero per column keeps the column minima at 0, so the internal
		//stabilization shift does not displace the reported LogZ
		zero := rnd.Intn(nframes)
		for f := 0; f < nframes; f++ {
			if f == zero {
				continue
			}
			b.Set(f, t, rnd.Float64()*5)
		}
	}
	return b
}

//TestWHAMShiftInvariance: adding a constant to a whole bias column must not
//change the frame weights, and must shift that trajectory's log partition
//function by -c/T.
func TestWHAMShiftInvariance(Te *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	nframes, ntraj := 60, 3
	T := 2.4943
	bias := randomBias(rnd, nframes, ntraj)
	r0, err := Solve(bias, &Options{T: T})
	if err != nil {
		Te.Fatal(err)
	}
	if !r0.Converged(DefaultThreshold) {
		Te.Fatalf("reference solve did not converge: residual %g after %d iterations", r0.Residual, r0.Iterations)
	}
	c := 13.7
	shifted := mat.DenseCopyOf(bias)
	for f := 0; f < nframes; f++ {
		shifted.Set(f, 1, shifted.At(f, 1)+c)
	}
	r1, err := Solve(shifted, &Options{T: T})
	if err != nil {
		Te.Fatal(err)
	}
	for i := range r0.LogW {
		if !closeEnough(r0.LogW[i], r1.LogW[i], 1e-7) {
			Te.Fatalf("LogW[%d] moved under a column shift: %g vs %g", i, r0.LogW[i], r1.LogW[i])
		}
	}
	for t := 0; t < ntraj; t++ {
		want := r0.LogZ[t]
		if t == 1 {
			want -= c / T
		}
		if !closeEnough(r1.LogZ[t], want, 1e-7) {
			Te.Errorf("LogZ[%d] = %g, want %g", t, r1.LogZ[t], want)
		}
	}
}

//TestWHAMNormalization checks that for converged results the partition
//functions satisfy sum_t Z[t]*trajWeight[t] == 1.
func TestWHAMNormalization(Te *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	bias := randomBias(rnd, 80, 4)
	tw := []float64{1, 0.5, 2, 0} //a zero-weight trajectory is allowed
	r, err := Solve(bias, &Options{TrajWeight: tw})
	if err != nil {
		Te.Fatal(err)
	}
	if !r.Converged(DefaultThreshold) {
		Te.Fatalf("did not converge: residual %g", r.Residual)
	}
	var s float64
	for t, w := range tw {
		s += math.Exp(r.LogZ[t]) * w
	}
	fmt.Println("sum Z*w:", s)
	if !closeEnough(s, 1.0, 1e-9) {
		Te.Errorf("sum_t Z[t]*w[t] = %g, want 1", s)
	}
}

//TestWHAMNonConvergence: running out of iterations is not an error, the
//last state is returned and the caller inspects it.
func TestWHAMNonConvergence(Te *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	bias := randomBias(rnd, 50, 3)
	r, err := Solve(bias, &Options{MaxIter: 1, Threshold: 1e-300})
	if err != nil {
		Te.Fatal(err)
	}
	if r.Iterations != 1 {
		Te.Errorf("got %d iterations, want 1", r.Iterations)
	}
	if r.Converged(1e-300) {
		Te.Error("a single iteration should not have converged to 1e-300")
	}
}

func TestWHAMBadInput(Te *testing.T) {
	bias := mat.NewDense(4, 2, nil)
	if _, err := Solve(bias, &Options{FrameWeight: []float64{1, 1}}); err == nil {
		Te.Error("accepted frame weights of the wrong length")
	}
	if _, err := Solve(bias, &Options{TrajWeight: []float64{1, 1, 1}}); err == nil {
		Te.Error("accepted trajectory weights of the wrong length")
	}
	if _, err := Solve(bias, &Options{TrajWeight: []float64{0, 0}}); err == nil {
		Te.Error("accepted all-zero trajectory weights")
	}
}
