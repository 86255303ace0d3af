package bootstrap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

//Errors holds the bootstrap standard errors of every tracked observable,
//the final product of a bootstrap run.
type Errors struct {
	PopIn  float64
	PopOut float64
	DeltaF float64
	//FES holds the point-wise standard error of the free-energy surface;
	//nil if no cycle produced a surface. Points with fewer than 2 finite
	//draws come out as NaN.
	FES []float64
	//Cycles is the number of successful cycles that entered the statistics.
	Cycles int
	//Failed lists the cycles that were excluded, in cycle order.
	Failed []int
}

//Reduce folds the per-cycle samples into standard errors: the sample
//standard deviation of every accumulated observable sequence. It is a pure
//function of its input; failed cycles are skipped and reported. At least 2
//successful cycles are required.
func Reduce(samples []Sample) (*Errors, error) {
	var popIn, popOut, deltaF []float64
	var fes [][]float64
	e := &Errors{}
	for _, s := range samples {
		if s.Err != nil {
			e.Failed = append(e.Failed, s.Cycle)
			continue
		}
		popIn = append(popIn, s.PopIn)
		popOut = append(popOut, s.PopOut)
		deltaF = append(deltaF, s.DeltaF)
		if s.FES != nil {
			fes = append(fes, s.FES)
		}
	}
	e.Cycles = len(popIn)
	if e.Cycles < 2 {
		return nil, fmt.Errorf("bootstrap: only %d successful cycles (%d failed), cannot estimate errors", e.Cycles, len(e.Failed))
	}
	e.PopIn = stat.StdDev(popIn, nil)
	e.PopOut = stat.StdDev(popOut, nil)
	e.DeltaF = stat.StdDev(deltaF, nil)
	if len(fes) > 0 {
		var err error
		e.FES, err = pointwiseStdDev(fes)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

//pointwiseStdDev computes the standard deviation across curves at each
//grid point, ignoring non-finite entries (the external driver reports
//missing surface points as NaN or infinities).
func pointwiseStdDev(curves [][]float64) ([]float64, error) {
	npoints := len(curves[0])
	for i, c := range curves {
		if len(c) != npoints {
			return nil, fmt.Errorf("bootstrap: free-energy surface of cycle sample %d has %d points, others have %d", i, len(c), npoints)
		}
	}
	out := make([]float64, npoints)
	col := make([]float64, 0, len(curves))
	for p := 0; p < npoints; p++ {
		col = col[:0]
		for _, c := range curves {
			if v := c[p]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				col = append(col, v)
			}
		}
		if len(col) < 2 {
			out[p] = math.NaN()
			continue
		}
		out[p] = stat.StdDev(col, nil)
	}
	return out, nil
}
