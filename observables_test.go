package unbias

import (
	"math"
	"testing"
)

func TestWeightedMean(Te *testing.T) {
	vals := []float64{1, 2, 3}
	logW := []float64{math.Log(0.5), math.Log(0.25), math.Log(0.25)}
	m, err := WeightedMean(vals, logW)
	if err != nil {
		Te.Fatal(err)
	}
	if !closeEnough(m, 1.75, 1e-12) {
		Te.Errorf("weighted mean = %g, want 1.75", m)
	}
	//an overall shift of the log-weights must not matter
	shifted := make([]float64, len(logW))
	for i, v := range logW {
		shifted[i] = v + 300
	}
	m2, err := WeightedMean(vals, shifted)
	if err != nil {
		Te.Fatal(err)
	}
	if !closeEnough(m2, m, 1e-12) {
		Te.Errorf("weighted mean moved under a log-weight shift: %g vs %g", m2, m)
	}
	if _, err := WeightedMean(vals, logW[:2]); err == nil {
		Te.Error("accepted mismatched lengths")
	}
}

func TestPopulations(Te *testing.T) {
	obs := []float64{-2.0, 0.1, 0.3, 2.5}
	logW := make([]float64, 4) //uniform, unnormalized
	in, out, err := Populations(obs, logW, Window(-1.6, 1.6))
	if err != nil {
		Te.Fatal(err)
	}
	if !closeEnough(in, 0.5, 1e-12) || !closeEnough(out, 0.5, 1e-12) {
		Te.Errorf("populations = %g, %g, want 0.5, 0.5", in, out)
	}
	if !closeEnough(in+out, 1.0, 1e-12) {
		Te.Errorf("populations do not sum to 1: %g", in+out)
	}
	dF := FreeEnergyDiff(2.494, in, out)
	if !closeEnough(dF, 0.0, 1e-12) {
		Te.Errorf("equal populations should give zero free-energy difference, got %g", dF)
	}
}
