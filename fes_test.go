package unbias

import (
	"math"
	"testing"
)

func TestHistogramFES(Te *testing.T) {
	//uniform weights over a uniform series must give a flat surface
	obs := make([]float64, 1000)
	logW := make([]float64, 1000)
	lw := math.Log(1.0 / 1000.0)
	for i := range obs {
		obs[i] = float64(i) / 1000.0 //uniform on [0,1)
		logW[i] = lw
	}
	edges, err := BinEdges(0, 1, 10)
	if err != nil {
		Te.Fatal(err)
	}
	f, err := HistogramFES(obs, logW, edges, 2.494)
	if err != nil {
		Te.Fatal(err)
	}
	for b, v := range f {
		if math.Abs(v) > 1e-10 {
			Te.Errorf("bin %d: flat data gave F = %g, want 0", b, v)
		}
	}
	//a 3:1 population ratio between two bins is a known free-energy gap
	obs2 := []float64{0.25, 0.25, 0.25, 0.75}
	logW2 := make([]float64, 4) //uniform
	edges2, _ := BinEdges(0, 1, 2)
	kT := 2.0
	f2, err := HistogramFES(obs2, logW2, edges2, kT)
	if err != nil {
		Te.Fatal(err)
	}
	want := -kT * math.Log(1.0/3.0)
	if math.Abs(f2[0]) > 1e-12 || math.Abs(f2[1]-want) > 1e-12 {
		Te.Errorf("F = %v, want [0 %g]", f2, want)
	}
	//empty bins are missing, not zero
	edges3, _ := BinEdges(0, 3, 3)
	f3, err := HistogramFES(obs2, logW2, edges3, kT)
	if err != nil {
		Te.Fatal(err)
	}
	if !math.IsNaN(f3[1]) || !math.IsNaN(f3[2]) {
		Te.Errorf("empty bins gave %v, want NaN", f3[1:])
	}
}

func TestBinEdges(Te *testing.T) {
	if _, err := BinEdges(1, 0, 5); err == nil {
		Te.Error("accepted an inverted range")
	}
	e, err := BinEdges(-3.1, 3.1, 124)
	if err != nil {
		Te.Fatal(err)
	}
	if len(e) != 125 || e[0] != -3.1 || e[124] != 3.1 {
		Te.Errorf("edges: len %d, first %g, last %g", len(e), e[0], e[124])
	}
	c := BinCenters(e)
	if len(c) != 124 {
		Te.Errorf("got %d centers, want 124", len(c))
	}
}
