package unbias

import (
	"fmt"
	"math"
	"sort"
)

//HistogramFES estimates a free-energy surface directly from the unbiased
//frame weights: the observable series is histogrammed into the bins
//defined by edges (ascending, len(edges) = nbins+1, values outside the
//range are dropped), each frame counting exp(logW), and the bin
//probabilities are turned into -kT*log(p). The surface is shifted so its
//lowest point is zero; empty bins come out as NaN. It is the cheap,
//in-process alternative to the external reweighting driver, good enough
//whenever a plain histogram of the reaction coordinate is what the driver
//would compute anyway.
func HistogramFES(obs, logW, edges []float64, kT float64) ([]float64, error) {
	if len(obs) != len(logW) {
		return nil, fmt.Errorf("unbias.HistogramFES: %d observables for %d log-weights", len(obs), len(logW))
	}
	if len(edges) < 2 {
		return nil, fmt.Errorf("unbias.HistogramFES: need at least 2 bin edges, got %d", len(edges))
	}
	if !sort.Float64sAreSorted(edges) {
		return nil, fmt.Errorf("unbias.HistogramFES: bin edges must be ascending")
	}
	nbins := len(edges) - 1
	p := make([]float64, nbins)
	for i, x := range obs {
		if x < edges[0] || x >= edges[nbins] {
			continue
		}
		//rightmost edge that is <= x
		b := sort.SearchFloat64s(edges, x)
		if b == len(edges) || edges[b] > x {
			b--
		}
		if b == nbins {
			b--
		}
		p[b] += math.Exp(logW[i])
	}
	f := make([]float64, nbins)
	min := math.Inf(1)
	for b, w := range p {
		if w <= 0 {
			f[b] = math.NaN()
			continue
		}
		f[b] = -kT * math.Log(w)
		if f[b] < min {
			min = f[b]
		}
	}
	if math.IsInf(min, 1) {
		return nil, fmt.Errorf("unbias.HistogramFES: every bin is empty")
	}
	for b := range f {
		f[b] -= min
	}
	return f, nil
}

//BinEdges returns nbins+1 uniform bin edges spanning [min,max], the
//companions of HistogramFES.
func BinEdges(min, max float64, nbins int) ([]float64, error) {
	if nbins < 1 || max <= min {
		return nil, fmt.Errorf("unbias.BinEdges: bad range [%g,%g] with %d bins", min, max, nbins)
	}
	edges := make([]float64, nbins+1)
	step := (max - min) / float64(nbins)
	for i := range edges {
		edges[i] = min + float64(i)*step
	}
	edges[nbins] = max //exact, no accumulation error
	return edges, nil
}

//BinCenters returns the midpoints of the bins defined by edges, for
//plotting a HistogramFES against its coordinate.
func BinCenters(edges []float64) []float64 {
	c := make([]float64, len(edges)-1)
	for i := range c {
		c[i] = (edges[i] + edges[i+1]) / 2
	}
	return c
}
