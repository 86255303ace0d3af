package unbiasplot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFES(Te *testing.T) {
	dir := Te.TempDir()
	x := []float64{-3, -2, -1, 0, 1, 2, 3}
	f := []float64{0, 1.2, 2.5, math.NaN(), 2.4, 1.1, 0.2}
	s := []float64{0.1, 0.2, 0.4, 0.5, 0.4, 0.2, 0.1}
	name := filepath.Join(dir, "fes")
	if err := FES(x, f, s, "free-energy surface", name); err != nil {
		Te.Fatal(err)
	}
	if _, err := os.Stat(name + ".png"); err != nil {
		Te.Errorf("no plot written: %v", err)
	}
	if err := FES(x, f[:3], s, "", name); err == nil {
		Te.Error("accepted mismatched grid and surface")
	}
	allNaN := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if err := FES(x, allNaN, nil, "", name); err == nil {
		Te.Error("accepted a surface with no finite points")
	}
}
