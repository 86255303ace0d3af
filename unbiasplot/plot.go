//Package unbiasplot draws the figures of an unbias analysis run, most
//importantly the free-energy surface with its bootstrap error bars.
package unbiasplot

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

type fesPoints struct {
	plotter.XYs
	plotter.YErrors
}

//FES plots the free-energy surface f over the coordinate grid x with the
//point-wise bootstrap standard error sigma as error bars, and saves it as
//a PNG. Grid points whose value or error is NaN (missing in every
//bootstrap cycle) are left out. sigma can be nil for a bare curve.
func FES(x, f, sigma []float64, title, plotname string) error {
	if len(f) != len(x) {
		return fmt.Errorf("unbiasplot: %d surface values on a grid of %d points", len(f), len(x))
	}
	if sigma != nil && len(sigma) != len(x) {
		return fmt.Errorf("unbiasplot: %d error values on a grid of %d points", len(sigma), len(x))
	}
	pts := fesPoints{}
	for i := range x {
		if math.IsNaN(f[i]) || math.IsInf(f[i], 0) {
			continue
		}
		var s float64
		if sigma != nil {
			if math.IsNaN(sigma[i]) {
				continue
			}
			s = sigma[i]
		}
		pts.XYs = append(pts.XYs, plotter.XY{X: x[i], Y: f[i]})
		pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{s, s})
	}
	if len(pts.XYs) == 0 {
		return fmt.Errorf("unbiasplot: no finite surface points to plot")
	}
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = "reaction coordinate"
	p.Y.Label.Text = "free energy (kT)"
	p.Add(plotter.NewGrid())
	line, err := plotter.NewLine(pts.XYs)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{B: 180, A: 255}
	p.Add(line)
	if sigma != nil {
		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return err
		}
		bars.Color = color.RGBA{R: 180, A: 255}
		p.Add(bars)
	}
	return p.Save(14*vg.Centimeter, 10*vg.Centimeter, fmt.Sprintf("%s.png", plotname))
}
