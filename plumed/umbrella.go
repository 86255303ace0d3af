package plumed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

//CenterGrid returns n umbrella center positions starting at min, spaced by
//step. The grid doubles as the trajectory identifiers: files are keyed by
//the center formatted to two decimals (CenterLabel).
func CenterGrid(min, step float64, n int) []float64 {
	g := make([]float64, n)
	for i := range g {
		g[i] = min + float64(i)*step
	}
	return g
}

//CenterLabel formats an umbrella center the way the file naming convention
//expects, with two decimals.
func CenterLabel(x float64) string {
	s := fmt.Sprintf("%.2f", x)
	if s == "-0.00" { //grid arithmetic can leave a negative zero behind
		return "0.00"
	}
	return s
}

//DiscoverColvar locates one COLVAR data source per umbrella center under
//dir: prefix+CenterLabel(center), optionally with a .gz or .zst extension.
//Backup files PLUMED leaves behind (any name containing "bck") are never
//counted. A missing file, or stray prefix-matching files beyond the
//declared centers, is a fatal consistency error: the trajectory count and
//the supplied center grid must agree before any numerics run.
func DiscoverColvar(dir, prefix string, centers []float64) ([]string, error) {
	if len(centers) == 0 {
		return nil, fmt.Errorf("plumed: empty center grid")
	}
	paths := make([]string, len(centers))
	for i, c := range centers {
		base := filepath.Join(dir, prefix+CenterLabel(c))
		found := ""
		for _, p := range []string{base, base + ".gz", base + ".zst"} {
			if _, err := os.Stat(p); err == nil {
				found = p
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("plumed: no data source for umbrella at %s (looked for %s)", CenterLabel(c), base)
		}
		paths[i] = found
	}
	//anything else matching the prefix means the declared umbrella count
	//does not describe this directory
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && !strings.Contains(name, "bck") {
			n++
		}
	}
	if n != len(centers) {
		return nil, fmt.Errorf("plumed: found %d %s* files in %s but the center grid declares %d umbrellas", n, prefix, dir, len(centers))
	}
	return paths, nil
}

//LoadBias assembles the WHAM input from one COLVAR file per umbrella: a
//frames x umbrellas matrix whose column t holds biasField from file t, and
//the parallel observable series obsField taken from the first file. All
//columns are aligned to the length of the first file by keeping only their
//trailing rows, discarding any unequal prefix.
func LoadBias(paths []string, biasField, obsField string) (*mat.Dense, []float64, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("plumed: no input files")
	}
	first, err := ReadTable(paths[0])
	if err != nil {
		return nil, nil, err
	}
	rows := first.Len()
	if rows == 0 {
		return nil, nil, fmt.Errorf("plumed: %s is empty", paths[0])
	}
	obs, err := first.Col(obsField)
	if err != nil {
		return nil, nil, err
	}
	bias := mat.NewDense(rows, len(paths), nil)
	for t, p := range paths {
		var col []float64
		if t == 0 {
			col, err = first.Tail(biasField, rows)
		} else {
			var tab *Table
			tab, err = ReadTable(p)
			if err == nil {
				col, err = tab.Tail(biasField, rows)
			}
		}
		if err != nil {
			return nil, nil, fmt.Errorf("plumed: loading bias column %d: %w", t, err)
		}
		bias.SetCol(t, col)
	}
	out := make([]float64, rows)
	copy(out, obs)
	return bias, out, nil
}
