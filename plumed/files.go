package plumed

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

//WriteArray writes a flat numeric array, one value per line, the way the
//per-observable outputs of an analysis run (diffusion profiles, bootstrap
//sequences, error curves) are persisted.
func WriteArray(path string, v []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, x := range v {
		w.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		w.WriteByte('\n')
	}
	err = w.Flush()
	if err2 := f.Close(); err == nil {
		err = err2
	}
	return err
}

//ReadArray reads a flat numeric array written by WriteArray.
func ReadArray(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var v []float64
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		t := strings.TrimSpace(scan.Text())
		if t == "" {
			continue
		}
		x, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("plumed: %s: %w", path, err)
		}
		v = append(v, x)
	}
	return v, scan.Err()
}

//Report accumulates a human-readable summary file across an analysis run.
//Every section is flushed to disk immediately, so a partial file survives
//a crash; Section is safe to call from concurrent bootstrap cycles.
type Report struct {
	mu sync.Mutex
	f  *os.File
}

//CreateReport starts a new report file, truncating any previous one.
func CreateReport(path string) (*Report, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Report{f: f}, nil
}

//Section appends a formatted block followed by a blank line.
func (r *Report) Section(format string, args ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.f, format+"\n\n", args...)
	return err
}

//Close finishes the report.
func (r *Report) Close() error {
	return r.f.Close()
}
