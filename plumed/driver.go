package plumed

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

//ProcessError means a "plumed driver" invocation failed: non-zero exit,
//missing output file or malformed output data. It carries the tail of the
//process output for diagnosis.
type ProcessError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("plumed: %s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("plumed: %s: %v; output tail: %s", e.Cmd, e.Err, e.Output)
}

func (e *ProcessError) Unwrap() error { return e.Err }

//Driver runs the PLUMED reweighting round-trip: it writes a trajectory
//plus per-frame log-weights to a COLVAR file, runs "plumed driver
//--noatoms" against a static input script that reads that file and writes
//the free-energy surface, and reads the surface back. It implements
//bootstrap.Driver.
//
//Every call works in its own temporary directory under Dir, so concurrent
//bootstrap cycles never race on the well-known file names the PLUMED
//script expects.
type Driver struct {
	Plumed string  //the plumed executable; "plumed" if empty
	Input  string  //path to the plumed input script
	KT     float64 //thermal energy passed as --kt
	Dir    string  //parent for per-call work directories; "" = system temp

	//File and field names the Input script is written against.
	TrajName string //log-weight table the script reads; default "temp_bias.dat"
	FESName  string //surface table the script writes; default "temp_fes.dat"
	ObsField string //observable field name in the written table; default "phi"
	FESField string //surface value field in the read table; default "ffphir"

	Timeout time.Duration //per call; 0 means rely on the caller's context
	Verbose bool
	Logger  *log.Logger
}

func (d *Driver) plumed() string {
	if d.Plumed == "" {
		return "plumed"
	}
	return d.Plumed
}

func (d *Driver) trajName() string {
	if d.TrajName == "" {
		return "temp_bias.dat"
	}
	return d.TrajName
}

func (d *Driver) fesName() string {
	if d.FESName == "" {
		return "temp_fes.dat"
	}
	return d.FESName
}

func (d *Driver) obsField() string {
	if d.ObsField == "" {
		return "phi"
	}
	return d.ObsField
}

func (d *Driver) fesField() string {
	if d.FESField == "" {
		return "ffphir"
	}
	return d.FESField
}

//FES computes the free-energy surface for one (resampled) trajectory.
//Surface points the driver reports as NaN or infinite come back as NaN,
//to be excluded from downstream statistics. The call is interrupted if
//ctx is cancelled or Timeout passes.
func (d *Driver) FES(ctx context.Context, obs, logW []float64) ([]float64, error) {
	if len(obs) != len(logW) {
		return nil, fmt.Errorf("plumed: %d observables for %d log-weights", len(obs), len(logW))
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	workdir, err := os.MkdirTemp(d.Dir, "unbias-plumed-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workdir)

	times := make([]float64, len(obs))
	for i := range times {
		times[i] = float64(i)
	}
	traj := filepath.Join(workdir, d.trajName())
	if err := WriteTable(traj, []string{"time", d.obsField(), "logweights"}, times, obs, logW); err != nil {
		return nil, err
	}
	input, err := filepath.Abs(d.Input)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, d.plumed(), "driver", "--noatoms",
		"--plumed", input, "--kt", strconv.FormatFloat(d.KT, 'g', -1, 64))
	cmd.Dir = workdir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if d.Verbose && d.Logger != nil {
		d.Logger.Printf("plumed: running %v in %s", cmd.Args, workdir)
	}
	if err := cmd.Run(); err != nil {
		return nil, &ProcessError{Cmd: cmd.String(), Output: tail(out.String(), 400), Err: err}
	}
	fes, err := ReadTable(filepath.Join(workdir, d.fesName()))
	if err != nil {
		return nil, &ProcessError{Cmd: cmd.String(), Output: tail(out.String(), 400), Err: err}
	}
	col, err := fes.Col(d.fesField())
	if err != nil {
		return nil, &ProcessError{Cmd: cmd.String(), Err: err}
	}
	surface := make([]float64, len(col))
	for i, v := range col {
		if math.IsInf(v, 0) {
			v = math.NaN() //missing, same as NaN
		}
		surface[i] = v
	}
	return surface, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
