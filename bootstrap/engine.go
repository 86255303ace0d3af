package bootstrap

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"

	"github.com/plumelab/unbias"
)

//Driver computes a free-energy-surface curve from a resampled observable
//series and its per-frame log-weights, typically by round-tripping through
//an external reweighting program (see the plumed package). Implementations
//must be safe for concurrent use: cycles running in parallel call FES
//independently. A hanging external process is interrupted through ctx.
//Missing surface points are reported as NaN entries.
type Driver interface {
	FES(ctx context.Context, obs, logW []float64) ([]float64, error)
}

//Sample is the outcome of one bootstrap cycle. If Err is non-nil the cycle
//failed and its numbers must not enter any statistics.
type Sample struct {
	Cycle  int
	PopIn  float64 //population of the state selected by Engine.InState
	PopOut float64
	DeltaF float64   //free-energy difference in kT units, in vs out
	FES    []float64 //free-energy surface from the Driver; nil without one
	Err    error
}

//Engine re-runs the WHAM/observable pipeline over resampled copies of a
//block-partitioned dataset. Cycles are independent of each other, so they
//run on a worker pool; the original Blocks is the only shared state and is
//never written.
type Engine struct {
	Blocks  *Blocks
	Cycles  int
	Workers int //0 means GOMAXPROCS-many
	Seed    int64
	KT      float64
	InState func(float64) bool //state definition on the observable
	WHAM    *unbias.Options
	Driver  Driver //optional
	Verbose bool
	Logger  *log.Logger //nil and Verbose false means silent
}

//Run executes all cycles and returns one Sample per cycle, indexed by
//cycle number. Failed cycles are returned with Err set rather than
//aborting the run; ctx cancellation does abort, returning the context
//error with every unrun cycle marked failed, so a partial result is still
//safe to hand to Reduce. Fewer than 2 cycles is a configuration error,
//rejected before any work is done, because a standard deviation over 0 or
//1 draws means nothing.
func (e *Engine) Run(ctx context.Context) ([]Sample, error) {
	if e.Cycles < 2 {
		return nil, fmt.Errorf("bootstrap: %d cycles cannot support an error estimate, need at least 2", e.Cycles)
	}
	if e.Blocks == nil {
		return nil, fmt.Errorf("bootstrap: no block partition given")
	}
	if e.InState == nil {
		return nil, fmt.Errorf("bootstrap: no state definition given")
	}
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > e.Cycles {
		workers = e.Cycles
	}
	samples := make([]Sample, e.Cycles)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				//each worker writes only its own cycle's slot
				samples[i] = e.cycle(ctx, i)
			}
		}()
	}
	var ctxErr error
	fed := e.Cycles
feed:
	for i := 0; i < e.Cycles; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			fed = i
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	//cycles that never reached a worker must not look like successful
	//zero-valued samples, so they carry the cancellation as their error
	for i := fed; i < e.Cycles; i++ {
		samples[i] = Sample{Cycle: i, Err: fmt.Errorf("cycle %d: %w", i, ctxErr)}
	}
	if ctxErr != nil {
		return samples, ctxErr
	}
	return samples, nil
}

func (e *Engine) cycle(ctx context.Context, i int) Sample {
	s := Sample{Cycle: i}
	//each cycle derives its own generator from the run seed, so results
	//are reproducible no matter how cycles land on workers
	rnd := rand.New(rand.NewSource(e.Seed + int64(i)))
	bias, obs, err := e.Blocks.Resample(e.Blocks.Draw(rnd))
	if err != nil {
		s.Err = fmt.Errorf("cycle %d: %w", i, err)
		return s
	}
	res, err := unbias.Solve(bias, e.WHAM)
	if err != nil {
		s.Err = fmt.Errorf("cycle %d: %w", i, err)
		return s
	}
	if e.Verbose && e.Logger != nil {
		e.Logger.Printf("bootstrap: cycle %d WHAM done, %d iterations, residual %g", i, res.Iterations, res.Residual)
	}
	s.PopIn, s.PopOut, err = unbias.Populations(obs, res.LogW, e.InState)
	if err != nil {
		s.Err = fmt.Errorf("cycle %d: %w", i, err)
		return s
	}
	s.DeltaF = unbias.FreeEnergyDiff(e.KT, s.PopIn, s.PopOut)
	if e.Driver != nil {
		fes, err := e.Driver.FES(ctx, obs, res.LogW)
		if err != nil && ctx.Err() == nil {
			//transient external failures get one more chance
			if e.Verbose && e.Logger != nil {
				e.Logger.Printf("bootstrap: cycle %d driver failed (%v), retrying", i, err)
			}
			fes, err = e.Driver.FES(ctx, obs, res.LogW)
		}
		if err != nil {
			s.Err = fmt.Errorf("cycle %d: reweighting driver: %w", i, err)
			return s
		}
		s.FES = fes
	}
	return s
}
