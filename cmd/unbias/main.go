package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/plumelab/unbias"
	"github.com/plumelab/unbias/bootstrap"
	"github.com/plumelab/unbias/diffusion"
	"github.com/plumelab/unbias/plumed"
	"github.com/plumelab/unbias/unbiasplot"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "unbias",
		Short: "unbiased statistics from umbrella sampling simulations",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "unbias.yaml", "config file path (yaml)")

	whamCmd := &cobra.Command{
		Use:   "wham",
		Short: "combine the umbrella runs into unbiased frame weights",
		RunE:  runWHAM,
	}
	diffCmd := &cobra.Command{
		Use:   "diffusion",
		Short: "diffusion coefficient profile over the umbrella set",
		RunE:  runDiffusion,
	}
	bootCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "block-bootstrap error bars for populations, free-energy difference and surface",
		RunE:  runBootstrap,
	}
	rootCmd.AddCommand(whamCmd, diffCmd, bootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

//loadDataset discovers the per-umbrella COLVAR files and assembles the
//WHAM input from them.
func loadDataset(cfg *Config) (*mat.Dense, []float64, error) {
	centers := plumed.CenterGrid(cfg.Umbrellas.Min, cfg.Umbrellas.Step, cfg.Umbrellas.Count)
	paths, err := plumed.DiscoverColvar(cfg.Data.Dir, cfg.Data.Prefix, centers)
	if err != nil {
		return nil, nil, err
	}
	return plumed.LoadBias(paths, cfg.Data.BiasField, cfg.Data.ObsField)
}

//truncate keeps only the trailing ntraj*trajLen rows, the declared usable
//length of the concatenated record. trajLen <= 0 keeps everything.
func truncate(bias *mat.Dense, obs []float64, ntraj, trajLen int) (*mat.Dense, []float64, error) {
	if trajLen <= 0 {
		return bias, obs, nil
	}
	rows, cols := bias.Dims()
	keep := ntraj * trajLen
	if keep > rows {
		return nil, nil, fmt.Errorf("declared traj_len %d needs %d frames but only %d were loaded", trajLen, keep, rows)
	}
	return bias.Slice(rows-keep, rows, 0, cols).(*mat.Dense), obs[rows-keep:], nil
}

func whamOptions(cfg *Config) *unbias.Options {
	return &unbias.Options{
		T:         cfg.KT(),
		MaxIter:   cfg.WHAM.MaxIter,
		Threshold: cfg.WHAM.Threshold,
		Verbose:   cfg.WHAM.Verbose,
	}
}

func runWHAM(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	bias, obs, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	nframes, ntraj := bias.Dims()
	log.Printf("loaded %d frames, %d umbrellas", nframes, ntraj)
	bias, obs, err = truncate(bias, obs, ntraj, cfg.Data.TrajLen)
	if err != nil {
		return err
	}
	res, err := unbias.Solve(bias, whamOptions(cfg))
	if err != nil {
		return err
	}
	if !res.Converged(cfg.WHAM.Threshold) {
		log.Printf("WARNING: WHAM did not converge: residual %g after %d iterations (threshold %g)",
			res.Residual, res.Iterations, cfg.WHAM.Threshold)
	} else {
		log.Printf("WHAM converged in %d iterations, residual %g", res.Iterations, res.Residual)
	}
	in, out, err := unbias.Populations(obs, res.LogW, unbias.Window(cfg.State.Min, cfg.State.Max))
	if err != nil {
		return err
	}
	dF := unbias.FreeEnergyDiff(cfg.KT(), in, out)
	fmt.Printf("population in state:  %g\n", in)
	fmt.Printf("population out:       %g\n", out)
	fmt.Printf("Delta F (in - out):   %g\n", dF)
	times := make([]float64, len(obs))
	for i := range times {
		times[i] = float64(i)
	}
	outfile := filepath.Join(cfg.Output.Dir, "bias_multi.dat")
	if err := plumed.WriteTable(outfile, []string{"time", cfg.Data.ObsField, "logweights"}, times, obs, res.LogW); err != nil {
		return err
	}
	log.Printf("log-weights written to %s", outfile)
	if cfg.Output.FESBins > 0 {
		lo := cfg.Umbrellas.Min
		hi := cfg.Umbrellas.Min + cfg.Umbrellas.Step*float64(cfg.Umbrellas.Count-1)
		edges, err := unbias.BinEdges(lo, hi, cfg.Output.FESBins)
		if err != nil {
			return err
		}
		fes, err := unbias.HistogramFES(obs, res.LogW, edges, cfg.KT())
		if err != nil {
			return err
		}
		fesfile := filepath.Join(cfg.Output.Dir, "fes_hist.dat")
		if err := plumed.WriteTable(fesfile, []string{cfg.Data.ObsField, "fes"}, unbias.BinCenters(edges), fes); err != nil {
			return err
		}
		log.Printf("histogram free-energy surface written to %s", fesfile)
		if cfg.Output.Plot {
			name := filepath.Join(cfg.Output.Dir, "fes_hist")
			if err := unbiasplot.FES(unbias.BinCenters(edges), fes, nil, "free-energy surface (weighted histogram)", name); err != nil {
				return err
			}
		}
	}
	return nil
}

func runDiffusion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if cfg.Diffusion.Dt <= 0 || cfg.Diffusion.Stride < 1 {
		return fmt.Errorf("diffusion.dt and diffusion.stride must be set")
	}
	centers := plumed.CenterGrid(cfg.Umbrellas.Min, cfg.Umbrellas.Step, cfg.Umbrellas.Count)
	paths, err := plumed.DiscoverColvar(cfg.Diffusion.Dir, cfg.Diffusion.Prefix, centers)
	if err != nil {
		return err
	}
	est := &diffusion.Estimator{
		Steps:  cfg.Diffusion.Steps,
		Dt:     cfg.Diffusion.Dt,
		Stride: cfg.Diffusion.Stride,
	}
	diff := make([]float64, len(paths))
	avg := make([]float64, len(paths))
	var failed []string
	for i, p := range paths {
		tab, err := plumed.ReadTable(p)
		if err != nil {
			return err
		}
		x, err := tab.Col(cfg.Diffusion.PosField)
		if err != nil {
			return err
		}
		avg[i] = meanPos(x, cfg.Diffusion.Periodic)
		d, err := est.Compute(x)
		if err != nil {
			//one bad umbrella does not sink the batch, but it must be
			//reported at the end
			var derr *diffusion.DecorrelationError
			if errors.As(err, &derr) {
				log.Printf("umbrella %s: %v, skipping", plumed.CenterLabel(centers[i]), err)
				failed = append(failed, plumed.CenterLabel(centers[i]))
				diff[i] = math.NaN()
				continue
			}
			return fmt.Errorf("umbrella %s: %w", plumed.CenterLabel(centers[i]), err)
		}
		diff[i] = d
		log.Printf("umbrella %s: D = %g, <x> = %g", plumed.CenterLabel(centers[i]), d, avg[i])
	}
	if err := plumed.WriteArray(filepath.Join(cfg.Output.Dir, "diff_arr.dat"), diff); err != nil {
		return err
	}
	if err := plumed.WriteArray(filepath.Join(cfg.Output.Dir, "avg_arr.dat"), avg); err != nil {
		return err
	}
	fmt.Printf("%d umbrellas done, %d skipped\n", len(paths)-len(failed), len(failed))
	if len(failed) > 0 {
		fmt.Println("skipped (no autocorrelation decay):", failed)
	}
	return nil
}

//meanPos averages a position series, folding the result back into
//(-pi,pi] when the coordinate is periodic.
func meanPos(x []float64, periodic bool) float64 {
	var m float64
	for _, v := range x {
		m += v
	}
	m /= float64(len(x))
	if periodic {
		if m > math.Pi {
			m -= 2 * math.Pi
		} else if m < -math.Pi {
			m += 2 * math.Pi
		}
	}
	return m
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bias, obs, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	rows, ntraj := bias.Dims()
	blocks, err := bootstrap.Partition(bias, obs, ntraj, cfg.Data.TrajLen, cfg.Bootstrap.Blocks)
	if err != nil {
		return err
	}
	log.Printf("loaded %d frames, %d umbrellas; %d frames ignored by the block partition",
		rows, ntraj, blocks.Ignored(rows))

	report, err := plumed.CreateReport(filepath.Join(cfg.Output.Dir,
		fmt.Sprintf("bootstrap_c%d_N%d.txt", cfg.Bootstrap.Cycles, cfg.Bootstrap.Blocks)))
	if err != nil {
		return err
	}
	defer report.Close()
	report.Section("%d BOOTSTRAP CYCLES WITH %d BLOCKS\n\nignored points: %d",
		cfg.Bootstrap.Cycles, cfg.Bootstrap.Blocks, blocks.Ignored(rows))

	//reference estimate on the unresampled data
	inState := unbias.Window(cfg.State.Min, cfg.State.Max)
	obias, oobs := blocks.Original()
	res, err := unbias.Solve(obias, whamOptions(cfg))
	if err != nil {
		return err
	}
	if !res.Converged(cfg.WHAM.Threshold) {
		log.Printf("WARNING: reference WHAM did not converge: residual %g after %d iterations", res.Residual, res.Iterations)
	}
	in, out, err := unbias.Populations(oobs, res.LogW, inState)
	if err != nil {
		return err
	}
	dF := unbias.FreeEnergyDiff(cfg.KT(), in, out)
	report.Section("From trajectory:\nP_in = %g\nP_out = %g\nDelta F (in-out) = %g", in, out, dF)

	var driver bootstrap.Driver
	var refFES []float64
	if cfg.Driver.Enabled {
		pd := &plumed.Driver{
			Plumed:   cfg.Driver.Plumed,
			Input:    cfg.Driver.Input,
			KT:       cfg.KT(),
			Dir:      cfg.Output.Dir,
			TrajName: cfg.Driver.TrajName,
			FESName:  cfg.Driver.FESName,
			ObsField: cfg.Data.ObsField,
			FESField: cfg.Driver.FESField,
			Timeout:  time.Duration(cfg.Driver.Timeout * float64(time.Second)),
			Verbose:  cfg.WHAM.Verbose,
			Logger:   log.Default(),
		}
		driver = pd
		refFES, err = pd.FES(ctx, oobs, res.LogW)
		if err != nil {
			return fmt.Errorf("reference free-energy surface: %w", err)
		}
	}

	engine := &bootstrap.Engine{
		Blocks:  blocks,
		Cycles:  cfg.Bootstrap.Cycles,
		Workers: cfg.Bootstrap.Workers,
		Seed:    cfg.Bootstrap.Seed,
		KT:      cfg.KT(),
		InState: inState,
		WHAM:    whamOptions(cfg),
		Driver:  driver,
		Verbose: cfg.WHAM.Verbose,
		Logger:  log.Default(),
	}
	start := time.Now()
	samples, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("%d cycles in %v", len(samples), time.Since(start).Round(time.Second))
	for _, s := range samples {
		if s.Err != nil {
			report.Section("cycle %d FAILED: %v", s.Cycle, s.Err)
			continue
		}
		report.Section("Bootstrap cycle %d\npopIn = %g\npopOut = %g\ndeltaF = %g", s.Cycle, s.PopIn, s.PopOut, s.DeltaF)
	}

	errs, err := bootstrap.Reduce(samples)
	if err != nil {
		return err
	}
	var seqIn, seqOut, seqF []float64
	for _, s := range samples {
		if s.Err != nil {
			continue
		}
		seqIn = append(seqIn, s.PopIn)
		seqOut = append(seqOut, s.PopOut)
		seqF = append(seqF, s.DeltaF)
	}
	outDir := cfg.Output.Dir
	tag := fmt.Sprintf("_%d_%d", cfg.Bootstrap.Cycles, cfg.Bootstrap.Blocks)
	if err := plumed.WriteArray(filepath.Join(outDir, "popIn_bootstrap"+tag+".dat"), seqIn); err != nil {
		return err
	}
	if err := plumed.WriteArray(filepath.Join(outDir, "popOut_bootstrap"+tag+".dat"), seqOut); err != nil {
		return err
	}
	if err := plumed.WriteArray(filepath.Join(outDir, "deltaF_bootstrap"+tag+".dat"), seqF); err != nil {
		return err
	}
	if errs.FES != nil {
		if err := plumed.WriteArray(filepath.Join(outDir, "error_ff_bootstrap"+tag+".dat"), errs.FES); err != nil {
			return err
		}
	}

	report.Section("From bootstrapping with %d blocks (%d good cycles, %d failed):\nerror P_in = %g\nerror P_out = %g\nerror Delta F = %g",
		cfg.Bootstrap.Blocks, errs.Cycles, len(errs.Failed), errs.PopIn, errs.PopOut, errs.DeltaF)
	fmt.Printf("P_in = %g +- %g\n", in, errs.PopIn)
	fmt.Printf("P_out = %g +- %g\n", out, errs.PopOut)
	fmt.Printf("Delta F = %g +- %g\n", dF, errs.DeltaF)
	if len(errs.Failed) > 0 {
		fmt.Printf("failed cycles: %v\n", errs.Failed)
	}

	if cfg.Output.Plot && refFES != nil && errs.FES != nil {
		grid := plumed.CenterGrid(cfg.Output.FESMin, cfg.Output.FESStep, len(refFES))
		name := filepath.Join(outDir, "fes"+tag)
		if err := unbiasplot.FES(grid, refFES, errs.FES, "free-energy surface", name); err != nil {
			return err
		}
		log.Printf("surface plot written to %s.png", name)
	}
	return nil
}
