package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//Default physical constants and run parameters. They only seed the Config;
//nothing reads them at run time.
const (
	DefaultKB          = 0.008314462618 //kJ/(mol K)
	DefaultTemperature = 300.0          //K
	DefaultMaxIter     = 5000
	DefaultThreshold   = 1e-8
	DefaultBlocks      = 20
	DefaultCycles      = 200
)

//Config collects everything the original analysis kept as module-level
//constants: simulation temperature, the umbrella grid, file conventions,
//solver and bootstrap parameters. It is loaded once and passed down
//explicitly; there is no global state.
type Config struct {
	KB          float64 `yaml:"kb"`          //Boltzmann constant in energy units per K
	Temperature float64 `yaml:"temperature"` //K

	Umbrellas struct {
		Min   float64 `yaml:"min"`  //first center
		Step  float64 `yaml:"step"` //center spacing
		Count int     `yaml:"count"`
	} `yaml:"umbrellas"`

	Data struct {
		Dir       string `yaml:"dir"`        //where the COLVAR files live
		Prefix    string `yaml:"prefix"`     //file prefix, e.g. ALLCOLVAR
		BiasField string `yaml:"bias_field"` //e.g. restraint-phi.bias
		ObsField  string `yaml:"obs_field"`  //e.g. phi
		TrajLen   int    `yaml:"traj_len"`   //frames per umbrella to keep
	} `yaml:"data"`

	WHAM struct {
		MaxIter   int     `yaml:"max_iter"`
		Threshold float64 `yaml:"threshold"`
		Verbose   bool    `yaml:"verbose"`
	} `yaml:"wham"`

	//State is the window on the reaction coordinate defining the "in"
	//state (e.g. the cis basin of a dihedral).
	State struct {
		Min float64 `yaml:"min"`
		Max float64 `yaml:"max"`
	} `yaml:"state"`

	Bootstrap struct {
		Blocks  int   `yaml:"blocks"`
		Cycles  int   `yaml:"cycles"`
		Workers int   `yaml:"workers"`
		Seed    int64 `yaml:"seed"`
	} `yaml:"bootstrap"`

	Diffusion struct {
		Dir      string  `yaml:"dir"`       //COLVAR directory (per-umbrella runs)
		Prefix   string  `yaml:"prefix"`    //e.g. COLVAR
		PosField string  `yaml:"pos_field"` //position column, e.g. phi
		Steps    int     `yaml:"steps"`     //recorded steps per umbrella
		Dt       float64 `yaml:"dt"`        //ps
		Stride   int     `yaml:"stride"`    //timesteps between records
		Periodic bool    `yaml:"periodic"`  //fold averages into (-pi,pi]
	} `yaml:"diffusion"`

	Driver struct {
		Enabled  bool    `yaml:"enabled"`
		Plumed   string  `yaml:"plumed"` //executable; default "plumed"
		Input    string  `yaml:"input"`  //static reweighting script
		FESField string  `yaml:"fes_field"`
		TrajName string  `yaml:"traj_name"` //file name the script reads
		FESName  string  `yaml:"fes_name"`  //file name the script writes
		Timeout  float64 `yaml:"timeout"`   //seconds per round-trip, 0 = none
	} `yaml:"driver"`

	Output struct {
		Dir string `yaml:"dir"`
		//FESBins > 0 makes the wham command write an in-process
		//weighted-histogram free-energy surface over the umbrella range
		FESBins int  `yaml:"fes_bins"`
		Plot    bool `yaml:"plot"`
		//grid of the free-energy surface the driver produces, for plotting
		FESMin  float64 `yaml:"fes_min"`
		FESStep float64 `yaml:"fes_step"`
	} `yaml:"output"`
}

func defaultConfig() *Config {
	c := &Config{KB: DefaultKB, Temperature: DefaultTemperature}
	c.Data.BiasField = "restraint-phi.bias"
	c.Data.ObsField = "phi"
	c.WHAM.MaxIter = DefaultMaxIter
	c.WHAM.Threshold = DefaultThreshold
	c.State.Min = -1.6
	c.State.Max = 1.6
	c.Bootstrap.Blocks = DefaultBlocks
	c.Bootstrap.Cycles = DefaultCycles
	c.Bootstrap.Seed = 1
	c.Diffusion.PosField = "phi"
	c.Diffusion.Stride = 1
	c.Output.Dir = "."
	return c
}

func loadConfig(path string) (*Config, error) {
	c := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if c.Umbrellas.Count < 1 {
		return nil, fmt.Errorf("%s: umbrellas.count must be at least 1", path)
	}
	if c.Temperature <= 0 || c.KB <= 0 {
		return nil, fmt.Errorf("%s: temperature and kb must be positive", path)
	}
	return c, nil
}

//KT returns the thermal energy in the configured energy units.
func (c *Config) KT() float64 {
	return c.KB * c.Temperature
}
