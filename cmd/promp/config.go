package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/gauss"
	"github.com/lucasmaystre/gopromp/kern"
	"github.com/lucasmaystre/gopromp/promp"
	"github.com/lucasmaystre/gopromp/traj"
	"go.uber.org/zap"
)

const envPrefix = "PROMP"

// Config holds the settings shared by every command. Values come from the
// defaults below, then the TOML file given with -config, then PROMP_*
// environment variables.
type Config struct {
	Store   string `toml:"store" envconfig:"STORE"`
	DBPath  string `toml:"db_path" envconfig:"DB_PATH"`
	Debug   bool   `toml:"debug" envconfig:"DEBUG"`
	Workers int    `toml:"workers" envconfig:"WORKERS"`

	Ridge  float64 `toml:"ridge" envconfig:"RIDGE"`
	Jitter float64 `toml:"jitter" envconfig:"JITTER"`
	// Negative disables fitting from a single demonstration.
	SingleDemoVariance float64 `toml:"single_demo_variance" envconfig:"SINGLE_DEMO_VARIANCE"`

	Basis basis.Config `toml:"basis" envconfig:"BASIS"`
}

func defaultConfig() Config {
	return Config{
		Store:              "bolt",
		DBPath:             "promp.db",
		Ridge:              traj.DefaultRidge,
		Jitter:             gauss.DefaultJitter,
		SingleDemoVariance: -1,
		Basis: basis.Config{
			Count:      10,
			Width:      0.1,
			Family:     kern.FamilyGaussian,
			Normalized: true,
		},
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading environment variables: %w", err)
	}
	return cfg, nil
}

func (c Config) primitiveOptions(logger *zap.SugaredLogger) []promp.Option {
	opts := []promp.Option{
		promp.WithRidge(c.Ridge),
		promp.WithJitter(c.Jitter),
		promp.WithWorkers(c.Workers),
		promp.WithLogger(logger),
	}
	if c.SingleDemoVariance >= 0 {
		opts = append(opts, promp.WithSingleDemoPrior(c.SingleDemoVariance))
	}
	return opts
}
