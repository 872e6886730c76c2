package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const (
	defaultConfigPath = "~/.config/fitsmatch/config.json"

	BackendMontage = "montage"
	BackendRegrid  = "regrid"
)

// Config holds user-editable settings for fitsmatch.
type Config struct {
	Logging  Logging  `json:"logging" envPrefix:"FITSMATCH_LOG_"`
	Backends Backends `json:"backends" envPrefix:"FITSMATCH_"`
	Match    Match    `json:"match" envPrefix:"FITSMATCH_MATCH_"`
	Paths    Paths    `json:"paths" envPrefix:"FITSMATCH_"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level" env:"LEVEL"`             // debug, info, warn, error
	Format     string `json:"format" env:"FORMAT"`           // text, json
	FileOutput bool   `json:"file_output" env:"FILE_OUTPUT"` // Enable file logging
	LogDir     string `json:"log_dir" env:"DIR"`             // Directory for log files
}

// Backends selects and tunes the reprojection backends.
type Backends struct {
	Preferred string        `json:"preferred" env:"BACKEND"` // "montage", "regrid"
	Fallbacks []string      `json:"fallbacks" env:"FALLBACKS"`
	Montage   MontageConfig `json:"montage" envPrefix:"MONTAGE_"`
	Regrid    RegridConfig  `json:"regrid" envPrefix:"REGRID_"`
}

type MontageConfig struct {
	Enabled   bool     `json:"enabled" env:"ENABLED"`
	Binary    string   `json:"binary" env:"BINARY"`
	HDU       int      `json:"hdu" env:"HDU"`
	TempDir   string   `json:"temp_dir" env:"TEMP_DIR"`
	ExtraArgs []string `json:"extra_args" env:"EXTRA_ARGS"`
}

type RegridConfig struct {
	Enabled bool `json:"enabled" env:"ENABLED"`
	Order   int  `json:"order" env:"ORDER"`
	// Fill is the value outside the source footprint; unset means NaN.
	Fill *float64 `json:"fill,omitempty" env:"FILL"`
}

// FillValue returns Fill or NaN.
func (r RegridConfig) FillValue() float64 {
	if r.Fill == nil {
		return math.NaN()
	}
	return *r.Fill
}

// Match holds defaults for the match command.
type Match struct {
	SigmaCut     float64 `json:"sigma_cut" env:"SIGMA_CUT"`
	OutputDir    string  `json:"output_dir" env:"OUTPUT_DIR"`
	OutputSuffix string  `json:"output_suffix" env:"OUTPUT_SUFFIX"`
}

// Paths configures default locations.
type Paths struct {
	DefaultOutput string `json:"default_output" env:"OUTPUT"`
}

// Load reads configuration from disk, falling back to sensible defaults,
// then applies FITSMATCH_* environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("FITSMATCH_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		dec := json.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", expanded, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports settings that would make every command fail.
func (c *Config) Validate() error {
	var errs []error
	known := map[string]bool{BackendMontage: true, BackendRegrid: true}
	for _, name := range c.Backends.Order() {
		if !known[name] {
			errs = append(errs, fmt.Errorf("unknown backend %q", name))
		}
	}
	if !c.Backends.Montage.Enabled && !c.Backends.Regrid.Enabled {
		errs = append(errs, errors.New("no reprojection backend enabled"))
	}
	if o := c.Backends.Regrid.Order; o != 0 && o != 1 {
		errs = append(errs, fmt.Errorf("regrid order must be 0 or 1, got %d", o))
	}
	if c.Match.SigmaCut < 0 {
		errs = append(errs, fmt.Errorf("sigma cut must not be negative, got %g", c.Match.SigmaCut))
	}
	return errors.Join(errs...)
}

// Order returns the preferred backend followed by the fallbacks, without
// duplicates.
func (b Backends) Order() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range append([]string{b.Preferred}, b.Fallbacks...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Backends: Backends{
			Preferred: BackendMontage,
			Fallbacks: []string{BackendRegrid},
			Montage: MontageConfig{
				Enabled: true,
				Binary:  "mProject",
				TempDir: os.TempDir(),
			},
			Regrid: RegridConfig{
				Enabled: true,
				Order:   1,
			},
		},
		Match: Match{
			OutputSuffix: "_matched",
		},
		Paths: Paths{
			DefaultOutput: ".",
		},
	}
}

// Default returns the built-in configuration without reading the file or
// environment.
func Default() *Config {
	return defaultConfig()
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}

// ExpandUser resolves a leading ~ to the home directory.
func ExpandUser(path string) (string, error) {
	return expandUser(path)
}
