// Package config loads the YAML run configuration driving a curation
// and fit-generation pass.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds one curation run.
type Config struct {
	// InitialFF is the path to the starting OFFXML force field.
	InitialFF string `yaml:"initial_ff"`

	// OptDatasets and TDDatasets list the serialized result
	// collections. Exactly one of each is supported.
	OptDatasets []string `yaml:"opt_datasets"`
	TDDatasets  []string `yaml:"td_datasets"`

	// RingTorsions is the path to the in-ring torsion exception list.
	// Empty means no exceptions.
	RingTorsions string `yaml:"ring_torsions"`

	// DoMSM enables the Seminario pass before fit generation.
	DoMSM bool `yaml:"do_msm"`

	// SmartsToExclude and SmilesToExclude are optional exclusion-list
	// paths applied to both training sets.
	SmartsToExclude string `yaml:"smarts_to_exclude"`
	SmilesToExclude string `yaml:"smiles_to_exclude"`

	// MinCoverage is the record count a parameter needs to be selected
	// for fitting.
	MinCoverage int `yaml:"min_coverage"`

	// Tag names the generated optimization.
	Tag string `yaml:"tag"`

	// OutputDirectory is the root of the generated fitting input.
	OutputDirectory string `yaml:"output_directory"`

	// ArchiveURL and CachePath configure the record client.
	ArchiveURL string `yaml:"archive_url"`
	CachePath  string `yaml:"cache_path"`

	// ForceBalance knobs.
	MaxIterations int `yaml:"max_iterations"`
	Port          int `yaml:"port"`
}

// DefaultConfig returns the defaults a config file overrides.
func DefaultConfig() *Config {
	return &Config{
		MinCoverage:     5,
		Tag:             "fb-fit",
		OutputDirectory: "output",
		ArchiveURL:      "https://api.qcarchive.molssi.org:443",
		CachePath:       ".cache/records.sqlite",
		MaxIterations:   50,
		Port:            55387,
	}
}

// Load reads a config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for usability.
func (c *Config) Validate() error {
	if c.InitialFF == "" {
		return fmt.Errorf("config: initial_ff is required")
	}
	if len(c.OptDatasets) != 1 {
		return fmt.Errorf("config: exactly one opt dataset can be used, got %d", len(c.OptDatasets))
	}
	if len(c.TDDatasets) != 1 {
		return fmt.Errorf("config: exactly one td dataset can be used, got %d", len(c.TDDatasets))
	}
	if c.MinCoverage < 0 {
		return fmt.Errorf("config: min_coverage must not be negative, got %d", c.MinCoverage)
	}
	return nil
}
