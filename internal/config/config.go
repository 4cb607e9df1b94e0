package config

import (
	"fmt"
	"os"

	"github.com/jaxxstorm/dhtingest/internal/lookup"
	"github.com/jaxxstorm/dhtingest/internal/output"
	"github.com/jaxxstorm/dhtingest/internal/registry"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOutDir          = "."
	DefaultCompression     = string(output.CompressionNone)
	DefaultParallelism     = 2
	DefaultNodeParallelism = 8
	DefaultUnresolvedCIDs  = string(lookup.PolicyDrop)
)

// Config holds the ingestion settings that can live in a YAML file.
type Config struct {
	OutDir          string   `yaml:"out_dir"`
	Compression     string   `yaml:"compression"`
	Parallelism     int      `yaml:"parallelism"`
	NodeParallelism int      `yaml:"node_parallelism"`
	UnresolvedCIDs  string   `yaml:"unresolved_cids"`
	RequiredLogs    []string `yaml:"required_logs"`
	MetricsFile     string   `yaml:"metrics_file,omitempty"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.OutDir == "" {
		cfg.OutDir = DefaultOutDir
	}
	if cfg.Compression == "" {
		cfg.Compression = DefaultCompression
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.NodeParallelism == 0 {
		cfg.NodeParallelism = DefaultNodeParallelism
	}
	if cfg.UnresolvedCIDs == "" {
		cfg.UnresolvedCIDs = DefaultUnresolvedCIDs
	}
	if len(cfg.RequiredLogs) == 0 {
		cfg.RequiredLogs = append([]string{}, registry.DefaultRequiredLogs...)
	}
}

// Validate checks enumerated values and bounds.
func Validate(cfg Config) error {
	if _, err := output.ParseCompression(cfg.Compression); err != nil {
		return err
	}
	if _, err := lookup.ParsePolicy(cfg.UnresolvedCIDs); err != nil {
		return err
	}
	if cfg.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	if cfg.NodeParallelism < 1 {
		return fmt.Errorf("node_parallelism must be at least 1")
	}
	known := map[string]bool{
		registry.LogCIDs:    true,
		registry.LogLookups: true,
		registry.LogPeers:   true,
		registry.LogPublish: true,
	}
	hasCIDs := false
	for _, kind := range cfg.RequiredLogs {
		if !known[kind] {
			return fmt.Errorf("unknown required log %q", kind)
		}
		hasCIDs = hasCIDs || kind == registry.LogCIDs
	}
	if !hasCIDs {
		return fmt.Errorf("required_logs must include %q", registry.LogCIDs)
	}
	return nil
}
