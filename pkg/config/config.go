// Package config loads the tuplelab YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sushant-115/tuplelab/core/optimizer"
	"github.com/sushant-115/tuplelab/core/storage_engine/blockstorage"
	"github.com/sushant-115/tuplelab/core/storage_engine/ingest"
	pagemanager "github.com/sushant-115/tuplelab/core/write_engine/page_manager"
	"github.com/sushant-115/tuplelab/pkg/logger"
	"github.com/sushant-115/tuplelab/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// maxExhaustiveLimit is the widest relation set exhaustive search accepts.
const maxExhaustiveLimit = 16

type StorageConfig struct {
	PageSize    int `yaml:"page_size"`
	NumPointers int `yaml:"num_pointers"`
	// RecordCacheEntries sizes the decoded-record cache. 0 disables it.
	RecordCacheEntries int64 `yaml:"record_cache_entries"`
}

type OptimizerConfig struct {
	MaxExhaustiveRelations int `yaml:"max_exhaustive_relations"`
}

// Config is the root of the configuration file.
type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	Loader    ingest.Config    `yaml:"loader"`
	Optimizer OptimizerConfig  `yaml:"optimizer"`
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			PageSize:           blockstorage.DefaultPageSize,
			NumPointers:        pagemanager.DefaultNumPointers,
			RecordCacheEntries: 1024,
		},
		Loader: ingest.Config{
			Burst:  1,
			Verify: true,
		},
		Optimizer: OptimizerConfig{
			MaxExhaustiveRelations: optimizer.DefaultMaxExhaustiveRelations,
		},
		Logger: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Telemetry: telemetry.Config{
			ServiceName:      "tuplelab",
			TraceSampleRatio: 1.0,
		},
	}
}

// Load reads path on top of Default. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting the components cannot run with.
func (c Config) Validate() error {
	if c.Storage.NumPointers < 1 {
		return fmt.Errorf("storage.num_pointers must be at least 1, got %d", c.Storage.NumPointers)
	}
	if _, err := pagemanager.NewLayout(c.Storage.PageSize, c.Storage.NumPointers); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c.Storage.RecordCacheEntries < 0 {
		return fmt.Errorf("storage.record_cache_entries must not be negative")
	}
	if c.Loader.RatePerSecond < 0 {
		return fmt.Errorf("loader.rate_per_second must not be negative")
	}
	if n := c.Optimizer.MaxExhaustiveRelations; n < 1 || n > maxExhaustiveLimit {
		return fmt.Errorf("optimizer.max_exhaustive_relations must be in [1, %d], got %d", maxExhaustiveLimit, n)
	}
	if _, err := logger.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}
