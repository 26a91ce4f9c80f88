package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// tomlDocument mirrors Config with dotted-section TOML tags, so embedding
// consumers that already standardized on TOML can configure the pipeline
// without learning KDL.
type tomlDocument struct {
	Project struct {
		Root string `toml:"root"`
		Name string `toml:"name"`
	} `toml:"project"`
	Parallel struct {
		Workers int `toml:"workers"`
	} `toml:"parallel"`
	Cache struct {
		L0 tomlCacheTier `toml:"l0"`
		L1 tomlCacheTier `toml:"l1"`
		L2 tomlCacheTier `toml:"l2"`
	} `toml:"cache"`
	TypeEnrich struct {
		MaxConcurrent int  `toml:"max_concurrent"`
		TimeoutSec    int  `toml:"timeout_s"`
		FailFast      bool `toml:"fail_fast"`
	} `toml:"type_enrich"`
	Heap struct {
		EnableEscape bool `toml:"enable_escape"`
	} `toml:"heap"`
	Taint struct {
		ContextK      int  `toml:"context_k"`
		PathSensitive bool `toml:"path_sensitive"`
		SMT           struct {
			Enabled bool `toml:"enabled"`
		} `toml:"smt"`
		MaxPathLen int `toml:"max_path_len"`
	} `toml:"taint"`
	Incremental struct {
		Mode string `toml:"mode"`
	} `toml:"incremental"`
	Vector struct {
		SoftDeleteThreshold int `toml:"soft_delete_threshold"`
	} `toml:"vector"`
	Chunk struct {
		Granularity string `toml:"granularity"`
	} `toml:"chunk"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

type tomlCacheTier struct {
	Enabled bool   `toml:"enabled"`
	MaxSize int64  `toml:"max_size"`
	Path    string `toml:"path"`
	TTLSec  int    `toml:"ttl"`
}

// LoadTOML loads a `codegraph.toml` configuration file, overlaying it on the
// defaults. Fields absent from the file keep their Default() value.
func LoadTOML(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc tomlDocument
	cfg := Default()
	doc.fillFrom(cfg)
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	doc.applyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillFrom seeds the TOML document with the current config values so that
// toml.Unmarshal only overwrites fields the file actually sets.
func (d *tomlDocument) fillFrom(cfg *Config) {
	d.Project.Root = cfg.Project.Root
	d.Project.Name = cfg.Project.Name
	d.Parallel.Workers = cfg.Parallel.Workers
	d.Cache.L0 = tomlCacheTier(cfg.Cache.L0)
	d.Cache.L1 = tomlCacheTier(cfg.Cache.L1)
	d.Cache.L2 = tomlCacheTier(cfg.Cache.L2)
	d.TypeEnrich.MaxConcurrent = cfg.TypeEnrich.MaxConcurrent
	d.TypeEnrich.TimeoutSec = cfg.TypeEnrich.TimeoutSec
	d.TypeEnrich.FailFast = cfg.TypeEnrich.FailFast
	d.Heap.EnableEscape = cfg.Heap.EnableEscape
	d.Taint.ContextK = cfg.Taint.ContextK
	d.Taint.PathSensitive = cfg.Taint.PathSensitive
	d.Taint.SMT.Enabled = cfg.Taint.SMTEnabled
	d.Taint.MaxPathLen = cfg.Taint.MaxPathLen
	d.Incremental.Mode = string(cfg.Incremental.Mode)
	d.Vector.SoftDeleteThreshold = cfg.Vector.SoftDeleteThreshold
	d.Chunk.Granularity = string(cfg.Chunk.Granularity)
	d.Include = cfg.Include
	d.Exclude = cfg.Exclude
}

func (d *tomlDocument) applyTo(cfg *Config) {
	cfg.Project.Root = d.Project.Root
	cfg.Project.Name = d.Project.Name
	cfg.Parallel.Workers = d.Parallel.Workers
	cfg.Cache.L0 = CacheTier(d.Cache.L0)
	cfg.Cache.L1 = CacheTier(d.Cache.L1)
	cfg.Cache.L2 = CacheTier(d.Cache.L2)
	cfg.TypeEnrich.MaxConcurrent = d.TypeEnrich.MaxConcurrent
	cfg.TypeEnrich.TimeoutSec = d.TypeEnrich.TimeoutSec
	cfg.TypeEnrich.FailFast = d.TypeEnrich.FailFast
	cfg.Heap.EnableEscape = d.Heap.EnableEscape
	cfg.Taint.ContextK = d.Taint.ContextK
	cfg.Taint.PathSensitive = d.Taint.PathSensitive
	cfg.Taint.SMTEnabled = d.Taint.SMT.Enabled
	cfg.Taint.MaxPathLen = d.Taint.MaxPathLen
	cfg.Incremental.Mode = IncrementalMode(d.Incremental.Mode)
	cfg.Vector.SoftDeleteThreshold = d.Vector.SoftDeleteThreshold
	cfg.Chunk.Granularity = ChunkGranularity(d.Chunk.Granularity)
	cfg.Include = d.Include
	cfg.Exclude = d.Exclude
}
