// Package config defines the engine's single configuration object and its
// loaders. KDL (`.codegraph.kdl`) is the primary source; a TOML loader is
// offered as an alternate for embedding consumers that prefer it.
package config

import (
	"fmt"
	"runtime"
)

// IncrementalMode selects how aggressively the incremental controller
// expands the affected set before escalating to a full rebuild.
type IncrementalMode string

const (
	IncrementalFast     IncrementalMode = "fast"
	IncrementalBalanced IncrementalMode = "balanced"
	IncrementalDeep     IncrementalMode = "deep"
)

// ChunkGranularity selects the unit the chunker (C10) segments the IR into.
type ChunkGranularity string

const (
	GranularityFile      ChunkGranularity = "file"
	GranularityFunction  ChunkGranularity = "function"
	GranularityStatement ChunkGranularity = "statement"
)

// Config is the engine's single configuration object. Every field maps 1:1
// onto a dotted option name (Parallel.Workers == "parallel.workers",
// etc.); the dotted names are what KDL/TOML sources use.
type Config struct {
	Project     Project
	Parallel    Parallel
	Cache       Cache
	TypeEnrich  TypeEnrich
	Heap        Heap
	Taint       Taint
	Incremental Incremental
	Vector      Vector
	Chunk       Chunk
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

// Parallel controls worker pool sizing.
type Parallel struct {
	// Workers is the absolute worker count. Zero means "auto": 75% of
	// available CPUs.
	Workers int
}

// ResolvedWorkers returns Workers, or the 75%-of-CPU default when unset.
func (p Parallel) ResolvedWorkers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	n := int(float64(runtime.NumCPU()) * 0.75)
	if n < 1 {
		n = 1
	}
	return n
}

// CacheTier configures one tier of the three-tier cache.
type CacheTier struct {
	Enabled bool
	MaxSize int64  // entries for L0/L1, bytes for L2
	Path    string // only meaningful for L2
	TTLSec  int
}

type Cache struct {
	L0 CacheTier
	L1 CacheTier
	L2 CacheTier
}

type TypeEnrich struct {
	MaxConcurrent int
	TimeoutSec    int
	FailFast      bool
}

type Heap struct {
	EnableEscape bool
}

type Taint struct {
	ContextK      int
	PathSensitive bool
	SMTEnabled    bool
	MaxPathLen    int
}

type Incremental struct {
	Mode IncrementalMode
}

type Vector struct {
	SoftDeleteThreshold int
}

type Chunk struct {
	Granularity ChunkGranularity
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Parallel: Parallel{Workers: 0},
		Cache: Cache{
			L0: CacheTier{Enabled: true, MaxSize: 10000},
			L1: CacheTier{Enabled: true, MaxSize: 50000},
			L2: CacheTier{Enabled: true, MaxSize: 1 << 30, Path: ".codegraph/cache", TTLSec: 7 * 24 * 3600},
		},
		TypeEnrich: TypeEnrich{MaxConcurrent: 10, TimeoutSec: 30, FailFast: false},
		Heap:       Heap{EnableEscape: true},
		Taint: Taint{
			ContextK:      2,
			PathSensitive: false,
			SMTEnabled:    false,
			MaxPathLen:    64,
		},
		Incremental: Incremental{Mode: IncrementalBalanced},
		Vector:      Vector{SoftDeleteThreshold: 1000},
		Chunk:       Chunk{Granularity: GranularityFunction},
	}
}

// Validate rejects configurations with values a running pipeline cannot
// act on. Loaders call it before returning.
func (c *Config) Validate() error {
	if c.Parallel.Workers < 0 {
		return fmt.Errorf("config: parallel.workers must be >= 0, got %d", c.Parallel.Workers)
	}
	if c.TypeEnrich.MaxConcurrent <= 0 {
		return fmt.Errorf("config: type_enrich.max_concurrent must be > 0, got %d", c.TypeEnrich.MaxConcurrent)
	}
	if c.TypeEnrich.TimeoutSec <= 0 {
		return fmt.Errorf("config: type_enrich.timeout_s must be > 0, got %d", c.TypeEnrich.TimeoutSec)
	}
	if c.Taint.ContextK < 0 {
		return fmt.Errorf("config: taint.context_k must be >= 0, got %d", c.Taint.ContextK)
	}
	if c.Taint.MaxPathLen <= 0 {
		return fmt.Errorf("config: taint.max_path_len must be > 0, got %d", c.Taint.MaxPathLen)
	}
	switch c.Incremental.Mode {
	case IncrementalFast, IncrementalBalanced, IncrementalDeep:
	default:
		return fmt.Errorf("config: incremental.mode must be one of fast|balanced|deep, got %q", c.Incremental.Mode)
	}
	switch c.Chunk.Granularity {
	case GranularityFile, GranularityFunction, GranularityStatement:
	default:
		return fmt.Errorf("config: chunk.granularity must be one of file|function|statement, got %q", c.Chunk.Granularity)
	}
	if c.Vector.SoftDeleteThreshold < 0 {
		return fmt.Errorf("config: vector.soft_delete_threshold must be >= 0, got %d", c.Vector.SoftDeleteThreshold)
	}
	return nil
}
