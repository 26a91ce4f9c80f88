package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads `.codegraph.kdl` from projectRoot. A missing file is not an
// error: it returns the defaults.
func LoadKDL(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".codegraph.kdl")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		cfg.Project.Root = projectRoot
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := Default()
	cfg.Project.Root = projectRoot

	for _, node := range doc.Nodes {
		applyTopLevelNode(cfg, node)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyTopLevelNode(cfg *Config, n *document.Node) {
	switch nodeName(n) {
	case "project":
		for _, c := range n.Children {
			switch nodeName(c) {
			case "root":
				if s, ok := firstStringArg(c); ok {
					cfg.Project.Root = s
				}
			case "name":
				if s, ok := firstStringArg(c); ok {
					cfg.Project.Name = s
				}
			}
		}
	case "parallel":
		for _, c := range n.Children {
			if nodeName(c) == "workers" {
				if v, ok := firstIntArg(c); ok {
					cfg.Parallel.Workers = v
				}
			}
		}
	case "cache":
		for _, c := range n.Children {
			applyCacheTier(&cfg.Cache, c)
		}
	case "type_enrich":
		for _, c := range n.Children {
			switch nodeName(c) {
			case "max_concurrent":
				if v, ok := firstIntArg(c); ok {
					cfg.TypeEnrich.MaxConcurrent = v
				}
			case "timeout_s":
				if v, ok := firstIntArg(c); ok {
					cfg.TypeEnrich.TimeoutSec = v
				}
			case "fail_fast":
				if v, ok := firstBoolArg(c); ok {
					cfg.TypeEnrich.FailFast = v
				}
			}
		}
	case "heap":
		for _, c := range n.Children {
			if nodeName(c) == "enable_escape" {
				if v, ok := firstBoolArg(c); ok {
					cfg.Heap.EnableEscape = v
				}
			}
		}
	case "taint":
		for _, c := range n.Children {
			switch nodeName(c) {
			case "context_k":
				if v, ok := firstIntArg(c); ok {
					cfg.Taint.ContextK = v
				}
			case "path_sensitive":
				if v, ok := firstBoolArg(c); ok {
					cfg.Taint.PathSensitive = v
				}
			case "max_path_len":
				if v, ok := firstIntArg(c); ok {
					cfg.Taint.MaxPathLen = v
				}
			case "smt":
				for _, gc := range c.Children {
					if nodeName(gc) == "enabled" {
						if v, ok := firstBoolArg(gc); ok {
							cfg.Taint.SMTEnabled = v
						}
					}
				}
			}
		}
	case "incremental":
		for _, c := range n.Children {
			if nodeName(c) == "mode" {
				if s, ok := firstStringArg(c); ok {
					cfg.Incremental.Mode = IncrementalMode(s)
				}
			}
		}
	case "vector":
		for _, c := range n.Children {
			if nodeName(c) == "soft_delete_threshold" {
				if v, ok := firstIntArg(c); ok {
					cfg.Vector.SoftDeleteThreshold = v
				}
			}
		}
	case "chunk":
		for _, c := range n.Children {
			if nodeName(c) == "granularity" {
				if s, ok := firstStringArg(c); ok {
					cfg.Chunk.Granularity = ChunkGranularity(s)
				}
			}
		}
	case "include":
		cfg.Include = append(cfg.Include, collectStringArgs(n)...)
	case "exclude":
		cfg.Exclude = append(cfg.Exclude, collectStringArgs(n)...)
	}
}

func applyCacheTier(cache *Cache, n *document.Node) {
	var tier *CacheTier
	switch nodeName(n) {
	case "l0":
		tier = &cache.L0
	case "l1":
		tier = &cache.L1
	case "l2":
		tier = &cache.L2
	default:
		return
	}
	for _, c := range n.Children {
		switch nodeName(c) {
		case "enabled":
			if v, ok := firstBoolArg(c); ok {
				tier.Enabled = v
			}
		case "max_size":
			if v, ok := firstIntArg(c); ok {
				tier.MaxSize = int64(v)
			}
		case "path":
			if s, ok := firstStringArg(c); ok {
				tier.Path = s
			}
		case "ttl":
			if v, ok := firstIntArg(c); ok {
				tier.TTLSec = v
			}
		}
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
