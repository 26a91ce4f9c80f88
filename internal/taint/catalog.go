package taint

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// rawRule is the on-disk form of one catalog entry. The catalog is
// declarative data: the engine compiles it to matchers and never
// interprets rule semantics beyond the matcher form.
type rawRule struct {
	ID       string `yaml:"id"`
	Language string `yaml:"language"`
	FQN      string `yaml:"fqn"`
	BaseType string `yaml:"base_type"`
	Category string `yaml:"category"`
	Label    string `yaml:"label"`
	Severity string `yaml:"severity"`
	CWE      string `yaml:"cwe"`
	ArgIndex int    `yaml:"arg_index"`
}

type rawCatalog struct {
	Rules []rawRule `yaml:"rules"`
}

// LoadCatalog reads and compiles a YAML rule catalog. At startup a file that
// cannot be read or parsed at all is fatal; an individually invalid rule inside an otherwise
// readable catalog is logged and skipped ("invalid at runtime → rule
// ignored").
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewRuleCatalogError(path, err, true)
	}
	return ParseCatalog(raw)
}

// ParseCatalog compiles catalog bytes already in memory (tests, embedded
// defaults).
func ParseCatalog(data []byte) (*Catalog, error) {
	var rc rawCatalog
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, errs.NewRuleCatalogError("catalog", err, true)
	}

	rules := make([]*Rule, 0, len(rc.Rules))
	for _, r := range rc.Rules {
		rule, err := compileRule(r)
		if err != nil {
			obslog.Warnf("taint", "skipping invalid rule %q: %v", r.ID, err)
			continue
		}
		rules = append(rules, rule)
	}
	return Compile(rules), nil
}

func compileRule(r rawRule) (*Rule, error) {
	if r.FQN == "" {
		return nil, fmt.Errorf("rule has no fqn")
	}
	var cat RuleCategory
	switch r.Category {
	case "source":
		cat = types.TaintSource
	case "sink":
		cat = types.TaintSink
	case "propagator":
		cat = types.TaintPropagator
	case "sanitizer":
		cat = types.TaintSanitizer
	default:
		return nil, fmt.Errorf("unknown category %q", r.Category)
	}
	if r.ArgIndex < 0 {
		return nil, fmt.Errorf("arg_index must be >= 0, got %d", r.ArgIndex)
	}
	id := r.ID
	if id == "" {
		id = r.Category + ":" + r.FQN
	}
	return &Rule{
		ID:       id,
		Language: r.Language,
		FQN:      r.FQN,
		BaseType: r.BaseType,
		Category: cat,
		Label:    r.Label,
		Severity: r.Severity,
		CWE:      r.CWE,
		ArgIndex: r.ArgIndex,
	}, nil
}
