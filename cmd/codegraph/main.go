// Command codegraph is a thin driver for the analysis core: it builds a
// snapshot of a repository, prints a summary, and optionally watches for
// changes, rebuilding incrementally. The heavy lifting all lives in the
// library packages; this stays deliberately small.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/incremental"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/pipeline"
	"github.com/standardbeagle/codegraph-core/internal/ports"
	"github.com/standardbeagle/codegraph-core/internal/source"
	"github.com/standardbeagle/codegraph-core/internal/taint"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}

	var cfg *config.Config
	if tomlPath := c.String("config-toml"); tomlPath != "" {
		cfg, err = config.LoadTOML(tomlPath)
	} else {
		cfg, err = config.LoadKDL(absRoot)
	}
	if err != nil {
		return nil, err
	}
	cfg.Project.Root = absRoot
	if workers := c.Int("workers"); workers > 0 {
		cfg.Parallel.Workers = workers
	}
	return cfg, cfg.Validate()
}

func buildPipeline(c *cli.Context, cfg *config.Config) (*pipeline.Pipeline, error) {
	var catalog *taint.Catalog
	if rulesPath := c.String("rules"); rulesPath != "" {
		var err error
		catalog, err = taint.LoadCatalog(rulesPath)
		if err != nil {
			return nil, err
		}
	}
	stores := pipeline.Stores{
		IR:      ports.NewMemoryIRStore(),
		Graph:   ports.NewMemoryGraphStore(),
		Vector:  ports.NewMemoryVectorStore(cfg.Vector.SoftDeleteThreshold),
		Lexical: ports.NewMemoryLexicalStore(),
	}
	return pipeline.New(cfg, catalog, nil, stores)
}

func runIndex(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	p, err := buildPipeline(c, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	files, err := source.NewScanner(cfg).Scan()
	if err != nil {
		return err
	}
	snapshot := types.RepoSnapshot{
		RepoID:     filepath.Base(cfg.Project.Root),
		SnapshotID: idcodec.ContentHash([]byte(time.Now().Format(time.RFC3339Nano)))[:16],
		RootPath:   cfg.Project.Root,
	}

	res, err := p.FullBuild(c.Context, snapshot, files)
	if err != nil {
		return err
	}
	printSummary(res)
	return nil
}

func runWatch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	p, err := buildPipeline(c, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	scanner := source.NewScanner(cfg)
	files, err := scanner.Scan()
	if err != nil {
		return err
	}
	snapshot := types.RepoSnapshot{
		RepoID:     filepath.Base(cfg.Project.Root),
		SnapshotID: idcodec.ContentHash([]byte(time.Now().Format(time.RFC3339Nano)))[:16],
		RootPath:   cfg.Project.Root,
	}
	prev, err := p.FullBuild(c.Context, snapshot, files)
	if err != nil {
		return err
	}
	printSummary(prev)

	detector := incremental.NewDetector(cfg.Project.Root)
	manifest := incremental.NewManifest()
	for _, f := range files {
		abs := filepath.Join(cfg.Project.Root, f.Path)
		if info, statErr := os.Stat(abs); statErr == nil {
			manifest.Record(incremental.FileStat{
				Path: f.Path, ModTime: info.ModTime(), Size: info.Size(), Hash: f.ContentHash,
			})
		}
	}

	rebuilds := make(chan []string, 8)
	watcher, err := incremental.NewWatcher(cfg.Project.Root, 250*time.Millisecond, func(paths []string) {
		rebuilds <- paths
	})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Fprintf(c.App.Writer, "watching %s\n", cfg.Project.Root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rebuilds:
			newFiles, scanErr := scanner.Scan()
			if scanErr != nil {
				obslog.Warnf("cli", "rescan failed: %v", scanErr)
				continue
			}
			paths := make([]string, 0, len(newFiles))
			for _, f := range newFiles {
				paths = append(paths, f.Path)
			}
			cs, next, detErr := detector.Detect(manifest, paths)
			if detErr != nil {
				obslog.Warnf("cli", "change detection failed: %v", detErr)
				continue
			}
			if cs.IsEmpty() {
				continue
			}
			res, buildErr := p.IncrementalBuild(ctx, prev, cs, newFiles)
			if buildErr != nil {
				obslog.Warnf("cli", "incremental build failed: %v", buildErr)
				continue
			}
			manifest = next
			prev = res
			printSummary(res)
		}
	}
}

func printSummary(res *pipeline.BuildResult) {
	nodeCount, edgeCount := 0, 0
	for _, doc := range res.Docs {
		nodeCount += len(doc.Nodes)
		edgeCount += len(doc.Edges)
	}
	fmt.Printf("snapshot %s: %d files, %d nodes, %d edges, %d functions, %d findings (%s)\n",
		res.Snapshot.SnapshotID, len(res.Docs), nodeCount, edgeCount,
		len(res.Semantics), len(res.Taint.Findings), res.Elapsed.Round(time.Millisecond))
	if summary := res.ErrorSummary(); summary != nil {
		fmt.Printf("  %d recoverable errors (first: %v)\n", len(summary.Errors), summary.Errors[0])
	}
	for _, f := range res.Taint.Findings {
		fmt.Printf("  [%s] %s %s -> %s (confidence %.2f)\n",
			f.Severity, f.Category, f.SourceOccurrence.Span, f.SinkOccurrence.Span, f.Confidence)
	}
}

func main() {
	app := &cli.App{
		Name:                   "codegraph",
		Usage:                  "Multi-language code intelligence engine",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "repository root to analyze"},
			&cli.StringFlag{Name: "rules", Usage: "taint rule catalog (YAML)"},
			&cli.StringFlag{Name: "config-toml", Usage: "TOML config file (used instead of .codegraph.kdl when set)"},
			&cli.IntFlag{Name: "workers", Usage: "worker count (0 = 75% of CPUs)"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				obslog.SetDebugEnabled(true)
			}
			return nil
		},
		Commands: []*cli.Command{
			{Name: "index", Usage: "full build of the repository snapshot", Action: runIndex},
			{Name: "watch", Usage: "full build, then incremental rebuilds on change", Action: runWatch},
		},
		DefaultCommand: "index",
	}
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "codegraph:", err)
		os.Exit(1)
	}
}
