package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/testimpact/internal/analyzer"
	"github.com/standardbeagle/testimpact/internal/block"
	"github.com/standardbeagle/testimpact/internal/config"
	"github.com/standardbeagle/testimpact/internal/diag"
	"github.com/standardbeagle/testimpact/internal/fuzzy"
	"github.com/standardbeagle/testimpact/internal/index"
	"github.com/standardbeagle/testimpact/internal/runner"
	"github.com/standardbeagle/testimpact/internal/session"
	"github.com/standardbeagle/testimpact/internal/tracer"
	"github.com/standardbeagle/testimpact/internal/types"
	"github.com/standardbeagle/testimpact/internal/version"
	"github.com/standardbeagle/testimpact/internal/watch"
	"github.com/standardbeagle/testimpact/pkg/pathutil"
)

// Version is surfaced to cli.App; kept as a package var the way the
// teacher's cmd/lci/main.go aliases version.Version for the --version flag.
var Version = version.Version

// loadConfigWithOverrides loads the project config and applies the global
// CLI flag overrides on top, mirroring the teacher's
// loadConfigWithOverrides: config first, flags win.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, string, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("resolving root %s: %w", root, err)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", abs, err)
	}

	if inc := c.StringSlice("include"); len(inc) > 0 {
		cfg.Include = inc
	}
	if exc := c.StringSlice("exclude"); len(exc) > 0 {
		cfg.Exclude = config.DeduplicatePatterns(append(cfg.Exclude, exc...))
	}

	return cfg, abs, nil
}

// openIndex opens and loads the dependency index for the resolved
// variant, per spec.md §4.C open/load.
func openIndex(cfg *config.Config, root string) (*index.Index, index.Snapshot, types.Variant, error) {
	idx, err := index.Open(root)
	if err != nil {
		return nil, index.Snapshot{}, "", err
	}
	variant, err := cfg.ResolveVariant()
	if err != nil {
		_ = idx.Close()
		return nil, index.Snapshot{}, "", err
	}
	snap, err := idx.Load(variant)
	if err != nil {
		_ = idx.Close()
		return nil, index.Snapshot{}, "", err
	}
	return idx, snap, variant, nil
}

// snapshotToRecords converts a Snapshot's TestRecords into the shape
// internal/analyzer consumes.
func snapshotToRecords(snap index.Snapshot) map[types.TestId]analyzer.TestRecord {
	out := make(map[types.TestId]analyzer.TestRecord, len(snap.TestRecords))
	for testID, record := range snap.TestRecords {
		out[testID] = record
	}
	return out
}

// trackedFiles returns every file any TestRecord in the snapshot depends
// on, the re-parse worklist for the change analyzer (spec.md §4.D
// `current_fingerprints`: "for every file that has been re-parsed this
// run").
func trackedFiles(snap index.Snapshot) []types.FilePath {
	seen := make(map[types.FilePath]struct{})
	for _, record := range snap.TestRecords {
		for file := range record {
			seen[file] = struct{}{}
		}
	}
	files := make([]types.FilePath, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	return files
}

func runAffectedAnalysis(cfg *config.Config, idx *index.Index, snap index.Snapshot, parser *block.Parser) (unaffectedTests map[types.TestId]analyzer.TestRecord, affectedTests []types.TestId, err error) {
	files := trackedFiles(snap)
	fingerprints, err := analyzer.Reparse(files, parser, cfg.Performance.ParallelFileWorkers)
	if err != nil {
		return nil, nil, err
	}

	records := snapshotToRecords(snap)
	unaffectedTests, _ = analyzer.Unaffected(records, fingerprints)

	for testID := range records {
		if _, ok := unaffectedTests[testID]; !ok {
			affectedTests = append(affectedTests, testID)
		}
	}
	return unaffectedTests, affectedTests, nil
}

func main() {
	app := &cli.App{
		Name:                   "testimpact",
		Usage:                  "Test-impact analysis: skip tests unaffected by your changes",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Usage: "project root to analyze",
				Value: ".",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "glob patterns of files to track (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "glob patterns of files to never track",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable diagnostic logging to a temp file",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				path, err := diag.InitLogFile()
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "diagnostic log: %s\n", path)
				diag.EnableDiag = "true"
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return diag.Close()
		},
		Commands: []*cli.Command{
			runCommand(),
			affectedCommand(),
			gcCommand(),
			inspectCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "testimpact: %v\n", err)
		os.Exit(1)
	}
}

// runCommand implements spec.md §1's end-to-end loop: classify the
// indexed tests as affected/unaffected, run only the affected ones (plus
// any untracked test) through a real runner, and stage each run's
// tracking session into the index before a single flush.
func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the tests affected by changes since the last recorded run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "pkg",
				Usage:    "package path passed to `go test`",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "coverage profile scratch path",
				Value: ".testimpact.cover.out",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, root, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			idx, snap, _, err := openIndex(cfg, root)
			if err != nil {
				return err
			}
			defer idx.Close()

			parser := block.NewParser()
			unaffectedTests, _, err := runAffectedAnalysis(cfg, idx, snap, parser)
			if err != nil {
				return err
			}

			pkgPath := c.String("pkg")
			profilePath := filepath.Join(root, c.String("profile"))
			r := &runner.GoTestRunner{PkgPath: pkgPath, CoverProfile: profilePath}
			allTests, err := r.Tests()
			if err != nil {
				return err
			}

			tr := &session.Tracker{
				Tracer:  tracer.NewGoVetTracer(profilePath),
				Parser:  parser,
				Index:   idx,
				Include: cfg.Include,
				Omit:    cfg.Exclude,
			}

			ran, skipped := 0, 0
			for _, testID := range allTests {
				if _, unaffected := unaffectedTests[testID]; unaffected {
					skipped++
					continue
				}
				ran++
				err := tr.Track(testID, pkgPath, func() error {
					result, runErr := r.Run(testID)
					idx.RecordTest(testID, nil, mustPayload(result))
					return runErr
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", testID, err)
				}
			}

			if err := idx.Flush(); err != nil {
				return err
			}
			fmt.Printf("ran %d, skipped %d unaffected\n", ran, skipped)
			return nil
		},
	}
}

func mustPayload(result runner.Result) json.RawMessage {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return payload
}

// affectedCommand implements the read-only classification spec.md §4.D
// describes, without driving any test runner — useful for CI gating and
// for inspecting what a pending change would skip.
func affectedCommand() *cli.Command {
	return &cli.Command{
		Name:  "affected",
		Usage: "print the affected and unaffected test sets without running anything",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "emit machine-readable JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg, root, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			idx, snap, _, err := openIndex(cfg, root)
			if err != nil {
				return err
			}
			defer idx.Close()

			parser := block.NewParser()
			unaffectedTests, affectedTests, err := runAffectedAnalysis(cfg, idx, snap, parser)
			if err != nil {
				return err
			}

			unaffectedIDs := make([]types.TestId, 0, len(unaffectedTests))
			for testID := range unaffectedTests {
				unaffectedIDs = append(unaffectedIDs, testID)
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				return enc.Encode(struct {
					Affected   []types.TestId `json:"affected"`
					Unaffected []types.TestId `json:"unaffected"`
				}{Affected: affectedTests, Unaffected: unaffectedIDs})
			}

			fmt.Printf("affected (%d):\n", len(affectedTests))
			for _, id := range affectedTests {
				fmt.Printf("  %s\n", id)
			}
			fmt.Printf("unaffected (%d):\n", len(unaffectedIDs))
			for _, id := range unaffectedIDs {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}
}

// gcCommand implements spec.md §4.C gc(live_test_ids), sourcing the
// complete live-test set from a real `go test -list` against pkg per
// spec.md §9's "never infer liveness from a partial run" guard.
func gcCommand() *cli.Command {
	return &cli.Command{
		Name:  "gc",
		Usage: "remove recorded tests no longer present in the suite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pkg", Usage: "package path passed to `go test -list`", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, root, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			idx, _, _, err := openIndex(cfg, root)
			if err != nil {
				return err
			}
			defer idx.Close()

			r := &runner.GoTestRunner{PkgPath: c.String("pkg")}
			liveList, err := r.Tests()
			if err != nil {
				return err
			}
			live := make(map[types.TestId]struct{}, len(liveList))
			for _, id := range liveList {
				live[id] = struct{}{}
			}

			before := len(idx.TestIDs())
			idx.GC(live)
			if err := idx.Flush(); err != nil {
				return err
			}
			after := len(idx.TestIDs())
			fmt.Printf("removed %d stale test record(s)\n", before-after)
			return nil
		},
	}
}

// inspectCommand dumps one test's recorded dependency fingerprint,
// suggesting nearby TestIds via internal/fuzzy when the one requested
// isn't in the index.
func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print one test's recorded file/block dependencies",
		ArgsUsage: "<test-id>",
		Action: func(c *cli.Context) error {
			testID := types.TestId(c.Args().First())
			if testID == "" {
				return cli.Exit("inspect requires a test id argument", 1)
			}

			cfg, root, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			idx, snap, _, err := openIndex(cfg, root)
			if err != nil {
				return err
			}
			defer idx.Close()

			record, ok := snap.TestRecords[testID]
			if !ok {
				suggestions := fuzzy.Suggest(string(testID), idx.TestIDs(), 0.6, 5)
				if len(suggestions) > 0 {
					fmt.Fprintf(os.Stderr, "%s not found; did you mean:\n", testID)
					for _, s := range suggestions {
						fmt.Fprintf(os.Stderr, "  %s\n", s)
					}
				}
				return cli.Exit(fmt.Sprintf("%s not found in index", testID), 1)
			}

			for file, checksums := range record {
				fmt.Printf("%s\n", pathutil.ToRelativeFilePath(file, root))
				for checksum := range checksums {
					fmt.Printf("  %s\n", checksum)
				}
			}
			return nil
		},
	}
}

// watchCommand implements spec.md's continuous-run expansion: re-run the
// affected-test classification whenever a tracked file changes, debounced
// per cfg.Performance.WatchDebounceMs.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "continuously re-classify affected tests as files change",
		Action: func(c *cli.Context) error {
			cfg, root, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			idx, _, variant, err := openIndex(cfg, root)
			if err != nil {
				return err
			}
			defer idx.Close()

			parser := block.NewParser()
			debounce := time.Duration(cfg.Performance.WatchDebounceMs) * time.Millisecond
			if debounce <= 0 {
				debounce = 300 * time.Millisecond
			}

			onChange := func(paths []string) {
				snap, err := idx.Load(variant)
				if err != nil {
					fmt.Fprintf(os.Stderr, "watch: reloading index: %v\n", err)
					return
				}
				_, affected, err := runAffectedAnalysis(cfg, idx, snap, parser)
				if err != nil {
					fmt.Fprintf(os.Stderr, "watch: analysis: %v\n", err)
					return
				}
				fmt.Printf("%d file(s) changed; %d test(s) affected\n", len(paths), len(affected))
				for _, id := range affected {
					fmt.Printf("  %s\n", id)
				}
			}

			w, err := watch.New(root, cfg.Include, cfg.Exclude, debounce, onChange)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return w.Run(ctx)
		},
	}
}
