// Package analyzer implements the change analyzer (spec.md §4.D): it
// classifies indexed tests as affected or unaffected by comparing what
// they recorded against the current block-checksum fingerprint of every
// file re-parsed this run.
package analyzer

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/testimpact/internal/block"
	blockerrors "github.com/standardbeagle/testimpact/internal/errors"
	"github.com/standardbeagle/testimpact/internal/types"
)

// TestRecord mirrors the dependency index's per-test mapping: the set of
// block checksums a test touched per file on its last recorded run.
type TestRecord = map[types.FilePath]map[types.Checksum]struct{}

// FileFingerprint is the set of block checksums currently present in one
// file (spec.md §3).
type FileFingerprint = map[types.Checksum]struct{}

// fileToTests inverts TestId → FilePath → checksums into
// FilePath → TestId → checksums: "what each test expects from each
// file." Built as a fresh map, never as an in-place mutation of its
// input, per spec.md §9 "Flip/invert operation".
func fileToTests(snapshot map[types.TestId]TestRecord) map[types.FilePath]map[types.TestId]FileFingerprint {
	inverted := make(map[types.FilePath]map[types.TestId]FileFingerprint)
	for testID, record := range snapshot {
		for file, expected := range record {
			byTest, ok := inverted[file]
			if !ok {
				byTest = make(map[types.TestId]FileFingerprint)
				inverted[file] = byTest
			}
			copied := make(FileFingerprint, len(expected))
			for c := range expected {
				copied[c] = struct{}{}
			}
			byTest[testID] = copied
		}
	}
	return inverted
}

// Unaffected implements spec.md §4.D exactly: given the last recorded
// snapshot and the current fingerprint of every file re-parsed this run,
// returns the subset of the snapshot (both by test and by file) that
// survives — i.e. every file a surviving test depends on still contains
// every block checksum that test recorded.
//
// A test is unaffected iff, for every re-parsed file it depends on,
// expected ⊆ current (spec.md §4.D property: adding blocks never affects
// a test; only removal or modification of a block it touched does).
// Files not re-parsed this run (mtime unchanged) are simply absent from
// currentFingerprints and never cause their dependents to be marked
// affected here — that fast path is the caller's (the mtime cache's)
// responsibility, not this function's.
func Unaffected(snapshot map[types.TestId]TestRecord, currentFingerprints map[types.FilePath]FileFingerprint) (unaffectedTests map[types.TestId]TestRecord, unaffectedFiles map[types.FilePath]map[types.TestId]FileFingerprint) {
	byFile := fileToTests(snapshot)

	unaffectedTests = make(map[types.TestId]TestRecord, len(snapshot))
	for testID, record := range snapshot {
		unaffectedTests[testID] = record
	}
	unaffectedFiles = make(map[types.FilePath]map[types.TestId]FileFingerprint, len(byFile))
	for file, byTest := range byFile {
		unaffectedFiles[file] = byTest
	}

	for file, current := range currentFingerprints {
		byTest, tracked := byFile[file]
		if !tracked {
			continue
		}
		for testID, expected := range byTest {
			if !isSubset(expected, current) {
				delete(unaffectedTests, testID)
				delete(unaffectedFiles, file)
			}
		}
	}

	return unaffectedTests, unaffectedFiles
}

// isSubset reports whether every checksum in expected is present in current.
func isSubset(expected, current FileFingerprint) bool {
	for c := range expected {
		if _, ok := current[c]; !ok {
			return false
		}
	}
	return true
}

// Reparse computes the current FileFingerprint (spec.md §3: "the set of
// BlockChecksums currently present in a file") of every path in files,
// bounded to workers concurrent re-parses via golang.org/x/sync/errgroup —
// the same structured-concurrency idiom the teacher's integration suite
// uses for bounded parallel work (internal/mcp/integration_test.go's
// errgroup.WithContext + SetLimit), here driving the analyzer's own
// re-parse fan-out instead of concurrent search requests.
//
// A file missing from disk (spec.md §7 FileMissing) yields the empty
// fingerprint rather than an error, per table policy: "Treat as empty
// fingerprint; dependents become affected." A ParseFailure still yields
// the degenerate whole-file fingerprint block.Parser.Parse already
// produces, so it is never an error here either.
func Reparse(files []types.FilePath, parser *block.Parser, workers int) (map[types.FilePath]FileFingerprint, error) {
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		result = make(map[types.FilePath]FileFingerprint, len(files))
	)

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			fp, err := reparseOne(parser, file)
			if err != nil {
				return err
			}
			mu.Lock()
			result[file] = fp
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func reparseOne(parser *block.Parser, file types.FilePath) (FileFingerprint, error) {
	blocks, err := parser.Parse(string(file))
	if err != nil {
		if _, missing := err.(*blockerrors.FileMissingError); missing {
			return FileFingerprint{}, nil
		}
		return nil, err
	}
	fp := make(FileFingerprint, len(blocks))
	for _, b := range blocks {
		fp[b.Checksum] = struct{}{}
	}
	return fp, nil
}
