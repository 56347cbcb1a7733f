// Package session implements the tracking session (spec.md §4.E): it
// drives one test's execution under the coverage tracer and commits the
// resulting dependency record into the index, with guaranteed teardown.
package session

import (
	"github.com/standardbeagle/testimpact/internal/analyzer"
	"github.com/standardbeagle/testimpact/internal/block"
	"github.com/standardbeagle/testimpact/internal/coverage"
	blockerrors "github.com/standardbeagle/testimpact/internal/errors"
	"github.com/standardbeagle/testimpact/internal/index"
	"github.com/standardbeagle/testimpact/internal/tracer"
	"github.com/standardbeagle/testimpact/internal/types"
)

// Tracker orchestrates tracking sessions against one Tracer, Parser and
// Index. A Tracker is reused across every test in a run.
type Tracker struct {
	Tracer        tracer.Tracer
	Parser        *block.Parser
	Index         *index.Index
	Include, Omit []string
}

// RunFunc executes one test, end to end, under the currently active tracer.
type RunFunc func() error

// Track implements spec.md §4.E step by step: start the tracer, run the
// test, stop the tracer and stage whatever record its measurement
// supports into Index. Steps 4 and 7 (stop, stage) execute unconditionally
// via defer — whether run panics, returns an error, or succeeds — the
// same guarantee the grounding original's track_dependencies gives by
// calling stop_and_save from a finally block around callable_to_track()
// (_examples/original_source/testmon/testmon_core.py): a failing or
// panicking run still measured real coverage, and that coverage is still
// worth keeping, while the tracer's start/stop pairing must never leak
// across tests regardless of outcome.
//
// testSourceFile is the test's own source file, used to build the
// sentinel record (spec.md §4.E step 6, §3 invariant 3) when the test
// measured no files.
func (t *Tracker) Track(testID types.TestId, testSourceFile string, run RunFunc) (err error) {
	if startErr := t.Tracer.Start(t.Include, t.Omit); startErr != nil {
		return blockerrors.NewTracerError(testID, startErr)
	}

	var runErr error
	defer func() {
		measured, stopErr := t.Tracer.Stop()
		if stopErr != nil {
			if err == nil && runErr == nil {
				err = blockerrors.NewTracerError(testID, stopErr)
			}
			return
		}

		record, buildErr := t.buildRecord(measured, testSourceFile)
		if buildErr != nil {
			if err == nil && runErr == nil {
				err = buildErr
			}
			return
		}
		t.Index.RecordTest(testID, record, nil)

		// The test's own failure is not this package's concern to
		// classify (spec.md §1: pass/fail is the runner's business) —
		// only propagate it once the record is safely staged.
		if err == nil {
			err = runErr
		}
	}()

	runErr = run()
	return nil
}

// buildRecord converts per-file executed-line sets into the TestRecord
// spec.md §3 describes, falling back to the sentinel entry of step 6 when
// the test measured no files at all.
func (t *Tracker) buildRecord(measured map[types.FilePath]map[int]struct{}, testSourceFile string) (analyzer.TestRecord, error) {
	record := make(analyzer.TestRecord, len(measured))
	for file, lines := range measured {
		blocks, err := t.Parser.Parse(string(file))
		if err != nil {
			// An unparseable file never reaches here: Parser.Parse's own
			// fallback path gives it a degenerate fingerprint. A file the
			// tracer measured but that's now missing is skipped; any other
			// Parse error (e.g. a read failure) is propagated.
			if _, missing := err.(*blockerrors.FileMissingError); missing {
				continue
			}
			return nil, err
		}
		checksums := coverage.Fold(blocks, lines)
		if len(checksums) > 0 {
			record[file] = checksums
		}
	}

	if len(record) == 0 {
		sentinel, err := sentinelChecksum(t.Parser, testSourceFile)
		if err != nil {
			return nil, err
		}
		record[types.FilePath(testSourceFile)] = map[types.Checksum]struct{}{sentinel: {}}
	}

	return record, nil
}

// sentinelChecksum is the checksum of the test source's first block,
// used to pin an empty-coverage test to its own file (spec.md §4.E step 6,
// §9 "Sentinel on empty coverage").
func sentinelChecksum(parser *block.Parser, testSourceFile string) (types.Checksum, error) {
	blocks, err := parser.Parse(testSourceFile)
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return "", nil
	}
	return blocks[0].Checksum, nil
}
