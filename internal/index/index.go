// Package index implements the dependency index (spec.md §4.C): the
// persistent store of test → file → block-checksum records, per-file
// modification times, and last-run reports, namespaced by Variant.
//
// Grounded on the teacher repo's storage idiom (internal/core's use of a
// single local backing file) and on the mrz1836-mage-x repo's
// pkg/utils/audit.go, which opens a `github.com/mattn/go-sqlite3`-backed
// *sql.DB against a single local file and creates its schema with
// CREATE TABLE IF NOT EXISTS on open — the pattern this package's Open
// follows for spec.md §6's `.testmondata` file.
package index

import (
	"bytes"
	"compress/flate"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	idxerrors "github.com/standardbeagle/testimpact/internal/errors"
	"github.com/standardbeagle/testimpact/internal/types"
)

// FileName is the on-disk name of the index, spec.md §6's ".testmondata".
const FileName = ".testmondata"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dependency_index (
	dataid TEXT PRIMARY KEY,
	data   BLOB NOT NULL
);
`

// Snapshot is one Variant's fully loaded in-memory state (spec.md §3):
// the four attributes a load() populates.
type Snapshot struct {
	TestRecords map[types.TestId]map[types.FilePath]map[types.Checksum]struct{}
	MTimes      map[types.FilePath]int64
	Reports     map[types.TestId]json.RawMessage
	LastFailed  []types.TestId
}

func emptySnapshot() Snapshot {
	return Snapshot{
		TestRecords: make(map[types.TestId]map[types.FilePath]map[types.Checksum]struct{}),
		MTimes:      make(map[types.FilePath]int64),
		Reports:     make(map[types.TestId]json.RawMessage),
		LastFailed:  nil,
	}
}

// staged holds writes accumulated since the last flush, merged into the
// current generation only when flush succeeds — the two-generation
// current/staged model spec.md §9 "Staged vs committed state" calls for,
// replacing the source's ad hoc changed_* mirror.
type staged struct {
	records map[types.TestId]map[types.FilePath]map[types.Checksum]struct{}
	reports map[types.TestId]json.RawMessage
	mtimes  map[types.FilePath]int64
}

func newStaged() staged {
	return staged{
		records: make(map[types.TestId]map[types.FilePath]map[types.Checksum]struct{}),
		reports: make(map[types.TestId]json.RawMessage),
		mtimes:  make(map[types.FilePath]int64),
	}
}

// Index is one open dependency-index store. A single Index serves one
// Variant's loaded Snapshot at a time; callers switch variants by calling
// Load again.
type Index struct {
	mu      sync.Mutex
	db      *sql.DB
	variant types.Variant
	current Snapshot
	staged  staged
}

// Open creates or opens the store at root/.testmondata, per spec.md §4.C
// `open(root_dir)`. Idempotent: calling it again against an already
// initialized file is a no-op beyond re-running CREATE TABLE IF NOT EXISTS.
func Open(root string) (*Index, error) {
	path := filepath.Join(root, FileName)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, idxerrors.NewStoreIOError("open", err)
	}
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, idxerrors.NewStoreIOError("open", err)
	}
	return &Index{db: db, current: emptySnapshot(), staged: newStaged()}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.db.Close()
}

// Load populates the in-memory Snapshot for variant from storage, per
// spec.md §4.C `load(variant)`. Missing attributes default to empty
// rather than erroring.
func (idx *Index) Load(v types.Variant) (Snapshot, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.variant = v
	idx.staged = newStaged()

	snap := emptySnapshot()

	records, err := idx.loadAttr(v, types.AttrNodeData)
	if err != nil {
		return Snapshot{}, err
	}
	if records != nil {
		if err := json.Unmarshal(records, &snap.TestRecords); err != nil {
			return Snapshot{}, idxerrors.NewIndexCorruptError(v, types.AttrNodeData, err)
		}
	}

	mtimes, err := idx.loadAttr(v, types.AttrMTimes)
	if err != nil {
		return Snapshot{}, err
	}
	if mtimes != nil {
		if err := json.Unmarshal(mtimes, &snap.MTimes); err != nil {
			return Snapshot{}, idxerrors.NewIndexCorruptError(v, types.AttrMTimes, err)
		}
	}

	reports, err := idx.loadAttr(v, types.AttrReports)
	if err != nil {
		return Snapshot{}, err
	}
	if reports != nil {
		if err := json.Unmarshal(reports, &snap.Reports); err != nil {
			return Snapshot{}, idxerrors.NewIndexCorruptError(v, types.AttrReports, err)
		}
	}

	lastFailed, err := idx.loadAttr(v, types.AttrLastFailed)
	if err != nil {
		return Snapshot{}, err
	}
	if lastFailed != nil {
		if err := json.Unmarshal(lastFailed, &snap.LastFailed); err != nil {
			return Snapshot{}, idxerrors.NewIndexCorruptError(v, types.AttrLastFailed, err)
		}
	}

	idx.current = snap
	return cloneSnapshot(snap), nil
}

// loadAttr fetches and decompresses one attribute's blob, returning
// (nil, nil) when the row doesn't exist — spec.md §4.C: "Missing
// attributes are not errors."
func (idx *Index) loadAttr(v types.Variant, attribute string) ([]byte, error) {
	dataID := types.DataID(v, attribute)
	var blob []byte
	row := idx.db.QueryRowContext(context.Background(), `SELECT data FROM dependency_index WHERE dataid = ?`, dataID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, idxerrors.NewStoreIOError("load:"+attribute, err)
	}
	raw, err := inflate(blob)
	if err != nil {
		return nil, idxerrors.NewIndexCorruptError(v, attribute, err)
	}
	return raw, nil
}

// RecordTest stages a new or replacement TestRecord and, when reportsDelta
// is non-nil, its report — spec.md §4.C `record_test`.
func (idx *Index) RecordTest(testID types.TestId, record map[types.FilePath]map[types.Checksum]struct{}, reportsDelta json.RawMessage) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.staged.records[testID] = cloneTestRecord(record)
	if reportsDelta != nil {
		idx.staged.reports[testID] = reportsDelta
	}
}

// StageMTime records a staged MTimeMap update applied on Flush —
// spec.md §4.C `stage_mtime(file, mtime)`.
func (idx *Index) StageMTime(file types.FilePath, mtime int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.staged.mtimes[file] = mtime
}

// Flush atomically merges staged changes into current and persists all
// four attributes, per spec.md §4.C: "All four attributes are rewritten;
// partial flushes are forbidden." The staged changes are merged into a
// copy of current, the four writes run inside a single transaction so
// readers observe pre- or post-flush state, never a mix (spec.md §5
// "Suspension points"), and the copy replaces current only once the
// transaction commits.
func (idx *Index) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	merged := cloneSnapshot(idx.current)
	for testID, record := range idx.staged.records {
		merged.TestRecords[testID] = record
	}
	for testID, report := range idx.staged.reports {
		merged.Reports[testID] = report
	}
	for file, mtime := range idx.staged.mtimes {
		merged.MTimes[file] = mtime
	}

	tx, err := idx.db.BeginTx(context.Background(), nil)
	if err != nil {
		return idxerrors.NewStoreIOError("flush", err)
	}

	if err := writeAttr(tx, idx.variant, types.AttrNodeData, merged.TestRecords); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := writeAttr(tx, idx.variant, types.AttrMTimes, merged.MTimes); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := writeAttr(tx, idx.variant, types.AttrReports, merged.Reports); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := writeAttr(tx, idx.variant, types.AttrLastFailed, merged.LastFailed); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return idxerrors.NewStoreIOError("flush", err)
	}

	idx.current = merged
	idx.staged = newStaged()
	return nil
}

// GC removes TestRecords whose TestId is not in liveTestIDs, applying the
// same filter to LastFailed — spec.md §4.C `gc(live_test_ids)`. Per
// spec.md §9, liveTestIDs must be the complete current test inventory;
// never infer liveness from a partial run.
func (idx *Index) GC(liveTestIDs map[types.TestId]struct{}) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for testID := range idx.current.TestRecords {
		if _, live := liveTestIDs[testID]; !live {
			delete(idx.current.TestRecords, testID)
			delete(idx.current.Reports, testID)
		}
	}
	kept := idx.current.LastFailed[:0:0]
	for _, testID := range idx.current.LastFailed {
		if _, live := liveTestIDs[testID]; live {
			kept = append(kept, testID)
		}
	}
	idx.current.LastFailed = kept
}

func writeAttr(tx *sql.Tx, v types.Variant, attribute string, value any) error {
	// encoding/json with sorted map keys (its default for map[string]V,
	// and our map keys here are string-based types) gives the
	// byte-identical serialization spec.md §4.C's persistence format
	// requires; no pack library offers deterministic struct/map
	// serialization, so this is the one place this package reaches past
	// the teacher's stack (see DESIGN.md).
	raw, err := json.Marshal(value)
	if err != nil {
		return idxerrors.NewStoreIOError("flush:"+attribute, err)
	}
	blob, err := deflate(raw)
	if err != nil {
		return idxerrors.NewStoreIOError("flush:"+attribute, err)
	}
	dataID := types.DataID(v, attribute)
	_, err = tx.ExecContext(context.Background(),
		`INSERT INTO dependency_index (dataid, data) VALUES (?, ?)
		 ON CONFLICT(dataid) DO UPDATE SET data = excluded.data`,
		dataID, blob)
	if err != nil {
		return idxerrors.NewStoreIOError("flush:"+attribute, err)
	}
	return nil
}

// deflate compresses raw with a standard general-purpose deflate-class
// codec, per spec.md §4.C. compress/flate has no pack-library
// counterpart — no example repo imports a compression library — so the
// standard library is used directly (DESIGN.md).
func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(blob []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(blob))
	defer r.Close()
	return io.ReadAll(r)
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := emptySnapshot()
	for testID, record := range s.TestRecords {
		out.TestRecords[testID] = cloneTestRecord(record)
	}
	for file, mtime := range s.MTimes {
		out.MTimes[file] = mtime
	}
	for testID, report := range s.Reports {
		out.Reports[testID] = report
	}
	out.LastFailed = append([]types.TestId(nil), s.LastFailed...)
	return out
}

func cloneTestRecord(record map[types.FilePath]map[types.Checksum]struct{}) map[types.FilePath]map[types.Checksum]struct{} {
	out := make(map[types.FilePath]map[types.Checksum]struct{}, len(record))
	for file, checksums := range record {
		inner := make(map[types.Checksum]struct{}, len(checksums))
		for c := range checksums {
			inner[c] = struct{}{}
		}
		out[file] = inner
	}
	return out
}

// TestIDs returns every currently recorded TestId in sorted order, for
// callers (the inspect and gc subcommands) that want deterministic output.
func (idx *Index) TestIDs() []types.TestId {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return sortedTestIDs(idx.current.TestRecords)
}

func sortedTestIDs(m map[types.TestId]map[types.FilePath]map[types.Checksum]struct{}) []types.TestId {
	out := make([]types.TestId, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
