package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/testimpact/internal/block"
	"github.com/standardbeagle/testimpact/internal/index"
	"github.com/standardbeagle/testimpact/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTracer struct {
	measured map[types.FilePath]map[int]struct{}
	stopErr  error
}

func (f *fakeTracer) Start(include, omit []string) error { return nil }
func (f *fakeTracer) Stop() (map[types.FilePath]map[int]struct{}, error) {
	return f.measured, f.stopErr
}
func (f *fakeTracer) Erase() {}
func (f *fakeTracer) Combine(other map[types.FilePath]map[int]struct{}) {}

func writeGoFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTrackStagesRecordFromMeasuredLines(t *testing.T) {
	dir := t.TempDir()
	src := writeGoFile(t, dir, "a.go", "package a\n\nfunc F() {\n\tprintln(1)\n}\n")

	idx, err := index.Open(dir)
	require.NoError(t, err)
	defer idx.Close()
	_, err = idx.Load("")
	require.NoError(t, err)

	tr := &Tracker{
		Tracer: &fakeTracer{measured: map[types.FilePath]map[int]struct{}{
			types.FilePath(src): {4: {}},
		}},
		Parser: block.NewParser(),
		Index:  idx,
	}

	ran := false
	err = tr.Track("pkg::TestF", src, func() error { ran = true; return nil })
	require.NoError(t, err)
	assert.True(t, ran)

	require.NoError(t, idx.Flush())
	snap, err := idx.Load("")
	require.NoError(t, err)
	assert.Contains(t, snap.TestRecords, types.TestId("pkg::TestF"))
	assert.Contains(t, snap.TestRecords["pkg::TestF"], types.FilePath(src))
}

func TestTrackFallsBackToSentinelOnEmptyCoverage(t *testing.T) {
	dir := t.TempDir()
	src := writeGoFile(t, dir, "empty_test.go", "package a\n\nfunc TestNothing() {}\n")

	idx, err := index.Open(dir)
	require.NoError(t, err)
	defer idx.Close()
	_, err = idx.Load("")
	require.NoError(t, err)

	tr := &Tracker{
		Tracer: &fakeTracer{measured: nil},
		Parser: block.NewParser(),
		Index:  idx,
	}

	err = tr.Track("pkg::TestNothing", src, func() error { return nil })
	require.NoError(t, err)

	require.NoError(t, idx.Flush())
	snap, err := idx.Load("")
	require.NoError(t, err)
	record := snap.TestRecords["pkg::TestNothing"]
	require.Contains(t, record, types.FilePath(src))
	assert.Len(t, record[types.FilePath(src)], 1)
}

func TestTrackPropagatesTracerStopError(t *testing.T) {
	tr := &Tracker{
		Tracer: &fakeTracer{stopErr: errors.New("boom")},
		Parser: block.NewParser(),
	}
	err := tr.Track("pkg::TestX", "x.go", func() error { return nil })
	require.Error(t, err)
}

// spec.md §4.E: "Exceptional paths must always execute steps 4 and 7" —
// a failing run's coverage is still real data and must still be staged,
// with the run's own error returned afterward rather than discarded.
func TestTrackStagesRecordEvenWhenRunErrors(t *testing.T) {
	dir := t.TempDir()
	src := writeGoFile(t, dir, "a.go", "package a\n\nfunc F() {\n\tprintln(1)\n}\n")

	idx, err := index.Open(dir)
	require.NoError(t, err)
	defer idx.Close()
	_, err = idx.Load("")
	require.NoError(t, err)

	tr := &Tracker{
		Tracer: &fakeTracer{measured: map[types.FilePath]map[int]struct{}{
			types.FilePath(src): {4: {}},
		}},
		Parser: block.NewParser(),
		Index:  idx,
	}

	wantErr := errors.New("test failed")
	err = tr.Track("pkg::TestF", src, func() error { return wantErr })
	assert.Equal(t, wantErr, err)

	require.NoError(t, idx.Flush())
	snap, err := idx.Load("")
	require.NoError(t, err)
	assert.Contains(t, snap.TestRecords, types.TestId("pkg::TestF"),
		"coverage gathered during a failing run must still be staged")
}

// stopTrackingTracer records whether Stop ran, to confirm teardown
// happens even when run panics.
type stopTrackingTracer struct {
	*fakeTracer
	stopped bool
}

func (s *stopTrackingTracer) Stop() (map[types.FilePath]map[int]struct{}, error) {
	s.stopped = true
	return s.fakeTracer.Stop()
}

func TestTrackStopsTracerAndStagesRecordEvenWhenRunPanics(t *testing.T) {
	dir := t.TempDir()
	src := writeGoFile(t, dir, "a.go", "package a\n\nfunc F() {\n\tprintln(1)\n}\n")

	idx, err := index.Open(dir)
	require.NoError(t, err)
	defer idx.Close()
	_, err = idx.Load("")
	require.NoError(t, err)

	tracer := &stopTrackingTracer{fakeTracer: &fakeTracer{measured: map[types.FilePath]map[int]struct{}{
		types.FilePath(src): {4: {}},
	}}}

	tr := &Tracker{
		Tracer: tracer,
		Parser: block.NewParser(),
		Index:  idx,
	}

	assert.Panics(t, func() {
		_ = tr.Track("pkg::TestPanic", src, func() error { panic("boom") })
	})
	assert.True(t, tracer.stopped, "Stop must run even when run panics")

	require.NoError(t, idx.Flush())
	snap, err := idx.Load("")
	require.NoError(t, err)
	assert.Contains(t, snap.TestRecords, types.TestId("pkg::TestPanic"),
		"coverage measured before a panic must still be staged")
}
