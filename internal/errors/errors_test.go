package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/standardbeagle/testimpact/internal/types"
)

func TestFileMissingError(t *testing.T) {
	err := NewFileMissingError(types.FilePath("a.py"))
	assert.Contains(t, err.Error(), "a.py")
}

func TestParseFailureErrorUnwrap(t *testing.T) {
	underlying := stderrors.New("unexpected token")
	err := NewParseFailureError(types.FilePath("a.py"), underlying)
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestIndexCorruptError(t *testing.T) {
	underlying := stderrors.New("bad gzip header")
	err := NewIndexCorruptError(types.Variant("default"), types.AttrNodeData, underlying)
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "default:node_data")
}

func TestTracerError(t *testing.T) {
	underlying := stderrors.New("tracer crashed")
	err := NewTracerError(types.TestId("a.py::test_f"), underlying)
	assert.ErrorIs(t, err, underlying)
}

func TestStoreIOError(t *testing.T) {
	underlying := stderrors.New("disk full")
	err := NewStoreIOError("flush", underlying)
	assert.ErrorIs(t, err, underlying)
}
