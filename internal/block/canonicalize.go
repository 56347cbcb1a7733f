package block

import (
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/standardbeagle/testimpact/internal/types"
)

// byteRange is a half-open [Start, End) byte span, used to mask out
// comment text before a block's canonical form is computed.
type byteRange struct {
	Start, End int
}

// maskComments returns a copy of content with every byte inside ranges
// replaced by a space, except for newlines (preserved so line numbers
// stay aligned). This turns a comment — line or delimited — into
// whitespace, which the blank-line/trim pass below then discards.
func maskComments(content []byte, ranges []byteRange) []byte {
	if len(ranges) == 0 {
		return content
	}
	masked := make([]byte, len(content))
	copy(masked, content)
	for _, r := range ranges {
		start, end := r.Start, r.End
		if start < 0 {
			start = 0
		}
		if end > len(masked) {
			end = len(masked)
		}
		for i := start; i < end; i++ {
			if masked[i] != '\n' {
				masked[i] = ' '
			}
		}
	}
	return masked
}

// canonicalLines splits masked content into 1-indexed lines, selects
// the ones in lineNumbers, strips leading/trailing whitespace from each,
// and drops any that are now blank (spec.md §4.A Canonicalization).
func canonicalLines(masked []byte, lineNumbers map[int]bool) []string {
	all := strings.Split(string(masked), "\n")
	out := make([]string, 0, len(lineNumbers))
	for lineNo := 1; lineNo <= len(all); lineNo++ {
		if !lineNumbers[lineNo] {
			continue
		}
		trimmed := strings.TrimSpace(all[lineNo-1])
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// checksum hashes canonical text into the fixed-width hex digest spec.md
// §3 calls BlockChecksum. A single 64-bit xxhash digest is used, matching
// the teacher's own choice of xxhash as a fast content fingerprint
// (internal/core/file_content_store.go's FastHash field) — cryptographic
// strength isn't required, only collision resistance within one file's
// blocks (spec.md §4.A).
func checksum(text string) types.Checksum {
	sum := xxhash.Sum64String(text)
	return types.Checksum(hex.EncodeToString(encodeUint64(sum)))
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// rawChecksum hashes raw file bytes directly, used for the degenerate
// single-block fallback (spec.md §4.A "Errors"): any edit to an
// unparseable file, cosmetic or not, must invalidate its dependents.
func rawChecksum(content []byte) types.Checksum {
	sum := xxhash.Sum64(content)
	return types.Checksum(hex.EncodeToString(encodeUint64(sum)))
}
