package tracer

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/standardbeagle/testimpact/internal/types"
)

// GoVetTracer parses the coverage profile a paired internal/runner.GoTestRunner
// writes via `go test -coverprofile`, Go's own line-coverage format. There
// is no pack-library precedent for this text format (not a concern any
// example repo's domain touches), so it's read with bufio/os directly —
// the standard-library exception recorded in DESIGN.md for this adapter.
type GoVetTracer struct {
	profilePath   string
	include, omit []string
	measured      map[types.FilePath]map[int]struct{}
}

// NewGoVetTracer builds a tracer that reads the coverage profile a paired
// runner.GoTestRunner (constructed with the same CoverProfile path)
// writes to profilePath.
func NewGoVetTracer(profilePath string) *GoVetTracer {
	return &GoVetTracer{profilePath: profilePath}
}

func (g *GoVetTracer) Start(include, omit []string) error {
	g.include = include
	g.omit = omit
	g.measured = nil
	return nil
}

// Stop reads the coverage profile at profilePath: the file
// internal/runner.GoTestRunner.Run already wrote, between this tracer's
// Start and this call, by execing the single `go test -run ^name$
// -coverprofile=...` invocation that ran the tracked test. Stop never
// execs `go test` itself — an invocation here, decoupled from which test
// actually ran, has no test name to scope itself to and would either
// match nothing (`-run ^$`) or re-run a disjoint selection; either way
// the coverage gathered would not describe the test this session is
// tracking.
func (g *GoVetTracer) Stop() (map[types.FilePath]map[int]struct{}, error) {
	file, err := os.Open(g.profilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	measured, err := parseProfile(file, g.include, g.omit)
	if err != nil {
		return nil, err
	}
	g.measured = measured
	return measured, nil
}

func (g *GoVetTracer) Erase() { g.measured = nil }

func (g *GoVetTracer) Combine(other map[types.FilePath]map[int]struct{}) {
	if g.measured == nil {
		g.measured = make(map[types.FilePath]map[int]struct{})
	}
	for file, lines := range other {
		dst, ok := g.measured[file]
		if !ok {
			dst = make(map[int]struct{})
			g.measured[file] = dst
		}
		for line := range lines {
			dst[line] = struct{}{}
		}
	}
}

// parseProfile reads Go's `mode: <mode>` coverage profile format:
// lines shaped "file:startLine.startCol,endLine.endCol numStmt count".
// Every line in [startLine, endLine] of a block with count > 0 is
// recorded as executed — a conservative over-approximation the folder
// (internal/coverage) already tolerates (spec.md §4.B: lines outside any
// block are silently ignored).
func parseProfile(r io.Reader, include, omit []string) (map[types.FilePath]map[int]struct{}, error) {
	measured := make(map[types.FilePath]map[int]struct{})
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "mode:") {
				continue
			}
		}
		file, startLine, endLine, count, ok := parseProfileLine(line)
		if !ok || count == 0 {
			continue
		}
		path := types.FilePath(file)
		if !pathAllowed(file, include, omit) {
			continue
		}
		lines, ok := measured[path]
		if !ok {
			lines = make(map[int]struct{})
			measured[path] = lines
		}
		for l := startLine; l <= endLine; l++ {
			lines[l] = struct{}{}
		}
	}
	return measured, scanner.Err()
}

func parseProfileLine(line string) (file string, startLine, endLine, count int, ok bool) {
	colon := strings.LastIndex(line, ":")
	if colon < 0 {
		return "", 0, 0, 0, false
	}
	file = line[:colon]
	rest := strings.Fields(line[colon+1:])
	if len(rest) != 3 {
		return "", 0, 0, 0, false
	}
	posRange := strings.SplitN(rest[0], ",", 2)
	if len(posRange) != 2 {
		return "", 0, 0, 0, false
	}
	startLine, err := strconv.Atoi(strings.SplitN(posRange[0], ".", 2)[0])
	if err != nil {
		return "", 0, 0, 0, false
	}
	endLine, err = strconv.Atoi(strings.SplitN(posRange[1], ".", 2)[0])
	if err != nil {
		return "", 0, 0, 0, false
	}
	count, err = strconv.Atoi(rest[2])
	if err != nil {
		return "", 0, 0, 0, false
	}
	return file, startLine, endLine, count, true
}

func pathAllowed(path string, include, omit []string) bool {
	for _, o := range omit {
		if strings.Contains(path, o) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, i := range include {
		if strings.Contains(path, i) {
			return true
		}
	}
	return false
}
