package runner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/standardbeagle/testimpact/internal/types"
)

var testNamePattern = regexp.MustCompile(`^Test\w+$`)

// Tests runs `go test -list .` against PkgPath and parses one TestId per
// matched line, per the teacher's own shell-out-and-scan style for driving
// the go toolchain (cmd/lci/main.go).
func (g *GoTestRunner) Tests() ([]types.TestId, error) {
	cmd := exec.Command("go", "test", "-list", ".", g.PkgPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go test -list: %w", err)
	}

	var ids []types.TestId
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		name := scanner.Text()
		if testNamePattern.MatchString(name) {
			ids = append(ids, types.TestId(g.PkgPath+"::"+name))
		}
	}
	g.list = ids
	return ids, scanner.Err()
}

// Run invokes a single named test via `go test -run ^name$` and reports
// whether it passed. The raw combined output is stored as the result
// payload, matching spec.md §3's "opaque report payload... stored verbatim".
//
// When CoverProfile is set this is the one and only `go test` invocation
// for this test: it both executes the test body (for pass/fail) and
// writes the coverage profile a paired tracer.GoVetTracer reads in Stop.
// Splitting those into two separate `go test` invocations — one that
// runs the test without -coverprofile, another later that gathers
// coverage for a different (or no) test selection — would leave the
// coverage disjoint from the execution it's supposed to describe.
func (g *GoTestRunner) Run(testID types.TestId) (Result, error) {
	name := testNameOf(testID)
	args := []string{"test", "-run", "^" + name + "$"}
	if g.CoverProfile != "" {
		args = append(args, "-coverprofile="+g.CoverProfile)
	}
	args = append(args, g.PkgPath)

	cmd := exec.Command("go", args...)
	out, err := cmd.CombinedOutput()
	payload, marshalErr := jsonPayload(string(out))
	if marshalErr != nil {
		return Result{}, marshalErr
	}
	return Result{Passed: err == nil, Payload: payload}, nil
}

func jsonPayload(output string) (json.RawMessage, error) {
	return json.Marshal(struct {
		Output string `json:"output"`
	}{Output: output})
}

func testNameOf(testID types.TestId) string {
	id := string(testID)
	for i := len(id) - 1; i >= 1; i-- {
		if id[i-1] == ':' && id[i] == ':' {
			return id[i+1:]
		}
	}
	return id
}
