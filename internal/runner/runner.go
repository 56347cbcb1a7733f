// Package runner defines the test runner collaborator (spec.md §1, §6):
// out of the core's scope except as an interface providing test identities,
// an invocation callback per test, and post-run pass/fail metadata.
package runner

import (
	"encoding/json"

	"github.com/standardbeagle/testimpact/internal/types"
)

// Result is one test's post-run outcome, stored verbatim into the
// dependency index's ReportMap (spec.md §3).
type Result struct {
	Passed  bool            `json:"passed"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Runner is the external test-runner collaborator. cmd/testimpact drives
// tests through this interface, wrapping each Run call in the RunFunc it
// hands to internal/session, which never parses a test framework's output
// itself.
type Runner interface {
	// Tests returns every test identity the runner knows about.
	Tests() ([]types.TestId, error)
	// Run invokes one test and reports its outcome.
	Run(testID types.TestId) (Result, error)
}

// GoTestRunner implements Runner over `go test -list`/`go test -run`,
// the shape the teacher's own cmd/lci/main.go gives its CLI subcommands:
// shell out, scan output, no framework-specific library needed.
type GoTestRunner struct {
	PkgPath string
	// CoverProfile, when set, is passed to Run as `go test
	// -coverprofile=...`. The single invocation Run makes then also
	// serves as the tracked test's coverage gather: internal/tracer's
	// GoVetTracer reads this same file in Stop rather than execing `go
	// test` a second time with a disjoint test selection.
	CoverProfile string
	list         []types.TestId
}
