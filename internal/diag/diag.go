// Package diag is the engine's diagnostic logger: a mutex-guarded writer
// gated by an env var, matching the teacher repo's debug-output
// conventions (opt-in, never on stdout by default, safe to call from any
// goroutine).
package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDiag can be forced on at build time:
// go build -ldflags "-X github.com/standardbeagle/testimpact/internal/diag.EnableDiag=true"
var EnableDiag = "false"

var (
	output io.Writer
	file   *os.File
	mu     sync.Mutex
)

// SetOutput sets a custom writer for diagnostic output. Pass nil to
// disable output entirely.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// InitLogFile opens a timestamped log file under os.TempDir and routes
// diagnostic output there. Returns the path; call Close when done.
func InitLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(os.TempDir(), "testimpact-diag-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create diag log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("diag-%s.log", time.Now().Format("2006-01-02T150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("create diag log file: %w", err)
	}

	file = f
	output = f
	return path, nil
}

// Close closes the diagnostic log file if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		err := file.Close()
		file = nil
		output = nil
		return err
	}
	return nil
}

// Enabled reports whether diagnostic logging is active.
func Enabled() bool {
	if EnableDiag == "true" {
		return true
	}
	v := os.Getenv("TESTIMPACT_DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// Log writes a component-tagged diagnostic line when logging is enabled
// and a writer is configured. Calls are no-ops otherwise, so call sites
// never need to guard on Enabled() themselves.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] "+format+"\n", append([]interface{}{component}, args...)...)
}
