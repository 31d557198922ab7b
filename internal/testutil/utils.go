package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger suitable for injecting into components
// under test. Output goes to stdout so `go test -v` interleaves it
// with the test log.
func TestLogger(t *testing.T) *log.Logger {
	t.Helper()

	logger := log.New(os.Stdout, "[parley-test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
