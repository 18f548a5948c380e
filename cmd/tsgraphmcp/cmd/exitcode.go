package cmd

import "github.com/couzic/ts-graph-mcp/internal/graph"

// exitCodeError pairs an error with the process exit code it should
// produce (spec §6: 0 normal shutdown, 1 fatal startup error, 2 config
// invalid), since cobra itself only distinguishes error/no-error.
type exitCodeError struct {
	err  error
	code int
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(err error, code int) error {
	return &exitCodeError{err: err, code: code}
}

// ExitCode extracts the process exit code intended for err, defaulting
// to 1 for any other non-nil error and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if e, ok := err.(*exitCodeError); ok {
		ec = e
		return ec.code
	}
	return 1
}

func loadManifestCount(path string) (int, error) {
	m, err := graph.LoadManifest(path)
	if err != nil {
		return 0, err
	}
	return len(m.Files), nil
}
