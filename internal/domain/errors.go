package domain

import "errors"

// Error kinds. Stages wrap concrete failures with one of these so that entry
// points can map them to a status code with errors.Is.
var (
	// ErrFatalInput marks malformed snapshots, unknown run classifiers and
	// unparseable extracts. No output is written.
	ErrFatalInput = errors.New("fatal input")

	// ErrFatalExternal marks object-store, query-engine, configuration-store
	// and snapshot-source failures after any built-in retry.
	ErrFatalExternal = errors.New("fatal external")

	// ErrRateLimited marks a throttling response from the snapshot source.
	ErrRateLimited = errors.New("rate limited")
)

// StatusCode maps an error to the status code reported in stage results.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrFatalInput):
		return 400
	default:
		return 500
	}
}
