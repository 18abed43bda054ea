// Package warehouse registers projection partitions in the table catalog,
// merges price facts into the ledger, and extracts the trend join. Two
// catalogs implement it: one drives a remote query engine with SQL, the
// other keeps the tables in SQLite for local runs.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the lifecycle state of a submitted statement.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transitions will happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Status is one poll of a statement.
type Status struct {
	State          State
	Reason         string
	OutputLocation string
}

// Engine is the query-execution contract: submit a statement, poll it, and
// fetch its result rows (header row first).
type Engine interface {
	Submit(ctx context.Context, sql, database, outputLocation string) (string, error)
	Poll(ctx context.Context, id string) (Status, error)
	Results(ctx context.Context, id string) ([][]string, error)
}

// Trace collects the progress lines of one registration step. A nil Trace
// discards lines.
type Trace struct {
	Lines []string
}

// Addf appends a formatted line.
func (t *Trace) Addf(format string, args ...any) {
	if t == nil {
		return
	}
	t.Lines = append(t.Lines, fmt.Sprintf(format, args...))
}

// Wait polls id every interval until the statement reaches a terminal state.
// There is no ceiling on the number of polls; only ctx bounds the wait.
// FAILED and CANCELLED return an error carrying the engine's reason.
func Wait(ctx context.Context, e Engine, id string, interval time.Duration, logger *slog.Logger, tr *Trace) (Status, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		st, err := e.Poll(ctx, id)
		if err != nil {
			return st, fmt.Errorf("polling query %s: %w", id, err)
		}

		if st.State.Terminal() {
			tr.Addf("Query %s finished with status: %s", id, st.State)
			logger.Info("query finished", "query_id", id, "state", st.State)
			if st.State != StateSucceeded {
				tr.Addf("Reason: %s", st.Reason)
				return st, fmt.Errorf("query %s %s: %s", id, st.State, st.Reason)
			}
			return st, nil
		}

		tr.Addf("Query %s is in status '%s'. Waiting %s...", id, st.State, interval)
		logger.Debug("query pending", "query_id", id, "state", st.State)

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(interval):
		}
	}
}
