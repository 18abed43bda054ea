// Package register drives the partition registrar: it adds the day's price
// partition, repoints the static table, merges new price facts into the
// ledger and counts the result.
package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cardpulse/internal/domain"
	"cardpulse/internal/warehouse"
)

// Step names, in execution order.
const (
	StepPricePartition = "daily_prices_partition"
	StepStaticLocation = "static_data_partition"
	StepMerge          = "ledger_merge"
	StepCount          = "ledger_count"
)

// Tables names the catalog objects the registrar touches.
type Tables struct {
	PriceTable   string
	PriceFolder  string
	StaticTable  string
	StaticFolder string
	Ledger       string
}

// StepReport is the outcome of one step.
type StepReport struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Logs   []string `json:"logs"`
	Error  string   `json:"error,omitempty"`
}

// Report is the outcome of a registration run.
type Report struct {
	Date  string       `json:"date_processed"`
	Steps []StepReport `json:"steps"`
	Count *int64       `json:"ledger_count,omitempty"`
}

// Failed reports whether any step failed.
func (r Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Status != "ok" {
			return true
		}
	}
	return false
}

// Registrar runs registration steps against a catalog.
type Registrar struct {
	catalog warehouse.Catalog
	tables  Tables
	logger  *slog.Logger
}

// New creates a Registrar.
func New(catalog warehouse.Catalog, tables Tables, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{catalog: catalog, tables: tables, logger: logger.With("stage", "register")}
}

// Register runs every step for day. A failing step does not stop the ones
// after it and nothing is rolled back; the returned error joins every step
// error.
func (r *Registrar) Register(ctx context.Context, day domain.RunDate) (Report, error) {
	return r.run(ctx, day, StepPricePartition, StepStaticLocation, StepMerge, StepCount)
}

// RegisterRun runs the steps belonging to one run classifier: the price
// steps for daily_prices and the static repoint for static_prices.
func (r *Registrar) RegisterRun(ctx context.Context, runType domain.RunType, day domain.RunDate) (Report, error) {
	switch runType {
	case domain.RunDailyPrices:
		return r.run(ctx, day, StepPricePartition, StepMerge, StepCount)
	case domain.RunStaticPrices:
		return r.run(ctx, day, StepStaticLocation)
	default:
		return Report{Date: day.Formatted()}, fmt.Errorf("%w: unexpected run_type %q", domain.ErrFatalInput, runType)
	}
}

func (r *Registrar) run(ctx context.Context, day domain.RunDate, steps ...string) (Report, error) {
	rep := Report{Date: day.Formatted()}
	var errs []error

	for _, name := range steps {
		var tr warehouse.Trace
		err := r.step(ctx, name, day, &tr, &rep)

		sr := StepReport{Name: name, Status: "ok", Logs: tr.Lines}
		if err != nil {
			sr.Status = "failed"
			sr.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			r.logger.Error("step failed", "step", name, "date", day.String(), "error", err)
		} else {
			r.logger.Info("step done", "step", name, "date", day.String())
		}
		rep.Steps = append(rep.Steps, sr)
	}

	if len(errs) > 0 {
		return rep, fmt.Errorf("%w: %w", domain.ErrFatalExternal, errors.Join(errs...))
	}
	return rep, nil
}

func (r *Registrar) step(ctx context.Context, name string, day domain.RunDate, tr *warehouse.Trace, rep *Report) error {
	t := r.tables
	switch name {
	case StepPricePartition:
		return r.catalog.AddPricePartition(ctx, t.PriceTable, t.PriceFolder, day, tr)
	case StepStaticLocation:
		return r.catalog.SetStaticLocation(ctx, t.StaticTable, t.StaticFolder, day, tr)
	case StepMerge:
		return r.catalog.MergePrices(ctx, t.Ledger, t.PriceTable, day, tr)
	case StepCount:
		n, err := r.catalog.CountPrices(ctx, t.Ledger, day, tr)
		if err != nil {
			return err
		}
		rep.Count = &n
		return nil
	default:
		return fmt.Errorf("unknown step %q", name)
	}
}
