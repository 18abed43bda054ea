package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
	"cardpulse/internal/notify"
	"cardpulse/internal/objstore"
	"cardpulse/internal/project"
	"cardpulse/internal/register"
	"cardpulse/internal/snapshot"
	"cardpulse/internal/trend"
	"cardpulse/internal/warehouse"
)

// Stage names.
const (
	StageFetch    = "fetch"
	StageProject  = "project"
	StageCheck    = "check"
	StageRegister = "register"
	StageQuery    = "query"
	StageReport   = "report"
)

// Stages holds the collaborators every stage runs against. All fields
// except Logger are required.
type Stages struct {
	Config   *config.Config
	Store    objstore.Store
	Catalog  warehouse.Catalog
	Notifier notify.Notifier
	Fetcher  *snapshot.Fetcher
	Logger   *slog.Logger
}

// invocation carries per-call state. reported is set once a stage has sent
// its own notification covering a failure.
type invocation struct {
	stage    string
	id       string
	day      domain.RunDate
	logger   *slog.Logger
	notifier notify.Notifier
	reported bool
}

func (s *Stages) begin(stage string, day domain.RunDate) invocation {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return invocation{
		stage:    stage,
		id:       id,
		day:      day,
		logger:   logger.With("stage", stage, "run_id", id, "date", day.String()),
		notifier: s.Notifier,
	}
}

// finish builds the result and logs the outcome. Failures are notified
// unless the stage already reported them.
func (inv invocation) finish(ctx context.Context, runType string, body any, err error) (Result, error) {
	res := Result{
		StatusCode: domain.StatusCode(err),
		Stage:      inv.stage,
		RunType:    runType,
		Date:       inv.day.Formatted(),
		RunID:      inv.id,
		Body:       body,
	}
	if err != nil {
		res.Body = map[string]any{"error": err.Error(), "detail": body}
		inv.logger.Error("stage failed", "status", res.StatusCode, "error", err)
		if !inv.reported {
			notify.Send(ctx, inv.notifier, notify.Message{
				Subject: fmt.Sprintf("MTG %s failed", inv.stage),
				Email:   fmt.Sprintf("Error occurred during %s for %s: %v", inv.stage, inv.day, err),
			}, inv.logger)
		}
		return res, err
	}
	inv.logger.Info("stage complete")
	return res, nil
}

func (s *Stages) notify(ctx context.Context, inv invocation, subject, text string) {
	notify.Send(ctx, s.Notifier, notify.Message{Subject: subject, Email: text}, inv.logger)
}

// ---------------------------------------------------------------------------
// Fetch
// ---------------------------------------------------------------------------

// Fetch downloads the day's snapshot into the primary bucket.
func (s *Stages) Fetch(ctx context.Context, day domain.RunDate) (Result, error) {
	inv := s.begin(StageFetch, day)

	res, err := s.Fetcher.Fetch(ctx, s.Store, s.Config.Storage.PrimaryBucket, day)
	if err != nil {
		return inv.finish(ctx, "", nil, err)
	}

	loc := objstore.Location{Bucket: res.Bucket, Key: res.Key}
	s.notify(ctx, inv, "MTG data pull complete",
		fmt.Sprintf("Data downloaded to %s (%d bytes) for %s", loc, res.Bytes, day))
	return inv.finish(ctx, "", map[string]any{
		"message":      "Data downloaded successfully",
		"location":     loc.String(),
		"bytes":        res.Bytes,
		"download_uri": res.DownloadURI,
	}, nil)
}

// ---------------------------------------------------------------------------
// Project
// ---------------------------------------------------------------------------

// Project writes the projection selected by the event's run type.
func (s *Stages) Project(ctx context.Context, ev Event, day domain.RunDate) (Result, error) {
	inv := s.begin(StageProject, day)

	runType, err := domain.ParseRunType(ev.RunType)
	if err != nil {
		return inv.finish(ctx, ev.RunType, nil, err)
	}
	ds := ev.Dataset(s.dataset(runType))

	p := project.NewProjector(s.Store, s.Config.Storage.PrimaryBucket, inv.logger)
	out, err := p.Project(ctx, runType, ds, day)
	if err != nil {
		return inv.finish(ctx, ev.RunType, nil, err)
	}

	s.notify(ctx, inv, "MTG projection complete", fmt.Sprintf(
		"%s for %s: %d rows\nCSV: %s\nParquet: %s", runType, day, out.Rows, out.CSVKey, out.ParquetKey))
	return inv.finish(ctx, ev.RunType, map[string]any{
		"rows":        out.Rows,
		"csv_key":     out.CSVKey,
		"parquet_key": out.ParquetKey,
	}, nil)
}

func (s *Stages) dataset(runType domain.RunType) config.Dataset {
	if runType == domain.RunStaticPrices {
		return s.Config.Datasets.Static
	}
	return s.Config.Datasets.Prices
}

// ---------------------------------------------------------------------------
// Check
// ---------------------------------------------------------------------------

// FileInfo is one listed artifact.
type FileInfo struct {
	Name   string  `json:"name"`
	SizeMB float64 `json:"size_mb"`
}

// FolderCheck is the listing of one dated Parquet folder.
type FolderCheck struct {
	Location string     `json:"location"`
	Files    []FileInfo `json:"files"`
	Error    string     `json:"error,omitempty"`
}

// Check lists the day's Parquet folders of both datasets. A listing error
// is reported in the body and does not fail the stage.
func (s *Stages) Check(ctx context.Context, day domain.RunDate) (Result, error) {
	inv := s.begin(StageCheck, day)
	bucket := s.Config.Storage.PrimaryBucket

	checks := map[string]*FolderCheck{}
	var msg strings.Builder
	fmt.Fprintf(&msg, "MTG folder check - %s\n", day)

	for _, ds := range []struct {
		name, folder string
	}{
		{"daily", s.Config.Datasets.Prices.ParquetFolder},
		{"static", s.Config.Datasets.Static.ParquetFolder},
	} {
		prefix := domain.PartitionPrefix(ds.folder, day) + "/"
		fc := &FolderCheck{Location: objstore.Location{Bucket: bucket, Key: prefix}.String(), Files: []FileInfo{}}
		objs, err := s.Store.List(ctx, bucket, prefix)
		if err != nil {
			fc.Error = err.Error()
			inv.logger.Warn("listing folder failed", "folder", prefix, "error", err)
		}
		for _, o := range objs {
			fc.Files = append(fc.Files, FileInfo{Name: o.Name, SizeMB: o.SizeMB()})
		}
		checks[ds.name] = fc

		fmt.Fprintf(&msg, "\n%s Parquet folder (%s):\n  Files found: %d", ds.name, fc.Location, len(fc.Files))
		for _, f := range fc.Files {
			fmt.Fprintf(&msg, "\n  - %s (%.2f MB)", f.Name, f.SizeMB)
		}
		msg.WriteString("\n")
	}

	s.notify(ctx, inv, "MTG folder check", msg.String())
	return inv.finish(ctx, "", checks, nil)
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func (s *Stages) tables(prices, static config.Dataset) register.Tables {
	return register.Tables{
		PriceTable:   prices.ParquetTable,
		PriceFolder:  prices.ParquetFolder,
		StaticTable:  static.ParquetTable,
		StaticFolder: static.ParquetFolder,
		Ledger:       s.Config.Datasets.LedgerTable,
	}
}

// Register runs every registration step for day.
func (s *Stages) Register(ctx context.Context, day domain.RunDate) (Result, error) {
	inv := s.begin(StageRegister, day)
	r := register.New(s.Catalog, s.tables(s.Config.Datasets.Prices, s.Config.Datasets.Static), inv.logger)

	rep, err := r.Register(ctx, day)
	s.notify(ctx, inv, "MTG partitioning complete", registerMessage(rep))
	inv.reported = true
	return inv.finish(ctx, "", rep, err)
}

// RegisterEvent runs the registration steps of the event's run type, using
// the event's table and folder names for that dataset.
func (s *Stages) RegisterEvent(ctx context.Context, ev Event, day domain.RunDate) (Result, error) {
	inv := s.begin(StageRegister, day)

	runType, err := domain.ParseRunType(ev.RunType)
	if err != nil {
		return inv.finish(ctx, ev.RunType, nil, err)
	}
	prices, static := s.Config.Datasets.Prices, s.Config.Datasets.Static
	if runType == domain.RunStaticPrices {
		static = ev.Dataset(static)
	} else {
		prices = ev.Dataset(prices)
	}

	rep, err := register.New(s.Catalog, s.tables(prices, static), inv.logger).RegisterRun(ctx, runType, day)
	s.notify(ctx, inv, "MTG partitioning complete", registerMessage(rep))
	inv.reported = true
	return inv.finish(ctx, ev.RunType, rep, err)
}

func registerMessage(rep register.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MTG data partitioning complete for %s\n", rep.Date)
	for _, st := range rep.Steps {
		fmt.Fprintf(&b, "\n%s: %s\n", st.Name, st.Status)
		for _, l := range st.Logs {
			fmt.Fprintf(&b, "  %s\n", l)
		}
		if st.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", st.Error)
		}
	}
	if rep.Count != nil {
		fmt.Fprintf(&b, "\nFinal ledger count: %d\n", *rep.Count)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Query
// ---------------------------------------------------------------------------

// Query extracts the trend join for day.
func (s *Stages) Query(ctx context.Context, day domain.RunDate) (Result, error) {
	inv := s.begin(StageQuery, day)

	var tr warehouse.Trace
	loc, err := s.Catalog.ExtractTrend(ctx, warehouse.TrendRequest{
		Ledger:      s.Config.Datasets.LedgerTable,
		Static:      s.Config.Datasets.Static.ParquetTable,
		Day:         day,
		WindowYears: s.Config.Report.ReleaseWindowYears,
	}, &tr)
	if err != nil {
		return inv.finish(ctx, "", map[string]any{"logs": tr.Lines}, err)
	}
	return inv.finish(ctx, "", map[string]any{
		"message": fmt.Sprintf("CSV successfully uploaded to %s", loc),
		"logs":    tr.Lines,
	}, nil)
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

// Report builds the price-mover report for day.
func (s *Stages) Report(ctx context.Context, day domain.RunDate) (Result, error) {
	inv := s.begin(StageReport, day)

	r := trend.NewReporter(s.Store, trend.ReporterOptions{
		PrimaryBucket: s.Config.Storage.PrimaryBucket,
		ServeBucket:   s.Config.Storage.ServeBucket,
		OutputKey:     s.Config.Report.OutputKey,
		MinPrice:      s.Config.Report.Threshold(),
	}, inv.logger)

	sum, err := r.Run(ctx, day)
	if err != nil {
		return inv.finish(ctx, "", nil, err)
	}
	return inv.finish(ctx, "", map[string]any{
		"message":    fmt.Sprintf("Processed CSV uploaded to %s", sum.Location),
		"input_rows": sum.InputRows,
		"rows":       sum.Rows,
	}, nil)
}

// Trend steps accepted by RunTrend.
const (
	TrendAll    = "all"
	TrendQuery  = "query"
	TrendReport = "report"
)

// RunTrend runs the query step, the report step, or both in order. An
// unknown step is fatal input and runs nothing.
func (s *Stages) RunTrend(ctx context.Context, step string, day domain.RunDate) ([]Result, error) {
	var steps []func(context.Context, domain.RunDate) (Result, error)
	switch step {
	case TrendAll:
		steps = append(steps, s.Query, s.Report)
	case TrendQuery:
		steps = append(steps, s.Query)
	case TrendReport:
		steps = append(steps, s.Report)
	default:
		return nil, fmt.Errorf("%w: unknown trend step %q", domain.ErrFatalInput, step)
	}

	var results []Result
	for _, run := range steps {
		res, err := run(ctx, day)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("%s stage: %w", res.Stage, err)
		}
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Daily run
// ---------------------------------------------------------------------------

// RunDaily runs every stage for day in order and stops at the first
// failure. The results of the stages that ran are returned.
func (s *Stages) RunDaily(ctx context.Context, day domain.RunDate) ([]Result, error) {
	steps := []func(context.Context, domain.RunDate) (Result, error){
		s.Fetch,
		func(ctx context.Context, d domain.RunDate) (Result, error) {
			return s.Project(ctx, DefaultEvent(s.Config, domain.RunDailyPrices), d)
		},
		func(ctx context.Context, d domain.RunDate) (Result, error) {
			return s.Project(ctx, DefaultEvent(s.Config, domain.RunStaticPrices), d)
		},
		s.Check,
		s.Register,
		s.Query,
		s.Report,
	}

	var results []Result
	for _, step := range steps {
		res, err := step(ctx, day)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("%s stage: %w", res.Stage, err)
		}
	}
	return results, nil
}
