package trend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
)

// Reporter reads the day's trend extract from the primary bucket and writes
// the price-mover report to the serve bucket.
type Reporter struct {
	store     objstore.Store
	primary   string
	serve     string
	outputKey string
	minPrice  decimal.Decimal
	logger    *slog.Logger
}

// ReporterOptions configures a Reporter.
type ReporterOptions struct {
	PrimaryBucket string
	ServeBucket   string
	OutputKey     string
	MinPrice      float64
}

// NewReporter creates a Reporter.
func NewReporter(s objstore.Store, opts ReporterOptions, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		store:     s,
		primary:   opts.PrimaryBucket,
		serve:     opts.ServeBucket,
		outputKey: opts.OutputKey,
		minPrice:  decimal.NewFromFloat(opts.MinPrice),
		logger:    logger.With("stage", "report"),
	}
}

// Summary describes a written report.
type Summary struct {
	Location  objstore.Location
	InputRows int
	Rows      int
}

// Run builds and uploads the report for day.
func (r *Reporter) Run(ctx context.Context, day domain.RunDate) (Summary, error) {
	sum := Summary{Location: objstore.Location{Bucket: r.serve, Key: r.outputKey}}

	key := domain.TrendExtractKey(day)
	rc, err := r.store.Get(ctx, r.primary, key)
	if err != nil {
		return sum, fmt.Errorf("%w: opening trend extract: %v", domain.ErrFatalExternal, err)
	}
	extract, err := ReadExtract(rc)
	rc.Close()
	if err != nil {
		return sum, err
	}
	sum.InputRows = len(extract)

	rows := Build(extract, day, r.minPrice)
	sum.Rows = len(rows)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return sum, err
	}
	if err := r.store.Put(ctx, r.serve, r.outputKey, &buf); err != nil {
		return sum, fmt.Errorf("%w: uploading report: %v", domain.ErrFatalExternal, err)
	}

	r.logger.Info("report written", "location", sum.Location.String(), "input_rows", sum.InputRows, "rows", sum.Rows)
	return sum, nil
}
