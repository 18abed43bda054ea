package warehouse

import (
	"context"

	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
)

// Catalog is the table-catalog contract of the partition registrar and the
// trend query. Every method reports its progress lines to tr.
type Catalog interface {
	// AddPricePartition registers the day's Parquet folder as a partition
	// of the price table. Registering an existing partition is a no-op.
	AddPricePartition(ctx context.Context, table, folder string, day domain.RunDate, tr *Trace) error

	// SetStaticLocation repoints the static table at the day's Parquet
	// folder, replacing the previous location.
	SetStaticLocation(ctx context.Context, table, folder string, day domain.RunDate, tr *Trace) error

	// MergePrices inserts the day's partition rows of source into ledger
	// unless their (id, pull_date) pair is already present. It either
	// applies every new row or none.
	MergePrices(ctx context.Context, ledger, source string, day domain.RunDate, tr *Trace) error

	// CountPrices counts ledger rows whose pull_date is day.
	CountPrices(ctx context.Context, ledger string, day domain.RunDate, tr *Trace) (int64, error)

	// ExtractTrend runs the trend join and materializes it as CSV at the
	// trend extract key of the primary bucket.
	ExtractTrend(ctx context.Context, req TrendRequest, tr *Trace) (objstore.Location, error)
}

// TrendRequest parameterizes the trend join.
type TrendRequest struct {
	Ledger      string
	Static      string
	Day         domain.RunDate
	WindowYears int // released_at lower bound, in years before Day
}

// TrendOffsets are the day offsets of the comparison buckets.
var TrendOffsets = []int{0, 7, 14, 28}

// TrendDates returns Day and its comparison dates, newest first.
func (r TrendRequest) TrendDates() []domain.RunDate {
	dates := make([]domain.RunDate, len(TrendOffsets))
	for i, off := range TrendOffsets {
		dates[i] = r.Day.DaysAgo(off)
	}
	return dates
}

// ReleasedSince returns the earliest released_at kept by the join.
func (r TrendRequest) ReleasedSince() domain.RunDate {
	return r.Day.YearsAgo(r.WindowYears)
}

// TrendColumns is the column order of the trend extract.
var TrendColumns = []string{"id", "tcgplayer_id", "name", "set_name", "set_type", "released_at", "usd", "pull_date"}
