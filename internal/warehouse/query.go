package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
)

// Compile-time interface check.
var _ Catalog = (*QueryCatalog)(nil)

// QueryCatalog implements Catalog by submitting SQL to a query engine and
// awaiting each statement by polling.
type QueryCatalog struct {
	engine       Engine
	store        objstore.Store
	bucket       string
	database     string
	output       string
	pollInterval time.Duration
	logger       *slog.Logger
}

// QueryOptions configures a QueryCatalog.
type QueryOptions struct {
	Bucket         string // primary bucket holding partitions and the trend extract
	Database       string
	OutputLocation string // engine result location; defaults to s3://<Bucket>/athena_out/
	PollInterval   time.Duration
}

// NewQueryCatalog creates a catalog over engine. The object store is used
// to move the trend query output to its dated key.
func NewQueryCatalog(engine Engine, store objstore.Store, opts QueryOptions, logger *slog.Logger) *QueryCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutputLocation == "" {
		opts.OutputLocation = fmt.Sprintf("s3://%s/athena_out/", opts.Bucket)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &QueryCatalog{
		engine:       engine,
		store:        store,
		bucket:       opts.Bucket,
		database:     opts.Database,
		output:       opts.OutputLocation,
		pollInterval: opts.PollInterval,
		logger:       logger.With("component", "query_catalog"),
	}
}

// run submits one statement and waits for it.
func (c *QueryCatalog) run(ctx context.Context, sql string, tr *Trace) (string, Status, error) {
	id, err := c.engine.Submit(ctx, sql, c.database, c.output)
	if err != nil {
		return "", Status{}, fmt.Errorf("submitting query: %w", err)
	}
	tr.Addf("Submitted query %s", id)
	st, err := Wait(ctx, c.engine, id, c.pollInterval, c.logger, tr)
	return id, st, err
}

// AddPricePartition issues ALTER TABLE ... ADD IF NOT EXISTS PARTITION.
func (c *QueryCatalog) AddPricePartition(ctx context.Context, table, folder string, day domain.RunDate, tr *Trace) error {
	_, _, err := c.run(ctx, addPartitionSQL(table, partitionLocation(c.bucket, folder, day), day), tr)
	return err
}

// SetStaticLocation issues ALTER TABLE ... SET LOCATION.
func (c *QueryCatalog) SetStaticLocation(ctx context.Context, table, folder string, day domain.RunDate, tr *Trace) error {
	_, _, err := c.run(ctx, setLocationSQL(table, partitionLocation(c.bucket, folder, day)), tr)
	return err
}

// MergePrices issues a MERGE INTO ... WHEN NOT MATCHED THEN INSERT.
func (c *QueryCatalog) MergePrices(ctx context.Context, ledger, source string, day domain.RunDate, tr *Trace) error {
	_, _, err := c.run(ctx, mergeSQL(ledger, source, day), tr)
	return err
}

// CountPrices runs the count query and reads the single result cell.
func (c *QueryCatalog) CountPrices(ctx context.Context, ledger string, day domain.RunDate, tr *Trace) (int64, error) {
	id, _, err := c.run(ctx, countSQL(ledger, day), tr)
	if err != nil {
		return 0, err
	}
	rows, err := c.engine.Results(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("reading count results: %w", err)
	}
	// rows[0] is the header.
	if len(rows) < 2 || len(rows[1]) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(rows[1][0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing count %q: %w", rows[1][0], err)
	}
	return n, nil
}

// ExtractTrend runs the trend join, copies the engine's CSV output to the
// dated extract key and deletes the original.
func (c *QueryCatalog) ExtractTrend(ctx context.Context, req TrendRequest, tr *Trace) (objstore.Location, error) {
	dst := objstore.Location{Bucket: c.bucket, Key: domain.TrendExtractKey(req.Day)}

	_, st, err := c.run(ctx, trendSQL(req), tr)
	if err != nil {
		return dst, err
	}
	src, err := ParseS3URI(st.OutputLocation)
	if err != nil {
		return dst, err
	}

	if err := c.store.Copy(ctx, src, dst); err != nil {
		return dst, err
	}
	if err := c.store.Delete(ctx, src.Bucket, src.Key); err != nil {
		return dst, err
	}
	tr.Addf("Trend extract moved from %s to %s", src, dst)
	c.logger.Info("trend extract written", "location", dst.String())
	return dst, nil
}

// ParseS3URI splits s3://bucket/key into a Location.
func ParseS3URI(uri string) (objstore.Location, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return objstore.Location{}, fmt.Errorf("invalid s3 uri %q", uri)
	}
	return objstore.Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
}
