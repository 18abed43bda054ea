package warehouse

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
	"cardpulse/internal/store"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Catalog = (*LocalCatalog)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS partitions (
    table_name TEXT NOT NULL,
    year       TEXT NOT NULL,
    month      TEXT NOT NULL,
    day        TEXT NOT NULL,
    location   TEXT NOT NULL,
    PRIMARY KEY (table_name, year, month, day)
)`,
	`CREATE TABLE IF NOT EXISTS table_locations (
    table_name TEXT PRIMARY KEY,
    location   TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS price_rows (
    table_name TEXT NOT NULL,
    year       TEXT NOT NULL,
    month      TEXT NOT NULL,
    day        TEXT NOT NULL,
    id         TEXT NOT NULL,
    usd        REAL,
    usd_foil   REAL,
    pull_date  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_price_rows_partition ON price_rows(table_name, year, month, day)`,
	`CREATE TABLE IF NOT EXISTS static_rows (
    table_name    TEXT NOT NULL,
    id            TEXT NOT NULL,
    oracle_id     TEXT,
    mtgo_id       REAL,
    mtgo_foil_id  REAL,
    tcgplayer_id  REAL,
    cardmarket_id REAL,
    name          TEXT,
    lang          TEXT,
    released_at   TEXT,
    set_name      TEXT,
    set_code      TEXT,
    set_type      TEXT,
    rarity        TEXT,
    pull_date     TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_static_rows_id ON static_rows(table_name, id)`,
	`CREATE TABLE IF NOT EXISTS ledger (
    table_name TEXT NOT NULL,
    id         TEXT NOT NULL,
    usd        NUMERIC,
    usd_foil   NUMERIC,
    pull_date  TEXT NOT NULL,
    PRIMARY KEY (table_name, id, pull_date)
)`,
}

// LocalCatalog implements Catalog on SQLite. Registering a partition (re)loads
// its Parquet files from the object store into price_rows; repointing the
// static table replaces static_rows with the new folder's files.
type LocalCatalog struct {
	db     *sql.DB
	store  objstore.Store
	bucket string
	logger *slog.Logger
}

// NewLocalCatalog opens (or creates) the SQLite database at dbPath and
// applies the schema.
func NewLocalCatalog(dbPath string, s objstore.Store, bucket string, logger *slog.Logger) (*LocalCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &LocalCatalog{db: db, store: s, bucket: bucket, logger: logger.With("component", "local_catalog")}, nil
}

// Close closes the underlying database connection.
func (c *LocalCatalog) Close() error {
	return c.db.Close()
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// AddPricePartition records the partition if it is new and restages its
// rows from the files currently under the partition folder, so a re-run
// picks up files written after the first registration.
func (c *LocalCatalog) AddPricePartition(ctx context.Context, table, folder string, day domain.RunDate, tr *Trace) error {
	location := partitionLocation(c.bucket, folder, day)

	facts, err := c.loadPrices(ctx, folder, day)
	if err != nil {
		return err
	}

	return c.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO partitions (table_name, year, month, day, location) VALUES (?, ?, ?, ?, ?)`,
			table, day.Year(), day.Month(), day.Day(), location)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM price_rows WHERE table_name = ? AND year = ? AND month = ? AND day = ?`,
			table, day.Year(), day.Month(), day.Day()); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO price_rows (table_name, year, month, day, id, usd, usd_foil, pull_date) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range facts {
			if _, err := stmt.ExecContext(ctx, table, day.Year(), day.Month(), day.Day(),
				f.ID, sqlDecimal(f.USD), sqlDecimal(f.USDFoil), f.PullDate.Formatted()); err != nil {
				return err
			}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tr.Addf("Partition %s already registered for %s, restaged %d rows", location, table, len(facts))
		} else {
			tr.Addf("Partition %s added to %s with %d rows", location, table, len(facts))
		}
		return nil
	})
}

// SetStaticLocation replaces the static table's rows and location.
func (c *LocalCatalog) SetStaticLocation(ctx context.Context, table, folder string, day domain.RunDate, tr *Trace) error {
	location := partitionLocation(c.bucket, folder, day)

	dims, err := c.loadStatic(ctx, folder, day)
	if err != nil {
		return err
	}

	return c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM static_rows WHERE table_name = ?`, table); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO table_locations (table_name, location) VALUES (?, ?)`, table, location); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO static_rows (
    table_name, id, oracle_id, mtgo_id, mtgo_foil_id, tcgplayer_id, cardmarket_id,
    name, lang, released_at, set_name, set_code, set_type, rarity, pull_date
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range dims {
			if _, err := stmt.ExecContext(ctx, table, d.ID, d.OracleID, d.MTGOID, d.MTGOFoilID,
				d.TCGPlayerID, d.CardmarketID, d.Name, d.Lang, d.ReleasedAt, d.SetName,
				d.Set, d.SetType, d.Rarity, d.PullDate.Formatted()); err != nil {
				return err
			}
		}
		tr.Addf("Table %s location set to %s with %d rows", table, location, len(dims))
		return nil
	})
}

// MergePrices copies the day's staged rows into the ledger, skipping pairs
// that already exist. Prices are rounded to cents.
func (c *LocalCatalog) MergePrices(ctx context.Context, ledger, source string, day domain.RunDate, tr *Trace) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ledger (table_name, id, usd, usd_foil, pull_date)
SELECT ?, id, ROUND(usd, 2), ROUND(usd_foil, 2), pull_date
FROM price_rows
WHERE table_name = ? AND year = ? AND month = ? AND day = ?`,
			ledger, source, day.Year(), day.Month(), day.Day())
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		tr.Addf("Merged %d new rows from %s into %s", n, source, ledger)
		return nil
	})
}

// CountPrices counts the ledger rows of day.
func (c *LocalCatalog) CountPrices(ctx context.Context, ledger string, day domain.RunDate, tr *Trace) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM ledger WHERE table_name = ? AND pull_date = ?`, ledger, day.Formatted()).Scan(&n)
	if err != nil {
		return 0, err
	}
	tr.Addf("Ledger %s holds %d rows for %s", ledger, n, day)
	return n, nil
}

// ---------------------------------------------------------------------------
// Trend extraction
// ---------------------------------------------------------------------------

// ExtractTrend runs the join in SQLite and writes the CSV extract.
func (c *LocalCatalog) ExtractTrend(ctx context.Context, req TrendRequest, tr *Trace) (objstore.Location, error) {
	dst := objstore.Location{Bucket: c.bucket, Key: domain.TrendExtractKey(req.Day)}

	args := []any{req.Static, req.Ledger, req.ReleasedSince().Formatted()}
	for _, d := range req.TrendDates() {
		args = append(args, d.Formatted())
	}
	rows, err := c.db.QueryContext(ctx, `SELECT
    price.id,
    CAST(static.tcgplayer_id AS INTEGER),
    static.name,
    static.set_name,
    static.set_type,
    static.released_at,
    price.usd,
    price.pull_date
FROM ledger AS price
INNER JOIN static_rows AS static ON price.id = static.id AND static.table_name = ?
WHERE price.table_name = ?
  AND price.usd IS NOT NULL
  AND price.usd <> 0
  AND static.released_at >= ?
  AND price.pull_date IN (?, ?, ?, ?)
ORDER BY price.id, price.pull_date DESC`, args...)
	if err != nil {
		return dst, fmt.Errorf("running trend query: %w", err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(TrendColumns); err != nil {
		return dst, err
	}
	n := 0
	for rows.Next() {
		var (
			id, pullDate                     string
			tcg                              sql.NullInt64
			name, setName, setType, released sql.NullString
			usd                              sql.NullFloat64
		)
		if err := rows.Scan(&id, &tcg, &name, &setName, &setType, &released, &usd, &pullDate); err != nil {
			return dst, err
		}
		rec := []string{id, "", name.String, setName.String, setType.String, released.String, "", pullDate}
		if tcg.Valid {
			rec[1] = strconv.FormatInt(tcg.Int64, 10)
		}
		if usd.Valid {
			rec[6] = decimal.NewFromFloat(usd.Float64).StringFixed(2)
		}
		if err := w.Write(rec); err != nil {
			return dst, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return dst, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return dst, err
	}

	if err := c.store.Put(ctx, dst.Bucket, dst.Key, &buf); err != nil {
		return dst, err
	}
	tr.Addf("Trend extract of %d rows written to %s", n, dst)
	c.logger.Info("trend extract written", "location", dst.String(), "rows", n)
	return dst, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *LocalCatalog) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// parquetKeys lists the Parquet objects of a dated partition folder.
func (c *LocalCatalog) parquetKeys(ctx context.Context, folder string, day domain.RunDate) ([]string, error) {
	objs, err := c.store.List(ctx, c.bucket, domain.PartitionPrefix(folder, day)+"/")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", folder, err)
	}
	var keys []string
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".parquet") {
			keys = append(keys, o.Key)
		}
	}
	return keys, nil
}

func (c *LocalCatalog) loadPrices(ctx context.Context, folder string, day domain.RunDate) ([]domain.PriceFact, error) {
	keys, err := c.parquetKeys(ctx, folder, day)
	if err != nil {
		return nil, err
	}
	var all []domain.PriceFact
	for _, key := range keys {
		rc, err := c.store.Get(ctx, c.bucket, key)
		if err != nil {
			return nil, err
		}
		facts, err := store.ReadPriceParquet(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		all = append(all, facts...)
	}
	return all, nil
}

func (c *LocalCatalog) loadStatic(ctx context.Context, folder string, day domain.RunDate) ([]domain.StaticDim, error) {
	keys, err := c.parquetKeys(ctx, folder, day)
	if err != nil {
		return nil, err
	}
	var all []domain.StaticDim
	for _, key := range keys {
		rc, err := c.store.Get(ctx, c.bucket, key)
		if err != nil {
			return nil, err
		}
		dims, err := store.ReadStaticParquet(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		all = append(all, dims...)
	}
	return all, nil
}

func sqlDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
