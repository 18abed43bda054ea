package warehouse

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
	"cardpulse/internal/store"
)

func usd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func putPrices(t *testing.T, s objstore.Store, day domain.RunDate, facts []domain.PriceFact) {
	t.Helper()
	var buf bytes.Buffer
	w := store.NewPriceParquetWriter(&buf)
	for _, f := range facts {
		if err := w.Write(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	key := domain.PartitionKey("mtg_parquet", "mtg_prices", "parquet", day)
	if err := s.Put(context.Background(), "mtgdump", key, &buf); err != nil {
		t.Fatal(err)
	}
}

func putStatic(t *testing.T, s objstore.Store, day domain.RunDate, dims []domain.StaticDim) {
	t.Helper()
	var buf bytes.Buffer
	w := store.NewStaticParquetWriter(&buf)
	for _, d := range dims {
		if err := w.Write(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	key := domain.PartitionKey("mtg_static_parquet", "mtg_static", "parquet", day)
	if err := s.Put(context.Background(), "mtgdump", key, &buf); err != nil {
		t.Fatal(err)
	}
}

func newLocal(t *testing.T) (*LocalCatalog, objstore.Store) {
	t.Helper()
	s := objstore.NewFSStore(t.TempDir())
	c, err := NewLocalCatalog(filepath.Join(t.TempDir(), "warehouse.db"), s, "mtgdump", nil)
	if err != nil {
		t.Fatalf("NewLocalCatalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestLocalMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, s := newLocal(t)
	day := testDay()
	putPrices(t, s, day, []domain.PriceFact{
		{ID: "a", USD: usd("1.234"), PullDate: day},
		{ID: "b", USDFoil: usd("5"), PullDate: day},
	})

	for i := 0; i < 2; i++ {
		if err := c.AddPricePartition(ctx, "mtg_prices_parquet", "mtg_parquet", day, nil); err != nil {
			t.Fatalf("AddPricePartition #%d: %v", i+1, err)
		}
		if err := c.MergePrices(ctx, "mtg_prices_iceberg", "mtg_prices_parquet", day, nil); err != nil {
			t.Fatalf("MergePrices #%d: %v", i+1, err)
		}
		n, err := c.CountPrices(ctx, "mtg_prices_iceberg", day, nil)
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("after merge #%d count = %d, want 2", i+1, n)
		}
	}

	var staged int
	if err := c.db.QueryRow(`SELECT count(*) FROM price_rows`).Scan(&staged); err != nil {
		t.Fatal(err)
	}
	if staged != 2 {
		t.Errorf("staged rows = %d, want 2", staged)
	}

	var price float64
	if err := c.db.QueryRow(`SELECT usd FROM ledger WHERE id = 'a'`).Scan(&price); err != nil {
		t.Fatal(err)
	}
	if price != 1.23 {
		t.Errorf("ledger usd = %v, want 1.23", price)
	}
}

func TestLocalRegisterRerunAfterFilesLand(t *testing.T) {
	ctx := context.Background()
	c, s := newLocal(t)
	day := testDay()

	if err := c.AddPricePartition(ctx, "mtg_prices_parquet", "mtg_parquet", day, nil); err != nil {
		t.Fatalf("AddPricePartition before files: %v", err)
	}
	if err := c.MergePrices(ctx, "mtg_prices_iceberg", "mtg_prices_parquet", day, nil); err != nil {
		t.Fatalf("MergePrices before files: %v", err)
	}

	putPrices(t, s, day, []domain.PriceFact{{ID: "a", USD: usd("2.50"), PullDate: day}})

	var tr Trace
	if err := c.AddPricePartition(ctx, "mtg_prices_parquet", "mtg_parquet", day, &tr); err != nil {
		t.Fatalf("AddPricePartition after files: %v", err)
	}
	if err := c.MergePrices(ctx, "mtg_prices_iceberg", "mtg_prices_parquet", day, nil); err != nil {
		t.Fatalf("MergePrices after files: %v", err)
	}
	n, err := c.CountPrices(ctx, "mtg_prices_iceberg", day, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ledger count after re-run = %d, want 1", n)
	}

	var partitions int
	if err := c.db.QueryRow(`SELECT count(*) FROM partitions`).Scan(&partitions); err != nil {
		t.Fatal(err)
	}
	if partitions != 1 {
		t.Errorf("partitions = %d, want 1", partitions)
	}
	if len(tr.Lines) == 0 || !strings.Contains(tr.Lines[0], "restaged 1 rows") {
		t.Errorf("trace = %q, want restaged line", tr.Lines)
	}
}

func TestLocalStaticLocationReplaces(t *testing.T) {
	ctx := context.Background()
	c, s := newLocal(t)
	day1 := testDay().DaysAgo(1)
	day2 := testDay()
	putStatic(t, s, day1, []domain.StaticDim{{ID: "a", PullDate: day1}, {ID: "b", PullDate: day1}})
	putStatic(t, s, day2, []domain.StaticDim{{ID: "c", PullDate: day2}})

	var tr Trace
	if err := c.SetStaticLocation(ctx, "mtg_static_parquet", "mtg_static_parquet", day1, &tr); err != nil {
		t.Fatal(err)
	}
	if err := c.SetStaticLocation(ctx, "mtg_static_parquet", "mtg_static_parquet", day2, &tr); err != nil {
		t.Fatal(err)
	}

	var ids []string
	rows, err := c.db.Query(`SELECT id FROM static_rows WHERE table_name = 'mtg_static_parquet'`)
	if err != nil {
		t.Fatal(err)
	}
	for rows.Next() {
		var id string
		rows.Scan(&id)
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) != 1 || ids[0] != "c" {
		t.Errorf("static ids = %v, want [c]", ids)
	}

	var loc string
	if err := c.db.QueryRow(`SELECT location FROM table_locations WHERE table_name = 'mtg_static_parquet'`).Scan(&loc); err != nil {
		t.Fatal(err)
	}
	if loc != "s3://mtgdump/mtg_static_parquet/year=2024/month=12/day=08/" {
		t.Errorf("location = %q", loc)
	}
}

func TestLocalExtractTrend(t *testing.T) {
	ctx := context.Background()
	c, s := newLocal(t)
	day := testDay()

	days := map[int]string{0: "10", 7: "8", 28: "5", 3: "99"}
	for off, p := range days {
		d := day.DaysAgo(off)
		putPrices(t, s, d, []domain.PriceFact{
			{ID: "a", USD: usd(p), PullDate: d},
			{ID: "old", USD: usd("3"), PullDate: d},
			{ID: "zero", USD: usd("0"), PullDate: d},
		})
		if err := c.AddPricePartition(ctx, "mtg_prices_parquet", "mtg_parquet", d, nil); err != nil {
			t.Fatal(err)
		}
		if err := c.MergePrices(ctx, "mtg_prices_iceberg", "mtg_prices_parquet", d, nil); err != nil {
			t.Fatal(err)
		}
	}
	putStatic(t, s, day, []domain.StaticDim{
		{ID: "a", TCGPlayerID: null.FloatFrom(123456), Name: null.StringFrom("Bolt"), ReleasedAt: null.StringFrom("2020-01-01"), PullDate: day},
		{ID: "old", Name: null.StringFrom("Old"), ReleasedAt: null.StringFrom("1993-08-05"), PullDate: day},
		{ID: "zero", Name: null.StringFrom("Zero"), ReleasedAt: null.StringFrom("2021-01-01"), PullDate: day},
	})
	if err := c.SetStaticLocation(ctx, "mtg_static_parquet", "mtg_static_parquet", day, nil); err != nil {
		t.Fatal(err)
	}

	loc, err := c.ExtractTrend(ctx, TrendRequest{Ledger: "mtg_prices_iceberg", Static: "mtg_static_parquet", Day: day, WindowYears: 10}, nil)
	if err != nil {
		t.Fatalf("ExtractTrend: %v", err)
	}
	rc, err := s.Get(ctx, loc.Bucket, loc.Key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	recs, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		TrendColumns,
		{"a", "123456", "Bolt", "", "", "2020-01-01", "10.00", "2024-12-08"},
		{"a", "123456", "Bolt", "", "", "2020-01-01", "8.00", "2024-12-01"},
		{"a", "123456", "Bolt", "", "", "2020-01-01", "5.00", "2024-11-10"},
	}
	if len(recs) != len(want) {
		t.Fatalf("extract rows = %v, want %v", recs, want)
	}
	for i := range want {
		for j := range want[i] {
			if recs[i][j] != want[i][j] {
				t.Errorf("row %d col %s = %q, want %q", i, TrendColumns[j], recs[i][j], want[i][j])
			}
		}
	}
}
