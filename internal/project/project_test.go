package project

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
	"cardpulse/internal/store"
)

const sampleSnapshot = `[
  {"id":"a1","oracle_id":"o1","mtgo_id":101,"tcgplayer_id":123456,"name":"Lightning Bolt","lang":"en",
   "released_at":"2020-01-01","set_name":"Core","set":"cor","set_type":"core","rarity":"common",
   "prices":{"usd":"1.25","usd_foil":null,"eur":"1.00"}},
  {"id":"b2","name":"Foil Only","prices":{"usd":null,"usd_foil":"7.50"}},
  {"id":"c3","name":"No Prices","prices":{"usd":null,"usd_foil":null}},
  {"id":"d4","name":"Missing Prices"},
  {"name":"No Id","prices":{"usd":"0.10"}}
]`

func testDay() domain.RunDate {
	return domain.NewRunDate(time.Date(2024, 12, 8, 0, 0, 0, 0, time.UTC))
}

func TestDecodeRejectsNonArray(t *testing.T) {
	for _, doc := range []string{`{"id":"a"}`, `not json`, `[{"id":"a"},`, ``} {
		var gotErr error
		for _, err := range Decode(strings.NewReader(doc)) {
			if err != nil {
				gotErr = err
			}
		}
		if !errors.Is(gotErr, domain.ErrFatalInput) {
			t.Errorf("Decode(%q) error = %v, want ErrFatalInput", doc, gotErr)
		}
	}
}

func TestDecodeMissingKeysAreNull(t *testing.T) {
	var cards []domain.Card
	for c, err := range Decode(strings.NewReader(sampleSnapshot)) {
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		cards = append(cards, c)
	}
	if len(cards) != 5 {
		t.Fatalf("got %d cards, want 5", len(cards))
	}
	if cards[3].Prices != nil || cards[3].OracleID.Valid {
		t.Errorf("card d4 = %+v, want null prices and oracle id", cards[3])
	}
	if cards[4].ID != "" {
		t.Errorf("card without id has ID %q", cards[4].ID)
	}
}

func TestPriceFactsRequireAPrice(t *testing.T) {
	day := testDay()
	var ids []string
	for f, err := range PriceFacts(Decode(strings.NewReader(sampleSnapshot)), day) {
		if err != nil {
			t.Fatalf("PriceFacts: %v", err)
		}
		if !f.USD.Valid && !f.USDFoil.Valid {
			t.Errorf("fact %q has no price", f.ID)
		}
		if f.PullDate != day {
			t.Errorf("fact %q pull date = %s, want %s", f.ID, f.PullDate, day)
		}
		ids = append(ids, f.ID)
	}
	if got, want := strings.Join(ids, ","), "a1,b2,"; got != want {
		t.Errorf("fact ids = %q, want %q", got, want)
	}
}

func TestStaticDimsOnePerCard(t *testing.T) {
	n := 0
	var first domain.StaticDim
	for d, err := range StaticDims(Decode(strings.NewReader(sampleSnapshot)), testDay()) {
		if err != nil {
			t.Fatalf("StaticDims: %v", err)
		}
		if n == 0 {
			first = d
		}
		n++
	}
	if n != 5 {
		t.Errorf("got %d static rows, want 5", n)
	}
	if first.TCGPlayerID.Float64 != 123456 || first.MTGOFoilID.Valid {
		t.Errorf("first row ids = %v/%v", first.TCGPlayerID, first.MTGOFoilID)
	}
}

func TestProjectorWritesBothFormats(t *testing.T) {
	ctx := context.Background()
	s := objstore.NewFSStore(t.TempDir())
	day := testDay()
	if err := s.Put(ctx, "mtgdump", domain.SnapshotKey(day), strings.NewReader(sampleSnapshot)); err != nil {
		t.Fatal(err)
	}

	ds := config.Dataset{CSVFolder: "mtg_csv", ParquetFolder: "mtg_parquet", CSVFile: "mtg_prices", ParquetFile: "mtg_prices"}
	p := NewProjector(s, "mtgdump", nil)
	out, err := p.Project(ctx, domain.RunDailyPrices, ds, day)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if out.Rows != 3 {
		t.Errorf("Rows = %d, want 3", out.Rows)
	}
	if out.ParquetKey != "mtg_parquet/year=2024/month=12/day=08/mtg_prices_20241208.parquet" {
		t.Errorf("ParquetKey = %q", out.ParquetKey)
	}

	rc, err := s.Get(ctx, "mtgdump", out.CSVKey)
	if err != nil {
		t.Fatalf("Get csv: %v", err)
	}
	fromCSV, err := store.ReadPriceCSV(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadPriceCSV: %v", err)
	}

	rc, err = s.Get(ctx, "mtgdump", out.ParquetKey)
	if err != nil {
		t.Fatalf("Get parquet: %v", err)
	}
	fromParquet, err := store.ReadPriceParquet(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadPriceParquet: %v", err)
	}

	if len(fromCSV) != 3 || len(fromParquet) != 3 {
		t.Fatalf("rows csv=%d parquet=%d, want 3", len(fromCSV), len(fromParquet))
	}
	for i := range fromCSV {
		c, q := fromCSV[i], fromParquet[i]
		if c.ID != q.ID || c.USD.Valid != q.USD.Valid || c.USDFoil.Valid != q.USDFoil.Valid {
			t.Errorf("row %d differs: csv=%+v parquet=%+v", i, c, q)
		}
		if c.USD.Valid && !c.USD.Decimal.Equal(q.USD.Decimal) {
			t.Errorf("row %d usd csv=%s parquet=%s", i, c.USD.Decimal, q.USD.Decimal)
		}
	}
}

func TestProjectorStatic(t *testing.T) {
	ctx := context.Background()
	s := objstore.NewFSStore(t.TempDir())
	day := testDay()
	if err := s.Put(ctx, "mtgdump", domain.SnapshotKey(day), strings.NewReader(sampleSnapshot)); err != nil {
		t.Fatal(err)
	}

	ds := config.Dataset{CSVFolder: "mtg_static_csv", ParquetFolder: "mtg_static_parquet", CSVFile: "mtg_static", ParquetFile: "mtg_static"}
	out, err := NewProjector(s, "mtgdump", nil).Project(ctx, domain.RunStaticPrices, ds, day)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if out.Rows != 5 {
		t.Errorf("Rows = %d, want 5", out.Rows)
	}

	rc, err := s.Get(ctx, "mtgdump", out.ParquetKey)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	dims, err := store.ReadStaticParquet(rc)
	if err != nil {
		t.Fatalf("ReadStaticParquet: %v", err)
	}
	if len(dims) != 5 || dims[0].Name.String != "Lightning Bolt" {
		t.Errorf("dims = %+v", dims)
	}
}

func TestProjectorMalformedSnapshotWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := objstore.NewFSStore(t.TempDir())
	day := testDay()
	if err := s.Put(ctx, "mtgdump", domain.SnapshotKey(day), strings.NewReader(`[{"id":"a"}, {"id":`)); err != nil {
		t.Fatal(err)
	}

	ds := config.Dataset{CSVFolder: "mtg_csv", ParquetFolder: "mtg_parquet", CSVFile: "mtg_prices", ParquetFile: "mtg_prices"}
	_, err := NewProjector(s, "mtgdump", nil).Project(ctx, domain.RunDailyPrices, ds, day)
	if !errors.Is(err, domain.ErrFatalInput) {
		t.Fatalf("Project error = %v, want ErrFatalInput", err)
	}

	objs, err := s.List(ctx, "mtgdump", "mtg_")
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range objs {
		if !strings.HasPrefix(o.Key, "mtg_temp_json/") {
			t.Errorf("unexpected object written: %s", o.Key)
		}
	}
}

func TestProjectorMissingSnapshot(t *testing.T) {
	s := objstore.NewFSStore(t.TempDir())
	ds := config.Dataset{CSVFolder: "c", ParquetFolder: "p", CSVFile: "f", ParquetFile: "f"}
	_, err := NewProjector(s, "mtgdump", nil).Project(context.Background(), domain.RunDailyPrices, ds, testDay())
	if !errors.Is(err, domain.ErrFatalExternal) {
		t.Fatalf("Project error = %v, want ErrFatalExternal", err)
	}
}
