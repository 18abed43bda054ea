package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
)

func testDate(t *testing.T) domain.RunDate {
	t.Helper()
	d, err := domain.ParseRunDate("2024-12-08")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleFacts(d domain.RunDate) []domain.PriceFact {
	return []domain.PriceFact{
		{ID: "a", USD: price("0.25"), USDFoil: price("1.10"), PullDate: d},
		{ID: "b", USD: price("12.34"), PullDate: d},
		{ID: "c", USDFoil: price("99.99"), PullDate: d},
	}
}

func sampleDims(d domain.RunDate) []domain.StaticDim {
	return []domain.StaticDim{
		{
			ID:           "a",
			OracleID:     null.StringFrom("o-1"),
			MTGOID:       null.FloatFrom(1001),
			TCGPlayerID:  null.FloatFrom(123456),
			CardmarketID: null.FloatFrom(777),
			Name:         null.StringFrom("Lightning Bolt, Again"),
			Lang:         null.StringFrom("en"),
			ReleasedAt:   null.StringFrom("2021-06-18"),
			SetName:      null.StringFrom("Modern Horizons 2"),
			Set:          null.StringFrom("mh2"),
			SetType:      null.StringFrom("draft_innovation"),
			Rarity:       null.StringFrom("uncommon"),
			PullDate:     d,
		},
		{ID: "b", Name: null.StringFrom("Token"), PullDate: d},
	}
}

func TestPriceCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPriceCSVWriter(&buf)
	if err != nil {
		t.Fatalf("NewPriceCSVWriter: %v", err)
	}
	for _, f := range sampleFacts(testDate(t)) {
		if err := w.Write(f); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "id,usd,usd_foil,pull_date" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "b,12.34,,2024-12-08" {
		t.Errorf("row with null foil = %q, want %q", lines[2], "b,12.34,,2024-12-08")
	}
	if w.Rows() != 3 {
		t.Errorf("Rows() = %d, want 3", w.Rows())
	}
}

func TestStaticCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewStaticCSVWriter(&buf)
	if err != nil {
		t.Fatalf("NewStaticCSVWriter: %v", err)
	}
	if err := w.Write(sampleDims(testDate(t))[0]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "id,oracle_id,mtgo_id,mtgo_foil_id,tcgplayer_id,cardmarket_id,name,lang,released_at,set_name,set,set_type,rarity,pull_date\n" +
		`a,o-1,1001,,123456,777,"Lightning Bolt, Again",en,2021-06-18,Modern Horizons 2,mh2,draft_innovation,uncommon,2024-12-08` + "\n"
	if buf.String() != want {
		t.Errorf("static csv mismatch:\n  got  %q\n  want %q", buf.String(), want)
	}
}

func TestPriceRoundTrip(t *testing.T) {
	facts := sampleFacts(testDate(t))

	var csvBuf, pqBuf bytes.Buffer
	cw, err := NewPriceCSVWriter(&csvBuf)
	if err != nil {
		t.Fatal(err)
	}
	pw := NewPriceParquetWriter(&pqBuf)
	for _, f := range facts {
		if err := cw.Write(f); err != nil {
			t.Fatal(err)
		}
		if err := pw.Write(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}

	fromCSV, err := ReadPriceCSV(&csvBuf)
	if err != nil {
		t.Fatalf("ReadPriceCSV: %v", err)
	}
	fromParquet, err := ReadPriceParquet(&pqBuf)
	if err != nil {
		t.Fatalf("ReadPriceParquet: %v", err)
	}
	if len(fromCSV) != len(facts) || len(fromParquet) != len(facts) {
		t.Fatalf("row counts csv=%d parquet=%d, want %d", len(fromCSV), len(fromParquet), len(facts))
	}

	for i := range facts {
		c, p := fromCSV[i], fromParquet[i]
		if c.ID != p.ID || c.PullDate != p.PullDate {
			t.Errorf("row %d: key mismatch csv=%s/%s parquet=%s/%s", i, c.ID, c.PullDate, p.ID, p.PullDate)
		}
		for _, pair := range [][2]decimal.NullDecimal{{c.USD, p.USD}, {c.USDFoil, p.USDFoil}} {
			if pair[0].Valid != pair[1].Valid {
				t.Errorf("row %d: null mismatch csv=%v parquet=%v", i, pair[0], pair[1])
				continue
			}
			if pair[0].Valid && !pair[0].Decimal.Equal(pair[1].Decimal) {
				t.Errorf("row %d: value mismatch csv=%s parquet=%s", i, pair[0].Decimal, pair[1].Decimal)
			}
		}
		if !c.USD.Decimal.Equal(facts[i].USD.Decimal) {
			t.Errorf("row %d: usd = %s, want %s", i, c.USD.Decimal, facts[i].USD.Decimal)
		}
	}
}

func TestStaticRoundTrip(t *testing.T) {
	dims := sampleDims(testDate(t))

	var csvBuf, pqBuf bytes.Buffer
	cw, err := NewStaticCSVWriter(&csvBuf)
	if err != nil {
		t.Fatal(err)
	}
	pw := NewStaticParquetWriter(&pqBuf)
	for _, d := range dims {
		if err := cw.Write(d); err != nil {
			t.Fatal(err)
		}
		if err := pw.Write(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}

	fromCSV, err := ReadStaticCSV(&csvBuf)
	if err != nil {
		t.Fatalf("ReadStaticCSV: %v", err)
	}
	fromParquet, err := ReadStaticParquet(&pqBuf)
	if err != nil {
		t.Fatalf("ReadStaticParquet: %v", err)
	}
	if len(fromCSV) != 2 || len(fromParquet) != 2 {
		t.Fatalf("row counts csv=%d parquet=%d, want 2", len(fromCSV), len(fromParquet))
	}

	for i := range dims {
		if fromCSV[i] != fromParquet[i] {
			t.Errorf("row %d mismatch:\n  csv     %+v\n  parquet %+v", i, fromCSV[i], fromParquet[i])
		}
		if fromParquet[i] != dims[i] {
			t.Errorf("row %d parquet = %+v, want %+v", i, fromParquet[i], dims[i])
		}
	}
	if fromParquet[1].TCGPlayerID.Valid {
		t.Error("absent tcgplayer_id should reload as null")
	}
}

func TestReadCSVRejectsBadHeader(t *testing.T) {
	_, err := ReadPriceCSV(strings.NewReader("id,usd,foil,pull_date\n"))
	if err == nil {
		t.Fatal("expected header mismatch error")
	}
}

func TestReadCSVRejectsBadPrice(t *testing.T) {
	_, err := ReadPriceCSV(strings.NewReader("id,usd,usd_foil,pull_date\na,abc,,2024-12-08\n"))
	if err == nil {
		t.Fatal("expected parse error for non-numeric price")
	}
}
