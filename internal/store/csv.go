package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
)

// CSVWriter streams rows of T as CSV with a fixed header row.
type CSVWriter[T any] struct {
	w      *csv.Writer
	encode func(T) []string
	rows   int
}

func newCSVWriter[T any](w io.Writer, header []string, encode func(T) []string) (*CSVWriter[T], error) {
	cw := &CSVWriter[T]{w: csv.NewWriter(w), encode: encode}
	if err := cw.w.Write(header); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	return cw, nil
}

// NewPriceCSVWriter writes the price header and returns a writer for facts.
func NewPriceCSVWriter(w io.Writer) (*CSVWriter[domain.PriceFact], error) {
	return newCSVWriter(w, domain.PriceColumns, encodePrice)
}

// NewStaticCSVWriter writes the static header and returns a writer for
// dimensions.
func NewStaticCSVWriter(w io.Writer) (*CSVWriter[domain.StaticDim], error) {
	return newCSVWriter(w, domain.StaticColumns, encodeStatic)
}

// Write encodes one row.
func (cw *CSVWriter[T]) Write(row T) error {
	cw.rows++
	return cw.w.Write(cw.encode(row))
}

// Rows returns the number of data rows written so far.
func (cw *CSVWriter[T]) Rows() int { return cw.rows }

// Close flushes buffered output.
func (cw *CSVWriter[T]) Close() error {
	cw.w.Flush()
	return cw.w.Error()
}

func encodePrice(p domain.PriceFact) []string {
	return []string{p.ID, fmtDecimal(p.USD), fmtDecimal(p.USDFoil), p.PullDate.Formatted()}
}

func encodeStatic(s domain.StaticDim) []string {
	return []string{
		s.ID,
		s.OracleID.ValueOrZero(),
		fmtFloat(s.MTGOID),
		fmtFloat(s.MTGOFoilID),
		fmtFloat(s.TCGPlayerID),
		fmtFloat(s.CardmarketID),
		s.Name.ValueOrZero(),
		s.Lang.ValueOrZero(),
		s.ReleasedAt.ValueOrZero(),
		s.SetName.ValueOrZero(),
		s.Set.ValueOrZero(),
		s.SetType.ValueOrZero(),
		s.Rarity.ValueOrZero(),
		s.PullDate.Formatted(),
	}
}

func fmtDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func fmtFloat(f null.Float) string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Float64, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// Readers
// ---------------------------------------------------------------------------

// ReadPriceCSV parses a price CSV written by NewPriceCSVWriter. Empty cells
// are nulls.
func ReadPriceCSV(r io.Reader) ([]domain.PriceFact, error) {
	var facts []domain.PriceFact
	err := readCSV(r, domain.PriceColumns, func(rec []string) error {
		usd, err := parseDecimal(rec[1])
		if err != nil {
			return err
		}
		foil, err := parseDecimal(rec[2])
		if err != nil {
			return err
		}
		d, err := domain.ParseRunDate(rec[3])
		if err != nil {
			return err
		}
		facts = append(facts, domain.PriceFact{ID: rec[0], USD: usd, USDFoil: foil, PullDate: d})
		return nil
	})
	return facts, err
}

// ReadStaticCSV parses a static CSV written by NewStaticCSVWriter. Empty
// cells are nulls.
func ReadStaticCSV(r io.Reader) ([]domain.StaticDim, error) {
	var dims []domain.StaticDim
	err := readCSV(r, domain.StaticColumns, func(rec []string) error {
		ids := make([]null.Float, 4)
		for i := range ids {
			f, err := parseFloat(rec[2+i])
			if err != nil {
				return err
			}
			ids[i] = f
		}
		d, err := domain.ParseRunDate(rec[13])
		if err != nil {
			return err
		}
		dims = append(dims, domain.StaticDim{
			ID:           rec[0],
			OracleID:     nullString(rec[1]),
			MTGOID:       ids[0],
			MTGOFoilID:   ids[1],
			TCGPlayerID:  ids[2],
			CardmarketID: ids[3],
			Name:         nullString(rec[6]),
			Lang:         nullString(rec[7]),
			ReleasedAt:   nullString(rec[8]),
			SetName:      nullString(rec[9]),
			Set:          nullString(rec[10]),
			SetType:      nullString(rec[11]),
			Rarity:       nullString(rec[12]),
			PullDate:     d,
		})
		return nil
	})
	return dims, err
}

func readCSV(r io.Reader, header []string, fn func([]string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	got, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading csv header: %w", err)
	}
	for i, col := range header {
		if got[i] != col {
			return fmt.Errorf("csv column %d = %q, want %q", i, got[i], col)
		}
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading csv: %w", err)
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("csv line %d: %w", line, err)
		}
	}
}

func parseDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func parseFloat(s string) (null.Float, error) {
	if s == "" {
		return null.Float{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	return null.FloatFrom(f), nil
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
