// Package trend turns the trend extract into the ranked price-mover report.
package trend

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
)

// ExtractRow is one ledger/dimension join row of the trend extract.
type ExtractRow struct {
	ID          string
	TCGPlayerID null.Float
	Name        null.String
	SetName     null.String
	SetType     null.String
	ReleasedAt  null.String
	USD         decimal.NullDecimal
	PullDate    domain.RunDate
}

var extractColumns = []string{"id", "tcgplayer_id", "name", "set_name", "set_type", "released_at", "usd", "pull_date"}

// ReadExtract parses the extract CSV. Columns are matched by header name.
// A non-numeric price or id, or a malformed date, fails the whole read
// with ErrFatalInput.
func ReadExtract(r io.Reader) ([]ExtractRow, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty trend extract", domain.ErrFatalInput)
		}
		return nil, fmt.Errorf("%w: reading extract header: %v", domain.ErrFatalInput, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, c := range extractColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: extract missing column %q", domain.ErrFatalInput, c)
		}
	}

	var rows []ExtractRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: extract line %d: %v", domain.ErrFatalInput, line, err)
		}
		row, err := parseExtractRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: extract line %d: %v", domain.ErrFatalInput, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseExtractRow(rec []string, idx map[string]int) (ExtractRow, error) {
	get := func(col string) string { return rec[idx[col]] }

	row := ExtractRow{
		ID:      get("id"),
		Name:    optString(get("name")),
		SetName: optString(get("set_name")),
		SetType: optString(get("set_type")),
	}

	if s := get("tcgplayer_id"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return row, fmt.Errorf("tcgplayer_id %q: %w", s, err)
		}
		if !math.IsNaN(f) {
			row.TCGPlayerID = null.FloatFrom(f)
		}
	}

	if s := get("released_at"); s != "" {
		d, err := domain.ParseRunDate(s[:min(len(s), 10)])
		if err != nil {
			return row, err
		}
		row.ReleasedAt = null.StringFrom(d.Formatted())
	}

	if s := get("usd"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return row, fmt.Errorf("usd %q: %w", s, err)
		}
		row.USD = decimal.NewNullDecimal(d)
	}

	s := get("pull_date")
	d, err := domain.ParseRunDate(s[:min(len(s), 10)])
	if err != nil {
		return row, err
	}
	row.PullDate = d
	return row, nil
}

func optString(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}
