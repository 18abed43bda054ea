package trend

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
)

// Bucket offsets in days before the run date.
const (
	oneWeek   = 7
	twoWeeks  = 14
	fourWeeks = 28
)

// diffPlaces is the rounding precision of diff ratios.
const diffPlaces = 4

// ProductURLPrefix is prepended to integral tcgplayer ids.
const ProductURLPrefix = "https://www.tcgplayer.com/product/"

// Row is one line of the price-mover report.
type Row struct {
	ID             string
	ProductURL     null.String
	Name           null.String
	SetName        null.String
	SetType        null.String
	ReleasedAt     null.String
	TodayPrice     decimal.NullDecimal
	TodayPriceDate null.String
	OneWeekPrice   decimal.NullDecimal
	TwoWeekPrice   decimal.NullDecimal
	FourWeekPrice  decimal.NullDecimal
	OneWeekDiff    decimal.NullDecimal
	TwoWeekDiff    decimal.NullDecimal
	FourWeekDiff   decimal.NullDecimal
}

// ReportColumns is the column order of the report CSV. The tcgplayer_id
// column carries the product URL.
var ReportColumns = []string{
	"id", "tcgplayer_id", "name", "set_name", "set_type", "released_at",
	"today_price", "today_price_date", "1wk_ago_price", "2wk_ago_price",
	"4wk_ago_price", "1wk_diff", "2wk_diff", "4wk_diff",
}

// Build groups extract rows by id (in id order), reduces each group to a
// report row, keeps rows whose today price is at least minPrice, and sorts
// them by 4-week diff descending with null diffs last.
func Build(rows []ExtractRow, day domain.RunDate, minPrice decimal.Decimal) []Row {
	groups := make(map[string][]ExtractRow)
	var ids []string
	for _, r := range rows {
		if _, ok := groups[r.ID]; !ok {
			ids = append(ids, r.ID)
		}
		groups[r.ID] = append(groups[r.ID], r)
	}
	sort.Strings(ids)

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		row := reduce(groups[id], day)
		if !row.TodayPrice.Valid || row.TodayPrice.Decimal.LessThan(minPrice) {
			continue
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].FourWeekDiff, out[j].FourWeekDiff
		if !a.Valid || !b.Valid {
			return a.Valid && !b.Valid
		}
		return a.Decimal.GreaterThan(b.Decimal)
	})
	return out
}

// reduce folds one id's rows into a report row. Descriptive fields come
// from the first row; each bucket takes the first row dated exactly on it.
func reduce(group []ExtractRow, day domain.RunDate) Row {
	first := group[0]
	row := Row{
		ID:         first.ID,
		ProductURL: ProductURL(first.TCGPlayerID),
		Name:       first.Name,
		SetName:    first.SetName,
		SetType:    first.SetType,
		ReleasedAt: first.ReleasedAt,
	}

	if r, ok := onDate(group, day); ok {
		row.TodayPrice = r.USD
		row.TodayPriceDate = null.StringFrom(r.PullDate.Formatted())
	}
	row.OneWeekPrice = priceOn(group, day.DaysAgo(oneWeek))
	row.TwoWeekPrice = priceOn(group, day.DaysAgo(twoWeeks))
	row.FourWeekPrice = priceOn(group, day.DaysAgo(fourWeeks))

	row.OneWeekDiff = Diff(row.TodayPrice, row.OneWeekPrice)
	row.TwoWeekDiff = Diff(row.TodayPrice, row.TwoWeekPrice)
	row.FourWeekDiff = Diff(row.TodayPrice, row.FourWeekPrice)
	return row
}

func onDate(group []ExtractRow, d domain.RunDate) (ExtractRow, bool) {
	for _, r := range group {
		if r.PullDate == d {
			return r, true
		}
	}
	return ExtractRow{}, false
}

func priceOn(group []ExtractRow, d domain.RunDate) decimal.NullDecimal {
	if r, ok := onDate(group, d); ok {
		return r.USD
	}
	return decimal.NullDecimal{}
}

// Diff returns today/past rounded to four places. It is null when either
// price is null or zero.
func Diff(today, past decimal.NullDecimal) decimal.NullDecimal {
	if !today.Valid || !past.Valid || today.Decimal.IsZero() || past.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(today.Decimal.Div(past.Decimal).RoundBank(diffPlaces))
}

// ProductURL builds the marketplace URL of an integral product id. Null
// and NaN ids yield a null URL.
func ProductURL(id null.Float) null.String {
	if !id.Valid || math.IsNaN(id.Float64) || math.IsInf(id.Float64, 0) {
		return null.String{}
	}
	return null.StringFrom(fmt.Sprintf("%s%d", ProductURLPrefix, int64(id.Float64)))
}

// WriteCSV writes rows with a header. Nulls are empty cells.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ID, r.ProductURL.String, r.Name.String, r.SetName.String, r.SetType.String,
			r.ReleasedAt.String, price(r.TodayPrice), r.TodayPriceDate.String,
			price(r.OneWeekPrice), price(r.TwoWeekPrice), price(r.FourWeekPrice),
			ratio(r.OneWeekDiff), ratio(r.TwoWeekDiff), ratio(r.FourWeekDiff),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func price(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func ratio(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
