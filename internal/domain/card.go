// Package domain defines the core types shared across the pipeline: card
// records from the bulk snapshot, the two tabular projections derived from
// them, run classifiers, and run dates.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Card records (bulk snapshot)
// ---------------------------------------------------------------------------

// Card is a single record of the bulk card export. Keys missing from the
// source object decode to null values; no field is required.
type Card struct {
	ID           string     `json:"id"`
	OracleID     Text       `json:"oracle_id"`
	MTGOID       null.Float `json:"mtgo_id"`
	MTGOFoilID   null.Float `json:"mtgo_foil_id"`
	TCGPlayerID  null.Float `json:"tcgplayer_id"`
	CardmarketID null.Float `json:"cardmarket_id"`
	Name         Text       `json:"name"`
	Lang         Text       `json:"lang"`
	ReleasedAt   Text       `json:"released_at"`
	SetName      Text       `json:"set_name"`
	Set          Text       `json:"set"`
	SetType      Text       `json:"set_type"`
	Rarity       Text       `json:"rarity"`
	Prices       *Prices    `json:"prices"`
}

// Text is a nullable descriptive field of a card. It accepts any JSON
// scalar: strings decode as-is and numbers or booleans keep their literal
// text. Objects and arrays keep their compact JSON.
type Text null.String

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = Text{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(null.StringFrom(s))
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*t = Text(null.StringFrom(buf.String()))
	}
	return nil
}

// Null returns the value as a null.String.
func (t Text) Null() null.String { return null.String(t) }

// Prices is the nested price object of a card. Only the USD fields are
// projected; the remaining currencies are ignored.
type Prices struct {
	USD     decimal.NullDecimal `json:"usd"`
	USDFoil decimal.NullDecimal `json:"usd_foil"`
}

// ---------------------------------------------------------------------------
// Projections
// ---------------------------------------------------------------------------

// PriceFact is one time-series price observation for a card on a pull date.
// At least one of USD and USDFoil is valid.
type PriceFact struct {
	ID       string
	USD      decimal.NullDecimal
	USDFoil  decimal.NullDecimal
	PullDate RunDate
}

// HasPrice reports whether at least one price field is non-null.
func (p PriceFact) HasPrice() bool {
	return p.USD.Valid || p.USDFoil.Valid
}

// StaticDim is the slowly-changing descriptive row for a card on a pull date.
// Marketplace ids are kept as float64 so that absent values survive the
// columnar schema.
type StaticDim struct {
	ID           string
	OracleID     null.String
	MTGOID       null.Float
	MTGOFoilID   null.Float
	TCGPlayerID  null.Float
	CardmarketID null.Float
	Name         null.String
	Lang         null.String
	ReleasedAt   null.String
	SetName      null.String
	Set          null.String
	SetType      null.String
	Rarity       null.String
	PullDate     RunDate
}

// PriceColumns is the fixed column order of the price projection.
var PriceColumns = []string{"id", "usd", "usd_foil", "pull_date"}

// StaticColumns is the fixed column order of the static projection.
var StaticColumns = []string{
	"id", "oracle_id", "mtgo_id", "mtgo_foil_id", "tcgplayer_id",
	"cardmarket_id", "name", "lang", "released_at", "set_name", "set",
	"set_type", "rarity", "pull_date",
}

// ---------------------------------------------------------------------------
// Run classifiers
// ---------------------------------------------------------------------------

// RunType selects which projection a stage works on.
type RunType string

const (
	RunDailyPrices  RunType = "daily_prices"
	RunStaticPrices RunType = "static_prices"
)

// ParseRunType validates a run classifier. Unknown values are fatal input.
func ParseRunType(s string) (RunType, error) {
	switch RunType(s) {
	case RunDailyPrices, RunStaticPrices:
		return RunType(s), nil
	default:
		return "", fmt.Errorf("%w: unexpected run_type %q", ErrFatalInput, s)
	}
}
