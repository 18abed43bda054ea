// Package store defines the on-disk representations of the price and static
// projections and streaming codecs for them in delimited text (CSV) and
// columnar (Parquet) form. Both forms share one logical schema.
package store

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for price facts. Pointer fields are
// written as optional columns.
type PriceRecord struct {
	ID       string   `parquet:"id"`
	USD      *float64 `parquet:"usd"`
	USDFoil  *float64 `parquet:"usd_foil"`
	PullDate string   `parquet:"pull_date"`
}

// StaticRecord is the Parquet schema for static dimensions. Marketplace ids
// are optional DOUBLE columns.
type StaticRecord struct {
	ID           string   `parquet:"id"`
	OracleID     *string  `parquet:"oracle_id"`
	MTGOID       *float64 `parquet:"mtgo_id"`
	MTGOFoilID   *float64 `parquet:"mtgo_foil_id"`
	TCGPlayerID  *float64 `parquet:"tcgplayer_id"`
	CardmarketID *float64 `parquet:"cardmarket_id"`
	Name         *string  `parquet:"name"`
	Lang         *string  `parquet:"lang"`
	ReleasedAt   *string  `parquet:"released_at"`
	SetName      *string  `parquet:"set_name"`
	Set          *string  `parquet:"set"`
	SetType      *string  `parquet:"set_type"`
	Rarity       *string  `parquet:"rarity"`
	PullDate     string   `parquet:"pull_date"`
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// NewPriceRecord converts a price fact to its Parquet row.
func NewPriceRecord(p domain.PriceFact) PriceRecord {
	return PriceRecord{
		ID:       p.ID,
		USD:      decimalPtr(p.USD),
		USDFoil:  decimalPtr(p.USDFoil),
		PullDate: p.PullDate.Formatted(),
	}
}

// PriceFact converts the row back to a price fact.
func (r PriceRecord) PriceFact() (domain.PriceFact, error) {
	d, err := domain.ParseRunDate(r.PullDate)
	if err != nil {
		return domain.PriceFact{}, err
	}
	return domain.PriceFact{
		ID:       r.ID,
		USD:      ptrDecimal(r.USD),
		USDFoil:  ptrDecimal(r.USDFoil),
		PullDate: d,
	}, nil
}

// NewStaticRecord converts a static dimension to its Parquet row.
func NewStaticRecord(s domain.StaticDim) StaticRecord {
	return StaticRecord{
		ID:           s.ID,
		OracleID:     s.OracleID.Ptr(),
		MTGOID:       s.MTGOID.Ptr(),
		MTGOFoilID:   s.MTGOFoilID.Ptr(),
		TCGPlayerID:  s.TCGPlayerID.Ptr(),
		CardmarketID: s.CardmarketID.Ptr(),
		Name:         s.Name.Ptr(),
		Lang:         s.Lang.Ptr(),
		ReleasedAt:   s.ReleasedAt.Ptr(),
		SetName:      s.SetName.Ptr(),
		Set:          s.Set.Ptr(),
		SetType:      s.SetType.Ptr(),
		Rarity:       s.Rarity.Ptr(),
		PullDate:     s.PullDate.Formatted(),
	}
}

// StaticDim converts the row back to a static dimension.
func (r StaticRecord) StaticDim() (domain.StaticDim, error) {
	d, err := domain.ParseRunDate(r.PullDate)
	if err != nil {
		return domain.StaticDim{}, err
	}
	return domain.StaticDim{
		ID:           r.ID,
		OracleID:     null.StringFromPtr(r.OracleID),
		MTGOID:       null.FloatFromPtr(r.MTGOID),
		MTGOFoilID:   null.FloatFromPtr(r.MTGOFoilID),
		TCGPlayerID:  null.FloatFromPtr(r.TCGPlayerID),
		CardmarketID: null.FloatFromPtr(r.CardmarketID),
		Name:         null.StringFromPtr(r.Name),
		Lang:         null.StringFromPtr(r.Lang),
		ReleasedAt:   null.StringFromPtr(r.ReleasedAt),
		SetName:      null.StringFromPtr(r.SetName),
		Set:          null.StringFromPtr(r.Set),
		SetType:      null.StringFromPtr(r.SetType),
		Rarity:       null.StringFromPtr(r.Rarity),
		PullDate:     d,
	}, nil
}

func decimalPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func ptrDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}
