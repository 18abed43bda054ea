package project

import (
	"iter"

	"github.com/shopspring/decimal"

	"cardpulse/internal/domain"
)

// PriceFacts projects cards to price facts. A card contributes a row only
// when at least one USD price is present.
func PriceFacts(cards iter.Seq2[domain.Card, error], pullDate domain.RunDate) iter.Seq2[domain.PriceFact, error] {
	return func(yield func(domain.PriceFact, error) bool) {
		for c, err := range cards {
			if err != nil {
				yield(domain.PriceFact{}, err)
				return
			}
			fact := PriceFact(c, pullDate)
			if !fact.HasPrice() {
				continue
			}
			if !yield(fact, nil) {
				return
			}
		}
	}
}

// PriceFact extracts the price columns of one card.
func PriceFact(c domain.Card, pullDate domain.RunDate) domain.PriceFact {
	var usd, foil decimal.NullDecimal
	if c.Prices != nil {
		usd, foil = c.Prices.USD, c.Prices.USDFoil
	}
	return domain.PriceFact{ID: c.ID, USD: usd, USDFoil: foil, PullDate: pullDate}
}

// StaticDims projects every card to exactly one static dimension row.
func StaticDims(cards iter.Seq2[domain.Card, error], pullDate domain.RunDate) iter.Seq2[domain.StaticDim, error] {
	return func(yield func(domain.StaticDim, error) bool) {
		for c, err := range cards {
			if err != nil {
				yield(domain.StaticDim{}, err)
				return
			}
			if !yield(StaticDim(c, pullDate), nil) {
				return
			}
		}
	}
}

// StaticDim extracts the static columns of one card.
func StaticDim(c domain.Card, pullDate domain.RunDate) domain.StaticDim {
	return domain.StaticDim{
		ID:           c.ID,
		OracleID:     c.OracleID.Null(),
		MTGOID:       c.MTGOID,
		MTGOFoilID:   c.MTGOFoilID,
		TCGPlayerID:  c.TCGPlayerID,
		CardmarketID: c.CardmarketID,
		Name:         c.Name.Null(),
		Lang:         c.Lang.Null(),
		ReleasedAt:   c.ReleasedAt.Null(),
		SetName:      c.SetName.Null(),
		Set:          c.Set.Null(),
		SetType:      c.SetType.Null(),
		Rarity:       c.Rarity.Null(),
		PullDate:     pullDate,
	}
}
