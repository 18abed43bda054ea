// Package project turns the raw card snapshot into the price-fact and
// static-dimension projections and writes both in CSV and Parquet form.
package project

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"cardpulse/internal/domain"
)

// Decode streams the cards of a snapshot document, which must be a single
// JSON array of objects. Only one card is held in memory at a time. Any
// structural error is yielded once as ErrFatalInput and ends the sequence.
func Decode(r io.Reader) iter.Seq2[domain.Card, error] {
	return func(yield func(domain.Card, error) bool) {
		dec := json.NewDecoder(r)

		tok, err := dec.Token()
		if err != nil {
			yield(domain.Card{}, fmt.Errorf("%w: reading snapshot: %v", domain.ErrFatalInput, err))
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			yield(domain.Card{}, fmt.Errorf("%w: snapshot is not a JSON array", domain.ErrFatalInput))
			return
		}

		n := 0
		for dec.More() {
			var c domain.Card
			if err := dec.Decode(&c); err != nil {
				yield(domain.Card{}, fmt.Errorf("%w: decoding card %d: %v", domain.ErrFatalInput, n, err))
				return
			}
			n++
			if !yield(c, nil) {
				return
			}
		}

		if _, err := dec.Token(); err != nil {
			yield(domain.Card{}, fmt.Errorf("%w: reading snapshot end: %v", domain.ErrFatalInput, err))
		}
	}
}
