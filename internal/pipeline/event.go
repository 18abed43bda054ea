// Package pipeline wires the stages of the daily card-price run together
// and exposes each as an invocation taking an Event and returning a Result.
package pipeline

import (
	"encoding/json"
	"fmt"
	"io"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
)

// Pair names the CSV and Parquet variants of a dataset attribute.
type Pair struct {
	CSV     string `json:"csv"`
	Parquet string `json:"parquet"`
}

// Event is the structured input of a stage invocation. Empty names fall
// back to the configured dataset of the run type.
type Event struct {
	RunType    string `json:"run_type"`
	DataFolder Pair   `json:"data_folder"`
	DataFile   Pair   `json:"data_file"`
	Table      Pair   `json:"table"`
}

// Result is the structured output of a stage invocation.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Stage      string `json:"stage"`
	RunType    string `json:"run_type,omitempty"`
	Date       string `json:"date_processed"`
	RunID      string `json:"run_id"`
	Body       any    `json:"body"`
}

// ParseEvent decodes an event document.
func ParseEvent(r io.Reader) (Event, error) {
	var ev Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("%w: decoding event: %v", domain.ErrFatalInput, err)
	}
	return ev, nil
}

// DefaultEvent builds the event for runType from the configured datasets.
func DefaultEvent(cfg *config.Config, runType domain.RunType) Event {
	ds := cfg.Datasets.Prices
	if runType == domain.RunStaticPrices {
		ds = cfg.Datasets.Static
	}
	return Event{
		RunType:    string(runType),
		DataFolder: Pair{CSV: ds.CSVFolder, Parquet: ds.ParquetFolder},
		DataFile:   Pair{CSV: ds.CSVFile, Parquet: ds.ParquetFile},
		Table:      Pair{CSV: ds.CSVTable, Parquet: ds.ParquetTable},
	}
}

// Dataset overlays the event's non-empty names on def.
func (e Event) Dataset(def config.Dataset) config.Dataset {
	ds := def
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&ds.CSVFolder, e.DataFolder.CSV)
	set(&ds.ParquetFolder, e.DataFolder.Parquet)
	set(&ds.CSVFile, e.DataFile.CSV)
	set(&ds.ParquetFile, e.DataFile.Parquet)
	set(&ds.CSVTable, e.Table.CSV)
	set(&ds.ParquetTable, e.Table.Parquet)
	return ds
}

// WriteResults encodes results as indented JSON, one document per result.
func WriteResults(w io.Writer, results ...Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
