package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"cardpulse/internal/domain"
)

const parquetBatchSize = 2000

// ParquetWriter streams rows of T into a Parquet file of record type R.
// Rows are buffered and flushed in batches; Close must be called to write
// the footer.
type ParquetWriter[T, R any] struct {
	w       *parquet.GenericWriter[R]
	convert func(T) R
	buf     []R
	rows    int
}

func newParquetWriter[T, R any](w io.Writer, convert func(T) R) *ParquetWriter[T, R] {
	return &ParquetWriter[T, R]{
		w:       parquet.NewGenericWriter[R](w, parquet.Compression(&parquet.Snappy)),
		convert: convert,
		buf:     make([]R, 0, parquetBatchSize),
	}
}

// NewPriceParquetWriter returns a writer for price facts.
func NewPriceParquetWriter(w io.Writer) *ParquetWriter[domain.PriceFact, PriceRecord] {
	return newParquetWriter(w, NewPriceRecord)
}

// NewStaticParquetWriter returns a writer for static dimensions.
func NewStaticParquetWriter(w io.Writer) *ParquetWriter[domain.StaticDim, StaticRecord] {
	return newParquetWriter(w, NewStaticRecord)
}

// Write buffers one row, flushing a full batch to the underlying writer.
func (pw *ParquetWriter[T, R]) Write(row T) error {
	pw.buf = append(pw.buf, pw.convert(row))
	pw.rows++
	if len(pw.buf) >= parquetBatchSize {
		return pw.flush()
	}
	return nil
}

// Rows returns the number of rows written so far.
func (pw *ParquetWriter[T, R]) Rows() int { return pw.rows }

// Close flushes remaining rows and writes the file footer.
func (pw *ParquetWriter[T, R]) Close() error {
	if err := pw.flush(); err != nil {
		return err
	}
	return pw.w.Close()
}

func (pw *ParquetWriter[T, R]) flush() error {
	if len(pw.buf) == 0 {
		return nil
	}
	if _, err := pw.w.Write(pw.buf); err != nil {
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	pw.buf = pw.buf[:0]
	return nil
}

// ---------------------------------------------------------------------------
// Readers
// ---------------------------------------------------------------------------

// ReadPriceParquet decodes a whole Parquet document of price facts.
func ReadPriceParquet(r io.Reader) ([]domain.PriceFact, error) {
	records, err := readParquet[PriceRecord](r)
	if err != nil {
		return nil, err
	}
	facts := make([]domain.PriceFact, 0, len(records))
	for _, rec := range records {
		p, err := rec.PriceFact()
		if err != nil {
			return nil, err
		}
		facts = append(facts, p)
	}
	return facts, nil
}

// ReadStaticParquet decodes a whole Parquet document of static dimensions.
func ReadStaticParquet(r io.Reader) ([]domain.StaticDim, error) {
	records, err := readParquet[StaticRecord](r)
	if err != nil {
		return nil, err
	}
	dims := make([]domain.StaticDim, 0, len(records))
	for _, rec := range records {
		s, err := rec.StaticDim()
		if err != nil {
			return nil, err
		}
		dims = append(dims, s)
	}
	return dims, nil
}

// readParquet buffers r because the Parquet footer is read first.
func readParquet[T any](r io.Reader) ([]T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading parquet document: %w", err)
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding parquet document: %w", err)
	}
	return rows, nil
}
