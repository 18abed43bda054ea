package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
	"cardpulse/internal/store"
)

// Output describes the artifacts written for one run type.
type Output struct {
	RunType    domain.RunType
	Rows       int
	CSVKey     string
	ParquetKey string
}

// Projector reads the day's snapshot from the object store and writes one
// projection as CSV and Parquet back to it.
type Projector struct {
	store  objstore.Store
	bucket string
	logger *slog.Logger
}

// NewProjector creates a Projector working in bucket.
func NewProjector(s objstore.Store, bucket string, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{store: s, bucket: bucket, logger: logger.With("stage", "project")}
}

// Project streams the snapshot for day through the projection selected by
// runType. Artifacts are staged in a temp directory and uploaded only after
// the whole snapshot decoded, so a malformed snapshot writes nothing.
func (p *Projector) Project(ctx context.Context, runType domain.RunType, ds config.Dataset, day domain.RunDate) (Output, error) {
	out := Output{
		RunType:    runType,
		CSVKey:     domain.PartitionKey(ds.CSVFolder, ds.CSVFile, "csv", day),
		ParquetKey: domain.PartitionKey(ds.ParquetFolder, ds.ParquetFile, "parquet", day),
	}

	snapKey := domain.SnapshotKey(day)
	rc, err := p.store.Get(ctx, p.bucket, snapKey)
	if err != nil {
		return out, fmt.Errorf("%w: opening snapshot %s: %v", domain.ErrFatalExternal, snapKey, err)
	}
	defer rc.Close()

	dir, err := os.MkdirTemp("", "cardpulse-project-*")
	if err != nil {
		return out, err
	}
	defer os.RemoveAll(dir)

	csvPath := filepath.Join(dir, filepath.Base(out.CSVKey))
	pqPath := filepath.Join(dir, filepath.Base(out.ParquetKey))

	out.Rows, err = writeProjection(rc, runType, day, csvPath, pqPath)
	if err != nil {
		return out, err
	}
	p.logger.Info("projection written", "run_type", runType, "rows", out.Rows)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.upload(gctx, csvPath, out.CSVKey) })
	g.Go(func() error { return p.upload(gctx, pqPath, out.ParquetKey) })
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrFatalExternal, err)
	}

	p.logger.Info("projection uploaded", "csv", out.CSVKey, "parquet", out.ParquetKey)
	return out, nil
}

func (p *Projector) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := p.store.Put(ctx, p.bucket, key, f); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Local artifact writing
// ---------------------------------------------------------------------------

func writeProjection(r io.Reader, runType domain.RunType, day domain.RunDate, csvPath, pqPath string) (n int, err error) {
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, csvFile.Close()) }()

	pqFile, err := os.Create(pqPath)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, pqFile.Close()) }()

	cards := Decode(r)
	switch runType {
	case domain.RunDailyPrices:
		cw, err := store.NewPriceCSVWriter(csvFile)
		if err != nil {
			return 0, err
		}
		return writeRows[domain.PriceFact](PriceFacts(cards, day), cw, store.NewPriceParquetWriter(pqFile))
	case domain.RunStaticPrices:
		cw, err := store.NewStaticCSVWriter(csvFile)
		if err != nil {
			return 0, err
		}
		return writeRows[domain.StaticDim](StaticDims(cards, day), cw, store.NewStaticParquetWriter(pqFile))
	default:
		return 0, fmt.Errorf("%w: unexpected run_type %q", domain.ErrFatalInput, runType)
	}
}

type rowWriter[T any] interface {
	Write(T) error
	Close() error
}

// writeRows drains rows into every writer and closes them.
func writeRows[T any](rows iter.Seq2[T, error], writers ...rowWriter[T]) (int, error) {
	n := 0
	for row, err := range rows {
		if err != nil {
			return n, err
		}
		for _, w := range writers {
			if err := w.Write(row); err != nil {
				return n, err
			}
		}
		n++
	}
	for _, w := range writers {
		if err := w.Close(); err != nil {
			return n, err
		}
	}
	return n, nil
}
