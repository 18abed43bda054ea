// Package snapshot downloads the daily bulk card export from the remote
// bulk-data index and stores it in the object store keyed by run date.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
	"cardpulse/internal/objstore"
	"cardpulse/internal/util"
)

// BulkEntry is one downloadable file listed by the bulk-data index.
type BulkEntry struct {
	Type        string `json:"type"`
	DownloadURI string `json:"download_uri"`
	UpdatedAt   string `json:"updated_at"`
	Size        int64  `json:"size"`
}

type bulkIndex struct {
	Data []BulkEntry `json:"data"`
}

// Result describes a stored snapshot.
type Result struct {
	Bucket      string
	Key         string
	DownloadURI string
	Bytes       int64
}

// Fetcher talks to the bulk-data source.
type Fetcher struct {
	cfg     config.Source
	client  *http.Client
	limiter *util.RateLimiter
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher for the configured source. A nil client gets
// one with the configured timeout.
func NewFetcher(cfg config.Source, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin),
		logger:  logger.With("stage", "fetch"),
	}
}

// Fetch resolves the configured bulk type, downloads it, and writes it to
// bucket under the snapshot key for day.
func (f *Fetcher) Fetch(ctx context.Context, store objstore.Store, bucket string, day domain.RunDate) (Result, error) {
	entry, err := f.Resolve(ctx)
	if err != nil {
		return Result{}, err
	}

	tmp, err := os.CreateTemp("", "cardpulse-snapshot-*.json")
	if err != nil {
		return Result{}, fmt.Errorf("creating spool file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	var n int64
	err = f.get(ctx, entry.DownloadURI, func(body io.Reader) error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := tmp.Truncate(0); err != nil {
			return err
		}
		n, err = io.Copy(tmp, body)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("downloading %s: %w", entry.DownloadURI, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Result{}, err
	}

	key := domain.SnapshotKey(day)
	if err := store.Put(ctx, bucket, key, tmp); err != nil {
		return Result{}, fmt.Errorf("%w: storing snapshot: %v", domain.ErrFatalExternal, err)
	}

	f.logger.Info("snapshot stored", "bucket", bucket, "key", key, "bytes", n)
	return Result{Bucket: bucket, Key: key, DownloadURI: entry.DownloadURI, Bytes: n}, nil
}

// Resolve reads the bulk-data index and returns the entry of the configured
// type.
func (f *Fetcher) Resolve(ctx context.Context) (BulkEntry, error) {
	var idx bulkIndex
	err := f.get(ctx, f.cfg.IndexURL, func(body io.Reader) error {
		idx = bulkIndex{}
		if err := json.NewDecoder(body).Decode(&idx); err != nil {
			return util.Permanent(fmt.Errorf("decoding bulk index: %w", err))
		}
		return nil
	})
	if err != nil {
		return BulkEntry{}, fmt.Errorf("reading bulk index: %w", err)
	}

	for _, e := range idx.Data {
		if e.Type == f.cfg.BulkType {
			f.logger.Info("bulk entry resolved", "type", e.Type, "uri", e.DownloadURI, "updated_at", e.UpdatedAt)
			return e, nil
		}
	}
	return BulkEntry{}, fmt.Errorf("%w: bulk type %q not in index", domain.ErrFatalExternal, f.cfg.BulkType)
}

// get issues a GET with retries. Throttling and transport errors are retried
// with exponential backoff; any other non-200 status fails immediately.
func (f *Fetcher) get(ctx context.Context, url string, handle func(io.Reader) error) error {
	attempt := 0
	err := util.Retry(ctx, f.cfg.MaxAttempts, f.cfg.BaseDelay, func() error {
		attempt++
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			f.logger.Warn("request failed", "url", url, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			f.logger.Warn("rate limited", "url", url, "attempt", attempt)
			return fmt.Errorf("%w: %s returned %d", domain.ErrRateLimited, url, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return util.Permanent(fmt.Errorf("%s returned %d", url, resp.StatusCode))
		}
		return handle(resp.Body)
	})
	if err != nil && !errors.Is(err, domain.ErrFatalExternal) {
		return fmt.Errorf("%w: %w", domain.ErrFatalExternal, err)
	}
	return err
}
