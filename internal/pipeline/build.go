package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cardpulse/internal/awsconf"
	"cardpulse/internal/config"
	"cardpulse/internal/notify"
	"cardpulse/internal/objstore"
	"cardpulse/internal/params"
	"cardpulse/internal/snapshot"
	"cardpulse/internal/warehouse"
)

// paramCacheSize bounds the parameter cache.
const paramCacheSize = 32

// Build wires Stages for the configured backend. Parameter-store values
// named in cfg.ParamNames are resolved first and written into cfg. The
// returned function releases backend resources.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stages, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() error { return nil }

	switch cfg.Storage.Backend {
	case "aws":
		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return nil, noop, err
		}
		if err := ResolveParams(ctx, cfg, params.NewCached(params.NewSSMStoreFromConfig(awsCfg), paramCacheSize)); err != nil {
			return nil, noop, err
		}

		store := objstore.NewS3StoreFromConfig(awsCfg)
		catalog := warehouse.NewQueryCatalog(warehouse.NewAthenaEngineFromConfig(awsCfg), store, warehouse.QueryOptions{
			Bucket:         cfg.Storage.PrimaryBucket,
			Database:       cfg.AWS.Database,
			OutputLocation: cfg.AWS.QueryOutput,
			PollInterval:   cfg.Query.PollInterval,
		}, logger)

		var n notify.Notifier = notify.NewLogNotifier(logger)
		if cfg.AWS.TopicARN != "" {
			n = notify.NewSNSNotifierFromConfig(awsCfg, cfg.AWS.TopicARN)
		}

		return &Stages{
			Config:   cfg,
			Store:    store,
			Catalog:  catalog,
			Notifier: n,
			Fetcher:  snapshot.NewFetcher(cfg.Source, nil, logger),
			Logger:   logger,
		}, noop, nil

	case "local":
		if err := ResolveParams(ctx, cfg, params.NewCached(params.Static(cfg.Parameters), paramCacheSize)); err != nil {
			return nil, noop, err
		}

		store := objstore.NewFSStore(cfg.Storage.DataDir)
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, noop, err
		}
		catalog, err := warehouse.NewLocalCatalog(cfg.Storage.SQLitePath, store, cfg.Storage.PrimaryBucket, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("opening local catalog: %w", err)
		}

		return &Stages{
			Config:   cfg,
			Store:    store,
			Catalog:  catalog,
			Notifier: notify.NewLogNotifier(logger),
			Fetcher:  snapshot.NewFetcher(cfg.Source, nil, logger),
			Logger:   logger,
		}, catalog.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ResolveParams looks up the configured parameter names and overrides the
// bucket and topic settings with their values.
func ResolveParams(ctx context.Context, cfg *config.Config, store params.Store) error {
	names := cfg.ParamNames.Names()
	if len(names) == 0 {
		return nil
	}
	vals, err := store.GetParameters(ctx, names)
	if err != nil {
		return err
	}

	pn := cfg.ParamNames
	if pn.PrimaryBucket != "" {
		cfg.Storage.PrimaryBucket = vals[pn.PrimaryBucket]
	}
	if pn.ServeBucket != "" {
		cfg.Storage.ServeBucket = vals[pn.ServeBucket]
	}
	if pn.TopicARN != "" {
		cfg.AWS.TopicARN = vals[pn.TopicARN]
	}
	return nil
}
