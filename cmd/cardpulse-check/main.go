// Lists the day's Parquet folders and reports file names and sizes.
//
// Usage:
//
//	go run ./cmd/cardpulse-check [-date 2024-12-08]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
	"cardpulse/internal/pipeline"
	"cardpulse/internal/util"
)

func main() {
	date := flag.String("date", "", "run date YYYY-MM-DD (default: today)")
	flag.Parse()

	cfgPath := "config/cardpulse.yaml"
	if p := os.Getenv("CARDPULSE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	day := domain.Today()
	if *date != "" {
		if day, err = domain.ParseRunDate(*date); err != nil {
			log.Fatalf("invalid -date: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stages, closeFn, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer closeFn()

	res, _ := stages.Check(ctx, day)
	pipeline.WriteResults(os.Stdout, res)
}
