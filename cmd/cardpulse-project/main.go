// Projects the day's snapshot into price-fact or static-dimension CSV and
// Parquet files.
//
// Usage:
//
//	go run ./cmd/cardpulse-project -run-type daily_prices [-date 2024-12-08]
//	go run ./cmd/cardpulse-project -event event.json
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
	runType := flag.String("run-type", string(domain.RunDailyPrices), "daily_prices or static_prices")
	eventPath := flag.String("event", "", "JSON event file (overrides -run-type)")
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

	ev := pipeline.DefaultEvent(cfg, domain.RunType(*runType))
	if *eventPath != "" {
		f, err := os.Open(*eventPath)
		if err != nil {
			log.Fatalf("failed to open event: %v", err)
		}
		ev, err = pipeline.ParseEvent(f)
		f.Close()
		if err != nil {
			log.Fatalf("failed to parse event: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stages, closeFn, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer closeFn()

	res, err := stages.Project(ctx, ev, day)
	pipeline.WriteResults(os.Stdout, res)
	if err != nil {
		log.Fatalf("project failed: %v", err)
	}
}
