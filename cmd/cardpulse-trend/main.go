// Extracts the trend join and builds the price-mover report.
//
// Usage:
//
//	go run ./cmd/cardpulse-trend [-date 2024-12-08] [-step all|query|report]
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
	step := flag.String("step", "all", "all, query or report")
	flag.Parse()

	switch *step {
	case pipeline.TrendAll, pipeline.TrendQuery, pipeline.TrendReport:
	default:
		log.Fatalf("invalid -step %q: want all, query or report", *step)
	}

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

	results, err := stages.RunTrend(ctx, *step, day)
	pipeline.WriteResults(os.Stdout, results...)
	if err != nil {
		log.Fatalf("trend failed: %v", err)
	}
}
