// Runs every stage of the daily pipeline in order. With -schedule it stays
// up and runs on the given cron expression instead of once.
//
// Usage:
//
//	go run ./cmd/cardpulse-daily [-date 2024-12-08]
//	go run ./cmd/cardpulse-daily -schedule "0 6 * * *"
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"cardpulse/internal/config"
	"cardpulse/internal/domain"
	"cardpulse/internal/pipeline"
	"cardpulse/internal/util"
)

func main() {
	date := flag.String("date", "", "run date YYYY-MM-DD (default: today)")
	schedule := flag.String("schedule", "", "cron expression; run as a daemon on this schedule")
	daemon := flag.Bool("daemon", false, "run as a daemon on schedule.cron from config")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stages, closeFn, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer closeFn()

	cronExpr := *schedule
	if cronExpr == "" && *daemon {
		cronExpr = cfg.Schedule.Cron
	}

	if cronExpr == "" {
		day := domain.Today()
		if *date != "" {
			if day, err = domain.ParseRunDate(*date); err != nil {
				log.Fatalf("invalid -date: %v", err)
			}
		}
		results, err := stages.RunDaily(ctx, day)
		pipeline.WriteResults(os.Stdout, results...)
		if err != nil {
			log.Fatalf("daily run failed: %v", err)
		}
		return
	}

	loc := time.Local
	if cfg.Schedule.TimeZone != "" {
		if loc, err = time.LoadLocation(cfg.Schedule.TimeZone); err != nil {
			log.Fatalf("invalid time zone %q: %v", cfg.Schedule.TimeZone, err)
		}
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cronExpr, func() {
		day := domain.TodayIn(loc)
		slog.Info("scheduled daily run starting", "date", day.String())
		if _, err := stages.RunDaily(ctx, day); err != nil {
			slog.Error("scheduled daily run failed", "date", day.String(), "error", err)
			return
		}
		slog.Info("scheduled daily run complete", "date", day.String())
	})
	if err != nil {
		log.Fatalf("invalid schedule %q: %v", cronExpr, err)
	}

	slog.Info("scheduler started", "schedule", cronExpr)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("scheduler stopped")
}
