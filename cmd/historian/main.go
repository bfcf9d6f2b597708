// cmd/historian/main.go is an asynchronous historian service that pops scored rounds from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/filterbattle/internal/cache"
	"github.com/jason-s-yu/filterbattle/internal/config"
	"github.com/jason-s-yu/filterbattle/internal/database"
	"github.com/jason-s-yu/filterbattle/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := config.NewHistorianCommand(&config.Historian{}, releaseVersion, run)
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func run(ctx context.Context, cfg *config.Historian) error {
	logger := config.NewLogger(cfg.Verbose, cfg.LogJSON)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	queue := cache.NewRoundQueue(rdb, cfg.Queue)
	svc := historian.NewService(queue, database.NewRoundStore(pool), historian.Options{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        logger.WithField("queue", queue.Name()),
	})

	svc.Run(ctx)
	if n := svc.Pending(); n > 0 {
		return fmt.Errorf("%d rounds were not archived", n)
	}
	return nil
}
