// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/filterbattle/internal/cache"
	"github.com/jason-s-yu/filterbattle/internal/config"
	"github.com/jason-s-yu/filterbattle/internal/content"
	"github.com/jason-s-yu/filterbattle/internal/game"
	"github.com/jason-s-yu/filterbattle/internal/handlers"
	"github.com/jason-s-yu/filterbattle/internal/middleware"
	"github.com/jason-s-yu/filterbattle/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := config.NewServerCommand(&config.Server{}, releaseVersion, serve)
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg *config.Server) error {
	logger := config.NewLogger(cfg.Verbose, cfg.LogJSON)

	lib, err := content.Load(cfg.ContentPath, nil)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	logger.Infof("Loaded %d topics", len(lib.Topics()))

	opts := game.Options{
		SubmitTimeout:      cfg.SubmitTimeout,
		IndependentFilters: cfg.IndependentFilters,
		Logger:             logger,
	}
	if cfg.RecordingEnabled() {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Recorder = cache.NewRoundQueue(rdb, cfg.Queue)
		logger.Infof("Recording rounds to redis list %s at %s", cfg.Queue, cfg.RedisAddr)
	}

	mgr := game.NewManager(lib, opts)
	router := session.NewRouter(mgr, logger, session.DefaultQueueSize)
	mgr.SetPublisher(router)

	ws := handlers.WSHandler(ctx, logger, router, cfg.Origins)
	mux := handlers.NewRouter(ws, mgr, router, releaseVersion, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.LogMiddleware(logger)(mux),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("filterbattle v%s listening on %s", releaseVersion, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server exited: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
