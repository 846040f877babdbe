package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Belphemur/watchmirror/internal/api"
	"github.com/Belphemur/watchmirror/internal/broadcast"
	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/gateway"
	"github.com/Belphemur/watchmirror/internal/invalidate"
	"github.com/Belphemur/watchmirror/internal/metadata"
	"github.com/Belphemur/watchmirror/internal/metrics"
	"github.com/Belphemur/watchmirror/internal/monitor"
	"github.com/Belphemur/watchmirror/internal/store"
	"github.com/Belphemur/watchmirror/internal/syncer"
	"github.com/Belphemur/watchmirror/internal/trakt"
)

func main() {
	sweepFlag := flag.Bool("sweep", false, "run the cache retention sweep and exit")
	forceSyncFlag := flag.Bool("force-sync", false, "run one forced full sync and exit")
	flag.Parse()

	cfg := config.GetConfig()
	logger := config.GetLogger()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Sentry, continuing without it")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	st, err := store.New(cfg.DataDir, store.Options{
		MemorySize: cfg.Cache.MemorySize,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to open data directory")
	}
	defer st.Close()

	if *sweepFlag {
		retention := config.Duration(cfg.Cache.RetentionAge, 30*24*time.Hour)
		removed, err := st.Sweep(retention)
		if err != nil {
			logger.Fatal().Err(err).Msg("Sweep failed")
		}
		logger.Info().Int("removed", removed).Msg("Sweep complete")
		return
	}

	gw := gateway.New(gateway.Options{
		Client: trakt.NewHTTPClient(cfg),
		Read: gateway.ClassLimit{
			Limit:      cfg.Gateway.ReadLimit,
			Window:     config.Duration(cfg.Gateway.ReadWindow, 5*time.Minute),
			MinSpacing: config.Duration(cfg.Gateway.ReadMinSpacing, 100*time.Millisecond),
		},
		Mutate: gateway.ClassLimit{
			Limit:      1,
			Window:     time.Second,
			MinSpacing: config.Duration(cfg.Gateway.MutateMinSpacing, time.Second),
		},
		Logger: logger,
	})
	defer gw.Close()

	tokens := trakt.NewFileTokenSource(cfg.Trakt.TokenFile)
	client := trakt.NewClient(cfg, gw, tokens)
	resolver := metadata.NewResolver(cfg)
	hub := broadcast.NewHub()

	orch := syncer.New(client, st, resolver, hub, syncer.Options{
		BatchSize:   cfg.Sync.BatchSize,
		BatchDelay:  config.Duration(cfg.Sync.BatchDelay, 1200*time.Millisecond),
		CardTTL:     config.Duration(cfg.Cache.CardTTL, 6*time.Hour),
		ProgressTTL: config.Duration(cfg.Cache.ProgressTTL, 12*time.Hour),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *forceSyncFlag {
		if err := orch.Rebuild(ctx, true); err != nil {
			logger.Fatal().Err(err).Msg("Forced sync failed")
		}
		logger.Info().Msg("Forced sync complete")
		return
	}

	coord := invalidate.New(st, orch)
	mon := monitor.New(client, coord, orch, hub, st, monitor.Options{
		PollInterval:  config.Duration(cfg.Monitor.PollInterval, 5*time.Minute),
		RecentWindow:  config.Duration(cfg.Monitor.RecentWindow, 2*time.Minute),
		FullThreshold: cfg.Monitor.FullThreshold,
	})
	go mon.Run(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewHTTPServer(cfg.Server.Address, cfg.Metrics.Port)
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("Starting Prometheus metrics HTTP server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Msg("Failed to serve metrics")
			}
		}()
		defer func() {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to shutdown metrics server")
			}
		}()
	}

	server := api.NewServer(orch, st, mon, hub, gw, config.Duration(cfg.Cache.PageTTL, time.Hour))
	httpServer := server.NewHTTPServer(cfg)

	go func() {
		logger.Info().Str("address", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}

	logger.Info().Msg("Server stopped gracefully")
}
