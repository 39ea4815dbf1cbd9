package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"livelink/ingestion/internal/auth"
	"livelink/ingestion/internal/config"
	"livelink/ingestion/internal/metrics"
	"livelink/ingestion/internal/pipeline"
	"livelink/ingestion/internal/registry"
	"livelink/ingestion/internal/store"
	transport "livelink/ingestion/internal/transport/http"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found — using system environment variables")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("postgres connection failed")
	}
	defer db.Close()

	rds, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}
	defer rds.Close()

	reg := registry.NewRegistry(db, time.Duration(cfg.ParamCacheTTLSeconds)*time.Second)
	sanitizer := pipeline.NewOdometerSanitizer(rds)
	thresholds := pipeline.NewThresholdEvaluator(reg, db, rds, log)
	ingestor := pipeline.NewIngestor(db, rds, reg, sanitizer, thresholds, log)

	aggregator := pipeline.NewAggregator(db, db,
		time.Duration(cfg.AggregateIntervalMin)*time.Minute, log)
	pruner := pipeline.NewPruner(db, cfg.RetentionDays,
		time.Duration(cfg.PruneIntervalHours)*time.Hour, log)

	authn := auth.NewAuthenticator(cfg, rds)
	handler := transport.NewTelemetryHandler(ingestor, log)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/telemetry", transport.NewAuthMiddleware(authn).Wrap(handler))
	mux.HandleFunc("/metrics", metrics.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rds.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		aggregator.Run(gctx)
		return nil
	})
	g.Go(func() error {
		pruner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.WithField("port", cfg.HTTPPort).Info("ingestion service listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
	log.Info("service stopped")
}
