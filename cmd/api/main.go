package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"recipescan/internal/api"
	"recipescan/internal/config"
	"recipescan/internal/extract"
	"recipescan/internal/platform/events"
	"recipescan/internal/platform/gemini"
	"recipescan/internal/platform/localllm"
	"recipescan/internal/platform/logging"
	"recipescan/internal/platform/metrics"
	"recipescan/internal/platform/redis"
	"recipescan/internal/recipe"
)

// modelClient is what both providers offer.
type modelClient interface {
	extract.Model
	api.ModelLister
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "recipescan: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	model, closeModel, err := newModelClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeModel()

	store, err := recipe.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("error creating postgres store: %w", err)
	}
	defer store.Close()

	opts := []api.Option{
		api.WithLogger(log),
		api.WithMetrics(m),
		api.WithUploadDir(cfg.Server.UploadDir),
		api.WithScanTimeout(cfg.Server.ScanTimeout),
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		api.WithHealthCheck("database", store.Ping),
	}

	var hot recipe.HotCache
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("error creating redis client: %w", err)
		}
		defer rc.Close()
		hot = rc
		opts = append(opts, api.WithHealthCheck("redis", rc.Ping))
		log.Info("hot recipe cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}
	cache := recipe.NewCache(store, hot, cfg.Redis.TTL, log, m)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer publisher.Close()
		opts = append(opts, api.WithEvents(publisher))
		log.Info("publishing recipe events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	extractor := extract.NewExtractor(model, log, m)
	handler := api.NewHandler(extractor, model, store, cache, opts...)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("model_provider", cfg.Model.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newModelClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (modelClient, func(), error) {
	switch cfg.Model.Provider {
	case "local":
		log.Info("using local model", zap.String("base_url", cfg.LocalLLM.BaseURL), zap.String("model", cfg.LocalLLM.Model))
		return localllm.NewClient(cfg.LocalLLM.BaseURL, cfg.LocalLLM.Model, cfg.LocalLLM.Timeout), func() {}, nil
	default:
		log.Info("using gemini",
			zap.String("model", cfg.Gemini.Model),
			zap.String("api_key", config.MaskAPIKey(cfg.Gemini.APIKey)),
		)
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, log)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	}
}
