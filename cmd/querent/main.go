package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/config"
	dbRedis "github.com/tanagra-labs/querent/internal/db/redis"
	"github.com/tanagra-labs/querent/internal/livedata"
	logpkg "github.com/tanagra-labs/querent/internal/logger"
	"github.com/tanagra-labs/querent/internal/metrics"
	"github.com/tanagra-labs/querent/internal/repository/scopecfg"
	"github.com/tanagra-labs/querent/internal/search"
	chiTransport "github.com/tanagra-labs/querent/internal/transport/chi"
	ollamaTransport "github.com/tanagra-labs/querent/internal/transport/ollama"
	openaiEmb "github.com/tanagra-labs/querent/internal/transport/openai"
	batchuc "github.com/tanagra-labs/querent/internal/usecase/batch"
	elementuc "github.com/tanagra-labs/querent/internal/usecase/element"
	embeddinguc "github.com/tanagra-labs/querent/internal/usecase/embedding"
	ftelementuc "github.com/tanagra-labs/querent/internal/usecase/ftelement"
	healthuc "github.com/tanagra-labs/querent/internal/usecase/health"
	queryuc "github.com/tanagra-labs/querent/internal/usecase/query"
	"github.com/tanagra-labs/querent/internal/vecmath"
	"github.com/tanagra-labs/querent/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting querent API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("es_addrs", cfg.Elasticsearch.Addrs),
		zap.Strings("configstore_addrs", cfg.ConfigStore.Addrs),
	)

	// Configuration store (scopes and live-data credentials, read-only)
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.ConfigStore.Addrs,
		Username: cfg.ConfigStore.Username,
		Password: cfg.ConfigStore.Password,
		DB:       cfg.ConfigStore.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create config store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.ConfigStore.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Config store not ready", zap.Error(err))
	}
	logger.Info("Connected to config store")

	// Search backend
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addrs,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create search client", zap.Error(err))
	}
	searchRepo := search.New(esClient, cfg.Elasticsearch.Index, cfg.Elasticsearch.ImageIndex, cfg.Elasticsearch.FTIndex, logger)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Embedding gateway — composition root. Typed-nil gotcha applies here:
	// only assign the interface variables when a vectorizer is configured.
	var standard, fineTuned embeddinguc.TextEmbedder
	var image embeddinguc.ImageEmbedder

	standard = buildTextEmbedder(cfg, "standard", logger)
	if _, ok := cfg.Embedding.Vectorizers["fine_tuned"]; ok {
		fineTuned = buildTextEmbedder(cfg, "fine_tuned", logger)
	}
	if vc, ok := cfg.Embedding.Vectorizers["image"]; ok {
		provCfg := cfg.Embedding.Providers[vc.Provider]
		if provCfg.Protocol != "openai" {
			image = ollamaTransport.NewEmbedder(ollamaTransport.EmbedderConfig{
				BaseURL:  provCfg.BaseURL,
				Model:    vc.Model,
				Provider: vc.Provider,
				Timeout:  time.Duration(provCfg.TimeoutSec) * time.Second,
				Logger:   logger,
			})
		} else {
			logger.Warn("Image vectorizer requires the ollama protocol, images disabled",
				zap.String("provider", vc.Provider))
		}
	}
	gateway := embeddinguc.NewGateway(standard, fineTuned, image)
	logger.Info("Embedding gateway created", zap.Bool("fine_tuned", gateway.HasFineTuned()))

	// Scope configuration and live data
	scopeRepo := scopecfg.New(store, cfg.ConfigStore.KeyPrefix)
	enricher := livedata.NewEnricher(livedata.Config{
		Scopes:       scopeRepo,
		FetchTimeout: time.Duration(cfg.LiveData.FetchTimeoutSec) * time.Second,
		Logger:       logger,
	})

	summarizer := ollamaTransport.NewSummarizer(ollamaTransport.SummarizerConfig{
		BaseURL:        cfg.Summarize.BaseURL,
		Model:          cfg.Summarize.Model,
		PromptTemplate: cfg.Summarize.PromptTemplate,
		Timeout:        time.Duration(cfg.Summarize.TimeoutSec) * time.Second,
		Logger:         logger,
	})

	// Deep-search level-2 fan-out pool, shared across requests
	pool, err := ants.NewPool(cfg.Search.DeepWorkers)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	// Use case services
	querySvc := queryuc.New(searchRepo, gateway, enricher, summarizer,
		vecmath.PrincipalComponent, pool, logger)
	elementSvc := elementuc.New(searchRepo, gateway, scopeRepo, logger)
	ftelementSvc := ftelementuc.New(searchRepo, logger)
	batchSvc := batchuc.New(searchRepo, gateway, logger)
	healthSvc := healthuc.New(store, searchRepo)

	server := chiTransport.NewServer(querySvc, elementSvc, ftelementSvc, batchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildTextEmbedder assembles a text embedder for the named vectorizer,
// picking the transport by the provider's protocol.
func buildTextEmbedder(cfg config.Config, vectorizer string, logger *zap.Logger) embeddinguc.TextEmbedder {
	vc := cfg.Embedding.Vectorizers[vectorizer]
	provCfg := cfg.Embedding.Providers[vc.Provider]

	if provCfg.Protocol == "openai" {
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      vc.Model,
			Dimensions: vc.Dimensions,
			Provider:   vc.Provider,
			Logger:     logger,
		})
	}
	return ollamaTransport.NewEmbedder(ollamaTransport.EmbedderConfig{
		BaseURL:  provCfg.BaseURL,
		Model:    vc.Model,
		Provider: vc.Provider,
		Timeout:  time.Duration(provCfg.TimeoutSec) * time.Second,
		Logger:   logger,
	})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
