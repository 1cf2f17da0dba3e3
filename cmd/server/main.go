// Package main provides the entry point for the paper analysis service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperlens/paper-analysis-service/internal/analysis"
	"github.com/paperlens/paper-analysis-service/internal/config"
	"github.com/paperlens/paper-analysis-service/internal/extract"
	"github.com/paperlens/paper-analysis-service/internal/llm"
	"github.com/paperlens/paper-analysis-service/internal/observability"
	"github.com/paperlens/paper-analysis-service/internal/papersources"
	"github.com/paperlens/paper-analysis-service/internal/papersources/arxiv"
	"github.com/paperlens/paper-analysis-service/internal/pipeline"
	"github.com/paperlens/paper-analysis-service/internal/retry"
	"github.com/paperlens/paper-analysis-service/internal/search"
	httpserver "github.com/paperlens/paper-analysis-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-analysis-service starting")

	if cfg.LLM.APIKey == "" {
		logger.Warn().Msg("PAPERLENS_GEMINI_API_KEY is not set; analysis requests will fail")
	}

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Gemini client shared by all LLM-backed stages.
	geminiClient := llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, metrics, logger)

	policy := retry.Policy{
		Attempts:     cfg.Retry.Attempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxElapsed:   cfg.Retry.MaxElapsed,
	}

	// Fallback paper sources.
	var sources []papersources.Source
	if cfg.ArXiv.Enabled {
		sources = append(sources, arxiv.New(arxiv.Config{
			BaseURL:    cfg.ArXiv.BaseURL,
			MaxResults: cfg.ArXiv.MaxResults,
			RateLimit:  cfg.ArXiv.RateLimit,
		}))
	}

	// Pipeline stages.
	analyzer := analysis.NewAnalyzer(geminiClient, logger)
	classifier := analysis.NewClassifier(geminiClient, logger)
	references := analysis.NewReferenceExtractor(geminiClient, policy, logger)
	assistant := analysis.NewAssistant(geminiClient, logger)
	searcher := search.New(geminiClient, sources, policy, search.Config{
		QueryCount:      cfg.Search.QueryCount,
		ActiveQueries:   cfg.Search.ActiveQueries,
		FallbackQueries: cfg.Search.FallbackQueries,
		InterQueryPause: cfg.Search.InterQueryPause,
		ContextChars:    cfg.Search.ContextChars,
	}, metrics, logger)

	orchestrator := pipeline.NewOrchestrator(analyzer, searcher, classifier, metrics, logger).
		WithPolicy(policy).
		WithStagger(cfg.Pipeline.SearchStagger)
	manager := pipeline.NewManager(orchestrator, assistant, references, metrics, logger)
	defer manager.Close()

	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	}, manager, extract.Text, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.ReadTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("http_address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)).
		Str("model", cfg.LLM.Model)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-analysis-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-analysis-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("paper-analysis-service shutdown complete")
	return nil
}
