// Package observability provides logging, metrics, and context helpers for
// the paper analysis service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for analysis runs, searches, and LLM operations
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("session_id", sessionID).Msg("analysis started")
//
// Add session context to a logger:
//
//	logger = observability.WithSessionContext(logger, sessionID, generation)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("paper_analysis")
//
// Record metrics:
//
//	metrics.RecordRunStarted()
//	metrics.RecordSearchCompleted("arxiv", 5, 1.2)
//	metrics.RecordLLMRequest("analyze", "gemini-2.5-flash", 3.4)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithSessionID(ctx, sessionID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	sessionID := observability.SessionIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - session_id: Analysis session identifier
//   - generation: Upload generation within a session
//   - stage: Pipeline stage (analyze, search, classify)
//   - query: Generated search query
//   - source: Paper source (gemini_grounded, arxiv)
//   - operation: LLM operation name
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
