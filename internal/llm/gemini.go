package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperlens/paper-analysis-service/internal/observability"
)

const (
	// defaultGeminiBaseURL is the Gemini API base URL.
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// jsonMIMEType requests structured JSON output from the API.
	jsonMIMEType = "application/json"
)

// geminiPart is a single content part in a Gemini request or response.
type geminiPart struct {
	Text string `json:"text,omitempty"`
}

// geminiContent is a role-tagged sequence of parts.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiGenerationConfig carries structured-output parameters.
type geminiGenerationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

// geminiTool declares a built-in tool. Only search grounding is used.
type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

// geminiRequest is the request body for the generateContent endpoint.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
}

// geminiGroundingChunk is one web attribution in grounding metadata.
type geminiGroundingChunk struct {
	Web struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web"`
}

// geminiCandidate is a single generation candidate.
type geminiCandidate struct {
	Content struct {
		Parts []geminiPart `json:"parts"`
		Role  string       `json:"role"`
	} `json:"content"`
	FinishReason      string `json:"finishReason"`
	GroundingMetadata *struct {
		GroundingChunks []geminiGroundingChunk `json:"groundingChunks"`
	} `json:"groundingMetadata,omitempty"`
}

// geminiResponse is the response body from the generateContent endpoint.
type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GeminiConfig holds the parameters needed to create a Gemini client.
type GeminiConfig struct {
	// APIKey is the Gemini API key.
	APIKey string
	// Model is the model identifier (e.g. "gemini-2.5-flash").
	Model string
	// BaseURL overrides the API base URL. Empty means the public endpoint.
	BaseURL string
	// Timeout is the HTTP client timeout per call.
	Timeout time.Duration
}

// GeminiClient implements Client using the Gemini generateContent API over
// plain HTTP. It performs exactly one request per Generate call; retrying
// is the caller's responsibility so that a single backoff policy governs
// each pipeline stage.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewGeminiClient creates a new GeminiClient with the given configuration.
func NewGeminiClient(cfg GeminiConfig, metrics *observability.Metrics, logger zerolog.Logger) *GeminiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GeminiClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger.With().Str("component", "gemini").Logger(),
	}
}

// Model returns the model identifier being used.
func (c *GeminiClient) Model() string {
	return c.model
}

// Generate sends a single generateContent request and returns the first
// candidate's text. Structured output and search grounding are mutually
// exclusive on the API, so Schema is ignored when UseSearch is set.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	apiReq := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.System != "" {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.UseSearch {
		apiReq.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	} else if req.Schema != nil {
		apiReq.GenerationConfig = &geminiGenerationConfig{
			ResponseMIMEType: jsonMIMEType,
			ResponseSchema:   req.Schema,
		}
	}

	started := time.Now()
	resp, err := c.sendRequest(ctx, apiReq)
	if err != nil {
		c.metrics.RecordLLMRequestFailed(req.Operation, c.model, errorType(err))
		c.logger.Warn().
			Err(err).
			Str("operation", req.Operation).
			Dur("duration", time.Since(started)).
			Msg("generation call failed")
		return nil, err
	}

	out, err := c.parseResponse(resp)
	if err != nil {
		c.metrics.RecordLLMRequestFailed(req.Operation, c.model, errorType(err))
		return nil, err
	}

	c.metrics.RecordLLMRequest(req.Operation, c.model, time.Since(started).Seconds())
	c.logger.Debug().
		Str("operation", req.Operation).
		Int("response_chars", len(out.Text)).
		Int("sources", len(out.Sources)).
		Dur("duration", time.Since(started)).
		Msg("generation call completed")
	return out, nil
}

// sendRequest sends one request to the generateContent endpoint and
// returns the decoded response or an error.
func (c *GeminiClient) sendRequest(ctx context.Context, apiReq geminiRequest) (*geminiResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGeminiAPIError(httpResp.StatusCode, respBody)
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("gemini: failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// parseResponse extracts the first candidate's text and any grounding
// sources from the API response.
func (c *GeminiClient) parseResponse(resp *geminiResponse) (*Response, error) {
	if resp.Error != nil {
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: resp.Error.Code,
			Status:     resp.Error.Status,
			Message:    resp.Error.Message,
		}
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: response contains no candidates")
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}

	out := &Response{Text: sb.String()}
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web.URI == "" {
				continue
			}
			out.Sources = append(out.Sources, Source{
				Title: chunk.Web.Title,
				URL:   chunk.Web.URI,
			})
		}
	}
	return out, nil
}

// errorType buckets a Generate failure for metric labels.
func errorType(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "decode"
	}
	switch {
	case apiErr.StatusCode == 0:
		return "network"
	case apiErr.StatusCode == 429:
		return "rate_limit"
	case apiErr.StatusCode >= 500:
		return "server"
	default:
		return "api"
	}
}

// parseGeminiAPIError builds an APIError from a non-200 response body.
// The API wraps errors in {"error": {"code", "message", "status"}}.
func parseGeminiAPIError(statusCode int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	apiErr := &APIError{
		Provider:   "gemini",
		StatusCode: statusCode,
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
