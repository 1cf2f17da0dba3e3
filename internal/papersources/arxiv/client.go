// Package arxiv implements a papersources.Source backed by the public
// arXiv Atom API. The pipeline uses it as a fallback alongside the
// search-grounded model queries, since it needs no API key.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit. arXiv asks clients to
	// stay around one request every three seconds.
	DefaultRateLimit = 0.34

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 5

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"

	// maxQueryTerms limits how many words of a query are forwarded to the
	// API. Long model-generated queries match nothing when sent verbatim.
	maxQueryTerms = 5

	// minTitleLen filters out junk entries; titles this short are
	// usually parsing artifacts.
	minTitleLen = 10

	// maxAuthorsLen truncates the joined author list.
	maxAuthorsLen = 100

	// findingPreviewLen is how much of the abstract becomes the finding.
	findingPreviewLen = 200
)

// queryCleanRegex strips everything except letters, digits, and spaces
// from a search query.
var queryCleanRegex = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	MaxResults int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.Source interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements the Source interface.
var _ papersources.Source = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Search queries arXiv for papers matching the query and maps the Atom
// entries to related papers. Entries with very short titles are dropped.
func (c *Client) Search(ctx context.Context, query string) ([]domain.RelatedPaper, error) {
	searchURL, err := c.buildSearchURL(query)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Parse the Atom XML response (limit body to 10MB).
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]domain.RelatedPaper, 0, len(feed.Entries))
	for i := range feed.Entries {
		paper := entryToRelatedPaper(&feed.Entries[i])
		if len(paper.Title) > minTitleLen {
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

// buildSearchURL constructs the arXiv search API URL. The query is
// reduced to its first few plain words, which matches far better than a
// full natural-language question.
func (c *Client) buildSearchURL(query string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	terms := strings.Fields(queryCleanRegex.ReplaceAllString(query, ""))
	if len(terms) > maxQueryTerms {
		terms = terms[:maxQueryTerms]
	}

	values := url.Values{}
	values.Set("search_query", "all:"+strings.Join(terms, " "))
	values.Set("start", "0")
	values.Set("max_results", fmt.Sprintf("%d", c.config.MaxResults))
	baseURL.RawQuery = values.Encode()

	return baseURL.String(), nil
}

// entryToRelatedPaper maps one Atom entry to a domain.RelatedPaper.
func entryToRelatedPaper(entry *Entry) domain.RelatedPaper {
	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	joined := strings.Join(authors, ", ")
	if len(joined) > maxAuthorsLen {
		joined = joined[:maxAuthorsLen]
	}
	if joined == "" {
		joined = "Unknown"
	}

	year := 0
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); err == nil {
		year = t.Year()
	}

	summary := normalizeWhitespace(entry.Summary)
	finding := summary
	if len(finding) > findingPreviewLen {
		finding = finding[:findingPreviewLen]
	}
	finding += "..."

	return domain.RelatedPaper{
		Title:       normalizeWhitespace(entry.Title),
		Authors:     joined,
		Year:        year,
		Journal:     "arXiv Preprint",
		Methodology: "See paper",
		Finding:     finding,
		Status:      domain.StatusRelated,
		URL:         strings.TrimSpace(entry.ID),
	}
}

// normalizeWhitespace collapses runs of whitespace (including newlines
// that arXiv embeds in titles) into single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
