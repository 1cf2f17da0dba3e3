// Package llm provides the generation client used by the analysis
// pipeline, together with the response-decoding helpers that turn raw
// model output into typed values.
package llm

import "context"

// Schema describes the JSON shape a generation must conform to. It is a
// subset of the OpenAPI schema object accepted by structured-output APIs.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
}

// Schema type names.
const (
	TypeObject = "object"
	TypeArray  = "array"
	TypeString = "string"
)

// Request describes a single generation call.
type Request struct {
	// Operation labels the call for logging and metrics (e.g. "analyze",
	// "classify").
	Operation string
	// System is an optional system instruction.
	System string
	// Prompt is the user-turn content.
	Prompt string
	// Schema constrains the response to JSON of the given shape. Must be
	// nil when UseSearch is set; the API rejects structured output
	// combined with search grounding.
	Schema *Schema
	// UseSearch enables web-search grounding for this call.
	UseSearch bool
}

// Source is a grounding attribution returned alongside a search-grounded
// generation.
type Source struct {
	Title string
	URL   string
}

// Response is the result of a generation call.
type Response struct {
	// Text is the concatenated text of the first candidate.
	Text string
	// Sources lists grounding attributions, when search was enabled.
	Sources []Source
}

// Client is the generation interface the pipeline depends on.
type Client interface {
	// Generate performs one generation call. It does not retry; callers
	// own the retry policy.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Model returns the model identifier in use.
	Model() string
}
