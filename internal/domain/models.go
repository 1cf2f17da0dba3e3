// Package domain contains the core domain models for the paper analysis
// service: analysis results, related papers, references, and the error
// types shared across packages.
package domain

// Default values substituted for missing analysis fields so callers never
// have to nil-check individual fields.
const (
	DefaultTitle       = "Untitled Paper"
	DefaultSummary     = "No summary available."
	DefaultSampleSize  = "Not specified"
	DefaultMethodology = "Not specified"
)

// AnalysisResult is the structured summary the model extracts from an
// uploaded paper.
type AnalysisResult struct {
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	SampleSize       string   `json:"sampleSize"`
	Methodology      string   `json:"methodology"`
	KeyFindings      []string `json:"keyFindings"`
	StatisticalTests []string `json:"statisticalTests"`
	Limitations      []string `json:"limitations"`
}

// ApplyDefaults fills empty scalar fields with placeholder values and
// replaces nil slices with empty ones.
func (a *AnalysisResult) ApplyDefaults() {
	if a.Title == "" {
		a.Title = DefaultTitle
	}
	if a.Summary == "" {
		a.Summary = DefaultSummary
	}
	if a.SampleSize == "" {
		a.SampleSize = DefaultSampleSize
	}
	if a.Methodology == "" {
		a.Methodology = DefaultMethodology
	}
	if a.KeyFindings == nil {
		a.KeyFindings = []string{}
	}
	if a.StatisticalTests == nil {
		a.StatisticalTests = []string{}
	}
	if a.Limitations == nil {
		a.Limitations = []string{}
	}
}

// RelationStatus classifies how an external paper relates to the uploaded
// one.
type RelationStatus string

// Valid relation statuses, ordered by display priority.
const (
	StatusConflicting RelationStatus = "conflicting"
	StatusSupporting  RelationStatus = "supporting"
	StatusRelated     RelationStatus = "related"
)

// Priority returns the sort weight for a status. Higher sorts first.
// Unknown statuses sort last together with "related".
func (s RelationStatus) Priority() int {
	switch s {
	case StatusConflicting:
		return 3
	case StatusSupporting:
		return 2
	default:
		return 1
	}
}

// Comparison describes the methodological difference between the uploaded
// paper and an external one.
type Comparison struct {
	DifferenceType     string `json:"differenceType"`
	UploadedPaperValue string `json:"uploadedPaperValue"`
	ExternalPaperValue string `json:"externalPaperValue"`
	Reason             string `json:"reason"`
}

// RelatedPaper is a paper discovered during the literature search,
// optionally classified against the uploaded paper.
type RelatedPaper struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Authors     string         `json:"authors"`
	Year        int            `json:"year"`
	Journal     string         `json:"journal"`
	Methodology string         `json:"methodology"`
	Finding     string         `json:"finding"`
	Status      RelationStatus `json:"status"`
	StatusText  string         `json:"statusText,omitempty"`
	URL         string         `json:"url,omitempty"`
	Comparison  *Comparison    `json:"comparisonDetails,omitempty"`
}

// Reference is a single entry parsed from a paper's bibliography section.
type Reference struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Year   string `json:"year"`
}

// ChatMessage is one turn of the assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
