package pipeline

import (
	"sync"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// Status messages surfaced to clients while a run progresses.
const (
	StatusInitializing = "Initializing analysis..."
	StatusSearching    = "Searching literature..."
	StatusClassifying  = "Detecting conflicts & validating..."
	StatusNoResults    = "No related papers found."
)

const subscriberBuffer = 16

// Snapshot is a point-in-time copy of a session's client-visible state.
type Snapshot struct {
	ID            string                 `json:"id"`
	FileName      string                 `json:"fileName"`
	IsAnalyzing   bool                   `json:"isAnalyzing"`
	IsSearching   bool                   `json:"isSearching"`
	SearchStatus  string                 `json:"searchStatus"`
	Analysis      *domain.AnalysisResult `json:"analysis"`
	RelatedPapers []domain.RelatedPaper  `json:"relatedPapers"`
	Error         string                 `json:"error,omitempty"`
}

// Session holds the state of one uploaded paper and its analysis runs.
// Each upload bumps the generation counter; mutators carry the generation
// of the run that produced them and are dropped when a newer upload has
// superseded that run. All methods are safe for concurrent use.
type Session struct {
	id string

	mu          sync.Mutex
	fileName    string
	text        string
	generation  int
	analyzing   bool
	searching   bool
	status      string
	analysis    *domain.AnalysisResult
	papers      []domain.RelatedPaper
	errMsg      string
	references  []domain.Reference
	refsGen     int
	subscribers map[int]chan Event
	nextSubID   int
}

func newSession(id string) *Session {
	return &Session{
		id:          id,
		subscribers: make(map[int]chan Event),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Generation returns the current upload generation.
func (s *Session) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Snapshot returns a copy of the session's current client-visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	papers := make([]domain.RelatedPaper, len(s.papers))
	copy(papers, s.papers)

	var analysis *domain.AnalysisResult
	if s.analysis != nil {
		a := *s.analysis
		analysis = &a
	}

	return Snapshot{
		ID:            s.id,
		FileName:      s.fileName,
		IsAnalyzing:   s.analyzing,
		IsSearching:   s.searching,
		SearchStatus:  s.status,
		Analysis:      analysis,
		RelatedPapers: papers,
		Error:         s.errMsg,
	}
}

// Analysis returns the latest analysis result, or nil if none exists yet.
func (s *Session) Analysis() *domain.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysis == nil {
		return nil
	}
	a := *s.analysis
	return &a
}

// Papers returns a copy of the current related papers list.
func (s *Session) Papers() []domain.RelatedPaper {
	s.mu.Lock()
	defer s.mu.Unlock()
	papers := make([]domain.RelatedPaper, len(s.papers))
	copy(papers, s.papers)
	return papers
}

// Text returns the extracted document text for the current generation.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// beginRun resets the session for a new upload and returns the new
// generation. State from the previous run is cleared so clients never see
// a stale analysis paired with a new file.
func (s *Session) beginRun(fileName, text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.fileName = fileName
	s.text = text
	s.analyzing = true
	s.searching = true
	s.status = StatusInitializing
	s.analysis = nil
	s.papers = nil
	s.errMsg = ""

	s.publishLocked(EventStatus)
	return s.generation
}

// setStatus updates the search status message. Returns false if the run
// has been superseded.
func (s *Session) setStatus(gen int, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.status = status
	s.publishLocked(EventStatus)
	return true
}

// setAnalysis records a finished analysis and clears the analyzing flag.
// Returns false if the run has been superseded.
func (s *Session) setAnalysis(gen int, analysis *domain.AnalysisResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.analysis = analysis
	s.analyzing = false
	s.publishLocked(EventAnalysis)
	return true
}

// setPapers records the related papers list and clears the searching flag.
// Returns false if the run has been superseded.
func (s *Session) setPapers(gen int, papers []domain.RelatedPaper) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.papers = papers
	s.searching = false
	s.publishLocked(EventPapers)
	return true
}

// setError records a run failure message. Returns false if the run has
// been superseded.
func (s *Session) setError(gen int, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.errMsg = msg
	s.publishLocked(EventError)
	return true
}

// hasAnalysis reports whether an analysis result is available.
func (s *Session) hasAnalysis() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis != nil
}

// finishRun clears the progress flags and the status message. The
// no-results message is the one status that survives completion so
// clients can tell an empty result from a run still in flight.
func (s *Session) finishRun(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.analyzing = false
	s.searching = false
	if s.status != StatusNoResults {
		s.status = ""
	}
	s.publishLocked(EventDone)
	return true
}

// cachedReferences returns the extracted bibliography if it was produced
// for the current generation.
func (s *Session) cachedReferences() ([]domain.Reference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.references == nil || s.refsGen != s.generation {
		return nil, false
	}
	refs := make([]domain.Reference, len(s.references))
	copy(refs, s.references)
	return refs, true
}

// storeReferences caches an extracted bibliography for the given
// generation. Stale results are discarded.
func (s *Session) storeReferences(gen int, refs []domain.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.references = refs
	s.refsGen = gen
}

// Subscribe registers a listener for session events. The returned cancel
// function must be called when the listener is done. Events are dropped
// rather than blocking when a subscriber falls behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *Session) publishLocked(typ EventType) {
	event := Event{Type: typ, Session: s.snapshotLocked()}
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
