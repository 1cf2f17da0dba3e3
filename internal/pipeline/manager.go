package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/observability"
)

// ChatAssistant answers questions about an analyzed paper.
type ChatAssistant interface {
	Reply(ctx context.Context, analysis *domain.AnalysisResult, papers []domain.RelatedPaper, history []domain.ChatMessage, question string) (string, error)
}

// ReferenceExtractor pulls the bibliography out of document text.
type ReferenceExtractor interface {
	Extract(ctx context.Context, text string) ([]domain.Reference, error)
}

// Manager owns the in-memory session registry and starts an analysis run
// per upload. Re-uploading into an existing session cancels the run in
// flight before starting the next one.
type Manager struct {
	orchestrator *Orchestrator
	assistant    ChatAssistant
	extractor    ReferenceExtractor
	metrics      *observability.Metrics
	logger       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
}

// NewManager creates a session manager.
func NewManager(orchestrator *Orchestrator, assistant ChatAssistant, extractor ReferenceExtractor, metrics *observability.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		assistant:    assistant,
		extractor:    extractor,
		metrics:      metrics,
		logger:       logger.With().Str("component", "session_manager").Logger(),
		sessions:     make(map[string]*Session),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Create registers a new session for an uploaded document and starts its
// analysis run in the background.
func (m *Manager) Create(fileName, text string) (*Session, error) {
	if text == "" {
		return nil, domain.ErrEmptyDocument
	}

	session := newSession(uuid.NewString())

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()
	m.metrics.SessionsActive.Inc()

	m.logger.Info().
		Str("session_id", session.ID()).
		Str("file_name", fileName).
		Msg("session created")

	m.startRun(session, fileName, text)
	return session, nil
}

// Replace starts a fresh run on an existing session for a newly uploaded
// document. The run in flight, if any, is cancelled first.
func (m *Manager) Replace(id, fileName, text string) (*Session, error) {
	if text == "" {
		return nil, domain.ErrEmptyDocument
	}

	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("session_id", id).
		Str("file_name", fileName).
		Msg("session replaced with new upload")

	m.startRun(session, fileName, text)
	return session, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, domain.NewNotFoundError("session", id)
	}
	return session, nil
}

// Delete removes a session and cancels any run in flight.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if cancel, exists := m.cancels[id]; exists {
			cancel()
			delete(m.cancels, id)
		}
	}
	m.mu.Unlock()

	if !ok {
		return domain.NewNotFoundError("session", id)
	}
	m.metrics.SessionsActive.Dec()
	return nil
}

// Chat answers a question about the session's paper using the current
// analysis and related papers as context.
func (m *Manager) Chat(ctx context.Context, id, question string, history []domain.ChatMessage) (string, error) {
	session, err := m.Get(id)
	if err != nil {
		return "", err
	}

	m.metrics.RecordChatRequest()
	reply, err := m.assistant.Reply(ctx, session.Analysis(), session.Papers(), history, question)
	if err != nil {
		m.metrics.RecordChatFailed()
		return "", err
	}
	return reply, nil
}

// References returns the session document's bibliography, extracting it
// on first request and caching the result for the current generation.
func (m *Manager) References(ctx context.Context, id string) ([]domain.Reference, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	if refs, ok := session.cachedReferences(); ok {
		return refs, nil
	}

	gen := session.Generation()
	refs, err := m.extractor.Extract(ctx, session.Text())
	if err != nil {
		return nil, err
	}
	m.metrics.RecordReferenceExtraction()
	session.storeReferences(gen, refs)
	return refs, nil
}

// Close cancels all runs in flight. Used during shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
}

// startRun bumps the session generation, cancels the superseded run, and
// launches the orchestrator in the background. Runs use a detached
// context so they outlive the upload request.
func (m *Manager) startRun(session *Session, fileName, text string) {
	gen := session.beginRun(fileName, text)
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if prev, ok := m.cancels[session.ID()]; ok {
		prev()
	}
	m.cancels[session.ID()] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			if current, ok := m.cancels[session.ID()]; ok && session.Generation() == gen {
				current()
				delete(m.cancels, session.ID())
			}
			m.mu.Unlock()
		}()
		m.orchestrator.Run(ctx, session, gen, text)
	}()
}
