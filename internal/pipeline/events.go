package pipeline

// EventType identifies what changed on a session.
type EventType string

const (
	// EventStatus signals a search status message change.
	EventStatus EventType = "status"

	// EventAnalysis signals that the paper analysis finished.
	EventAnalysis EventType = "analysis"

	// EventPapers signals that the related papers list changed.
	EventPapers EventType = "papers"

	// EventError signals that the run failed.
	EventError EventType = "error"

	// EventDone signals that the run reached a terminal state.
	EventDone EventType = "done"
)

// Event is a session state change delivered to subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Session Snapshot  `json:"session"`
}
