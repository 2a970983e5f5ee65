package orchestrator

import "time"

// EventKind classifies an [Event].
type EventKind int

const (
	// EventStateChanged reports a pipeline transition.
	EventStateChanged EventKind = iota
	// EventTurnAdded reports a new conversation turn.
	EventTurnAdded
	// EventSystemMessage carries a notice for the user, such as a failure
	// that produced no speech.
	EventSystemMessage
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventTurnAdded:
		return "turn_added"
	case EventSystemMessage:
		return "system_message"
	default:
		return "unknown"
	}
}

// Severity grades a system message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a notification for the presentation layer.
type Event struct {
	Kind EventKind
	At   time.Time

	// From and To are set for EventStateChanged.
	From, To State

	// Turn is set for EventTurnAdded.
	Turn Turn

	// Message and Severity are set for EventSystemMessage.
	Message  string
	Severity Severity
}
