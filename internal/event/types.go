// Package event defines event types for decoupling maplan components.
// These events let the CLI and any observers trace planner progress
// (RPG rounds, landmark confirmation, search expansion) without coupling
// the core protocol code to its consumers.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "rpg.round", "search.expanded")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type constants.
const (
	TypeRPGRound           = "rpg.round"
	TypeRPGConverged       = "rpg.converged"
	TypeLandmarkConfirmed  = "landmark.confirmed"
	TypeLandmarkRejected   = "landmark.rejected"
	TypeSearchExpanded     = "search.expanded"
	TypeSearchSolved       = "search.solved"
	TypeSearchExhausted    = "search.exhausted"
	TypeMessageSent        = "comms.sent"
	TypeEvaluationComplete = "heuristic.evaluated"
)

// RPGRoundEvent is published after each baton round of RPG synchronization.
type RPGRoundEvent struct {
	baseEvent
	Agent   string
	Round   int
	Changed bool
}

// NewRPGRoundEvent creates an RPGRoundEvent.
func NewRPGRoundEvent(agent string, round int, changed bool) RPGRoundEvent {
	return RPGRoundEvent{
		baseEvent: newBaseEvent(TypeRPGRound),
		Agent:     agent,
		Round:     round,
		Changed:   changed,
	}
}

// RPGConvergedEvent is published when the distributed leveling reaches
// fixpoint across all agents.
type RPGConvergedEvent struct {
	baseEvent
	Agent  string
	Rounds int
}

// NewRPGConvergedEvent creates an RPGConvergedEvent.
func NewRPGConvergedEvent(agent string, rounds int) RPGConvergedEvent {
	return RPGConvergedEvent{
		baseEvent: newBaseEvent(TypeRPGConverged),
		Agent:     agent,
		Rounds:    rounds,
	}
}

// LandmarkEvent is published when a landmark candidate is confirmed or
// rejected by verification.
type LandmarkEvent struct {
	baseEvent
	Agent    string
	Literals []string
	Accepted bool
}

// NewLandmarkEvent creates a LandmarkEvent. The literals are rendered as
// "var=value" strings for observability only.
func NewLandmarkEvent(agent string, literals []string, accepted bool) LandmarkEvent {
	eventType := TypeLandmarkConfirmed
	if !accepted {
		eventType = TypeLandmarkRejected
	}
	return LandmarkEvent{
		baseEvent: newBaseEvent(eventType),
		Agent:     agent,
		Literals:  literals,
		Accepted:  accepted,
	}
}

// SearchEvent is published by the search driver on expansion, solution,
// or exhaustion.
type SearchEvent struct {
	baseEvent
	PlanIndex int
	H         float64
	Open      int
}

// NewSearchExpandedEvent creates a SearchEvent for a plan expansion.
func NewSearchExpandedEvent(planIndex int, h float64, open int) SearchEvent {
	return SearchEvent{
		baseEvent: newBaseEvent(TypeSearchExpanded),
		PlanIndex: planIndex,
		H:         h,
		Open:      open,
	}
}

// NewSearchSolvedEvent creates a SearchEvent for a goal-satisfying plan.
func NewSearchSolvedEvent(planIndex int, h float64) SearchEvent {
	return SearchEvent{
		baseEvent: newBaseEvent(TypeSearchSolved),
		PlanIndex: planIndex,
		H:         h,
	}
}

// NewSearchExhaustedEvent creates a SearchEvent for search-space exhaustion.
func NewSearchExhaustedEvent(open int) SearchEvent {
	return SearchEvent{
		baseEvent: newBaseEvent(TypeSearchExhausted),
		PlanIndex: -1,
		Open:      open,
	}
}

// MessageSentEvent is published by transports after a successful send.
type MessageSentEvent struct {
	baseEvent
	From string
	To   string
	Kind string
}

// NewMessageSentEvent creates a MessageSentEvent.
func NewMessageSentEvent(from, to, kind string) MessageSentEvent {
	return MessageSentEvent{
		baseEvent: newBaseEvent(TypeMessageSent),
		From:      from,
		To:        to,
		Kind:      kind,
	}
}

// EvaluationEvent is published after a heuristic evaluation completes.
type EvaluationEvent struct {
	baseEvent
	Agent     string
	PlanIndex int
	H         float64
}

// NewEvaluationEvent creates an EvaluationEvent.
func NewEvaluationEvent(agent string, planIndex int, h float64) EvaluationEvent {
	return EvaluationEvent{
		baseEvent: newBaseEvent(TypeEvaluationComplete),
		Agent:     agent,
		PlanIndex: planIndex,
		H:         h,
	}
}
