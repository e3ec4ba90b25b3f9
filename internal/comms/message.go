package comms

import (
	"time"

	"github.com/maplan-dev/maplan/internal/errors"
)

// Kind identifies the protocol message type. The set is closed: receiving
// any other kind is a protocol error.
type Kind string

const (
	// KindRPGLevels carries (variable, value, level) triples from the baton
	// holder after a local releveling pass, plus a changed flag.
	KindRPGLevels Kind = "rpg_levels"

	// KindVerifyReport carries a non-baton agent's contribution to a
	// distributed landmark verification round: newly reached shareable
	// literals, reached goal count, and a changed flag.
	KindVerifyReport Kind = "verify_report"

	// KindVerifyDecision carries the baton holder's stage decision for a
	// distributed landmark verification round.
	KindVerifyDecision Kind = "verify_decision"

	// KindTransitionRequest asks another agent for the cost of a variable
	// value transition whose producing actions are not locally known.
	KindTransitionRequest Kind = "transition_request"

	// KindTransitionReply answers a KindTransitionRequest.
	KindTransitionReply Kind = "transition_reply"

	// KindStageEnd marks the sender as finished with the current evaluation
	// stage. Used by the end-of-evaluation barrier.
	KindStageEnd Kind = "stage_end"

	// KindBoolExchange carries a single boolean, OR-ed across one baton
	// round (used by the landmarks evaluation-stage check).
	KindBoolExchange Kind = "bool_exchange"

	// KindDTGEdges carries domain-transition-graph edges for shared
	// variables during the one-time DTG distribution step.
	KindDTGEdges Kind = "dtg_edges"

	// KindProducerQuery asks the ring for the preconditions of each
	// agent's direct producers of a literal set, during landmark
	// back-chaining.
	KindProducerQuery Kind = "producer_query"

	// KindProducerReply answers a KindProducerQuery with one precondition
	// set per local producer, filtered to literals shareable with the
	// asking agent.
	KindProducerReply Kind = "producer_reply"

	// KindLandmarkProposal carries a candidate literal set from the
	// extraction driver; receivers join the distributed verification of
	// the candidate.
	KindLandmarkProposal Kind = "landmark_proposal"

	// KindLandmarkGraph carries the finished landmark graph from the
	// extraction driver to the other agents.
	KindLandmarkGraph Kind = "landmark_graph"

	// KindSearchDone tells agents serving evaluation stages that the search
	// driver has finished and no further stages will open.
	KindSearchDone Kind = "search_done"
)

// VerifyDecision is the baton holder's verdict for one distributed
// verification round.
type VerifyDecision string

const (
	// DecisionIsLandmark confirms the candidate: a full round produced no
	// change anywhere while goals remained unreached.
	DecisionIsLandmark VerifyDecision = "is_landmark"

	// DecisionIsNotLandmark rejects the candidate: all goals were reached
	// without it.
	DecisionIsNotLandmark VerifyDecision = "is_not_landmark"

	// DecisionContinue keeps the verification closure running for another
	// round.
	DecisionContinue VerifyDecision = "continue"
)

// LevelEntry is one (variable, value, level) triple exchanged during RPG
// synchronization and verification rounds.
type LevelEntry struct {
	Var   string `json:"var"`
	Value string `json:"value"`
	Level int    `json:"level"`
}

// EdgeEntry is one domain-transition-graph edge exchanged during DTG
// distribution. Agents lists the agents that know a producing action for
// the transition.
type EdgeEntry struct {
	Var    string   `json:"var"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Agents []string `json:"agents"`
}

// LandmarkEntry is one landmark graph node on the wire: its index, literal
// set, predecessor node indexes, and goal flag.
type LandmarkEntry struct {
	Index    int          `json:"index"`
	Literals []LevelEntry `json:"literals"`
	Preds    []int        `json:"preds,omitempty"`
	Goal     bool         `json:"goal,omitempty"`
}

// Message is a single inter-agent protocol message. Kind determines which
// payload fields are meaningful; the rest are left at their zero values.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// KindRPGLevels, KindVerifyReport, KindVerifyDecision.
	Levels  []LevelEntry `json:"levels,omitempty"`
	Changed bool         `json:"changed,omitempty"`

	// KindVerifyReport.
	PendingGoals int `json:"pending_goals,omitempty"`

	// KindVerifyDecision.
	Decision VerifyDecision `json:"decision,omitempty"`

	// KindTransitionRequest and KindTransitionReply. RequestID correlates a
	// reply with its request; Chain is the ancestor agent list used for
	// loop detection. MultiState carries the requester's candidate values
	// per variable, so an unknown transition start can be priced by the
	// server; landmark proposals reuse it as a literal-set encoding.
	RequestID  string              `json:"request_id,omitempty"`
	Var        string              `json:"var,omitempty"`
	FromValue  string              `json:"from_value,omitempty"`
	ToValue    string              `json:"to_value,omitempty"`
	Chain      []string            `json:"chain,omitempty"`
	MultiState map[string][]string `json:"multi_state,omitempty"`
	Cost       float64             `json:"cost,omitempty"`

	// KindBoolExchange.
	Flag bool `json:"flag,omitempty"`

	// KindDTGEdges.
	Edges []EdgeEntry `json:"edges,omitempty"`

	// KindLandmarkGraph and KindProducerReply. In a reply each entry
	// carries one producer's precondition literals; Index, Preds and Goal
	// are unused.
	Landmarks []LandmarkEntry `json:"landmarks,omitempty"`
}

// validKinds is the closed protocol message set.
var validKinds = map[Kind]bool{
	KindRPGLevels:         true,
	KindVerifyReport:      true,
	KindVerifyDecision:    true,
	KindTransitionRequest: true,
	KindTransitionReply:   true,
	KindStageEnd:          true,
	KindBoolExchange:      true,
	KindDTGEdges:          true,
	KindProducerQuery:     true,
	KindProducerReply:     true,
	KindLandmarkProposal:  true,
	KindLandmarkGraph:     true,
	KindSearchDone:        true,
}

// ValidKind returns true if k belongs to the protocol message set.
func ValidKind(k Kind) bool {
	return validKinds[k]
}

// CheckPayload verifies that the fields the message's kind requires are
// present. Kinds without required fields always pass.
func (m Message) CheckPayload() error {
	switch m.Kind {
	case KindTransitionRequest:
		if m.RequestID == "" || m.Var == "" || m.ToValue == "" {
			return errors.NewProtocolError("transition request missing fields", errors.ErrBadPayload).
				WithAgent(m.From).WithKind(string(m.Kind))
		}
	case KindTransitionReply:
		if m.RequestID == "" {
			return errors.NewProtocolError("transition reply missing request id", errors.ErrBadPayload).
				WithAgent(m.From).WithKind(string(m.Kind))
		}
	case KindVerifyDecision:
		if m.Decision == "" {
			return errors.NewProtocolError("verify decision missing verdict", errors.ErrBadPayload).
				WithAgent(m.From).WithKind(string(m.Kind))
		}
	}
	return nil
}

// Filter selects messages on the receive side. Zero-valued fields match
// anything: an empty From matches any sender, an empty Kinds set matches
// any kind, an empty RequestID matches any request.
type Filter struct {
	From      string
	Kinds     []Kind
	RequestID string
}

// Matches reports whether the message satisfies the filter.
func (f Filter) Matches(m Message) bool {
	if f.From != "" && m.From != f.From {
		return false
	}
	if f.RequestID != "" && m.RequestID != f.RequestID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if m.Kind == k {
			return true
		}
	}
	return false
}
