package comms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/maplan-dev/maplan/internal/errors"
	"github.com/maplan-dev/maplan/internal/event"
)

// Transport delivers messages between agents. Implementations must be safe
// for concurrent use by all agents of one ring.
type Transport interface {
	// Send delivers a message to its recipient's inbox. It must not block
	// on the recipient consuming the message.
	Send(ctx context.Context, m Message) error

	// Receive blocks until a message matching the filter is available in
	// the given agent's inbox, then removes and returns it. Messages that
	// do not match stay pending for later receives. Returns ErrRingClosed
	// after Close, and the context error on cancellation.
	Receive(ctx context.Context, agent string, f Filter) (Message, error)

	// Close shuts the transport down, waking every blocked Receive with
	// ErrRingClosed.
	Close() error
}

// Registry is one agent's view of the logical agent ring. It tracks the
// baton position locally: all agents start with the baton on the first agent
// of the ring and advance it in lock-step, one PassBaton per protocol round.
type Registry struct {
	agents    []string
	self      string
	baton     int
	transport Transport
	bus       *event.Bus
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus attaches an event bus. When set, a MessageSentEvent is published
// after every successful Send.
func WithBus(bus *event.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// NewRegistry creates a Registry for the given agent over the transport.
// The agents slice defines the ring order and must be identical for every
// agent of the ring.
func NewRegistry(agents []string, self string, transport Transport, opts ...Option) *Registry {
	r := &Registry{
		agents:    agents,
		self:      self,
		transport: transport,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NumAgents returns the total number of agents in the ring.
func (r *Registry) NumAgents() int {
	return len(r.agents)
}

// ThisAgent returns this agent's name.
func (r *Registry) ThisAgent() string {
	return r.self
}

// Agents returns the full agent list in ring order.
func (r *Registry) Agents() []string {
	return r.agents
}

// OtherAgents returns every agent except this one, in ring order.
func (r *Registry) OtherAgents() []string {
	others := make([]string, 0, len(r.agents)-1)
	for _, a := range r.agents {
		if a != r.self {
			others = append(others, a)
		}
	}
	return others
}

// BatonAgent returns the name of the current baton holder.
func (r *Registry) BatonAgent() string {
	return r.agents[r.baton]
}

// HoldsBaton reports whether this agent currently holds the baton.
func (r *Registry) HoldsBaton() bool {
	return r.BatonAgent() == r.self
}

// PassBaton advances the baton to the next agent in ring order. Every agent
// of the ring must call this exactly once per protocol round.
func (r *Registry) PassBaton() {
	r.baton = (r.baton + 1) % len(r.agents)
}

// ResetBaton returns the baton to the first agent of the ring. Called
// between protocol stages so each stage starts from a known holder.
func (r *Registry) ResetBaton() {
	r.baton = 0
}

// Send stamps the message with this agent's name, a fresh ID, and the
// current time, then delivers it.
func (r *Registry) Send(ctx context.Context, to string, m Message) error {
	if !ValidKind(m.Kind) {
		return errors.NewProtocolError("send of unknown kind", errors.ErrUnknownMessage).
			WithKind(string(m.Kind))
	}
	m.From = r.self
	m.To = to
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if err := r.transport.Send(ctx, m); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(event.NewMessageSentEvent(m.From, m.To, string(m.Kind)))
	}
	return nil
}

// Broadcast sends the message to every other agent of the ring.
func (r *Registry) Broadcast(ctx context.Context, m Message) error {
	for _, other := range r.OtherAgents() {
		if err := r.Send(ctx, other, m); err != nil {
			return err
		}
	}
	return nil
}

// Receive blocks until a message matching the filter arrives for this agent.
func (r *Registry) Receive(ctx context.Context, f Filter) (Message, error) {
	m, err := r.transport.Receive(ctx, r.self, f)
	if err != nil {
		return Message{}, err
	}
	if !ValidKind(m.Kind) {
		return Message{}, errors.NewProtocolError("received unknown kind", errors.ErrUnknownMessage).
			WithAgent(m.From).WithKind(string(m.Kind))
	}
	if err := m.CheckPayload(); err != nil {
		return Message{}, err
	}
	return m, nil
}
