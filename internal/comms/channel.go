package comms

import (
	"context"
	"sync"

	"github.com/maplan-dev/maplan/internal/errors"
)

// inbox holds one agent's pending messages. notify has capacity 1 and is
// signaled on every delivery; receivers re-scan pending after each wake, so
// coalesced signals are safe.
type inbox struct {
	mu      sync.Mutex
	pending []Message
	notify  chan struct{}
}

// ChannelTransport delivers messages between agents running in one process.
// It is the substrate for the CLI runner and for simulating N-agent rings in
// tests without real sockets.
type ChannelTransport struct {
	mu      sync.RWMutex
	inboxes map[string]*inbox
	closed  chan struct{}
	once    sync.Once
}

// NewChannelTransport creates a transport with an inbox per agent.
func NewChannelTransport(agents []string) *ChannelTransport {
	inboxes := make(map[string]*inbox, len(agents))
	for _, a := range agents {
		inboxes[a] = &inbox{notify: make(chan struct{}, 1)}
	}
	return &ChannelTransport{
		inboxes: inboxes,
		closed:  make(chan struct{}),
	}
}

// Send appends the message to the recipient's pending list and wakes any
// blocked receiver. Never blocks on the recipient.
func (t *ChannelTransport) Send(ctx context.Context, m Message) error {
	select {
	case <-t.closed:
		return errors.ErrRingClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.mu.RLock()
	box, ok := t.inboxes[m.To]
	t.mu.RUnlock()
	if !ok {
		return errors.NewProtocolError("send to unknown agent", nil).WithAgent(m.To)
	}

	box.mu.Lock()
	box.pending = append(box.pending, m)
	box.mu.Unlock()

	select {
	case box.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive blocks until a message matching the filter is pending for the
// agent, removes it, and returns it. Non-matching messages stay pending.
func (t *ChannelTransport) Receive(ctx context.Context, agent string, f Filter) (Message, error) {
	t.mu.RLock()
	box, ok := t.inboxes[agent]
	t.mu.RUnlock()
	if !ok {
		return Message{}, errors.NewProtocolError("receive for unknown agent", nil).WithAgent(agent)
	}

	for {
		box.mu.Lock()
		for i, m := range box.pending {
			if f.Matches(m) {
				box.pending = append(box.pending[:i], box.pending[i+1:]...)
				box.mu.Unlock()
				return m, nil
			}
		}
		box.mu.Unlock()

		select {
		case <-box.notify:
		case <-t.closed:
			return Message{}, errors.ErrRingClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close wakes every blocked Receive with ErrRingClosed. Safe to call more
// than once.
func (t *ChannelTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
	})
	return nil
}
