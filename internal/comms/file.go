package comms

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maplan-dev/maplan/internal/errors"
)

// defaultPollInterval is the fallback poll interval for FileTransport
// receivers. fsnotify covers the common case; the poll guards against
// missed events on filesystems with unreliable notification.
const defaultPollInterval = 100 * time.Millisecond

// FileTransport delivers messages through per-agent JSONL mailboxes under a
// shared run directory. Agents may live in separate processes: each process
// creates its own FileTransport over the same directory. Arrivals are
// detected with an fsnotify watcher on the recipient's mailbox directory,
// with a periodic poll as fallback.
type FileTransport struct {
	store        *Store
	pollInterval time.Duration

	mu     sync.Mutex
	boxes  map[string]*fileInbox
	closed chan struct{}
	once   sync.Once
}

// fileInbox tracks one agent's read position and locally pending messages.
type fileInbox struct {
	mu      sync.Mutex
	offset  int
	pending []Message
	watcher *fsnotify.Watcher
}

// FileOption configures a FileTransport.
type FileOption func(*FileTransport)

// WithPollInterval overrides the fallback poll interval.
// Zero or negative values are ignored.
func WithPollInterval(d time.Duration) FileOption {
	return func(t *FileTransport) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// NewFileTransport creates a FileTransport rooted at the given run
// directory.
func NewFileTransport(runDir string, opts ...FileOption) *FileTransport {
	t := &FileTransport{
		store:        NewStore(runDir),
		pollInterval: defaultPollInterval,
		boxes:        make(map[string]*fileInbox),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send appends the message to the recipient's mailbox file.
func (t *FileTransport) Send(ctx context.Context, m Message) error {
	select {
	case <-t.closed:
		return errors.ErrRingClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return t.store.Append(m)
}

// Receive blocks until a message matching the filter is available in the
// agent's mailbox, removes it from the pending set, and returns it.
// Messages consumed from the file but not matching the filter stay pending
// in memory for later receives.
func (t *FileTransport) Receive(ctx context.Context, agent string, f Filter) (Message, error) {
	box, err := t.inboxFor(agent)
	if err != nil {
		return Message{}, err
	}

	for {
		box.mu.Lock()
		newMessages, offset, err := t.store.ReadFrom(agent, box.offset)
		if err != nil {
			box.mu.Unlock()
			return Message{}, err
		}
		box.offset = offset
		box.pending = append(box.pending, newMessages...)

		for i, m := range box.pending {
			if f.Matches(m) {
				box.pending = append(box.pending[:i], box.pending[i+1:]...)
				box.mu.Unlock()
				return m, nil
			}
		}
		box.mu.Unlock()

		var events chan fsnotify.Event
		if box.watcher != nil {
			events = box.watcher.Events
		}

		select {
		case <-events:
			// New data in the mailbox directory; re-read above.
		case <-time.After(t.pollInterval):
			// Poll fallback.
		case <-t.closed:
			return Message{}, errors.ErrRingClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// inboxFor returns (creating if needed) the local inbox for an agent,
// including its directory watcher.
func (t *FileTransport) inboxFor(agent string) (*fileInbox, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if box, ok := t.boxes[agent]; ok {
		return box, nil
	}

	dir, err := t.store.AgentDir(agent)
	if err != nil {
		return nil, err
	}

	box := &fileInbox{}

	// fsnotify works better with directories than single files; watch the
	// mailbox directory. A watcher failure degrades to pure polling.
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
		} else {
			box.watcher = watcher
		}
	}

	t.boxes[agent] = box
	return box, nil
}

// Close wakes every blocked Receive with ErrRingClosed and releases all
// directory watchers. Safe to call more than once.
func (t *FileTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for _, box := range t.boxes {
			if box.watcher != nil {
				_ = box.watcher.Close()
			}
		}
		t.mu.Unlock()
	})
	return nil
}
