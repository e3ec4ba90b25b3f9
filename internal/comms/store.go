package comms

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// mailboxDir is the directory name within a run directory that holds
	// per-agent mailboxes.
	mailboxDir = "mailbox"

	// indexFile is the append-only JSONL file within each mailbox directory.
	indexFile = "index.jsonl"
)

// Store provides file-based mailbox storage with atomic appends. Messages
// are persisted as JSONL (one JSON object per line) in an append-only log
// per recipient agent. It backs FileTransport; each agent process opens a
// Store over the same shared run directory.
type Store struct {
	runDir string
	mu     sync.Mutex
}

// NewStore creates a Store rooted at the given run directory.
// The directory structure is created lazily on first write.
func NewStore(runDir string) *Store {
	return &Store{runDir: runDir}
}

// Append persists a message to the recipient's mailbox directory.
func (s *Store) Append(m Message) error {
	if m.From == "" {
		return fmt.Errorf("comms: message From field is required")
	}
	if m.To == "" {
		return fmt.Errorf("comms: message To field is required")
	}

	dir := s.dirForAgent(m.To)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("comms: create mailbox directory: %w", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("comms: marshal message: %w", err)
	}
	data = append(data, '\n')

	return s.atomicAppend(filepath.Join(dir, indexFile), data)
}

// ReadFrom returns the messages in the agent's mailbox starting at the given
// line offset, plus the new offset. Returns nil with an unchanged offset if
// the mailbox does not exist yet.
func (s *Store) ReadFrom(agent string, offset int) ([]Message, int, error) {
	path := filepath.Join(s.dirForAgent(agent), indexFile)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, nil
		}
		return nil, offset, fmt.Errorf("comms: open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	var messages []Message
	line := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		line++
		if line <= offset {
			continue
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			// Skip malformed lines rather than failing entirely.
			continue
		}
		messages = append(messages, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, offset, fmt.Errorf("comms: scan index: %w", err)
	}

	return messages, line, nil
}

// AgentDir returns the mailbox directory for the given agent, creating it if
// necessary so it can be registered with a file watcher.
func (s *Store) AgentDir(agent string) (string, error) {
	dir := s.dirForAgent(agent)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("comms: create mailbox directory: %w", err)
	}
	return dir, nil
}

// dirForAgent returns the mailbox directory for a given agent.
func (s *Store) dirForAgent(agent string) string {
	return filepath.Join(s.runDir, mailboxDir, agent)
}

// atomicAppend appends data to a file under a mutex to serialize writes
// within this process. Each JSONL line is small enough that O_APPEND
// provides atomicity on POSIX systems (writes under PIPE_BUF are atomic),
// covering concurrent writers from other agent processes.
func (s *Store) atomicAppend(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("comms: open index for append: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("comms: append to index: %w", err)
	}

	return f.Close()
}
