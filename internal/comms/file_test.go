package comms

import (
	"context"
	"testing"
	"time"

	"github.com/maplan-dev/maplan/internal/errors"
)

func TestStore_AppendAndReadFrom(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	for i, kind := range []Kind{KindStageEnd, KindRPGLevels, KindBoolExchange} {
		m := Message{ID: string(rune('a' + i)), From: "a1", To: "a2", Kind: kind}
		if err := store.Append(m); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	messages, offset, err := store.ReadFrom("a2", 0)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("ReadFrom() returned %d messages, want 3", len(messages))
	}
	if offset != 3 {
		t.Errorf("offset = %d, want 3", offset)
	}

	// Reading from the returned offset yields nothing new.
	messages, offset, err = store.ReadFrom("a2", offset)
	if err != nil {
		t.Fatalf("ReadFrom(offset) error = %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("ReadFrom(offset) returned %d messages, want 0", len(messages))
	}
	if offset != 3 {
		t.Errorf("offset = %d, want 3", offset)
	}

	// Partial re-read.
	messages, _, err = store.ReadFrom("a2", 1)
	if err != nil {
		t.Fatalf("ReadFrom(1) error = %v", err)
	}
	if len(messages) != 2 || messages[0].Kind != KindRPGLevels {
		t.Errorf("ReadFrom(1) = %v, want 2 messages starting at rpg_levels", messages)
	}
}

func TestStore_MissingFieldsRejected(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Append(Message{To: "a2", Kind: KindStageEnd}); err == nil {
		t.Error("Append without From: error = nil, want error")
	}
	if err := store.Append(Message{From: "a1", Kind: KindStageEnd}); err == nil {
		t.Error("Append without To: error = nil, want error")
	}
}

func TestStore_ReadMissingMailbox(t *testing.T) {
	store := NewStore(t.TempDir())

	messages, offset, err := store.ReadFrom("nobody", 0)
	if err != nil {
		t.Fatalf("ReadFrom(missing) error = %v", err)
	}
	if messages != nil || offset != 0 {
		t.Errorf("ReadFrom(missing) = %v, %d; want nil, 0", messages, offset)
	}
}

func TestFileTransport_SendReceive(t *testing.T) {
	dir := t.TempDir()
	tr := NewFileTransport(dir, WithPollInterval(10*time.Millisecond))
	defer tr.Close()
	ctx := context.Background()

	if err := tr.Send(ctx, Message{ID: "m1", From: "a1", To: "a2", Kind: KindStageEnd}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	m, err := tr.Receive(ctx, "a2", Filter{From: "a1"})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if m.ID != "m1" || m.Kind != KindStageEnd {
		t.Errorf("received %+v, want m1/stage_end", m)
	}
}

func TestFileTransport_CrossProcessDelivery(t *testing.T) {
	// Two transports over the same run directory simulate two agent
	// processes sharing a mailbox tree.
	dir := t.TempDir()
	sender := NewFileTransport(dir, WithPollInterval(10*time.Millisecond))
	receiver := NewFileTransport(dir, WithPollInterval(10*time.Millisecond))
	defer sender.Close()
	defer receiver.Close()
	ctx := context.Background()

	done := make(chan Message, 1)
	go func() {
		m, err := receiver.Receive(ctx, "a2", Filter{Kinds: []Kind{KindRPGLevels}})
		if err != nil {
			t.Errorf("Receive() error = %v", err)
			return
		}
		done <- m
	}()

	time.Sleep(20 * time.Millisecond)
	msg := Message{
		ID: "m2", From: "a1", To: "a2", Kind: KindRPGLevels,
		Levels: []LevelEntry{{Var: "door", Value: "open", Level: 1}},
	}
	if err := sender.Send(ctx, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case m := <-done:
		if len(m.Levels) != 1 || m.Levels[0].Level != 1 {
			t.Errorf("received %+v, want door=open level 1", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cross-process Receive() did not observe the message")
	}
}

func TestFileTransport_NonMatchingStaysPending(t *testing.T) {
	dir := t.TempDir()
	tr := NewFileTransport(dir, WithPollInterval(10*time.Millisecond))
	defer tr.Close()
	ctx := context.Background()

	if err := tr.Send(ctx, Message{ID: "m1", From: "a1", To: "a2", Kind: KindStageEnd}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := tr.Send(ctx, Message{ID: "m2", From: "a3", To: "a2", Kind: KindStageEnd}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	m, err := tr.Receive(ctx, "a2", Filter{From: "a3"})
	if err != nil {
		t.Fatalf("Receive(from a3) error = %v", err)
	}
	if m.ID != "m2" {
		t.Errorf("received %s, want m2", m.ID)
	}

	m, err = tr.Receive(ctx, "a2", Filter{})
	if err != nil {
		t.Fatalf("Receive(any) error = %v", err)
	}
	if m.ID != "m1" {
		t.Errorf("received %s, want pending m1", m.ID)
	}
}

func TestFileTransport_Close(t *testing.T) {
	tr := NewFileTransport(t.TempDir(), WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Receive(ctx, "a1", Filter{})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, errors.ErrRingClosed) {
			t.Errorf("Receive() error = %v, want ErrRingClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive() did not wake after Close()")
	}

	if err := tr.Send(ctx, Message{From: "a1", To: "a2", Kind: KindStageEnd}); !errors.Is(err, errors.ErrRingClosed) {
		t.Errorf("Send() after Close error = %v, want ErrRingClosed", err)
	}
}
