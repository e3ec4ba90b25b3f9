package comms

import (
	"context"
	"testing"

	"github.com/maplan-dev/maplan/internal/errors"
	"github.com/maplan-dev/maplan/internal/event"
)

func newTestRing(t *testing.T, agents ...string) (map[string]*Registry, *ChannelTransport) {
	t.Helper()
	tr := NewChannelTransport(agents)
	t.Cleanup(func() { _ = tr.Close() })

	regs := make(map[string]*Registry, len(agents))
	for _, a := range agents {
		regs[a] = NewRegistry(agents, a, tr)
	}
	return regs, tr
}

func TestRegistry_RingQueries(t *testing.T) {
	regs, _ := newTestRing(t, "a1", "a2", "a3")
	r := regs["a2"]

	if got := r.NumAgents(); got != 3 {
		t.Errorf("NumAgents() = %d, want 3", got)
	}
	if got := r.ThisAgent(); got != "a2" {
		t.Errorf("ThisAgent() = %q, want a2", got)
	}
	others := r.OtherAgents()
	if len(others) != 2 || others[0] != "a1" || others[1] != "a3" {
		t.Errorf("OtherAgents() = %v, want [a1 a3]", others)
	}
}

func TestRegistry_BatonRotation(t *testing.T) {
	regs, _ := newTestRing(t, "a1", "a2", "a3")
	r := regs["a1"]

	if got := r.BatonAgent(); got != "a1" {
		t.Errorf("initial BatonAgent() = %q, want a1", got)
	}
	if !r.HoldsBaton() {
		t.Error("HoldsBaton() = false for a1 at start, want true")
	}

	r.PassBaton()
	if got := r.BatonAgent(); got != "a2" {
		t.Errorf("BatonAgent() after one pass = %q, want a2", got)
	}
	r.PassBaton()
	r.PassBaton()
	if got := r.BatonAgent(); got != "a1" {
		t.Errorf("BatonAgent() after full round = %q, want a1", got)
	}

	r.PassBaton()
	r.ResetBaton()
	if got := r.BatonAgent(); got != "a1" {
		t.Errorf("BatonAgent() after reset = %q, want a1", got)
	}
}

func TestRegistry_SendStampsMessage(t *testing.T) {
	regs, _ := newTestRing(t, "a1", "a2")
	ctx := context.Background()

	if err := regs["a1"].Send(ctx, "a2", Message{Kind: KindStageEnd}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	m, err := regs["a2"].Receive(ctx, Filter{})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if m.From != "a1" {
		t.Errorf("From = %q, want a1", m.From)
	}
	if m.To != "a2" {
		t.Errorf("To = %q, want a2", m.To)
	}
	if m.ID == "" {
		t.Error("ID is empty, want generated uuid")
	}
	if m.Timestamp.IsZero() {
		t.Error("Timestamp is zero, want stamped")
	}
}

func TestRegistry_SendUnknownKind(t *testing.T) {
	regs, _ := newTestRing(t, "a1", "a2")

	err := regs["a1"].Send(context.Background(), "a2", Message{Kind: "bogus"})
	if !errors.Is(err, errors.ErrUnknownMessage) {
		t.Errorf("Send(bogus kind) error = %v, want ErrUnknownMessage", err)
	}
	if !errors.IsProtocol(err) {
		t.Error("IsProtocol() = false, want true")
	}
}

func TestRegistry_ReceiveMalformedPayload(t *testing.T) {
	regs, _ := newTestRing(t, "a1", "a2")
	ctx := context.Background()

	// A transition request with no request id cannot be answered.
	err := regs["a1"].Send(ctx, "a2", Message{
		Kind:      KindTransitionRequest,
		Var:       "door",
		FromValue: "closed",
		ToValue:   "open",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	_, err = regs["a2"].Receive(ctx, Filter{})
	if !errors.Is(err, errors.ErrBadPayload) {
		t.Errorf("Receive() error = %v, want ErrBadPayload", err)
	}
	if !errors.IsProtocol(err) {
		t.Error("IsProtocol() = false, want true")
	}
}

func TestRegistry_Broadcast(t *testing.T) {
	regs, _ := newTestRing(t, "a1", "a2", "a3")
	ctx := context.Background()

	if err := regs["a2"].Broadcast(ctx, Message{Kind: KindBoolExchange, Flag: true}); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	for _, agent := range []string{"a1", "a3"} {
		m, err := regs[agent].Receive(ctx, Filter{From: "a2"})
		if err != nil {
			t.Fatalf("Receive(%s) error = %v", agent, err)
		}
		if !m.Flag {
			t.Errorf("%s received flag=false, want true", agent)
		}
	}
}

func TestRegistry_PublishesSendEvents(t *testing.T) {
	agents := []string{"a1", "a2"}
	tr := NewChannelTransport(agents)
	defer tr.Close()

	bus := event.NewBus()
	var sent []event.Event
	bus.Subscribe(event.TypeMessageSent, func(e event.Event) {
		sent = append(sent, e)
	})

	r := NewRegistry(agents, "a1", tr, WithBus(bus))
	if err := r.Send(context.Background(), "a2", Message{Kind: KindStageEnd}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("bus received %d events, want 1", len(sent))
	}
	ev := sent[0].(event.MessageSentEvent)
	if ev.From != "a1" || ev.To != "a2" || ev.Kind != string(KindStageEnd) {
		t.Errorf("event = %+v, want a1→a2 stage_end", ev)
	}
}
