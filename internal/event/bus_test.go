package event

import (
	"testing"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(TypeRPGRound, func(e Event) {
		got = append(got, e)
	})

	bus.Publish(NewRPGRoundEvent("agent-1", 1, true))
	bus.Publish(NewSearchExpandedEvent(3, 2.0, 5)) // different type, not delivered

	if len(got) != 1 {
		t.Fatalf("handler received %d events, want 1", len(got))
	}
	ev, ok := got[0].(RPGRoundEvent)
	if !ok {
		t.Fatalf("event type = %T, want RPGRoundEvent", got[0])
	}
	if ev.Agent != "agent-1" || ev.Round != 1 || !ev.Changed {
		t.Errorf("event = %+v, want agent-1/round 1/changed", ev)
	}
	if ev.Timestamp().IsZero() {
		t.Error("event timestamp is zero")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	count := 0
	bus.SubscribeAll(func(e Event) { count++ })

	bus.Publish(NewRPGConvergedEvent("agent-1", 4))
	bus.Publish(NewSearchSolvedEvent(7, 0))
	bus.Publish(NewMessageSentEvent("agent-1", "agent-2", "rpg_levels"))

	if count != 3 {
		t.Errorf("wildcard handler received %d events, want 3", count)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	id := bus.Subscribe(TypeSearchExpanded, func(e Event) { count++ })

	bus.Publish(NewSearchExpandedEvent(1, 1.0, 1))
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false, want true")
	}
	bus.Publish(NewSearchExpandedEvent(2, 1.0, 1))

	if count != 1 {
		t.Errorf("handler received %d events after unsubscribe, want 1", count)
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe() = true, want false")
	}
}

func TestBus_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeLandmarkConfirmed, func(e Event) {
		panic("handler failure")
	})

	delivered := false
	bus.Subscribe(TypeLandmarkConfirmed, func(e Event) {
		delivered = true
	})

	bus.Publish(NewLandmarkEvent("agent-1", []string{"door=open"}, true))
	if !delivered {
		t.Error("second handler was not invoked after first handler panicked")
	}
}

func TestLandmarkEvent_TypeByAcceptance(t *testing.T) {
	accepted := NewLandmarkEvent("a", []string{"x=1"}, true)
	rejected := NewLandmarkEvent("a", []string{"x=1"}, false)

	if accepted.EventType() != TypeLandmarkConfirmed {
		t.Errorf("accepted type = %q, want %q", accepted.EventType(), TypeLandmarkConfirmed)
	}
	if rejected.EventType() != TypeLandmarkRejected {
		t.Errorf("rejected type = %q, want %q", rejected.EventType(), TypeLandmarkRejected)
	}
}

func TestBus_SubscriptionCountAndClear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeRPGRound, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if got := bus.SubscriptionCount(); got != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", got)
	}

	bus.Clear()
	if got := bus.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() after Clear = %d, want 0", got)
	}
}
