package stream

import (
	"testing"
)

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster(8, 100, nil)
	ch, cancel := b.Subscribe("sess-1")
	defer cancel()

	b.Publish("sess-1", &StepEvent{StepID: "s1", Kind: StepKindText, Status: StepStatusDelta, Delta: "hi"})

	ev := <-ch
	step, ok := ev.(*StepEvent)
	if !ok || step.Delta != "hi" {
		t.Fatalf("got %#v, want text delta", ev)
	}
}

func TestBroadcasterDropsWhenBufferFull(t *testing.T) {
	b := NewBroadcaster(1, 100, nil)
	_, cancel := b.Subscribe("sess-1")
	defer cancel()

	b.Publish("sess-1", &StepEvent{StepID: "s1", Kind: StepKindText, Status: StepStatusDelta})
	b.Publish("sess-1", &StepEvent{StepID: "s2", Kind: StepKindText, Status: StepStatusDelta})

	_, dropped, _ := b.Stats()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestBroadcasterDropHookFires(t *testing.T) {
	b := NewBroadcaster(1, 100, nil)
	var hooked int
	b.SetDropHook(func(n int) { hooked += n })
	_, cancel := b.Subscribe("sess-1")
	defer cancel()

	b.Publish("sess-1", &StepEvent{StepID: "s1", Kind: StepKindText, Status: StepStatusDelta})
	b.Publish("sess-1", &StepEvent{StepID: "s2", Kind: StepKindText, Status: StepStatusDelta})
	// Eviction for the terminal event is also a drop the hook must see.
	b.Publish("sess-1", &BoundaryEndEvent{BoundaryID: "b1"})

	if hooked != 2 {
		t.Errorf("hook counted %d drops, want 2", hooked)
	}
}

func TestBroadcasterEvictsForBoundaryEnd(t *testing.T) {
	b := NewBroadcaster(1, 100, nil)
	ch, cancel := b.Subscribe("sess-1")
	defer cancel()

	b.Publish("sess-1", &StepEvent{StepID: "s1", Kind: StepKindText, Status: StepStatusDelta})
	b.Publish("sess-1", &BoundaryEndEvent{BoundaryID: "b1"})

	ev := <-ch
	if ev.EventType() != EventTypeEnd {
		t.Fatalf("got %s, want the boundary end to displace the buffered delta", ev.EventType())
	}
}

func TestBroadcasterHistoryReplay(t *testing.T) {
	b := NewBroadcaster(8, 2, nil)
	b.Publish("sess-1", &StepEvent{StepID: "s1"})
	b.Publish("sess-1", &StepEvent{StepID: "s2"})
	b.Publish("sess-1", &StepEvent{StepID: "s3"})

	history := b.History("sess-1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2 (bounded)", len(history))
	}
	if history[0].(*StepEvent).StepID != "s2" {
		t.Errorf("oldest retained = %q, want s2", history[0].(*StepEvent).StepID)
	}

	b.ClearHistory("sess-1")
	if b.History("sess-1") != nil {
		t.Error("history should be empty after clear")
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(8, 100, nil)
	ch, cancel := b.Subscribe("sess-1")
	cancel()

	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}
	if b.ClientCount("sess-1") != 0 {
		t.Errorf("ClientCount = %d, want 0", b.ClientCount("sess-1"))
	}
}
