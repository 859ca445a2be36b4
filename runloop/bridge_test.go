package runloop

import (
	"testing"
)

func drainEvents(b *ChannelBridge) []BridgeEvent {
	var events []BridgeEvent
	for {
		select {
		case ev := <-b.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestChannelBridgeDeltas(t *testing.T) {
	b := NewChannelBridge(16)
	rc := NewRunContext("tester")

	rc.StreamText = "hel"
	b.OnNext(rc)
	rc.StreamText = "hello wor"
	b.OnNext(rc)
	b.OnNext(rc) // no new text, no event
	rc.StreamText = "hello world"
	b.OnNext(rc)

	events := drainEvents(b)
	var got string
	for _, ev := range events {
		if ev.Kind != BridgeDelta {
			t.Fatalf("unexpected event kind %q", ev.Kind)
		}
		got += ev.Delta
	}
	if got != "hello world" {
		t.Errorf("reassembled deltas = %q, want %q", got, "hello world")
	}
	if len(events) != 3 {
		t.Errorf("got %d delta events, want 3", len(events))
	}
}

func TestChannelBridgeCheckpointResetsDeltaTracking(t *testing.T) {
	b := NewChannelBridge(16)
	rc := NewRunContext("tester")

	rc.StreamText = "first segment"
	b.OnNext(rc)
	b.OnNextContext(rc, Segment{Input: "in", Output: rc.StreamText, Finished: false})
	rc.StreamText = "second"
	b.OnNext(rc)

	events := drainEvents(b)
	var deltas []string
	for _, ev := range events {
		if ev.Kind == BridgeDelta {
			deltas = append(deltas, ev.Delta)
		}
	}
	if len(deltas) != 2 || deltas[1] != "second" {
		t.Errorf("deltas = %q, want tracking reset after checkpoint", deltas)
	}

	cps := b.Checkpoints()
	if len(cps) != 1 || cps[0].Output != "first segment" {
		t.Errorf("checkpoints = %+v", cps)
	}
}

func TestChannelBridgeStop(t *testing.T) {
	b := NewChannelBridge(4)
	if b.Stopped() {
		t.Fatal("new bridge must not be stopped")
	}
	b.Stop()
	if !b.Stopped() {
		t.Fatal("Stop() did not take effect")
	}

	rc := NewRunContext("tester")
	b.OnStop(rc)
	events := drainEvents(b)
	if len(events) != 1 || events[0].Kind != BridgeStopAck {
		t.Errorf("events = %+v, want single stop_ack", events)
	}
}

func TestChannelBridgeDropsWhenFull(t *testing.T) {
	b := NewChannelBridge(1)
	rc := NewRunContext("tester")

	b.OnStep(rc, true, StepEvent{Name: StepTurn})
	b.OnStep(rc, false, StepEvent{Name: StepTurn}) // buffer full, dropped

	events := drainEvents(b)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (overflow must drop, not block)", len(events))
	}
}

func TestChannelBridgeCloseIsIdempotent(t *testing.T) {
	b := NewChannelBridge(4)
	b.Close()
	b.Close()
	// Emitting after close must not panic.
	b.OnStep(NewRunContext("tester"), true, StepEvent{Name: StepTurn})
}
