package trace

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBusEmitImmediate(t *testing.T) {
	bus := NewBus()
	bus.Enable()
	ch := bus.Subscribe()
	defer bus.Close()

	bus.EmitImmediate(Event{
		Stage:   StageSafety,
		Summary: "verdict=pass",
	})

	select {
	case evt := <-ch:
		if evt.Summary != "verdict=pass" {
			t.Fatalf("unexpected summary: %s", evt.Summary)
		}
		if evt.ID == 0 {
			t.Fatalf("expected sequence id")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected event to be delivered")
	}
}

func TestBusStageFilter(t *testing.T) {
	bus := NewBus()
	bus.Enable()
	bus.SetStages([]Stage{StageSafety})
	ch := bus.Subscribe()
	defer bus.Close()

	bus.EmitImmediate(Event{
		Stage:   StageFusion,
		Summary: "filtered",
	})

	select {
	case <-ch:
		t.Fatalf("unexpected event for filtered stage")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusFlush(t *testing.T) {
	bus := NewBus()
	bus.Enable()
	ch := bus.Subscribe()
	defer bus.Close()

	bus.Emit(Event{
		Stage:   StagePolicy,
		Summary: "rule=fast_path_greeting",
	})
	bus.Flush()

	select {
	case evt := <-ch:
		if evt.Summary != "rule=fast_path_greeting" {
			t.Fatalf("unexpected summary: %s", evt.Summary)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected buffered event to be delivered")
	}

	stats := bus.Stats()
	if stats.TotalEmitted == 0 {
		t.Fatalf("expected total emitted count")
	}
}

func TestBusDisabledDropsEvents(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Close()

	bus.EmitImmediate(Event{Stage: StageDecision, Summary: "dropped"})
	bus.Flush()

	select {
	case <-ch:
		t.Fatalf("unexpected event while disabled")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	bus.Enable()
	ch := bus.Subscribe()

	bus.Unsubscribe(ch)
	if stats := bus.Stats(); stats.SubscriberCount != 0 {
		t.Fatalf("expected no subscribers, got %d", stats.SubscriberCount)
	}

	// Channel is closed after unsubscribe.
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	bus.Close()
}

func TestBusClearConversation(t *testing.T) {
	bus := NewBus()
	bus.Enable()
	defer bus.Close()

	bus.Emit(Event{Stage: StageRubric, Summary: "a", ConversationID: "conv-1"})
	bus.Emit(Event{Stage: StageRubric, Summary: "b", ConversationID: "conv-2"})
	bus.ClearConversation("conv-1")

	if stats := bus.Stats(); stats.BufferedEvents != 1 {
		t.Fatalf("expected one buffered event, got %d", stats.BufferedEvents)
	}
	bus.Flush()
}

func TestEventString(t *testing.T) {
	e := Event{
		Stage:    StageFusion,
		Summary:  "strategy=weighted_blend",
		Duration: 2 * time.Millisecond,
	}
	got := e.String()
	want := "[FUSION] strategy=weighted_blend (2.0ms)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestValidStage(t *testing.T) {
	if !ValidStage("safety") {
		t.Fatalf("expected safety to be valid")
	}
	if ValidStage("compiler") {
		t.Fatalf("expected compiler to be invalid")
	}
}
