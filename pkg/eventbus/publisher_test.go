package eventbus

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func TestNewEventEncodesPayload(t *testing.T) {
	event, err := NewEvent("query_rejected", QueryEvent{
		GroupID:  "analytics",
		Resource: "cpu",
	})
	if err != nil {
		t.Fatalf("NewEvent error: %v", err)
	}
	if event.Type != "query_rejected" {
		t.Fatalf("expected type query_rejected, got %q", event.Type)
	}

	var decoded QueryEvent
	if err := json.Unmarshal(event.Data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.GroupID != "analytics" || decoded.Resource != "cpu" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestPublisherWithoutBusDiscards(t *testing.T) {
	p := NewPublisher(nil, zap.NewNop())

	// Must neither block nor panic on the hot path.
	for i := 0; i < 1000; i++ {
		p.TryPublish(ChannelQuery, "query_rejected", QueryEvent{GroupID: "analytics"})
	}
	if p.Dropped() != 0 {
		t.Fatalf("nil-bus publisher should discard silently, dropped=%d", p.Dropped())
	}
}

func TestPublisherDropsOnBackpressure(t *testing.T) {
	// A bus with a client is required for enqueueing; construct one that is
	// never drained so the buffer fills.
	p := NewPublisher(&Bus{}, zap.NewNop())

	for i := 0; i < 5000; i++ {
		p.TryPublish(ChannelQuery, "query_rejected", QueryEvent{GroupID: "analytics"})
	}
	if p.Dropped() == 0 {
		t.Fatal("expected drops once the buffer filled")
	}
}
