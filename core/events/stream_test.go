package events

import (
	"context"
	"testing"
	"time"
)

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func readUpdate(t *testing.T, updates <-chan StreamUpdate) StreamUpdate {
	t.Helper()
	select {
	case update, ok := <-updates:
		if !ok {
			t.Fatalf("stream closed before update arrived")
		}
		return update
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for stream update")
	}
	return StreamUpdate{}
}

func TestStreamEmitterDeliversLiveUpdates(t *testing.T) {
	stream := NewStreamEmitter()
	updates, cancel, backlog, err := stream.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d entries", len(backlog))
	}

	stream.Emit(ConfigUpdated{OldHash: "0x1", NewHash: "0x2", Seqno: 4})

	update := readUpdate(t, updates)
	if update.Cursor != "1" {
		t.Fatalf("unexpected cursor %q", update.Cursor)
	}
	if update.Event == nil || update.Event.Type != TypeConfigUpdated {
		t.Fatalf("unexpected event %+v", update.Event)
	}
	if got := update.Event.Attributes["newHash"]; got != "0x2" {
		t.Fatalf("unexpected newHash attribute %q", got)
	}
}

func TestStreamEmitterBacklogResumesFromCursor(t *testing.T) {
	stream := NewStreamEmitter()
	stream.Emit(ConfigUpdated{OldHash: "0x1", NewHash: "0x2", Seqno: 0})
	stream.Emit(ConfigUpdated{OldHash: "0x2", NewHash: "0x3", Seqno: 1})

	_, cancel, backlog, err := stream.Subscribe(context.Background(), "1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 1 {
		t.Fatalf("expected 1 backlog entry after cursor 1, got %d", len(backlog))
	}
	if backlog[0].Cursor != "2" {
		t.Fatalf("unexpected backlog cursor %q", backlog[0].Cursor)
	}
	if got := backlog[0].Event.Attributes["newHash"]; got != "0x3" {
		t.Fatalf("unexpected backlog event attribute %q", got)
	}
}

func TestStreamEmitterIgnoresNonBroadcastableEvents(t *testing.T) {
	stream := NewStreamEmitter()
	stream.Emit(plainEvent{})

	_, cancel, backlog, err := stream.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 0 {
		t.Fatalf("expected no backlog for non-broadcastable event, got %d", len(backlog))
	}
}

func TestStreamEmitterCancelClosesChannel(t *testing.T) {
	stream := NewStreamEmitter()
	updates, cancel, _, err := stream.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
