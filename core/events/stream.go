package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"royaltysplit/core/types"
)

const streamHistoryLimit = 1024

// StreamUpdate is one vault receipt handed to a realtime subscriber, tagged
// with a resumable cursor.
type StreamUpdate struct {
	Sequence uint64
	Cursor   string
	Event    *types.Event
}

func cloneStreamUpdate(update StreamUpdate) StreamUpdate {
	cloned := update
	if update.Event != nil {
		attrs := make(map[string]string, len(update.Event.Attributes))
		for key, value := range update.Event.Attributes {
			attrs[key] = value
		}
		cloned.Event = &types.Event{Type: update.Event.Type, Attributes: attrs}
	}
	return cloned
}

// StreamEmitter fans vault receipts out to realtime subscribers. A bounded
// history lets a reconnecting subscriber resume from its last cursor instead
// of missing receipts emitted while it was away.
type StreamEmitter struct {
	mu      sync.Mutex
	subs    map[uint64]chan StreamUpdate
	nextID  uint64
	seq     uint64
	history []StreamUpdate
}

// NewStreamEmitter constructs an empty receipt stream hub.
func NewStreamEmitter() *StreamEmitter {
	return &StreamEmitter{subs: make(map[uint64]chan StreamUpdate)}
}

// Emit implements the Emitter interface. Events that cannot be converted to a
// broadcastable record are dropped. A slow subscriber misses updates rather
// than block the emitting operation.
func (s *StreamEmitter) Emit(evt Event) {
	if s == nil || evt == nil {
		return
	}
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan StreamUpdate)
	}
	s.seq++
	update := StreamUpdate{
		Sequence: s.seq,
		Cursor:   strconv.FormatUint(s.seq, 10),
		Event:    event,
	}
	s.history = append(s.history, cloneStreamUpdate(update))
	if len(s.history) > streamHistoryLimit {
		excess := len(s.history) - streamHistoryLimit
		trimmed := make([]StreamUpdate, streamHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	subscribers := make([]chan StreamUpdate, 0, len(s.subs))
	for _, ch := range s.subs {
		subscribers = append(subscribers, ch)
	}
	s.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneStreamUpdate(update):
		default:
		}
	}
}

// Subscribe registers a receipt subscriber resuming after the supplied cursor.
// The returned cancel function detaches the subscriber and closes its channel;
// it also fires when ctx is done.
func (s *StreamEmitter) Subscribe(ctx context.Context, cursor string) (<-chan StreamUpdate, func(), []StreamUpdate, error) {
	if s == nil {
		return nil, nil, nil, fmt.Errorf("events: stream not initialised")
	}
	updates := make(chan StreamUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan StreamUpdate)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	history := make([]StreamUpdate, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	backlog := make([]StreamUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneStreamUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			sub, ok := s.subs[id]
			if ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
