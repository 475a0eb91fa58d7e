// Package trace provides operation visibility for the decision pipeline.
// This file implements the event bus for collecting and dispatching events.
package trace

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Bus collects events from the pipeline stages and dispatches to subscribers.
// It uses batching to reduce consumer churn and sequence numbers for ordering.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
	enabled     atomic.Bool

	// Batching configuration
	batchWindow time.Duration // Time window for collecting events before dispatch
	batchLimit  int           // Max events per batch

	// Event buffer for batching
	buffer     []Event
	bufferMu   sync.Mutex
	flushTimer *time.Timer

	// Temporal ordering
	sequence atomic.Uint64

	// Filtering
	stages map[Stage]bool // Empty means all allowed
}

// NewBus creates a new event bus with default settings.
func NewBus() *Bus {
	return &Bus{
		batchWindow: 100 * time.Millisecond,
		batchLimit:  10,
		buffer:      make([]Event, 0, 20),
		stages:      make(map[Stage]bool),
	}
}

// Enable activates the event bus.
func (b *Bus) Enable() {
	b.enabled.Store(true)
}

// Disable deactivates the event bus and flushes pending events.
func (b *Bus) Disable() {
	b.enabled.Store(false)
	b.Flush()
}

// IsEnabled returns true if the event bus is active.
func (b *Bus) IsEnabled() bool {
	return b.enabled.Load()
}

// SetStages sets the allowed stages. Empty slice means all allowed.
func (b *Bus) SetStages(stages []Stage) {
	b.mu.Lock()
	b.stages = make(map[Stage]bool)
	for _, s := range stages {
		b.stages[s] = true
	}
	b.mu.Unlock()
}

// Subscribe returns a channel that will receive events.
// The channel is buffered to prevent blocking emitters.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 50)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if reflect.ValueOf(sub).Pointer() == target {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

// Emit sends an event to all subscribers (with batching).
// This is safe to call from any goroutine.
func (b *Bus) Emit(event Event) {
	if !b.enabled.Load() {
		return
	}

	b.mu.RLock()
	if len(b.stages) > 0 && !b.stages[event.Stage] {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	// Assign sequence number for ordering
	event.ID = b.sequence.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.bufferMu.Lock()
	b.buffer = append(b.buffer, event)

	// Flush if batch limit reached, else start timer
	if len(b.buffer) >= b.batchLimit {
		b.flushLocked()
	} else if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.batchWindow, func() {
			b.bufferMu.Lock()
			b.flushLocked()
			b.bufferMu.Unlock()
		})
	}
	b.bufferMu.Unlock()
}

// EmitImmediate sends an event immediately without batching.
// Use for high-priority events such as safety blocks.
func (b *Bus) EmitImmediate(event Event) {
	if !b.enabled.Load() {
		return
	}

	b.mu.RLock()
	if len(b.stages) > 0 && !b.stages[event.Stage] {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	event.ID = b.sequence.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default: // Drop if channel full
		}
	}
	b.mu.RUnlock()
}

// Flush dispatches all buffered events immediately.
func (b *Bus) Flush() {
	b.bufferMu.Lock()
	b.flushLocked()
	b.bufferMu.Unlock()
}

// flushLocked sends buffered events (must hold bufferMu).
func (b *Bus) flushLocked() {
	if len(b.buffer) == 0 {
		return
	}

	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}

	sort.Slice(b.buffer, func(i, j int) bool {
		return b.buffer[i].ID < b.buffer[j].ID
	})

	b.mu.RLock()
	for _, sub := range b.subscribers {
		for _, event := range b.buffer {
			select {
			case sub <- event:
			default: // Drop if channel full
			}
		}
	}
	b.mu.RUnlock()

	b.buffer = b.buffer[:0]
}

// ClearConversation removes buffered events from a specific conversation.
func (b *Bus) ClearConversation(conversationID string) {
	b.bufferMu.Lock()
	defer b.bufferMu.Unlock()

	filtered := b.buffer[:0]
	for _, e := range b.buffer {
		if e.ConversationID != conversationID {
			filtered = append(filtered, e)
		}
	}
	b.buffer = filtered
}

// Close shuts down the event bus and all subscriber channels.
func (b *Bus) Close() {
	b.Disable()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}

// Stats returns current event bus statistics.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	b.bufferMu.Lock()
	defer b.bufferMu.Unlock()
	defer b.mu.RUnlock()

	return BusStats{
		Enabled:         b.enabled.Load(),
		SubscriberCount: len(b.subscribers),
		BufferedEvents:  len(b.buffer),
		TotalEmitted:    b.sequence.Load(),
		StageCount:      len(b.stages),
	}
}

// BusStats holds event bus statistics.
type BusStats struct {
	Enabled         bool
	SubscriberCount int
	BufferedEvents  int
	TotalEmitted    uint64
	StageCount      int
}
