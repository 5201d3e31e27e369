// Package events provides an SSE event broadcaster for engine progress.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/photosweep/photosweep/internal/metrics"
)

const (
	EventSessionStart  = "session_start"
	EventPriorityReady = "priority_ready"
	EventBatchProgress = "batch_progress"
	EventLoadComplete  = "load_complete"
	EventTrim          = "trim"
	EventScopeComplete = "scope_complete"
	EventCommit        = "commit"
	EventEnd           = "end"
)

// Event represents an engine progress event.
type Event struct {
	Type      string `json:"type"`
	Session   int64  `json:"session,omitempty"`
	ScopeKey  string `json:"scope_key,omitempty"`
	Loaded    int    `json:"loaded,omitempty"`
	Total     int    `json:"total,omitempty"`
	Demoted   int    `json:"demoted,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	Success   bool   `json:"success,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster manages SSE subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetEventSubscribers(int64(b.Count()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
	metrics.SetEventSubscribers(int64(b.Count()))
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordEventPublished(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
