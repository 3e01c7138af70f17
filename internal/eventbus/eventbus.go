// Package eventbus implements the abstract push channel (spec §4.6,
// component C7): an in-process publish/subscribe core plus a
// websocket-backed relay to browser clients.
package eventbus

import "sync"

// Kind names one of the four event kinds the bus carries.
type Kind string

const (
	KindClap             Kind = "clap"
	KindLabels           Kind = "labels"
	KindDetectionStatus  Kind = "detection_status"
	KindDebug            Kind = "debug"
)

// Event is one envelope published on the bus. Payload is marshaled as
// the JSON "data" field alongside Kind, matching the wire shape a
// browser client expects to switch on.
type Event struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"data"`
}

// ClapPayload backs a KindClap event.
type ClapPayload struct {
	SourceID  string  `json:"source_id"`
	Timestamp int64   `json:"timestamp"`
	Score     float64 `json:"score"`
}

// DetectedLabel is one entry in a LabelsPayload.
type DetectedLabel struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// LabelsPayload backs a KindLabels event.
type LabelsPayload struct {
	Source   string          `json:"source"`
	Detected []DetectedLabel `json:"detected"`
}

// DetectionStatusPayload backs a KindDetectionStatus event.
type DetectionStatusPayload struct {
	Status string `json:"status"` // "started" or "stopped"
}

// subscriberBuffer bounds how many pending events a slow subscriber
// tolerates before Publish starts dropping for it; delivery is
// best-effort (spec §4.6: "never blocks the publisher").
const subscriberBuffer = 32

// Hub is an in-memory fan-out publish/subscribe core. The zero value
// is not usable; create one with New.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{subscribers: make(map[int]chan Event)}
}

// Subscription is a handle returned by Subscribe. Callers must call
// Close when done to release the subscriber slot.
type Subscription struct {
	id  int
	hub *Hub
	ch  chan Event
}

// Channel returns the channel events are delivered on.
func (s *Subscription) Channel() <-chan Event { return s.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if ch, ok := s.hub.subscribers[s.id]; ok {
		close(ch)
		delete(s.hub.subscribers, s.id)
	}
}

// Subscribe registers a new subscriber and returns its Subscription.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subscribers[id] = ch
	return &Subscription{id: id, hub: h, ch: ch}
}

// Publish fans event out to every current subscriber. A subscriber
// whose buffer is full has this event dropped for it rather than
// blocking the publisher or other subscribers.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishClap is a convenience wrapper for the clap event kind.
func (h *Hub) PublishClap(payload ClapPayload) {
	h.Publish(Event{Kind: KindClap, Payload: payload})
}

// PublishLabels is a convenience wrapper for the labels event kind.
func (h *Hub) PublishLabels(payload LabelsPayload) {
	h.Publish(Event{Kind: KindLabels, Payload: payload})
}

// PublishDetectionStatus is a convenience wrapper for the
// detection_status event kind.
func (h *Hub) PublishDetectionStatus(status string) {
	h.Publish(Event{Kind: KindDetectionStatus, Payload: DetectionStatusPayload{Status: status}})
}

// PublishDebug is a convenience wrapper for the debug event kind.
func (h *Hub) PublishDebug(payload any) {
	h.Publish(Event{Kind: KindDebug, Payload: payload})
}
