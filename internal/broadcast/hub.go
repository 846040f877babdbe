package broadcast

import (
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/metrics"
)

// subscriberBuffer is the per-subscriber frame buffer. A subscriber that
// falls this far behind is treated as a failed stream and removed.
const subscriberBuffer = 32

// Subscriber is one connected viewer of the live channel.
type Subscriber struct {
	ID     string
	Frames chan []byte

	hub  *Hub
	once sync.Once
}

// Close removes the subscriber from the hub and closes its frame channel.
// Safe to call more than once; also invoked by the hub on write failure.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.remove(s.ID)
		close(s.Frames)
	})
}

// Hub fans out frames to all connected viewers. There is no persistence and
// no replay: a viewer that connects after a broadcast missed it and relies on
// the next full read.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
	log  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]*Subscriber),
		log:  config.GetLogger(),
	}
}

// Register adds a new subscriber and returns it. The caller must Close the
// subscriber when its stream ends.
func (h *Hub) Register() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Frames: make(chan []byte, subscriberBuffer),
		hub:    h,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(total))
	h.log.Debug().Str("subscriber", sub.ID).Int("total", total).Msg("Live channel subscriber connected")
	return sub
}

// Broadcast serializes one frame and delivers it to every subscriber. A
// subscriber whose buffer is full counts as a failed write and is removed.
func (h *Hub) Broadcast(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to serialize broadcast frame")
		return
	}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var stalled []*Subscriber
	for _, sub := range targets {
		select {
		case sub.Frames <- data:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		h.log.Warn().Str("subscriber", sub.ID).Msg("Dropping stalled live channel subscriber")
		sub.Close()
	}

	metrics.BroadcastFramesTotal.Inc()
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	total := len(h.subs)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(total))
}
