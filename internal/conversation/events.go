package conversation

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
)

// TurnEvent pairs a conversation with one message persisted in it.
// The manager publishes an event for every message it writes, in the
// order the messages were persisted.
type TurnEvent struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Message        models.Message `json:"message"`
}

// TurnSubscription receives turn events on C until Close is called.
type TurnSubscription struct {
	C <-chan TurnEvent

	hub *turnHub
	id  uint64
}

// Close detaches the subscription. Safe to call more than once.
func (s *TurnSubscription) Close() {
	s.hub.unsubscribe(s.id)
}

type turnSub struct {
	conversationID uuid.UUID // uuid.Nil matches every conversation
	ch             chan TurnEvent
	dropped        int
}

// turnHub fans turn events out to subscribers. Delivery is best
// effort: a subscriber that stops draining its channel loses events
// rather than stalling appends.
type turnHub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*turnSub
}

func newTurnHub() *turnHub {
	return &turnHub{subs: make(map[uint64]*turnSub)}
}

func (h *turnHub) subscribe(conversationID uuid.UUID) *TurnSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	sub := &turnSub{conversationID: conversationID, ch: make(chan TurnEvent, 64)}
	h.subs[id] = sub
	return &TurnSubscription{C: sub.ch, hub: h, id: id}
}

func (h *turnHub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *turnHub) publish(ev TurnEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.conversationID != uuid.Nil && sub.conversationID != ev.ConversationID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				slog.Warn("turn subscriber too slow, dropping events",
					"conversation_id", sub.conversationID,
					"dropped", sub.dropped,
				)
			}
		}
	}
}
