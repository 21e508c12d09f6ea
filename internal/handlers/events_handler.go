package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gvargas9/smartterapist/internal/store"
)

type EventsHandler struct {
	store *store.Store
}

func NewEventsHandler(st *store.Store) *EventsHandler {
	return &EventsHandler{store: st}
}

// Stream pushes row change events for one table over a websocket,
// optionally narrowed by a column equality filter. Events mirrored
// from other instances arrive on the same stream.
func (h *EventsHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		table := conn.Query("table", store.TableMessages)
		var filters []store.Filter
		if col := conn.Query("column"); col != "" {
			filters = append(filters, store.Eq(col, conn.Query("value")))
		}
		sub := h.store.Subscribe(table, filters...)
		defer sub.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}
