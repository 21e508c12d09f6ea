package store

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Op is the kind of row change carried by an Event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is a single row change on a table. Row holds the JSON encoding
// of the affected row, for both locally produced and mirrored events.
type Event struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	Row   json.RawMessage `json:"row"`
}

// Decode unmarshals the row payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Row, v)
}

// Filter restricts a subscription to rows whose named column equals a
// value. Column names are the JSON field names of the row payload.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter; value is compared by its JSON encoding.
func Eq(column string, value any) Filter {
	b, _ := json.Marshal(value)
	return Filter{Column: column, Value: string(b)}
}

// Subscription is a live event stream. Consumers read C until Close.
// Delivery is best-effort: events that arrive while the buffer is full
// are dropped rather than blocking writers.
type Subscription struct {
	C <-chan Event

	feed *Feed
	id   uint64
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.feed.unsubscribe(s.id)
}

type subscriber struct {
	table   string
	filters []Filter
	ch      chan Event
	dropped int
}

// Feed fans row change events out to table subscriptions. The store
// publishes after each committed write; a Mirror can republish events
// from other instances into the same feed.
type Feed struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscriber
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*subscriber)}
}

// Subscribe returns a stream of events for one table, optionally
// narrowed by equality filters on row fields.
func (f *Feed) Subscribe(table string, filters ...Filter) *Subscription {
	ch := make(chan Event, 64)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = &subscriber{table: table, filters: filters, ch: ch}
	f.mu.Unlock()
	return &Subscription{C: ch, feed: f, id: id}
}

func (f *Feed) unsubscribe(id uint64) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
	}
	f.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish delivers ev to every matching subscription without blocking.
func (f *Feed) Publish(ev Event) {
	var fields map[string]json.RawMessage

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.table != ev.Table {
			continue
		}
		if len(sub.filters) > 0 {
			if fields == nil {
				if err := json.Unmarshal(ev.Row, &fields); err != nil {
					slog.Warn("event row not decodable, skipping filtered delivery", "table", ev.Table, "error", err)
					continue
				}
			}
			if !matches(sub.filters, fields) {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				slog.Warn("slow event subscriber, dropping", "table", sub.table, "dropped", sub.dropped)
			}
		}
	}
}

func matches(filters []Filter, fields map[string]json.RawMessage) bool {
	for _, f := range filters {
		raw, ok := fields[f.Column]
		if !ok || string(raw) != f.Value {
			return false
		}
	}
	return true
}
