package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	flushInterval = 5 * time.Second
	flushBatch    = 50
)

// PGHandler is an slog.Handler that persists ERROR+ records into the
// system_logs table in batches, so a therapist or operator can pull a
// conversation's failures after the fact.
type PGHandler struct {
	db       *gorm.DB
	mu       sync.Mutex
	buffer   []models.SystemLog
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func NewPGHandler(db *gorm.DB) *PGHandler {
	h := &PGHandler{
		db:     db,
		buffer: make([]models.SystemLog, 0, flushBatch),
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
	}
	go h.flushLoop()
	return h
}

func (h *PGHandler) flushLoop() {
	for {
		select {
		case <-h.ticker.C:
			h.flush()
		case <-h.done:
			h.flush()
			return
		}
	}
}

func (h *PGHandler) flush() {
	h.mu.Lock()
	if len(h.buffer) == 0 {
		h.mu.Unlock()
		return
	}
	batch := h.buffer
	h.buffer = make([]models.SystemLog, 0, flushBatch)
	h.mu.Unlock()

	if err := h.db.CreateInBatches(batch, flushBatch).Error; err != nil {
		slog.Warn("dropping system log batch, insert failed", "error", err, "count", len(batch))
	}
}

// Stop drains the buffer and halts the flush loop. Safe to call twice,
// shutdown paths overlap.
func (h *PGHandler) Stop() {
	h.stopOnce.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}

// Enabled only handles ERROR and above. Lower levels stay on stdout.
func (h *PGHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *PGHandler) Handle(_ context.Context, record slog.Record) error {
	entry := rowFromRecord(record)

	h.mu.Lock()
	h.buffer = append(h.buffer, entry)
	full := len(h.buffer) >= flushBatch
	h.mu.Unlock()

	if full {
		go h.flush()
	}
	return nil
}

// rowFromRecord lifts the attrs the schema indexes into their own
// columns and folds the rest into the extra blob.
func rowFromRecord(record slog.Record) models.SystemLog {
	entry := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}

	extra := make(map[string]any)
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "trace_id":
			entry.TraceID = a.Value.String()
		case "conversation_id":
			s := a.Value.String()
			entry.ConversationID = &s
		case "user_id":
			s := a.Value.String()
			entry.UserID = &s
		case "action":
			entry.Action = a.Value.String()
		case "error":
			entry.Error = a.Value.String()
		case "latency_ms":
			switch v := a.Value.Any().(type) {
			case float64:
				entry.LatencyMs = int(math.Round(v))
			case int64:
				entry.LatencyMs = int(v)
			}
		default:
			extra[a.Key] = a.Value.Any()
		}
		return true
	})

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}
	return entry
}

func (h *PGHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *PGHandler) WithGroup(name string) slog.Handler { return h }
