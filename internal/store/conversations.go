package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"gorm.io/gorm"
)

// ---- conversations ----

func (s *Store) CreateConversation(ctx context.Context, clientID uuid.UUID, therapistID *uuid.UUID) (*models.Conversation, error) {
	const op = "store.create_conversation"
	if _, err := s.GetClient(ctx, clientID); err != nil {
		if IsNotFound(err) {
			return nil, E(op, KindInvalid, errors.New("client does not exist"))
		}
		return nil, err
	}
	if therapistID != nil {
		if _, err := s.GetTherapist(ctx, *therapistID); err != nil {
			if IsNotFound(err) {
				return nil, E(op, KindInvalid, errors.New("therapist does not exist"))
			}
			return nil, err
		}
	}
	conv := &models.Conversation{
		ID:          uuid.New(),
		ClientID:    clientID,
		TherapistID: therapistID,
		StartTS:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, classify(op, err)
	}
	s.emit(ctx, TableConversations, OpInsert, conv)
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_conversation", err)
	}
	return &conv, nil
}

// GetOpenConversation returns the client's open conversation, or nil
// when the client has none. Callers use it to resume instead of
// opening a second thread.
func (s *Store) GetOpenConversation(ctx context.Context, clientID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND end_ts IS NULL", clientID).
		Order("start_ts DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("store.get_open_conversation", err)
	}
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	q := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("start_ts DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var convs []models.Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, classify("store.list_conversations", err)
	}
	return convs, nil
}

// CloseConversation stamps end_ts exactly once. Closing an already
// closed conversation fails with a Conflict. The end timestamp never
// precedes the newest message.
func (s *Store) CloseConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	const op = "store.close_conversation"
	var closed *models.Conversation
	err := s.Transaction(ctx, func(tx *Store) error {
		conv, err := tx.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		if conv.EndTS != nil {
			return E(op, KindConflict, ErrConversationClosed)
		}
		end := time.Now().UTC()
		if last, ok := tx.newestMessageTS(ctx, id); ok && last.After(end) {
			end = last
		}
		if end.Before(conv.StartTS) {
			end = conv.StartTS
		}
		conv.EndTS = &end
		if err := tx.db.WithContext(ctx).Save(conv).Error; err != nil {
			return classify(op, err)
		}
		tx.emit(ctx, TableConversations, OpUpdate, conv)
		closed = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// DeleteConversation removes the conversation with its messages and
// summary in one transaction.
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	const op = "store.delete_conversation"
	return s.Transaction(ctx, func(tx *Store) error {
		conv, err := tx.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Where("conversation_id = ?", id).Delete(&models.Summary{}).Error; err != nil {
			return classify(op, err)
		}
		if err := tx.db.WithContext(ctx).Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return classify(op, err)
		}
		if err := tx.db.WithContext(ctx).Delete(&models.Conversation{}, "id = ?", id).Error; err != nil {
			return classify(op, err)
		}
		tx.emit(ctx, TableConversations, OpDelete, conv)
		return nil
	})
}

// ---- messages ----

func validSender(sender string) bool {
	switch sender {
	case models.SenderUser, models.SenderAI, models.SenderTherapist, models.SenderSystem:
		return true
	}
	return false
}

// AppendMessage persists one turn. The store assigns the id and a
// strictly increasing per-conversation timestamp; the caller fills
// everything else. Appending to a closed conversation is a Conflict.
func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	const op = "store.append_message"
	if !validSender(m.Sender) {
		return E(op, KindInvalid, ErrUnknownSender)
	}
	if m.Text == "" && m.AudioURL == "" {
		return E(op, KindInvalid, ErrEmptyMessage)
	}
	if m.SentimentScore != nil && (*m.SentimentScore < 0 || *m.SentimentScore > 1) {
		return E(op, KindInvalid, errors.New("sentiment score out of range"))
	}

	err := s.Transaction(ctx, func(tx *Store) error {
		conv, err := tx.GetConversation(ctx, m.ConversationID)
		if err != nil {
			return err
		}
		if conv.EndTS != nil {
			return E(op, KindConflict, ErrConversationClosed)
		}
		m.ID = uuid.New()
		m.Timestamp = tx.nextMessageTS(ctx, conv)
		if err := tx.db.WithContext(ctx).Create(m).Error; err != nil {
			return classify(op, err)
		}
		tx.emit(ctx, TableMessages, OpInsert, m)
		return nil
	})
	if err != nil {
		return err
	}
	s.lastTS.Store(m.ConversationID, m.Timestamp)
	return nil
}

// nextMessageTS hands out the next message timestamp for a
// conversation: wall clock, clamped to the conversation start and
// bumped a microsecond past the newest known message on ties.
func (s *Store) nextMessageTS(ctx context.Context, conv *models.Conversation) time.Time {
	now := time.Now().UTC()
	if now.Before(conv.StartTS) {
		now = conv.StartTS
	}
	last, ok := s.lastTS.Load(conv.ID)
	if ok {
		if t := last.(time.Time); !now.After(t) {
			now = t.Add(time.Microsecond)
		}
		return now
	}
	if t, ok := s.newestMessageTS(ctx, conv.ID); ok && !now.After(t) {
		now = t.Add(time.Microsecond)
	}
	return now
}

func (s *Store) newestMessageTS(ctx context.Context, conversationID uuid.UUID) (time.Time, bool) {
	row := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Select("MAX(timestamp)").Row()
	var nt sql.NullTime
	if err := row.Scan(&nt); err != nil || !nt.Valid {
		return time.Time{}, false
	}
	return nt.Time.UTC(), true
}

// ListMessages returns every message of a conversation in timestamp
// order, ties broken by id.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, classify("store.list_messages", err)
	}
	return msgs, nil
}

// ListMessagesAfter returns messages with timestamp in [after, ∞),
// oldest first, for incremental replay. limit <= 0 means no limit.
func (s *Store) ListMessagesAfter(ctx context.Context, conversationID uuid.UUID, after time.Time, limit int) ([]models.Message, error) {
	q := s.db.WithContext(ctx).
		Where("conversation_id = ? AND timestamp >= ?", conversationID, after).
		Order("timestamp ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, classify("store.list_messages_after", err)
	}
	return msgs, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	if err != nil {
		return 0, classify("store.count_messages", err)
	}
	return n, nil
}

// ---- summaries ----

// UpsertSummary writes the digest for a conversation, replacing any
// previous one in place. Concurrent first-time upserts may collide on
// the unique conversation key; callers retry per the usual Conflict
// policy and land on the update path.
func (s *Store) UpsertSummary(ctx context.Context, sum *models.Summary) error {
	const op = "store.upsert_summary"
	return s.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.GetConversation(ctx, sum.ConversationID); err != nil {
			return err
		}
		var existing models.Summary
		err := tx.db.WithContext(ctx).First(&existing, "conversation_id = ?", sum.ConversationID).Error
		switch {
		case err == nil:
			sum.ID = existing.ID
			sum.CreatedAt = existing.CreatedAt
			if err := tx.db.WithContext(ctx).Save(sum).Error; err != nil {
				return classify(op, err)
			}
			tx.emit(ctx, TableSummaries, OpUpdate, sum)
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			if sum.ID == uuid.Nil {
				sum.ID = uuid.New()
			}
			if err := tx.db.WithContext(ctx).Create(sum).Error; err != nil {
				return classify(op, err)
			}
			tx.emit(ctx, TableSummaries, OpInsert, sum)
			return nil
		default:
			return classify(op, err)
		}
	})
}

func (s *Store) GetSummary(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	var sum models.Summary
	if err := s.db.WithContext(ctx).First(&sum, "conversation_id = ?", conversationID).Error; err != nil {
		return nil, classify("store.get_summary", err)
	}
	return &sum, nil
}
