package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
)

func validSessionType(t string) bool {
	switch t {
	case models.SessionTypeInitial, models.SessionTypeFollowUp, models.SessionTypeEmergency, models.SessionTypeGroup:
		return true
	}
	return false
}

func validSessionStatus(s string) bool {
	switch s {
	case models.SessionStatusScheduled, models.SessionStatusInProgress, models.SessionStatusCompleted, models.SessionStatusCancelled:
		return true
	}
	return false
}

// ---- therapy sessions ----

func (s *Store) CreateTherapySession(ctx context.Context, ts *models.TherapySession) error {
	const op = "store.create_therapy_session"
	if !validSessionType(ts.SessionType) {
		return E(op, KindInvalid, errors.New("unknown session type "+ts.SessionType))
	}
	if !ts.ScheduledEnd.After(ts.ScheduledStart) {
		return E(op, KindInvalid, errors.New("scheduled end must follow scheduled start"))
	}
	if _, err := s.GetClient(ctx, ts.ClientID); err != nil {
		if IsNotFound(err) {
			return E(op, KindInvalid, errors.New("client does not exist"))
		}
		return err
	}
	if _, err := s.GetTherapist(ctx, ts.TherapistID); err != nil {
		if IsNotFound(err) {
			return E(op, KindInvalid, errors.New("therapist does not exist"))
		}
		return err
	}
	if ts.Status == "" {
		ts.Status = models.SessionStatusScheduled
	}
	if !validSessionStatus(ts.Status) {
		return E(op, KindInvalid, errors.New("unknown session status "+ts.Status))
	}
	if ts.ID == uuid.Nil {
		ts.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(ts).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableTherapySessions, OpInsert, ts)
	return nil
}

func (s *Store) GetTherapySession(ctx context.Context, id uuid.UUID) (*models.TherapySession, error) {
	var ts models.TherapySession
	if err := s.db.WithContext(ctx).First(&ts, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_therapy_session", err)
	}
	return &ts, nil
}

// SessionFilter narrows ListTherapySessions. Nil and zero fields are
// ignored; From/To bound scheduled_start as a half-open [From, To).
type SessionFilter struct {
	ClientID    *uuid.UUID
	TherapistID *uuid.UUID
	Status      string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

func (s *Store) ListTherapySessions(ctx context.Context, f SessionFilter) ([]models.TherapySession, error) {
	q := s.db.WithContext(ctx).Model(&models.TherapySession{}).Order("scheduled_start ASC, id ASC")
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	if f.TherapistID != nil {
		q = q.Where("therapist_id = ?", *f.TherapistID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("scheduled_start >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("scheduled_start < ?", *f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var sessions []models.TherapySession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, classify("store.list_therapy_sessions", err)
	}
	return sessions, nil
}

func (s *Store) UpdateTherapySession(ctx context.Context, ts *models.TherapySession) error {
	const op = "store.update_therapy_session"
	existing, err := s.GetTherapySession(ctx, ts.ID)
	if err != nil {
		return err
	}
	if ts.ClientID != existing.ClientID || ts.TherapistID != existing.TherapistID {
		return E(op, KindInvalid, errors.New("session participants are immutable"))
	}
	if !validSessionStatus(ts.Status) {
		return E(op, KindInvalid, errors.New("unknown session status "+ts.Status))
	}
	ts.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(ts).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableTherapySessions, OpUpdate, ts)
	return nil
}

func (s *Store) DeleteTherapySession(ctx context.Context, id uuid.UUID) error {
	ts, err := s.GetTherapySession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.TherapySession{}, "id = ?", id).Error; err != nil {
		return classify("store.delete_therapy_session", err)
	}
	s.emit(ctx, TableTherapySessions, OpDelete, ts)
	return nil
}

// ---- direct messages ----

func (s *Store) CreateDirectMessage(ctx context.Context, dm *models.DirectMessage) error {
	const op = "store.create_direct_message"
	if dm.Content == "" {
		return E(op, KindInvalid, errors.New("content is required"))
	}
	if dm.SenderID == dm.RecipientID {
		return E(op, KindInvalid, errors.New("sender and recipient must differ"))
	}
	for _, id := range []uuid.UUID{dm.SenderID, dm.RecipientID} {
		if _, err := s.GetUser(ctx, id); err != nil {
			if IsNotFound(err) {
				return E(op, KindInvalid, errors.New("user does not exist"))
			}
			return err
		}
	}
	if dm.ID == uuid.Nil {
		dm.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(dm).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableDirectMessages, OpInsert, dm)
	return nil
}

// ListDirectMessages returns the mail between two users in either
// direction, newest first.
func (s *Store) ListDirectMessages(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]models.DirectMessage, error) {
	q := s.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var dms []models.DirectMessage
	if err := q.Find(&dms).Error; err != nil {
		return nil, classify("store.list_direct_messages", err)
	}
	return dms, nil
}

func (s *Store) GetDirectMessage(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	var dm models.DirectMessage
	if err := s.db.WithContext(ctx).First(&dm, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_direct_message", err)
	}
	return &dm, nil
}

func (s *Store) MarkDirectMessageRead(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	const op = "store.mark_direct_message_read"
	var dm models.DirectMessage
	if err := s.db.WithContext(ctx).First(&dm, "id = ?", id).Error; err != nil {
		return nil, classify(op, err)
	}
	if dm.Read {
		return &dm, nil
	}
	dm.Read = true
	if err := s.db.WithContext(ctx).Save(&dm).Error; err != nil {
		return nil, classify(op, err)
	}
	s.emit(ctx, TableDirectMessages, OpUpdate, &dm)
	return &dm, nil
}

func (s *Store) CountUnreadDirectMessages(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.DirectMessage{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&n).Error
	if err != nil {
		return 0, classify("store.count_unread_direct_messages", err)
	}
	return n, nil
}
