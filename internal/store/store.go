package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Table names, shared between the schema, the event feed and the
// realtime API surface.
const (
	TableUsers           = "users"
	TableClients         = "clients"
	TableTherapists      = "therapists"
	TableTherapySessions = "therapy_sessions"
	TableConversations   = "conversations"
	TableMessages        = "messages"
	TableBehaviors       = "behaviors"
	TableClientBehaviors = "client_behaviors"
	TableSummaries       = "summaries"
	TableDirectMessages  = "direct_messages"
)

// Store is the persistence gateway. All reads and writes of the data
// model go through it; every committed write is fanned out on the event
// feed. Callers never build SQL of their own.
type Store struct {
	db     *gorm.DB
	feed   *Feed
	mirror *Mirror

	// pending buffers events inside a transaction so subscribers only
	// ever observe committed rows.
	pending *[]Event

	// lastTS tracks the newest message timestamp handed out per
	// conversation, keeping per-conversation timestamps strictly
	// increasing even when the wall clock stalls.
	lastTS *sync.Map
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, feed: NewFeed(), lastTS: &sync.Map{}}
}

// EnableMirror wires a Redis-backed event mirror into the store. The
// returned Mirror must be Run to receive remote events.
func (s *Store) EnableMirror(rdb *redis.Client) *Mirror {
	s.mirror = NewMirror(rdb, s.feed)
	return s.mirror
}

// Subscribe streams committed row changes for one table, optionally
// narrowed by equality filters on the row's JSON fields. Bulk cascade
// deletes fan out events for the rows the operation loaded, not for
// every grandchild row.
func (s *Store) Subscribe(table string, filters ...Filter) *Subscription {
	return s.feed.Subscribe(table, filters...)
}

// Transaction runs fn against a transactional store. Events emitted
// inside fn are held back and published only after the outermost
// transaction commits; nested transactions hand their events up.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		tx := &Store{db: txdb, feed: s.feed, mirror: s.mirror, pending: &events, lastTS: s.lastTS}
		return fn(tx)
	})
	if err != nil {
		return classify("store.transaction", err)
	}
	if s.pending != nil {
		*s.pending = append(*s.pending, events...)
		return nil
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return nil
}

func (s *Store) emit(ctx context.Context, table string, op Op, row any) {
	b, err := json.Marshal(row)
	if err != nil {
		slog.Warn("row not encodable for event feed", "table", table, "error", err)
		return
	}
	ev := Event{Table: table, Op: op, Row: b}
	if s.pending != nil {
		*s.pending = append(*s.pending, ev)
		return
	}
	s.publish(ctx, ev)
}

func (s *Store) publish(ctx context.Context, ev Event) {
	s.feed.Publish(ev)
	if s.mirror != nil {
		s.mirror.Forward(ctx, ev)
	}
}

// ---- users ----

func validRole(role string) bool {
	switch role {
	case models.RoleClient, models.RoleTherapist, models.RoleAdmin:
		return true
	}
	return false
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	const op = "store.create_user"
	if u.Email == "" {
		return E(op, KindInvalid, errors.New("email is required"))
	}
	if !validRole(u.Role) {
		return E(op, KindInvalid, errors.New("unknown role "+u.Role))
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableUsers, OpInsert, u)
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_user", err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, classify("store.get_user_by_email", err)
	}
	return &u, nil
}

// ListUsers returns users ordered by creation time, optionally filtered
// by role. limit <= 0 means no limit.
func (s *Store) ListUsers(ctx context.Context, role string, limit, offset int) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Order("created_at ASC, id ASC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, classify("store.list_users", err)
	}
	return users, nil
}

func (s *Store) CountUsers(ctx context.Context, role string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, classify("store.count_users", err)
	}
	return n, nil
}

// UpdateUser saves mutable user fields. Role is fixed for the lifetime
// of an id; a role change is a delete and recreate.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	const op = "store.update_user"
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if u.Role != existing.Role {
		return E(op, KindInvalid, errors.New("role is immutable"))
	}
	u.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableUsers, OpUpdate, u)
	return nil
}

// DeleteUser removes a user and everything hanging off it: the client
// or therapist profile with its own cascade, presets the user created,
// and direct mail either sent or received.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *Store) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}

		switch u.Role {
		case models.RoleClient:
			var c models.Client
			err := tx.db.WithContext(ctx).First(&c, "user_id = ?", id).Error
			if err == nil {
				if err := tx.deleteClientCascade(ctx, &c); err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return classify("store.delete_user", err)
			}
		case models.RoleTherapist:
			var t models.Therapist
			err := tx.db.WithContext(ctx).First(&t, "user_id = ?", id).Error
			if err == nil {
				if err := tx.deleteTherapistCascade(ctx, &t); err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return classify("store.delete_user", err)
			}
		}

		var created []models.Behavior
		if err := tx.db.WithContext(ctx).Where("created_by = ?", id).Find(&created).Error; err != nil {
			return classify("store.delete_user", err)
		}
		for i := range created {
			if err := tx.deleteBehaviorCascade(ctx, &created[i]); err != nil {
				return err
			}
		}

		if err := tx.db.WithContext(ctx).
			Where("sender_id = ? OR recipient_id = ?", id, id).
			Delete(&models.DirectMessage{}).Error; err != nil {
			return classify("store.delete_user", err)
		}

		if err := tx.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error; err != nil {
			return classify("store.delete_user", err)
		}
		tx.emit(ctx, TableUsers, OpDelete, u)
		return nil
	})
}

// ---- clients ----

func (s *Store) CreateClient(ctx context.Context, c *models.Client) error {
	const op = "store.create_client"
	u, err := s.GetUser(ctx, c.UserID)
	if err != nil {
		if IsNotFound(err) {
			return E(op, KindInvalid, errors.New("user does not exist"))
		}
		return err
	}
	if u.Role != models.RoleClient {
		return E(op, KindInvalid, errors.New("user is not a client"))
	}
	if c.Status == "" {
		c.Status = models.ClientStatusActive
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableClients, OpInsert, c)
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_client", err)
	}
	return &c, nil
}

func (s *Store) GetClientByUserID(ctx context.Context, userID uuid.UUID) (*models.Client, error) {
	var c models.Client
	if err := s.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error; err != nil {
		return nil, classify("store.get_client_by_user", err)
	}
	return &c, nil
}

// ListClients returns clients ordered by creation time. Empty status
// and nil therapistID mean "any".
func (s *Store) ListClients(ctx context.Context, status string, therapistID *uuid.UUID, limit, offset int) ([]models.Client, error) {
	q := s.db.WithContext(ctx).Model(&models.Client{}).Order("created_at ASC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if therapistID != nil {
		q = q.Where("therapist_id = ?", *therapistID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var clients []models.Client
	if err := q.Find(&clients).Error; err != nil {
		return nil, classify("store.list_clients", err)
	}
	return clients, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *models.Client) error {
	const op = "store.update_client"
	existing, err := s.GetClient(ctx, c.ID)
	if err != nil {
		return err
	}
	if c.UserID != existing.UserID {
		return E(op, KindInvalid, errors.New("client user link is immutable"))
	}
	c.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableClients, OpUpdate, c)
	return nil
}

// DeleteClient removes the client together with its conversations,
// their messages and summaries, and all behavior assignments.
func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *Store) error {
		c, err := tx.GetClient(ctx, id)
		if err != nil {
			return err
		}
		return tx.deleteClientCascade(ctx, c)
	})
}

func (s *Store) deleteClientCascade(ctx context.Context, c *models.Client) error {
	const op = "store.delete_client"

	var convs []models.Conversation
	if err := s.db.WithContext(ctx).Where("client_id = ?", c.ID).Find(&convs).Error; err != nil {
		return classify(op, err)
	}
	if len(convs) > 0 {
		ids := make([]uuid.UUID, len(convs))
		for i, k := range convs {
			ids[i] = k.ID
		}
		if err := s.db.WithContext(ctx).Where("conversation_id IN ?", ids).Delete(&models.Summary{}).Error; err != nil {
			return classify(op, err)
		}
		if err := s.db.WithContext(ctx).Where("conversation_id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
			return classify(op, err)
		}
		if err := s.db.WithContext(ctx).Where("client_id = ?", c.ID).Delete(&models.Conversation{}).Error; err != nil {
			return classify(op, err)
		}
	}
	if err := s.db.WithContext(ctx).Where("client_id = ?", c.ID).Delete(&models.ClientBehavior{}).Error; err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).Where("client_id = ?", c.ID).Delete(&models.TherapySession{}).Error; err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Client{}, "id = ?", c.ID).Error; err != nil {
		return classify(op, err)
	}
	for i := range convs {
		s.emit(ctx, TableConversations, OpDelete, &convs[i])
	}
	s.emit(ctx, TableClients, OpDelete, c)
	return nil
}

// ---- therapists ----

func (s *Store) CreateTherapist(ctx context.Context, t *models.Therapist) error {
	const op = "store.create_therapist"
	u, err := s.GetUser(ctx, t.UserID)
	if err != nil {
		if IsNotFound(err) {
			return E(op, KindInvalid, errors.New("user does not exist"))
		}
		return err
	}
	if u.Role != models.RoleTherapist {
		return E(op, KindInvalid, errors.New("user is not a therapist"))
	}
	if t.Status == "" {
		t.Status = "active"
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableTherapists, OpInsert, t)
	return nil
}

func (s *Store) GetTherapist(ctx context.Context, id uuid.UUID) (*models.Therapist, error) {
	var t models.Therapist
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_therapist", err)
	}
	return &t, nil
}

func (s *Store) GetTherapistByUserID(ctx context.Context, userID uuid.UUID) (*models.Therapist, error) {
	var t models.Therapist
	if err := s.db.WithContext(ctx).First(&t, "user_id = ?", userID).Error; err != nil {
		return nil, classify("store.get_therapist_by_user", err)
	}
	return &t, nil
}

func (s *Store) ListTherapists(ctx context.Context, status string, limit, offset int) ([]models.Therapist, error) {
	q := s.db.WithContext(ctx).Model(&models.Therapist{}).Order("created_at ASC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var ts []models.Therapist
	if err := q.Find(&ts).Error; err != nil {
		return nil, classify("store.list_therapists", err)
	}
	return ts, nil
}

func (s *Store) UpdateTherapist(ctx context.Context, t *models.Therapist) error {
	const op = "store.update_therapist"
	existing, err := s.GetTherapist(ctx, t.ID)
	if err != nil {
		return err
	}
	if t.UserID != existing.UserID {
		return E(op, KindInvalid, errors.New("therapist user link is immutable"))
	}
	t.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(t).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableTherapists, OpUpdate, t)
	return nil
}

// DeleteTherapist removes the therapist, detaches their clients and
// open conversations, and drops their scheduled sessions.
func (s *Store) DeleteTherapist(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *Store) error {
		t, err := tx.GetTherapist(ctx, id)
		if err != nil {
			return err
		}
		return tx.deleteTherapistCascade(ctx, t)
	})
}

func (s *Store) deleteTherapistCascade(ctx context.Context, t *models.Therapist) error {
	const op = "store.delete_therapist"
	if err := s.db.WithContext(ctx).Model(&models.Client{}).
		Where("therapist_id = ?", t.ID).
		Update("therapist_id", nil).Error; err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("therapist_id = ?", t.ID).
		Update("therapist_id", nil).Error; err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).Where("therapist_id = ?", t.ID).Delete(&models.TherapySession{}).Error; err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Therapist{}, "id = ?", t.ID).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableTherapists, OpDelete, t)
	return nil
}
