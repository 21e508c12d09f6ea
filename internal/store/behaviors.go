package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"gorm.io/gorm"
)

// ---- behavior presets ----

func (s *Store) CreateBehavior(ctx context.Context, b *models.Behavior) error {
	const op = "store.create_behavior"
	if b.Name == "" {
		return E(op, KindInvalid, errors.New("behavior name is required"))
	}
	if b.PromptTemplate == "" {
		return E(op, KindInvalid, errors.New("prompt template is required"))
	}
	if _, err := s.GetUser(ctx, b.CreatedBy); err != nil {
		if IsNotFound(err) {
			return E(op, KindInvalid, errors.New("creator does not exist"))
		}
		return err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableBehaviors, OpInsert, b)
	return nil
}

func (s *Store) GetBehavior(ctx context.Context, id uuid.UUID) (*models.Behavior, error) {
	var b models.Behavior
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, classify("store.get_behavior", err)
	}
	return &b, nil
}

func (s *Store) ListBehaviors(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Behavior, error) {
	q := s.db.WithContext(ctx).Model(&models.Behavior{}).Order("name ASC, id ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var bs []models.Behavior
	if err := q.Find(&bs).Error; err != nil {
		return nil, classify("store.list_behaviors", err)
	}
	return bs, nil
}

func (s *Store) UpdateBehavior(ctx context.Context, b *models.Behavior) error {
	const op = "store.update_behavior"
	existing, err := s.GetBehavior(ctx, b.ID)
	if err != nil {
		return err
	}
	if b.CreatedBy != existing.CreatedBy {
		return E(op, KindInvalid, errors.New("behavior creator is immutable"))
	}
	b.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(b).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableBehaviors, OpUpdate, b)
	return nil
}

// DeleteBehavior removes the preset and every assignment referencing
// it. Assignments are removed outright, not just deactivated.
func (s *Store) DeleteBehavior(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *Store) error {
		b, err := tx.GetBehavior(ctx, id)
		if err != nil {
			return err
		}
		return tx.deleteBehaviorCascade(ctx, b)
	})
}

func (s *Store) deleteBehaviorCascade(ctx context.Context, b *models.Behavior) error {
	const op = "store.delete_behavior"
	if err := s.db.WithContext(ctx).Where("behavior_id = ?", b.ID).Delete(&models.ClientBehavior{}).Error; err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Behavior{}, "id = ?", b.ID).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableBehaviors, OpDelete, b)
	return nil
}

// ---- client behavior assignments ----

// UpsertAssignment writes one (client, behavior) link. Activating a
// link requires the preset to still be active; deactivating always
// succeeds so invariant repair can make progress.
func (s *Store) UpsertAssignment(ctx context.Context, clientID, behaviorID uuid.UUID, active bool) (*models.ClientBehavior, error) {
	const op = "store.upsert_assignment"
	if _, err := s.GetClient(ctx, clientID); err != nil {
		if IsNotFound(err) {
			return nil, E(op, KindInvalid, errors.New("client does not exist"))
		}
		return nil, err
	}
	b, err := s.GetBehavior(ctx, behaviorID)
	if err != nil {
		if IsNotFound(err) {
			return nil, E(op, KindInvalid, errors.New("behavior does not exist"))
		}
		return nil, err
	}
	if active && !b.IsActive {
		return nil, E(op, KindInvalid, ErrInactiveBehavior)
	}

	var out *models.ClientBehavior
	err = s.Transaction(ctx, func(tx *Store) error {
		var asg models.ClientBehavior
		err := tx.db.WithContext(ctx).
			First(&asg, "client_id = ? AND behavior_id = ?", clientID, behaviorID).Error
		switch {
		case err == nil:
			asg.Active = active
			if err := tx.db.WithContext(ctx).Save(&asg).Error; err != nil {
				return classify(op, err)
			}
			tx.emit(ctx, TableClientBehaviors, OpUpdate, &asg)
		case errors.Is(err, gorm.ErrRecordNotFound):
			asg = models.ClientBehavior{ClientID: clientID, BehaviorID: behaviorID, Active: active}
			if err := tx.db.WithContext(ctx).Create(&asg).Error; err != nil {
				return classify(op, err)
			}
			tx.emit(ctx, TableClientBehaviors, OpInsert, &asg)
		default:
			return classify(op, err)
		}
		out = &asg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListAssignments returns a client's assignments ordered by behavior
// id, which doubles as the tie-break order when the single-active
// invariant has been violated.
func (s *Store) ListAssignments(ctx context.Context, clientID uuid.UUID, activeOnly bool) ([]models.ClientBehavior, error) {
	q := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("behavior_id ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var asgs []models.ClientBehavior
	if err := q.Find(&asgs).Error; err != nil {
		return nil, classify("store.list_assignments", err)
	}
	return asgs, nil
}

// DeactivateAssignments clears the active flag on every assignment of
// a client except the one named by keep. Pass uuid.Nil to clear all.
func (s *Store) DeactivateAssignments(ctx context.Context, clientID, keep uuid.UUID) error {
	const op = "store.deactivate_assignments"
	var asgs []models.ClientBehavior
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND active = ?", clientID, true).
		Order("behavior_id ASC").
		Find(&asgs).Error
	if err != nil {
		return classify(op, err)
	}
	for i := range asgs {
		if asgs[i].BehaviorID == keep {
			continue
		}
		asgs[i].Active = false
		if err := s.db.WithContext(ctx).Save(&asgs[i]).Error; err != nil {
			return classify(op, err)
		}
		s.emit(ctx, TableClientBehaviors, OpUpdate, &asgs[i])
	}
	return nil
}

// DeleteAssignment removes one (client, behavior) link outright.
func (s *Store) DeleteAssignment(ctx context.Context, clientID, behaviorID uuid.UUID) error {
	const op = "store.delete_assignment"
	var asg models.ClientBehavior
	err := s.db.WithContext(ctx).
		First(&asg, "client_id = ? AND behavior_id = ?", clientID, behaviorID).Error
	if err != nil {
		return classify(op, err)
	}
	if err := s.db.WithContext(ctx).
		Where("client_id = ? AND behavior_id = ?", clientID, behaviorID).
		Delete(&models.ClientBehavior{}).Error; err != nil {
		return classify(op, err)
	}
	s.emit(ctx, TableClientBehaviors, OpDelete, &asg)
	return nil
}
