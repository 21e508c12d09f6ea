package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
)

var ErrNotRecipient = errors.New("only the recipient can mark a message read")

// MessagingService handles user-to-user mail. It is deliberately
// separate from conversation messages: nothing here passes through the
// assistant or touches sentiment.
type MessagingService struct {
	store *store.Store
}

func NewMessagingService(st *store.Store) *MessagingService {
	return &MessagingService{store: st}
}

// Send delivers a direct message from sender to the requested
// recipient.
func (s *MessagingService) Send(ctx context.Context, senderID uuid.UUID, req *dto.SendDirectMessageRequest) (*models.DirectMessage, error) {
	dm := &models.DirectMessage{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	}
	if err := s.store.CreateDirectMessage(ctx, dm); err != nil {
		return nil, err
	}
	return dm, nil
}

// Thread returns the two-way history between two users, newest first.
func (s *MessagingService) Thread(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]models.DirectMessage, error) {
	return s.store.ListDirectMessages(ctx, a, b, limit, offset)
}

// MarkRead flags a message as read on behalf of its recipient.
func (s *MessagingService) MarkRead(ctx context.Context, recipientID, messageID uuid.UUID) (*models.DirectMessage, error) {
	const op = "services.mark_read"

	dm, err := s.store.GetDirectMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if dm.RecipientID != recipientID {
		return nil, store.E(op, store.KindPermissionDenied, ErrNotRecipient)
	}
	return s.store.MarkDirectMessageRead(ctx, messageID)
}

// UnreadCount reports how many messages await the user.
func (s *MessagingService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.CountUnreadDirectMessages(ctx, userID)
}
