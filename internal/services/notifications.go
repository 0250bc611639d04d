package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/models"
)

type NotificationStore interface {
	ListByRecipient(ctx context.Context, email string) ([]*models.Notification, error)
	DeleteForRecipient(ctx context.Context, id uuid.UUID, email string) error
}

// NotificationService is the read side of the notification sink.
type NotificationService struct {
	base
	store NotificationStore
}

func NewNotificationService(d Deps, store NotificationStore) *NotificationService {
	return &NotificationService{base: newBase(d), store: store}
}

func (s *NotificationService) List(ctx context.Context, recipient string) ([]*models.Notification, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.store.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, s.classify("list notifications", err)
	}
	return list, nil
}

// Delete removes the notification when recipient owns it. Someone else's
// notification reads as not found.
func (s *NotificationService) Delete(ctx context.Context, recipient string, id uuid.UUID) error {
	ctx, cancel := s.read(ctx)
	defer cancel()
	if err := s.store.DeleteForRecipient(ctx, id, recipient); err != nil {
		return s.classify("delete notification", notFoundAs(err, "notification not found"))
	}
	return nil
}
