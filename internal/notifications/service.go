package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulsefeed/pkg/metrics"
	"github.com/pulsefeed/pulsefeed/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService defines notification operations.
type NotificationService interface {
	Start() error
	Stop() error
	Notify(ctx context.Context, recipientID, actorID uuid.UUID, verb, targetType string, targetID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, read *bool, offset, limit int) ([]models.Notification, int64, int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
}

// Service implements NotificationService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	hub    *Hub
}

// NewService creates a new NotificationService. The hub may be nil when live
// delivery is not wanted (tests, CLI tools).
func NewService(logger *zap.Logger, db *gorm.DB, hub *Hub) (*Service, error) {
	return &Service{
		logger: logger,
		db:     db,
		hub:    hub,
	}, nil
}

// Start starts the notifications service
func (s *Service) Start() error {
	s.logger.Info("Notifications service started")
	return nil
}

// Stop stops the notifications service
func (s *Service) Stop() error {
	if s.hub != nil {
		s.hub.Close()
	}
	s.logger.Info("Notifications service stopped")
	return nil
}

// Notify records a notification for the recipient and pushes it to any
// connected websocket sessions. Self-notifications are suppressed.
func (s *Service) Notify(ctx context.Context, recipientID, actorID uuid.UUID, verb, targetType string, targetID uuid.UUID) error {
	if recipientID == actorID {
		return nil
	}

	notification := &models.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		ActorID:     actorID,
		Verb:        verb,
		TargetType:  targetType,
		TargetID:    targetID,
		Read:        false,
		CreatedAt:   time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(verb).Inc()

	if s.hub != nil {
		s.db.WithContext(ctx).Preload("Actor").First(notification, "id = ?", notification.ID)
		s.hub.Push(recipientID, notification)
	}

	return nil
}

// List returns the recipient's notifications newest first, with the total and
// unread counts for the same filter-free set.
func (s *Service) List(ctx context.Context, userID uuid.UUID, read *bool, offset, limit int) ([]models.Notification, int64, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", userID)
	if read != nil {
		query = query.Where("read = ?", *read)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	var unread int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Count(&unread).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	var notifications []models.Notification
	if err := query.Preload("Actor").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, count, unread, nil
}

// MarkRead marks a single notification as read
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		First(&notification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("notification not found")
		}
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}

	if !notification.Read {
		notification.Read = true
		if err := s.db.WithContext(ctx).Model(&notification).Update("read", true).Error; err != nil {
			return nil, fmt.Errorf("failed to update notification: %w", err)
		}
	}

	return &notification, nil
}

// MarkAllRead marks every unread notification of the user as read and returns
// the number of rows updated.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes a notification owned by the user
func (s *Service) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}
