package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/store"
)

// ErrEmptyToken is returned when a device registration has no token.
var ErrEmptyToken = errors.New("device token is required")

// Service stores in-app notifications and announces them on the hub.
type Service struct {
	store  store.Store
	pub    events.Publisher
	logger *zap.Logger
}

// NewService returns a notification Service. pub may be nil.
func NewService(s store.Store, pub events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, pub: pub, logger: logger}
}

// Notify stores a notification for userUID and publishes it.
func (s *Service) Notify(ctx context.Context, userUID, title, body, link string) (*models.Notification, error) {
	if userUID == "" {
		return nil, fmt.Errorf("notify: missing user")
	}
	n := &models.Notification{UserUID: userUID, Title: title, Body: body, Link: link}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.Publish(events.Event{Kind: events.NotificationCreated, UserUIDs: []string{userUID}})
	}
	return n, nil
}

// TryNotify is Notify for best-effort callers: failures are logged.
func (s *Service) TryNotify(ctx context.Context, userUID, title, body, link string) {
	if _, err := s.Notify(ctx, userUID, title, body, link); err != nil {
		s.logger.Warn("notification failed", zap.String("user", userUID), zap.String("title", title), zap.Error(err))
	}
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, user *models.User, unreadOnly bool) ([]*models.Notification, error) {
	return s.store.ListNotifications(ctx, user.UID, unreadOnly)
}

// MarkRead marks one of the user's own notifications read.
func (s *Service) MarkRead(ctx context.Context, user *models.User, id string) error {
	return s.store.MarkNotificationRead(ctx, user.UID, id)
}

// RegisterDevice saves the push device token on the user's profile.
func (s *Service) RegisterDevice(ctx context.Context, user *models.User, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if user.DeviceToken == token {
		return nil
	}
	user.DeviceToken = token
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("save device token: %w", err)
	}
	s.logger.Debug("device token saved", zap.String("user", user.UID))
	return nil
}
