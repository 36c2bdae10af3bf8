package store

import (
	"context"
	"errors"

	"github.com/joescharf/ghostvault/internal/models"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("already exists")
)

// ProjectListFilter specifies filters for listing projects.
type ProjectListFilter struct {
	Query      string // case-insensitive match on title, ghost log or creator handle
	CreatorUID string
}

// InterestListFilter specifies filters for listing interests.
// Non-empty fields are ANDed together, except SeniorUID and SeniorEmail,
// which match a row when either one does.
type InterestListFilter struct {
	ProjectID   string
	JuniorUID   string
	SeniorUID   string
	SeniorEmail string
	Status      models.InterestStatus
}

// Store defines the persistence interface for the vault.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, filter ProjectListFilter) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, uid string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error

	// Sessions
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	TouchSession(ctx context.Context, token string) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// Interests
	CreateInterest(ctx context.Context, i *models.Interest) error
	GetInterest(ctx context.Context, id string) (*models.Interest, error)
	ListInterests(ctx context.Context, filter InterestListFilter) ([]*models.Interest, error)
	UpdateInterestStatus(ctx context.Context, id string, status models.InterestStatus) error

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userUID string, unreadOnly bool) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, userUID, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
