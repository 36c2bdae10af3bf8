package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	netmail "net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/store"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not signed in")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

const (
	minPasswordLen = 6
	tokenBytes     = 32

	// DefaultSessionTTL is how long a sign-in stays valid.
	DefaultSessionTTL = 30 * 24 * time.Hour
)

// Service handles accounts and bearer sessions.
type Service struct {
	store    store.Store
	ttl      time.Duration
	logger   *zap.Logger
	HashCost int
}

// NewService returns an auth Service. A zero ttl uses DefaultSessionTTL.
func NewService(s store.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, ttl: ttl, logger: logger, HashCost: bcrypt.DefaultCost}
}

// SignUp creates an account and its profile.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = localPart(email)
	}
	if name == "" {
		name = "Ghost"
	}

	u := &models.User{
		Email:        email,
		Name:         name,
		GhostHandle:  GhostHandle(name),
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.logger.Info("user signed up", zap.String("uid", u.UID), zap.String("handle", u.GhostHandle))
	return u, nil
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return nil, nil, err
	}
	sess := &models.Session{
		Token:     token,
		UserUID:   u.UID,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, u, nil
}

// SignOut ends a session. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// Resolve returns the user behind a live session token.
func (s *Service) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	u, err := s.store.GetUser(ctx, sess.UserUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if err := s.store.TouchSession(ctx, token); err != nil {
		s.logger.Warn("touch session failed", zap.Error(err))
	}
	return u, nil
}

// ProfileUpdate carries editable profile fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	Name             *string `json:"name"`
	LinkedInUsername *string `json:"linkedInUsername"`
}

// UpdateProfile applies upd to the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, u *models.User, upd ProfileUpdate) (*models.User, error) {
	if upd.Name != nil {
		if name := strings.TrimSpace(*upd.Name); name != "" {
			u.Name = name
		}
	}
	if upd.LinkedInUsername != nil {
		u.LinkedInUsername = strings.TrimPrefix(strings.TrimSpace(*upd.LinkedInUsername), "@")
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// PurgeExpired deletes expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx)
}

// ExtractToken reads the bearer token from the Authorization header.
// A header without the "Bearer " prefix is taken as the raw token.
func ExtractToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func localPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type userCtxKey struct{}

// WithUser stores the signed-in user on ctx.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext returns the signed-in user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userCtxKey{}).(*models.User)
	return u
}
