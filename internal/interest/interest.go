package interest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/mail"
	"github.com/joescharf/ghostvault/internal/metrics"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/store"
)

var (
	ErrAlreadyRequested = errors.New("you already sent interest for this project")
	ErrMessageRequired  = errors.New("please write a message")
	ErrNoCreatorEmail   = errors.New("project owner email missing")
	ErrOwnProject       = errors.New("you cannot request your own project")
	ErrInvalidStatus    = errors.New("status must be approved or rejected")
	ErrNotSenior        = errors.New("only the project creator can decide on this request")
	ErrContactLocked    = errors.New("contact details unlock after approval")
)

// StatusNone is reported for a project the user has not requested.
const StatusNone = "none"

// Notifier delivers best-effort in-app notifications.
type Notifier interface {
	TryNotify(ctx context.Context, userUID, title, body, link string)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    store.Store
	Mailer   mail.Mailer      // optional
	Notifier Notifier         // optional
	Events   events.Publisher // optional
	Logger   *zap.Logger
}

// Service runs the request/approval workflow between a project's creator
// (the senior) and a developer asking to take it over (the junior).
type Service struct {
	store    store.Store
	mailer   mail.Mailer
	notifier Notifier
	pub      events.Publisher
	logger   *zap.Logger
}

// NewService returns an interest Service.
func NewService(d Deps) *Service {
	s := &Service{store: d.Store, mailer: d.Mailer, notifier: d.Notifier, pub: d.Events, logger: d.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Create records junior's request to take over a project.
func (s *Service) Create(ctx context.Context, junior *models.User, projectID, message string) (*models.Interest, error) {
	if junior == nil || junior.UID == "" {
		return nil, auth.ErrUnauthenticated
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrMessageRequired
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.CreatorEmail == "" {
		return nil, ErrNoCreatorEmail
	}
	if p.CreatorUID == junior.UID || strings.EqualFold(p.CreatorEmail, junior.Email) {
		return nil, ErrOwnProject
	}
	seniorUID := s.resolveSenior(ctx, p.CreatorUID, p.CreatorEmail)

	existing, err := s.store.ListInterests(ctx, store.InterestListFilter{ProjectID: projectID, JuniorUID: junior.UID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyRequested
	}

	juniorName := strings.TrimSpace(junior.Name)
	if juniorName == "" {
		juniorName, _, _ = strings.Cut(junior.Email, "@")
	}

	i := &models.Interest{
		ProjectID:    p.ID,
		ProjectTitle: p.Title,
		GitHubURL:    p.GitHubURL,
		SeniorUID:    seniorUID,
		SeniorEmail:  strings.ToLower(p.CreatorEmail),
		SeniorName:   p.CreatorName,
		JuniorUID:    junior.UID,
		JuniorName:   juniorName,
		JuniorEmail:  strings.ToLower(junior.Email),
		Message:      message,
		Status:       models.InterestStatusPending,
	}
	if err := s.store.CreateInterest(ctx, i); err != nil {
		// Lost a race with a concurrent request from the same junior.
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyRequested
		}
		return nil, err
	}
	s.logger.Info("interest created", zap.String("id", i.ID), zap.String("project", p.ID), zap.String("junior", junior.UID))

	if s.mailer != nil {
		err := s.mailer.SendHaunt(ctx, mail.HauntEmail{
			ToEmail:      p.CreatorEmail,
			ProjectTitle: p.Title,
			FromName:     juniorName,
			FromEmail:    i.JuniorEmail,
			Message:      message,
		})
		if err != nil {
			s.logger.Warn("haunt email failed", zap.String("interest", i.ID), zap.Error(err))
		}
	}
	if s.notifier != nil && seniorUID != "" {
		s.notifier.TryNotify(ctx, seniorUID, "Someone wants to haunt "+p.Title,
			juniorName+" sent interest: "+message, "/dashboard")
	}
	s.publish(ctx, events.InterestCreated, i)
	return i, nil
}

// isSenior reports whether user owns the project the interest targets.
// Rows without a senior uid fall back to matching the senior email.
func isSenior(i *models.Interest, user *models.User) bool {
	if i.SeniorUID != "" {
		return i.SeniorUID == user.UID
	}
	return i.SeniorEmail != "" && strings.EqualFold(i.SeniorEmail, user.Email)
}

// Decide sets the status of a request. Only the senior may decide, and
// re-applying the current status changes nothing.
func (s *Service) Decide(ctx context.Context, senior *models.User, interestID string, status models.InterestStatus) (*models.Interest, error) {
	if senior == nil || senior.UID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if status != models.InterestStatusApproved && status != models.InterestStatusRejected {
		return nil, ErrInvalidStatus
	}

	i, err := s.store.GetInterest(ctx, interestID)
	if err != nil {
		return nil, err
	}
	if !isSenior(i, senior) {
		return nil, ErrNotSenior
	}
	if i.Status == status {
		return i, nil
	}

	if err := s.store.UpdateInterestStatus(ctx, i.ID, status); err != nil {
		return nil, err
	}
	i.Status = status
	metrics.Get().InterestDecisions.WithLabelValues(string(status)).Inc()
	s.logger.Info("interest decided", zap.String("id", i.ID), zap.String("status", string(status)))

	if status == models.InterestStatusApproved {
		if s.mailer != nil {
			err := s.mailer.SendApproval(ctx, mail.ApprovalEmail{
				ToEmail:      i.JuniorEmail,
				ToName:       i.JuniorName,
				ProjectTitle: i.ProjectTitle,
				GitHubURL:    i.GitHubURL,
				CreatorName:  i.SeniorName,
				CreatorEmail: i.SeniorEmail,
			})
			if err != nil {
				s.logger.Warn("approval email failed", zap.String("interest", i.ID), zap.Error(err))
			}
		}
		if s.notifier != nil {
			s.notifier.TryNotify(ctx, i.JuniorUID, "Request approved: "+i.ProjectTitle,
				"The creator approved your request. Contact details are unlocked.", "/projects/"+i.ProjectID)
		}
	}
	s.publish(ctx, events.InterestUpdated, i)
	return i, nil
}

// Sent lists the requests user has made.
func (s *Service) Sent(ctx context.Context, user *models.User) ([]*models.Interest, error) {
	return s.store.ListInterests(ctx, store.InterestListFilter{JuniorUID: user.UID})
}

// Incoming lists requests on projects user created.
func (s *Service) Incoming(ctx context.Context, user *models.User) ([]*models.Interest, error) {
	return s.store.ListInterests(ctx, store.InterestListFilter{SeniorUID: user.UID, SeniorEmail: user.Email})
}

// StatusFor returns the status of user's request on a project, or StatusNone.
func (s *Service) StatusFor(ctx context.Context, user *models.User, projectID string) (string, error) {
	list, err := s.store.ListInterests(ctx, store.InterestListFilter{ProjectID: projectID, JuniorUID: user.UID})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return StatusNone, nil
	}
	return string(list[0].Status), nil
}

// Contact reveals the creator's details to the creator or to a junior
// whose request was approved.
func (s *Service) Contact(ctx context.Context, user *models.User, projectID string) (*models.Contact, error) {
	if user == nil || user.UID == "" {
		return nil, auth.ErrUnauthenticated
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if p.CreatorUID != user.UID {
		status, err := s.StatusFor(ctx, user, projectID)
		if err != nil {
			return nil, err
		}
		if status != string(models.InterestStatusApproved) {
			return nil, ErrContactLocked
		}
	}
	return &models.Contact{
		ProjectID:   p.ID,
		GhostHandle: p.CreatorName,
		Email:       p.CreatorEmail,
		GitHubURL:   p.GitHubURL,
	}, nil
}

// Dashboard is a snapshot of a user's requests in both directions.
type Dashboard struct {
	Sent     []*models.Interest `json:"sent"`
	Incoming []*models.Interest `json:"incoming"`
}

// Dashboard returns user's sent and incoming requests.
func (s *Service) Dashboard(ctx context.Context, user *models.User) (*Dashboard, error) {
	sent, err := s.Sent(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("sent requests: %w", err)
	}
	incoming, err := s.Incoming(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("incoming requests: %w", err)
	}
	if sent == nil {
		sent = []*models.Interest{}
	}
	if incoming == nil {
		incoming = []*models.Interest{}
	}
	return &Dashboard{Sent: sent, Incoming: incoming}, nil
}

// resolveSenior returns uid, or for projects listed without one, the uid
// of the account registered under email. Empty when neither is known.
func (s *Service) resolveSenior(ctx context.Context, uid, email string) string {
	if uid != "" || email == "" {
		return uid
	}
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("senior lookup failed", zap.String("email", email), zap.Error(err))
		}
		return ""
	}
	return u.UID
}

func (s *Service) publish(ctx context.Context, kind events.Kind, i *models.Interest) {
	if s.pub == nil {
		return
	}
	uids := []string{i.JuniorUID}
	if senior := s.resolveSenior(ctx, i.SeniorUID, i.SeniorEmail); senior != "" {
		uids = append(uids, senior)
	}
	s.pub.Publish(events.Event{Kind: kind, ProjectID: i.ProjectID, InterestID: i.ID, UserUIDs: uids})
}
