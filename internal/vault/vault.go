package vault

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/llm"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/thumbnail"
	"github.com/joescharf/ghostvault/internal/vitality"
)

var (
	// ErrRepoUnavailable means the URL is not a GitHub repo or GitHub could not be reached.
	ErrRepoUnavailable = errors.New("could not fetch repo, check the URL")
	ErrTitleRequired   = errors.New("title is required")
	ErrNotCreator      = errors.New("only the creator can do that")
)

// Notifier delivers best-effort in-app notifications.
type Notifier interface {
	TryNotify(ctx context.Context, userUID, title, body, link string)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store      store.Store
	GitHub     git.GitHubClient
	Writer     *llm.Writer
	Thumbnails *thumbnail.Builder
	Notifier   Notifier         // optional
	Events     events.Publisher // optional
	Logger     *zap.Logger
}

// Service lists projects in the vault and keeps their stats fresh.
type Service struct {
	store    store.Store
	gh       git.GitHubClient
	writer   *llm.Writer
	thumbs   *thumbnail.Builder
	notifier Notifier
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time

	// Concurrency bounds RefreshAll.
	Concurrency int
}

// NewService returns a vault Service.
func NewService(d Deps) *Service {
	s := &Service{
		store:       d.Store,
		gh:          d.GitHub,
		writer:      d.Writer,
		thumbs:      d.Thumbnails,
		notifier:    d.Notifier,
		pub:         d.Events,
		logger:      d.Logger,
		now:         time.Now,
		Concurrency: 4,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.writer == nil {
		s.writer = llm.NewWriter(nil, s.logger)
	}
	if s.thumbs == nil {
		s.thumbs = thumbnail.NewBuilder("")
	}
	return s
}

// Analysis is the preview shown before a project is listed.
type Analysis struct {
	GitHubURL       string              `json:"githubUrl"`
	Stats           *git.RepoStats      `json:"stats"`
	Vitality        *vitality.Breakdown `json:"vitality"`
	Status          string              `json:"status"`
	SuggestedTitle  string              `json:"suggestedTitle"`
	GhostLog        string              `json:"ghostLog"`
	ThumbnailPrompt string              `json:"thumbnailPrompt"`
	ThumbnailURL    string              `json:"thumbnailUrl"`
}

func (s *Service) fetch(ctx context.Context, githubURL string) (*git.RepoStats, error) {
	stats, err := git.FetchStats(ctx, s.gh, githubURL)
	if err != nil {
		s.logger.Info("repo fetch failed", zap.String("url", githubURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	return stats, nil
}

func facts(stats *git.RepoStats) llm.RepoFacts {
	return llm.RepoFacts{Stars: stats.Stars, Forks: stats.Forks, LastUpdated: stats.LastUpdated}
}

func vitalityInputs(stats *git.RepoStats) vitality.Inputs {
	return vitality.Inputs{Stars: stats.Stars, Forks: stats.Forks, LastUpdated: stats.LastUpdated}
}

// Analyze fetches a repo and drafts its listing. The thumbnail is drawn
// from manualDescription when given, otherwise from the generated Ghost Log.
func (s *Service) Analyze(ctx context.Context, githubURL, manualDescription string) (*Analysis, error) {
	githubURL = strings.TrimSpace(githubURL)
	stats, err := s.fetch(ctx, githubURL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	name := firstNonBlank(stats.Name, "Unknown Project")
	ghostLog := s.writer.GhostLog(ctx, name, stats.Description, facts(stats))

	imageDescription := firstNonBlank(manualDescription, ghostLog)
	prompt := s.writer.ThumbnailPrompt(ctx, firstNonBlank(stats.Name, "Ghost Project"), imageDescription)

	return &Analysis{
		GitHubURL:       githubURL,
		Stats:           stats,
		Vitality:        vitality.Compute(vitalityInputs(stats), now),
		Status:          string(vitality.StatusFor(stats.LastUpdated, now)),
		SuggestedTitle:  stats.Name,
		GhostLog:        ghostLog,
		ThumbnailPrompt: prompt,
		ThumbnailURL:    s.thumbs.RandomURL(prompt),
	}, nil
}

// SubmitInput is what a creator sends to list a project.
type SubmitInput struct {
	GitHubURL    string `json:"githubUrl"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	GhostLog     string `json:"ghostLog"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Submit lists a project in the vault on behalf of creator.
func (s *Service) Submit(ctx context.Context, creator *models.User, in SubmitInput) (*models.Project, error) {
	if creator == nil || creator.UID == "" {
		return nil, auth.ErrUnauthenticated
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	githubURL := strings.TrimSpace(in.GitHubURL)
	stats, err := s.fetch(ctx, githubURL)
	if err != nil {
		return nil, err
	}

	ghostLog := strings.TrimSpace(in.GhostLog)
	if ghostLog == "" {
		ghostLog = s.writer.GhostLog(ctx, title, firstNonBlank(in.Description, stats.Description), facts(stats))
	}
	thumbURL := strings.TrimSpace(in.ThumbnailURL)
	if thumbURL == "" {
		prompt := s.writer.ThumbnailPrompt(ctx, title, firstNonBlank(in.Description, ghostLog))
		thumbURL = s.thumbs.RandomURL(prompt)
	}

	now := s.now()
	p := &models.Project{
		Title:         title,
		GitHubURL:     githubURL,
		CreatorUID:    creator.UID,
		CreatorName:   creator.GhostHandle,
		CreatorEmail:  strings.ToLower(creator.Email),
		Description:   strings.TrimSpace(in.Description),
		GhostLog:      ghostLog,
		ThumbnailURL:  thumbURL,
		VitalityScore: vitality.Score(vitalityInputs(stats), now),
		Status:        vitality.StatusFor(stats.LastUpdated, now),
		Stars:         stats.Stars,
		Forks:         stats.Forks,
		Language:      stats.Language,
		LastUpdated:   stats.LastUpdated,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("submit project: %w", err)
	}

	s.logger.Info("project listed", zap.String("id", p.ID), zap.String("title", p.Title), zap.Int("vitality", p.VitalityScore))
	if s.notifier != nil {
		s.notifier.TryNotify(ctx, creator.UID, "New Soul Captured!", "Your project "+p.Title+" is now live.", "/projects/"+p.ID)
	}
	s.publish(events.ProjectCreated, p, creator.UID)
	return p, nil
}

// Search returns projects whose title, Ghost Log or creator handle contain query.
func (s *Service) Search(ctx context.Context, query string) ([]*models.Project, error) {
	return s.store.ListProjects(ctx, store.ProjectListFilter{Query: query})
}

// ListByCreator returns the projects listed by user.
func (s *Service) ListByCreator(ctx context.Context, user *models.User) ([]*models.Project, error) {
	return s.store.ListProjects(ctx, store.ProjectListFilter{CreatorUID: user.UID})
}

func (s *Service) Get(ctx context.Context, id string) (*models.Project, error) {
	return s.store.GetProject(ctx, id)
}

// Delete removes a project. Only its creator may do so.
func (s *Service) Delete(ctx context.Context, user *models.User, id string) error {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if user == nil || p.CreatorUID != user.UID {
		return ErrNotCreator
	}
	// Requests cascade with the project, so their senders' dashboards change too.
	interests, err := s.store.ListInterests(ctx, store.InterestListFilter{ProjectID: p.ID})
	if err != nil {
		return err
	}
	uids := []string{p.CreatorUID}
	for _, i := range interests {
		if i.JuniorUID != "" && !slices.Contains(uids, i.JuniorUID) {
			uids = append(uids, i.JuniorUID)
		}
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.publish(events.ProjectDeleted, p, uids...)
	return nil
}

func (s *Service) publish(kind events.Kind, p *models.Project, uids ...string) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(events.Event{Kind: kind, ProjectID: p.ID, UserUIDs: uids})
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
