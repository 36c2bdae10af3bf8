package vault

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/vitality"
)

// RefreshResult holds the outcome of refreshing a single project.
type RefreshResult struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Changed  bool   `json:"changed"`
	Vitality int    `json:"vitality"`
	Error    string `json:"error,omitempty"`
}

// RefreshAllResult holds the outcome of refreshing every project.
type RefreshAllResult struct {
	Refreshed int             `json:"refreshed"`
	Total     int             `json:"total"`
	Failed    int             `json:"failed"`
	Results   []RefreshResult `json:"results"`
}

// Refresh re-fetches GitHub stats for p, recomputes its vitality and
// status, and persists any change. Returns true if a field was updated.
func (s *Service) Refresh(ctx context.Context, p *models.Project) (bool, error) {
	stats, err := git.FetchStats(ctx, s.gh, p.GitHubURL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}

	now := s.now()
	next := *p
	changed := false

	if stats.Stars != next.Stars {
		next.Stars = stats.Stars
		changed = true
	}
	if stats.Forks != next.Forks {
		next.Forks = stats.Forks
		changed = true
	}
	if stats.Language != "" && stats.Language != next.Language {
		next.Language = stats.Language
		changed = true
	}
	if !stats.LastUpdated.IsZero() && !stats.LastUpdated.Equal(next.LastUpdated) {
		next.LastUpdated = stats.LastUpdated
		changed = true
	}
	if score := vitality.Score(vitalityInputs(stats), now); score != next.VitalityScore {
		next.VitalityScore = score
		changed = true
	}
	if status := vitality.StatusFor(next.LastUpdated, now); status != next.Status {
		next.Status = status
		changed = true
	}

	if !changed {
		return false, nil
	}
	// p is only updated once the row is saved.
	if err := s.store.UpdateProject(ctx, &next); err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	*p = next
	s.publish(events.ProjectUpdated, p, p.CreatorUID)
	return true, nil
}

// RefreshByID refreshes one project on behalf of user. Only the creator
// may trigger it.
func (s *Service) RefreshByID(ctx context.Context, user *models.User, id string) (*models.Project, bool, error) {
	if user == nil {
		return nil, false, auth.ErrUnauthenticated
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if p.CreatorUID != user.UID {
		return nil, false, ErrNotCreator
	}
	changed, err := s.Refresh(ctx, p)
	return p, changed, err
}

// RefreshAll refreshes every project with bounded parallelism. Per-project
// failures are reported in the result, not returned.
func (s *Service) RefreshAll(ctx context.Context) (*RefreshAllResult, error) {
	projects, err := s.store.ListProjects(ctx, store.ProjectListFilter{})
	if err != nil {
		return nil, err
	}

	results := make([]RefreshResult, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, p := range projects {
		g.Go(func() error {
			r := RefreshResult{ID: p.ID, Title: p.Title}
			changed, err := s.Refresh(gctx, p)
			if err != nil {
				r.Error = err.Error()
				s.logger.Warn("refresh failed", zap.String("project", p.ID), zap.Error(err))
			}
			r.Changed = changed
			r.Vitality = p.VitalityScore
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &RefreshAllResult{Total: len(projects), Results: results}
	for _, r := range results {
		switch {
		case r.Error != "":
			out.Failed++
		case r.Changed:
			out.Refreshed++
		}
	}
	return out, nil
}
