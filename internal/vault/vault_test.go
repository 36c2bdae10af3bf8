package vault

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/llm"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/thumbnail"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeGitHub struct {
	mu    sync.Mutex
	repos map[string]*git.RepoStats
	calls int
}

func (f *fakeGitHub) RepoStats(_ context.Context, owner, repo string) (*git.RepoStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	s, ok := f.repos[owner+"/"+repo]
	if !ok {
		return nil, errors.New("status 404")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeGitHub) set(key string, s *git.RepoStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[key] = s
}

type fakeGenerator struct{ text string }

func (f fakeGenerator) Generate(context.Context, string, llm.Options) (string, error) {
	return f.text, nil
}

type notification struct{ uid, title string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) TryNotify(_ context.Context, uid, title, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{uid, title})
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	svc      *Service
	store    *store.SQLiteStore
	gh       *fakeGitHub
	notifier *fakeNotifier
	events   *recorder
	creator  *models.User
}

func newFixture(t *testing.T, gen llm.Generator) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	gh := &fakeGitHub{repos: map[string]*git.RepoStats{
		"ghost/spectre": {
			Name: "spectre", Description: "haunted CLI", Stars: 150, Forks: 20,
			Language: "Go", LastUpdated: fixedNow.Add(-3 * 24 * time.Hour),
		},
		"ghost/relic": {
			Name: "relic", Description: "No description available", Stars: 5,
			Language: "Unknown", LastUpdated: fixedNow.Add(-400 * 24 * time.Hour),
		},
	}}

	creator := &models.User{Email: "Senior@Example.com", Name: "Senior", GhostHandle: "@wraith_senior_123"}
	require.NoError(t, s.CreateUser(context.Background(), creator))

	f := &fixture{store: s, gh: gh, notifier: &fakeNotifier{}, events: &recorder{}, creator: creator}
	f.svc = NewService(Deps{
		Store:      s,
		GitHub:     gh,
		Writer:     llm.NewWriter(gen, nil),
		Thumbnails: thumbnail.NewBuilder("http://img.test"),
		Notifier:   f.notifier,
		Events:     f.events,
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, fakeGenerator{text: "Generated log."})

	a, err := f.svc.Analyze(context.Background(), " https://github.com/ghost/spectre ", "")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/ghost/spectre", a.GitHubURL)
	assert.Equal(t, "spectre", a.SuggestedTitle)
	assert.Equal(t, 89, a.Vitality.Total)
	assert.Equal(t, "active", a.Status)
	assert.Equal(t, "Generated log.", a.GhostLog)
	assert.Equal(t, "Generated log.", a.ThumbnailPrompt)
	assert.True(t, strings.HasPrefix(a.ThumbnailURL, "http://img.test/prompt/Generated%20log."))
}

func TestAnalyze_Unavailable(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Analyze(context.Background(), "https://github.com/ghost/missing", "")
	assert.ErrorIs(t, err, ErrRepoUnavailable)

	_, err = f.svc.Analyze(context.Background(), "not a url", "")
	assert.ErrorIs(t, err, ErrRepoUnavailable)
}

func TestAnalyze_FallbackWithoutGenerator(t *testing.T) {
	f := newFixture(t, nil)

	a, err := f.svc.Analyze(context.Background(), "https://github.com/ghost/spectre", "manual words")
	require.NoError(t, err)
	assert.Equal(t, llm.FallbackGhostLog("spectre", "haunted CLI"), a.GhostLog)
	assert.Equal(t, llm.FallbackThumbnailPrompt, a.ThumbnailPrompt)
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, fakeGenerator{text: "Generated log."})
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{
		GitHubURL: "https://github.com/ghost/relic",
		Title:     "  Relic  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Relic", p.Title)
	assert.Equal(t, "@wraith_senior_123", p.CreatorName)
	assert.Equal(t, "senior@example.com", p.CreatorEmail)
	assert.Equal(t, "Generated log.", p.GhostLog)
	assert.Equal(t, models.ProjectStatusHaunted, p.Status)
	assert.Equal(t, 41, p.VitalityScore)
	assert.NotEmpty(t, p.ThumbnailURL)

	stored, err := f.store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, stored.Title)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notification{f.creator.UID, "New Soul Captured!"}, f.notifier.sent[0])
	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.ProjectCreated, f.events.events[0].Kind)
}

func TestSubmit_KeepsEditedGhostLog(t *testing.T) {
	f := newFixture(t, fakeGenerator{text: "Generated log."})

	p, err := f.svc.Submit(context.Background(), f.creator, SubmitInput{
		GitHubURL:    "https://github.com/ghost/spectre",
		Title:        "Spectre",
		GhostLog:     "Hand-written log.",
		ThumbnailURL: "http://img.test/x",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hand-written log.", p.GhostLog)
	assert.Equal(t, "http://img.test/x", p.ThumbnailURL)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, nil, SubmitInput{Title: "x"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: " "})
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/nope", Title: "Nope"})
	assert.ErrorIs(t, err, ErrRepoUnavailable)
}

func TestSearchAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)

	found, err := f.svc.Search(ctx, "SPECTR")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	mine, err := f.svc.ListByCreator(ctx, f.creator)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	err = f.svc.Delete(ctx, &models.User{UID: "someone-else"}, p.ID)
	assert.ErrorIs(t, err, ErrNotCreator)

	require.NoError(t, f.svc.Delete(ctx, f.creator, p.ID))
	_, err = f.svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)

	changed, err := f.svc.Refresh(ctx, p)
	require.NoError(t, err)
	assert.False(t, changed, "nothing moved on GitHub")

	f.gh.set("ghost/spectre", &git.RepoStats{
		Name: "spectre", Stars: 300, Forks: 20, Language: "Go",
		LastUpdated: fixedNow.Add(-200 * 24 * time.Hour),
	})
	changed, err = f.svc.Refresh(ctx, p)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := f.store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, stored.Stars)
	// 50 + 20 + 4 - 10
	assert.Equal(t, 64, stored.VitalityScore)
	assert.Equal(t, models.ProjectStatusDormant, stored.Status)
}

func TestRefreshByID_CreatorOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)

	_, _, err = f.svc.RefreshByID(ctx, &models.User{UID: "other"}, p.ID)
	assert.ErrorIs(t, err, ErrNotCreator)

	got, _, err := f.svc.RefreshByID(ctx, f.creator, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestRefreshAll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/relic", Title: "Relic"})
	require.NoError(t, err)

	// Relic disappears from GitHub; Spectre gains stars.
	f.gh.mu.Lock()
	delete(f.gh.repos, "ghost/relic")
	f.gh.repos["ghost/spectre"].Stars = 500
	f.gh.mu.Unlock()

	res, err := f.svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 2)
}

func TestMigrateCreatorHandles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)
	legacy := &models.Project{Title: "Orphan", GitHubURL: "https://github.com/ghost/relic", CreatorName: "Real Name"}
	require.NoError(t, f.store.CreateProject(ctx, legacy))

	res, err := f.svc.MigrateCreatorHandles(ctx)
	require.NoError(t, err)
	assert.Equal(t, &MigrationResult{Updated: 2}, res)

	got, err := f.store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^@ghost_senior_[0-9]{3}$`, got.CreatorName)

	orphan, err := f.store.GetProject(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, AnonymousHandle, orphan.CreatorName)
}

func TestTheme(t *testing.T) {
	tests := map[string]string{
		"":               "Default",
		"Rust API":       "Circuit",
		"Neural Painter": "Quantum",
		"Chain Walker":   "Quantum",
		"CryptoVault":    "Shield",
		"TimeseriesDB":   "Data",
		"mystery":        "Cyber",
		"portfolio":      "Ice",
	}
	for title, want := range tests {
		assert.Equal(t, want, Theme(title), title)
	}
}

func TestDelete_EventConcernsRequesters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)

	junior := &models.User{Email: "junior@example.com", Name: "Junior", GhostHandle: "@shade_junior_456"}
	require.NoError(t, f.store.CreateUser(ctx, junior))
	require.NoError(t, f.store.CreateInterest(ctx, &models.Interest{
		ProjectID:    p.ID,
		ProjectTitle: p.Title,
		GitHubURL:    p.GitHubURL,
		SeniorUID:    f.creator.UID,
		SeniorEmail:  "senior@example.com",
		JuniorUID:    junior.UID,
		JuniorName:   junior.Name,
		JuniorEmail:  junior.Email,
		Message:      "Let me haunt it",
		Status:       models.InterestStatusPending,
	}))

	require.NoError(t, f.svc.Delete(ctx, f.creator, p.ID))

	sent, err := f.store.ListInterests(ctx, store.InterestListFilter{JuniorUID: junior.UID})
	require.NoError(t, err)
	assert.Empty(t, sent, "requests cascade with the project")

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, events.ProjectDeleted, last.Kind)
	assert.True(t, last.Concerns(f.creator.UID))
	assert.True(t, last.Concerns(junior.UID))
}

// failingUpdates rejects every project update.
type failingUpdates struct {
	store.Store
}

func (failingUpdates) UpdateProject(context.Context, *models.Project) error {
	return errors.New("disk full")
}

func TestRefresh_FailedUpdateLeavesProjectUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.creator, SubmitInput{GitHubURL: "https://github.com/ghost/spectre", Title: "Spectre"})
	require.NoError(t, err)
	before := *p

	f.gh.repos["ghost/spectre"].LastUpdated = fixedNow.Add(-400 * 24 * time.Hour)
	f.gh.repos["ghost/spectre"].Stars = 900

	svc := NewService(Deps{Store: failingUpdates{f.store}, GitHub: f.gh})
	svc.now = f.svc.now

	changed, err := svc.Refresh(ctx, p)
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, before, *p)

	res, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, before.VitalityScore, res.Results[0].Vitality, "unsaved vitality is not reported")
}
