package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/interest"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/notify"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/thumbnail"
	"github.com/joescharf/ghostvault/internal/vault"
)

type fakeGitHub struct {
	repos map[string]*git.RepoStats
}

func (f *fakeGitHub) RepoStats(_ context.Context, owner, repo string) (*git.RepoStats, error) {
	s, ok := f.repos[owner+"/"+repo]
	if !ok {
		return nil, errors.New("status 404")
	}
	cp := *s
	return &cp, nil
}

func setupTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	hub := events.NewHub(16)
	t.Cleanup(hub.Close)

	gh := &fakeGitHub{repos: map[string]*git.RepoStats{
		"ghost/spectre": {
			Name: "spectre", Description: "haunted CLI", Stars: 150, Forks: 20,
			Language: "Go", LastUpdated: time.Now().Add(-48 * time.Hour),
		},
	}}

	authSvc := auth.NewService(s, 0, nil)
	authSvc.HashCost = bcrypt.MinCost
	notifySvc := notify.NewService(s, hub, nil)

	srv := NewServer(Deps{
		Auth: authSvc,
		Vault: vault.NewService(vault.Deps{
			Store:      s,
			GitHub:     gh,
			Thumbnails: thumbnail.NewBuilder("http://img.test"),
			Notifier:   notifySvc,
			Events:     hub,
		}),
		Interests: interest.NewService(interest.Deps{Store: s, Notifier: notifySvc, Events: hub}),
		Notify:    notifySvc,
		Hub:       hub,
		Heartbeat: 50 * time.Millisecond,
	})
	return srv.Router(), s
}

func do(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// signUp registers a user and returns a bearer token for them.
func signUp(t *testing.T, router http.Handler, email, name string) string {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/auth/signup", "",
		fmt.Sprintf(`{"email":%q,"password":"secret123","name":%q}`, email, name))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, "POST", "/api/v1/auth/signin", "",
		fmt.Sprintf(`{"email":%q,"password":"secret123"}`, email))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[signInResponse](t, w).Token
}

func createProject(t *testing.T, router http.Handler, token string) *models.Project {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/projects", token,
		`{"githubUrl":"https://github.com/ghost/spectre","title":"Spectre","ghostLog":"It still whispers."}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*models.Project](t, w)
}

func TestHealthz(t *testing.T) {
	router, _ := setupTestServer(t)
	w := do(t, router, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupTestServer(t)
	do(t, router, "GET", "/healthz", "", "")

	w := do(t, router, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ghost_http_requests_total")
}

func TestCORS_Preflight(t *testing.T) {
	router, _ := setupTestServer(t)
	w := do(t, router, "OPTIONS", "/api/v1/projects", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRequestID(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "GET", "/healthz", "", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestAuthFlow(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "POST", "/api/v1/auth/signup", "", `{"email":"Casper@Example.com","password":"secret123","name":"Casper"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	u := decode[map[string]any](t, w)
	assert.Equal(t, "casper@example.com", u["email"])
	assert.NotContains(t, u, "passwordHash")
	assert.Regexp(t, `^@\w+_casper_\d{3}$`, u["ghostHandle"])

	w = do(t, router, "POST", "/api/v1/auth/signup", "", `{"email":"casper@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, "POST", "/api/v1/auth/signin", "", `{"email":"casper@example.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, "POST", "/api/v1/auth/signin", "", `{"email":"casper@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[signInResponse](t, w).Token
	require.NotEmpty(t, token)

	w = do(t, router, "GET", "/api/v1/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Casper", decode[*models.User](t, w).Name)

	w = do(t, router, "POST", "/api/v1/auth/signout", token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, "GET", "/api/v1/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"not signed in"}`, w.Body.String())
}

func TestSignUp_Validation(t *testing.T) {
	router, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"bad email", `{"email":"not-an-email","password":"secret123"}`, http.StatusBadRequest},
		{"short password", `{"email":"a@b.io","password":"123"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/auth/signup", "", tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestUpdateMe(t *testing.T) {
	router, _ := setupTestServer(t)
	token := signUp(t, router, "casper@example.com", "Casper")

	w := do(t, router, "PUT", "/api/v1/me", token, `{"name":"Friendly Casper","linkedInUsername":"@casper"}`)
	require.Equal(t, http.StatusOK, w.Code)
	u := decode[*models.User](t, w)
	assert.Equal(t, "Friendly Casper", u.Name)
	assert.Equal(t, "casper", u.LinkedInUsername)
}

func TestRegisterDevice(t *testing.T) {
	router, s := setupTestServer(t)
	token := signUp(t, router, "casper@example.com", "Casper")

	w := do(t, router, "POST", "/api/v1/me/device", token, `{"token":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/me/device", token, `{"token":"fcm-token-1"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	u, err := s.GetUserByEmail(context.Background(), "casper@example.com")
	require.NoError(t, err)
	assert.Equal(t, "fcm-token-1", u.DeviceToken)
}

func TestProjects_RequireAuth(t *testing.T) {
	router, _ := setupTestServer(t)
	w := do(t, router, "POST", "/api/v1/projects", "", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, "POST", "/api/v1/projects", "bogus-token", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListProjects_Empty(t *testing.T) {
	router, _ := setupTestServer(t)
	w := do(t, router, "GET", "/api/v1/projects", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAnalyzeProject(t *testing.T) {
	router, _ := setupTestServer(t)
	token := signUp(t, router, "senior@example.com", "Senior")

	w := do(t, router, "POST", "/api/v1/projects/analyze", token, `{"githubUrl":"https://github.com/ghost/spectre"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	a := decode[vault.Analysis](t, w)
	assert.Equal(t, "spectre", a.SuggestedTitle)
	assert.Equal(t, "active", a.Status)
	assert.NotEmpty(t, a.GhostLog)
	assert.True(t, strings.HasPrefix(a.ThumbnailURL, "http://img.test/prompt/"))

	w = do(t, router, "POST", "/api/v1/projects/analyze", token, `{"githubUrl":"https://github.com/ghost/missing"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(t, router, "POST", "/api/v1/projects/analyze", token, `{"githubUrl":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectLifecycle(t *testing.T) {
	router, _ := setupTestServer(t)
	senior := signUp(t, router, "senior@example.com", "Senior")
	junior := signUp(t, router, "junior@example.com", "Junior")

	p := createProject(t, router, senior)
	assert.Equal(t, "Spectre", p.Title)
	assert.Equal(t, "It still whispers.", p.GhostLog)
	assert.Equal(t, models.ProjectStatusActive, p.Status)
	assert.Equal(t, 150, p.Stars)

	w := do(t, router, "GET", "/api/v1/projects/"+p.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode[map[string]any](t, w), "creatorEmail")

	w = do(t, router, "GET", "/api/v1/projects?q=whispers", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*models.Project](t, w), 1)

	w = do(t, router, "GET", "/api/v1/projects?q=nothing-here", "", "")
	assert.Empty(t, decode[[]*models.Project](t, w))

	w = do(t, router, "POST", "/api/v1/projects", senior, `{"githubUrl":"https://github.com/ghost/spectre","title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/projects/"+p.ID+"/refresh", junior, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, "POST", "/api/v1/projects/"+p.ID+"/refresh", senior, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, p.ID, decode[vault.RefreshResult](t, w).ID)

	w = do(t, router, "POST", "/api/v1/projects/refresh", senior, "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[vault.RefreshAllResult](t, w)
	assert.Equal(t, 1, all.Total)
	assert.Equal(t, 0, all.Failed)

	w = do(t, router, "DELETE", "/api/v1/projects/"+p.ID, junior, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, "DELETE", "/api/v1/projects/"+p.ID, senior, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, "GET", "/api/v1/projects/"+p.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInterestWorkflow(t *testing.T) {
	router, _ := setupTestServer(t)
	senior := signUp(t, router, "senior@example.com", "Senior")
	junior := signUp(t, router, "junior@example.com", "Junior")
	p := createProject(t, router, senior)
	base := "/api/v1/projects/" + p.ID

	w := do(t, router, "GET", base+"/interests", junior, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", decode[map[string]string](t, w)["status"])

	w = do(t, router, "POST", base+"/interests", junior, `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", base+"/interests", senior, `{"message":"mine"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", base+"/interests", junior, `{"message":"I can bring it back."}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[*models.Interest](t, w)
	assert.Equal(t, models.InterestStatusPending, req.Status)

	w = do(t, router, "POST", base+"/interests", junior, `{"message":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, "GET", base+"/contact", junior, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, "GET", "/api/v1/interests/incoming", senior, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*models.Interest](t, w), 1)

	w = do(t, router, "GET", "/api/v1/interests/sent", junior, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*models.Interest](t, w), 1)

	w = do(t, router, "PUT", "/api/v1/interests/"+req.ID, junior, `{"status":"approved"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, "PUT", "/api/v1/interests/"+req.ID, senior, `{"status":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "PUT", "/api/v1/interests/missing", senior, `{"status":"approved"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "PUT", "/api/v1/interests/"+req.ID, senior, `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.InterestStatusApproved, decode[*models.Interest](t, w).Status)

	w = do(t, router, "GET", base+"/contact", junior, "")
	require.Equal(t, http.StatusOK, w.Code)
	c := decode[*models.Contact](t, w)
	assert.Equal(t, "senior@example.com", c.Email)
	assert.Equal(t, "https://github.com/ghost/spectre", c.GitHubURL)

	w = do(t, router, "GET", "/api/v1/dashboard", junior, "")
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[interest.Dashboard](t, w)
	require.Len(t, d.Sent, 1)
	assert.Equal(t, models.InterestStatusApproved, d.Sent[0].Status)
	assert.Empty(t, d.Incoming)
}

func TestNotifications(t *testing.T) {
	router, _ := setupTestServer(t)
	senior := signUp(t, router, "senior@example.com", "Senior")
	junior := signUp(t, router, "junior@example.com", "Junior")
	p := createProject(t, router, senior)

	w := do(t, router, "POST", "/api/v1/projects/"+p.ID+"/interests", junior, `{"message":"hi"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, "GET", "/api/v1/notifications?unread=true", senior, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]*models.Notification](t, w)
	require.Len(t, list, 2, "listing plus incoming request")
	assert.Equal(t, "Someone wants to haunt Spectre", list[0].Title)

	w = do(t, router, "POST", "/api/v1/notifications/"+list[0].ID+"/read", junior, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "cannot mark another user's notification")

	w = do(t, router, "POST", "/api/v1/notifications/"+list[0].ID+"/read", senior, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, "GET", "/api/v1/notifications?unread=true", senior, "")
	assert.Len(t, decode[[]*models.Notification](t, w), 1)

	w = do(t, router, "GET", "/api/v1/notifications", senior, "")
	assert.Len(t, decode[[]*models.Notification](t, w), 2)
}

func TestVitality(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "GET", "/api/v1/vitality?stars=100&forks=50", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[map[string]any](t, w)
	assert.Equal(t, float64(60), v["total"])
	assert.Equal(t, float64(-10), v["recency"])
	assert.Equal(t, "haunted", v["status"])
	assert.Equal(t, "medium", v["band"])

	updated := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	w = do(t, router, "GET", "/api/v1/vitality?stars=100&forks=50&updated="+updated, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[map[string]any](t, w)
	assert.Equal(t, float64(90), v["total"])
	assert.Equal(t, "active", v["status"])
	assert.Equal(t, "high", v["band"])

	for _, q := range []string{"stars=-1", "forks=abc", "updated=yesterday"} {
		w = do(t, router, "GET", "/api/v1/vitality?"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestDashboardStream(t *testing.T) {
	router, _ := setupTestServer(t)
	senior := signUp(t, router, "senior@example.com", "Senior")
	junior := signUp(t, router, "junior@example.com", "Junior")
	p := createProject(t, router, senior)

	ts := httptest.NewServer(router)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/dashboard/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+senior)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	next := func(prefix string) string {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream closed")
				if strings.HasPrefix(l, prefix) {
					return strings.TrimPrefix(l, prefix)
				}
			case <-deadline:
				t.Fatalf("no %q line", prefix)
			}
		}
	}

	assert.Equal(t, "dashboard", next("event: "))
	var d interest.Dashboard
	require.NoError(t, json.Unmarshal([]byte(next("data: ")), &d))
	assert.Empty(t, d.Incoming)

	w := do(t, router, "POST", "/api/v1/projects/"+p.ID+"/interests", junior, `{"message":"hi"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// The notification and the interest each produce a snapshot; the
	// interest one carries the new request.
	for {
		kind := next("event: ")
		require.NoError(t, json.Unmarshal([]byte(next("data: ")), &d))
		if kind == string(events.InterestCreated) {
			break
		}
	}
	require.Len(t, d.Incoming, 1)
	assert.Equal(t, "hi", d.Incoming[0].Message)

	assert.Equal(t, "", next(": ping"), "heartbeat")
}

func TestDashboardStream_RequiresAuth(t *testing.T) {
	router, _ := setupTestServer(t)
	w := do(t, router, "GET", "/api/v1/dashboard/stream", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("project x: %w", store.ErrNotFound), http.StatusNotFound},
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{vault.ErrNotCreator, http.StatusForbidden},
		{interest.ErrNotSenior, http.StatusForbidden},
		{interest.ErrContactLocked, http.StatusForbidden},
		{interest.ErrAlreadyRequested, http.StatusConflict},
		{auth.ErrEmailTaken, http.StatusConflict},
		{store.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("%w: status 404", vault.ErrRepoUnavailable), http.StatusBadGateway},
		{interest.ErrMessageRequired, http.StatusBadRequest},
		{notify.ErrEmptyToken, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
