package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/vault"
	"github.com/joescharf/ghostvault/internal/vitality"
)

// --- Auth ---

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, u, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u})
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request, _ *models.User) {
	if err := s.auth.SignOut(r.Context(), auth.ExtractToken(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Profile ---

func (s *Server) getMe(w http.ResponseWriter, r *http.Request, user *models.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request, user *models.User) {
	var upd auth.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.auth.UpdateProfile(r.Context(), user, upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.notify.RegisterDevice(r.Context(), user, req.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.vault.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.vault.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) analyzeProject(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req struct {
		GitHubURL   string `json:"githubUrl"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.GitHubURL) == "" {
		writeError(w, http.StatusBadRequest, "githubUrl is required")
		return
	}
	a, err := s.vault.Analyze(r.Context(), req.GitHubURL, req.Description)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request, user *models.User) {
	var in vault.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.vault.Submit(r.Context(), user, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := s.vault.Delete(r.Context(), user, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshProject(w http.ResponseWriter, r *http.Request, user *models.User) {
	p, changed, err := s.vault.RefreshByID(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vault.RefreshResult{
		ID:       p.ID,
		Title:    p.Title,
		Changed:  changed,
		Vitality: p.VitalityScore,
	})
}

func (s *Server) refreshAllProjects(w http.ResponseWriter, r *http.Request, _ *models.User) {
	res, err := s.vault.RefreshAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) projectContact(w http.ResponseWriter, r *http.Request, user *models.User) {
	c, err := s.interests.Contact(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Interests ---

func (s *Server) projectInterestStatus(w http.ResponseWriter, r *http.Request, user *models.User) {
	id := r.PathValue("id")
	if _, err := s.vault.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := s.interests.StatusFor(r.Context(), user, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"projectId": id, "status": status})
}

func (s *Server) createInterest(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	i, err := s.interests.Create(r.Context(), user, r.PathValue("id"), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

func (s *Server) sentInterests(w http.ResponseWriter, r *http.Request, user *models.User) {
	list, err := s.interests.Sent(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Interest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) incomingInterests(w http.ResponseWriter, r *http.Request, user *models.User) {
	list, err := s.interests.Incoming(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Interest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) decideInterest(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req struct {
		Status models.InterestStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	i, err := s.interests.Decide(r.Context(), user, r.PathValue("id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request, user *models.User) {
	d, err := s.interests.Dashboard(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Notifications ---

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request, user *models.User) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := s.notify.List(r.Context(), user, unread)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := s.notify.MarkRead(r.Context(), user, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Vitality ---

type vitalityResponse struct {
	*vitality.Breakdown
	Status string `json:"status"`
	Band   string `json:"band"`
}

// vitality scores ad-hoc inputs. updated accepts RFC 3339 or YYYY-MM-DD;
// an empty value scores as unknown.
func (s *Server) vitality(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var in vitality.Inputs
	var err error

	if v := q.Get("stars"); v != "" {
		if in.Stars, err = strconv.Atoi(v); err != nil || in.Stars < 0 {
			writeError(w, http.StatusBadRequest, "stars must be a non-negative integer")
			return
		}
	}
	if v := q.Get("forks"); v != "" {
		if in.Forks, err = strconv.Atoi(v); err != nil || in.Forks < 0 {
			writeError(w, http.StatusBadRequest, "forks must be a non-negative integer")
			return
		}
	}
	if v := q.Get("updated"); v != "" {
		if in.LastUpdated, err = parseTime(v); err != nil {
			writeError(w, http.StatusBadRequest, "updated must be RFC 3339 or YYYY-MM-DD")
			return
		}
	}

	now := time.Now()
	b := vitality.Compute(in, now)
	writeJSON(w, http.StatusOK, vitalityResponse{
		Breakdown: b,
		Status:    string(vitality.StatusFor(in.LastUpdated, now)),
		Band:      vitality.Band(b.Total),
	})
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
