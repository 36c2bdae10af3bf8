package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ghostvault/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access and avoids "database is locked" under HTTP load.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Projects ---

const projectColumns = `id, title, github_url, creator_uid, creator_name, creator_email, description, ghost_log, thumbnail_url,
	vitality_score, status, stars, forks, language, last_updated, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	var status string
	err := row.Scan(&p.ID, &p.Title, &p.GitHubURL, &p.CreatorUID, &p.CreatorName, &p.CreatorEmail, &p.Description,
		&p.GhostLog, &p.ThumbnailURL, &p.VitalityScore, &status, &p.Stars, &p.Forks, &p.Language,
		&p.LastUpdated, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.ProjectStatus(status)
	return p, nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	p.CreatorEmail = strings.ToLower(p.CreatorEmail)
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.GitHubURL, p.CreatorUID, p.CreatorName, p.CreatorEmail, p.Description,
		p.GhostLog, p.ThumbnailURL, p.VitalityScore, string(p.Status), p.Stars, p.Forks, p.Language,
		p.LastUpdated.UTC(), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create project %s: %w", p.ID, ErrDuplicate)
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, filter ProjectListFilter) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var conditions []string
	var args []any

	if filter.CreatorUID != "" {
		conditions = append(conditions, "creator_uid = ?")
		args = append(args, filter.CreatorUID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	needle := strings.ToLower(strings.TrimSpace(filter.Query))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if !matchesQuery(p, needle) {
			continue
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// matchesQuery reports whether needle (already lowercased) is a literal
// substring of the title, ghost log or creator handle. SQLite's lower()
// only folds ASCII, so matching happens here.
func matchesQuery(p *models.Project, needle string) bool {
	if needle == "" {
		return true
	}
	for _, field := range []string{p.Title, p.GhostLog, p.CreatorName} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	p.CreatorEmail = strings.ToLower(p.CreatorEmail)
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET title=?, github_url=?, creator_uid=?, creator_name=?, creator_email=?, description=?, ghost_log=?,
		thumbnail_url=?, vitality_score=?, status=?, stars=?, forks=?, language=?, last_updated=?, updated_at=?
		WHERE id=?`,
		p.Title, p.GitHubURL, p.CreatorUID, p.CreatorName, p.CreatorEmail, p.Description, p.GhostLog,
		p.ThumbnailURL, p.VitalityScore, string(p.Status), p.Stars, p.Forks, p.Language, p.LastUpdated.UTC(), p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Users ---

const userColumns = `uid, email, name, ghost_handle, linkedin_username, device_token, password_hash, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.UID, &u.Email, &u.Name, &u.GhostHandle, &u.LinkedInUsername, &u.DeviceToken,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.UID == "" {
		u.UID = newULID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UID, u.Email, u.Name, u.GhostHandle, u.LinkedInUsername, u.DeviceToken, u.PasswordHash,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, uid string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = ?`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET email=?, name=?, ghost_handle=?, linkedin_username=?, device_token=?, password_hash=?, updated_at=?
		WHERE uid=?`,
		u.Email, u.Name, u.GhostHandle, u.LinkedInUsername, u.DeviceToken, u.PasswordHash, u.UpdatedAt, u.UID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %s: %w", u.UID, ErrNotFound)
	}
	return nil
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.LastUsedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_uid, expires_at, last_used_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.Token, sess.UserUID, sess.ExpiresAt.Unix(), sess.LastUsedAt, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns an unexpired session; expired tokens report ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	sess := &models.Session{}
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_uid, expires_at, last_used_at, created_at FROM sessions WHERE token = ? AND expires_at > ?`,
		token, time.Now().Unix(),
	).Scan(&sess.Token, &sess.UserUID, &expires, &sess.LastUsedAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	return sess, nil
}

func (s *SQLiteStore) TouchSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_used_at = ? WHERE token = ?`, time.Now().UTC(), token)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// --- Interests ---

const interestColumns = `id, project_id, project_title, github_url, senior_uid, senior_email, senior_name,
	junior_uid, junior_name, junior_email, message, status, created_at, updated_at`

func scanInterest(row rowScanner) (*models.Interest, error) {
	i := &models.Interest{}
	var status string
	err := row.Scan(&i.ID, &i.ProjectID, &i.ProjectTitle, &i.GitHubURL, &i.SeniorUID, &i.SeniorEmail, &i.SeniorName,
		&i.JuniorUID, &i.JuniorName, &i.JuniorEmail, &i.Message, &status, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.Status = models.InterestStatus(status)
	return i, nil
}

// CreateInterest inserts a request. A second request by the same junior
// on the same project fails with ErrDuplicate.
func (s *SQLiteStore) CreateInterest(ctx context.Context, i *models.Interest) error {
	if i.ID == "" {
		i.ID = newULID()
	}
	if i.Status == "" {
		i.Status = models.InterestStatusPending
	}
	i.SeniorEmail = strings.ToLower(i.SeniorEmail)
	i.JuniorEmail = strings.ToLower(i.JuniorEmail)
	now := time.Now().UTC()
	i.CreatedAt = now
	i.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interests (`+interestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.ProjectID, i.ProjectTitle, i.GitHubURL, i.SeniorUID, i.SeniorEmail, i.SeniorName,
		i.JuniorUID, i.JuniorName, i.JuniorEmail, i.Message, string(i.Status), i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("interest on project %s: %w", i.ProjectID, ErrDuplicate)
		}
		return fmt.Errorf("create interest: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetInterest(ctx context.Context, id string) (*models.Interest, error) {
	i, err := scanInterest(s.db.QueryRowContext(ctx, `SELECT `+interestColumns+` FROM interests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("interest %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get interest: %w", err)
	}
	return i, nil
}

func (s *SQLiteStore) ListInterests(ctx context.Context, filter InterestListFilter) ([]*models.Interest, error) {
	query := `SELECT ` + interestColumns + ` FROM interests`
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.JuniorUID != "" {
		conditions = append(conditions, "junior_uid = ?")
		args = append(args, filter.JuniorUID)
	}
	// Legacy rows carry only the senior email, so uid and email are ORed.
	switch {
	case filter.SeniorUID != "" && filter.SeniorEmail != "":
		conditions = append(conditions, "(senior_uid = ? OR senior_email = ?)")
		args = append(args, filter.SeniorUID, strings.ToLower(filter.SeniorEmail))
	case filter.SeniorUID != "":
		conditions = append(conditions, "senior_uid = ?")
		args = append(args, filter.SeniorUID)
	case filter.SeniorEmail != "":
		conditions = append(conditions, "senior_email = ?")
		args = append(args, strings.ToLower(filter.SeniorEmail))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interests []*models.Interest
	for rows.Next() {
		i, err := scanInterest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		interests = append(interests, i)
	}
	return interests, rows.Err()
}

func (s *SQLiteStore) UpdateInterestStatus(ctx context.Context, id string, status models.InterestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE interests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update interest status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("interest %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Notifications ---

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = newULID()
	}
	n.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_uid, title, body, link, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserUID, n.Title, n.Body, n.Link, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, userUID string, unreadOnly bool) ([]*models.Notification, error) {
	query := `SELECT id, user_uid, title, body, link, read_at, created_at FROM notifications WHERE user_uid = ?`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserUID, &n.Title, &n.Body, &n.Link, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead marks one of the user's notifications read.
// Notifications owned by someone else are reported as not found.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userUID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_uid = ?`,
		time.Now().UTC(), id, userUID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
