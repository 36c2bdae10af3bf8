package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/metrics"
)

// DefaultBaseURL is the EmailJS REST API.
const DefaultBaseURL = "https://api.emailjs.com"

const sendPath = "/api/v1.0/email/send"

// Config holds EmailJS credentials and template ids.
type Config struct {
	ServiceID          string
	InterestTemplateID string
	ApprovalTemplateID string
	PublicKey          string
	PrivateKey         string // optional access token
	BaseURL            string
	Timeout            time.Duration
}

// Configured reports whether enough is set to send mail.
func (c Config) Configured() bool {
	return c.ServiceID != "" && c.PublicKey != ""
}

// HauntEmail tells a creator that someone wants to take over their project.
type HauntEmail struct {
	ToEmail      string
	ProjectTitle string
	FromName     string
	FromEmail    string
	Message      string
}

// ApprovalEmail tells a requester that their request was approved.
type ApprovalEmail struct {
	ToEmail      string
	ToName       string
	ProjectTitle string
	GitHubURL    string
	CreatorName  string
	CreatorEmail string
}

// Mailer sends the transactional emails of the request workflow.
type Mailer interface {
	SendHaunt(ctx context.Context, e HauntEmail) error
	SendApproval(ctx context.Context, e ApprovalEmail) error
}

// EmailJS sends mail through the EmailJS REST API.
type EmailJS struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewEmailJS returns an EmailJS mailer. When cfg is not configured every
// send is a logged no-op.
func NewEmailJS(cfg Config, logger *zap.Logger) *EmailJS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailJS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

func (m *EmailJS) SendHaunt(ctx context.Context, e HauntEmail) error {
	return m.send(ctx, "haunt", m.cfg.InterestTemplateID, map[string]string{
		"from_name":     e.FromName,
		"from_email":    e.FromEmail,
		"message":       e.Message,
		"project_title": e.ProjectTitle,
		"to_email":      e.ToEmail,
	})
}

func (m *EmailJS) SendApproval(ctx context.Context, e ApprovalEmail) error {
	return m.send(ctx, "approval", m.cfg.ApprovalTemplateID, map[string]string{
		"to_email":      e.ToEmail,
		"to_name":       e.ToName,
		"project_title": e.ProjectTitle,
		"github_url":    e.GitHubURL,
		"creator_name":  e.CreatorName,
		"creator_email": e.CreatorEmail,
	})
}

func (m *EmailJS) send(ctx context.Context, template, templateID string, params map[string]string) error {
	if !m.cfg.Configured() || templateID == "" {
		m.logger.Info("emailjs not configured, skipping email", zap.String("template", template))
		metrics.Get().Emails.WithLabelValues(template, "skipped").Inc()
		return nil
	}

	body, err := json.Marshal(sendRequest{
		ServiceID:      m.cfg.ServiceID,
		TemplateID:     templateID,
		UserID:         m.cfg.PublicKey,
		AccessToken:    m.cfg.PrivateKey,
		TemplateParams: params,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		metrics.Get().Emails.WithLabelValues(template, "failed").Inc()
		return fmt.Errorf("send %s email: %w", template, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Get().Emails.WithLabelValues(template, "failed").Inc()
		return fmt.Errorf("send %s email: status %d: %s", template, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	metrics.Get().Emails.WithLabelValues(template, "sent").Inc()
	m.logger.Debug("email sent", zap.String("template", template))
	return nil
}
