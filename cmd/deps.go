package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/interest"
	"github.com/joescharf/ghostvault/internal/llm"
	"github.com/joescharf/ghostvault/internal/mail"
	"github.com/joescharf/ghostvault/internal/notify"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/thumbnail"
	"github.com/joescharf/ghostvault/internal/vault"
)

// app holds the wired services shared by commands.
type app struct {
	store     store.Store
	logger    *zap.Logger
	hub       *events.Hub
	github    git.GitHubClient
	auth      *auth.Service
	vault     *vault.Service
	interests *interest.Service
	notify    *notify.Service
}

var shared *app

// getApp opens the store and builds every service from config.
func getApp(ctx context.Context) (*app, error) {
	if shared != nil {
		return shared, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	log := getLogger()

	gh, err := git.NewGitHubClient(ctx, git.GitHubConfig{
		Token:   viper.GetString("github.token"),
		BaseURL: viper.GetString("github.base_url"),
	})
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	gen, err := newGenerator(ctx, log)
	if err != nil {
		return nil, err
	}

	ttl, err := time.ParseDuration(viper.GetString("auth.session_ttl"))
	if err != nil {
		return nil, fmt.Errorf("auth.session_ttl: %w", err)
	}

	shared = newApp(s, gh, gen, newMailer(log), ttl, log)
	return shared, nil
}

// newApp wires the services around a store and external clients.
func newApp(s store.Store, gh git.GitHubClient, gen llm.Generator, mailer mail.Mailer, ttl time.Duration, log *zap.Logger) *app {
	hub := events.NewHub(0)
	notifySvc := notify.NewService(s, hub, log.Named("notify"))

	return &app{
		store:  s,
		logger: log,
		hub:    hub,
		github: gh,
		auth:   auth.NewService(s, ttl, log.Named("auth")),
		vault: vault.NewService(vault.Deps{
			Store:      s,
			GitHub:     gh,
			Writer:     llm.NewWriter(gen, log.Named("llm")),
			Thumbnails: thumbnail.NewBuilder(viper.GetString("thumbnail.base_url")),
			Notifier:   notifySvc,
			Events:     hub,
			Logger:     log.Named("vault"),
		}),
		interests: interest.NewService(interest.Deps{
			Store:    s,
			Mailer:   mailer,
			Notifier: notifySvc,
			Events:   hub,
			Logger:   log.Named("interest"),
		}),
		notify: notifySvc,
	}
}

// newGenerator picks the text model from ai.provider. A provider without
// an API key yields nil, which makes the writer use fallback text.
func newGenerator(ctx context.Context, log *zap.Logger) (llm.Generator, error) {
	var gen llm.Generator
	switch provider := strings.ToLower(viper.GetString("ai.provider")); provider {
	case "gemini":
		key := viper.GetString("gemini.api_key")
		if key == "" {
			log.Info("gemini.api_key not set, using fallback Ghost Logs")
			return nil, nil
		}
		g, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{APIKey: key, Model: viper.GetString("gemini.model")})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		gen = g
	case "anthropic":
		key := viper.GetString("anthropic.api_key")
		if key == "" {
			log.Info("anthropic.api_key not set, using fallback Ghost Logs")
			return nil, nil
		}
		gen = llm.NewClient(key, viper.GetString("anthropic.model"))
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ai.provider %q (want gemini, anthropic or none)", provider)
	}

	if rate := viper.GetFloat64("ai.rate_limit"); rate > 0 {
		gen = llm.Limit(gen, rate, 1)
	}
	return gen, nil
}

func newMailer(log *zap.Logger) mail.Mailer {
	cfg := mail.Config{
		ServiceID:          viper.GetString("emailjs.service_id"),
		InterestTemplateID: viper.GetString("emailjs.interest_template_id"),
		ApprovalTemplateID: viper.GetString("emailjs.approval_template_id"),
		PublicKey:          viper.GetString("emailjs.public_key"),
		PrivateKey:         viper.GetString("emailjs.private_key"),
		BaseURL:            viper.GetString("emailjs.base_url"),
	}
	if !cfg.Configured() {
		log.Info("emailjs not configured, emails will be skipped")
	}
	return mail.NewEmailJS(cfg, log.Named("mail"))
}
