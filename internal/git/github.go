package git

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const (
	defaultDescription = "No description available"
	defaultLanguage    = "Unknown"
)

// RepoStats is the public metadata of a GitHub repository.
type RepoStats struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Watchers    int       `json:"watchers"`
	OpenIssues  int       `json:"openIssues"`
	Language    string    `json:"language"`
	LastUpdated time.Time `json:"lastUpdated"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GitHubClient fetches repository metadata.
type GitHubClient interface {
	RepoStats(ctx context.Context, owner, repo string) (*RepoStats, error)
}

// GitHubConfig configures the REST client.
type GitHubConfig struct {
	Token   string // optional; raises rate limits
	BaseURL string // optional; GitHub Enterprise or test servers
	Timeout time.Duration
}

// RealGitHubClient implements GitHubClient on the GitHub REST API.
type RealGitHubClient struct {
	gh *github.Client
}

// NewGitHubClient builds a client. Unauthenticated access is allowed.
func NewGitHubClient(ctx context.Context, cfg GitHubConfig) (*RealGitHubClient, error) {
	var hc *http.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		hc = oauth2.NewClient(ctx, ts)
	} else {
		hc = &http.Client{}
	}
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}

	gh := github.NewClient(hc)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		gh.BaseURL = u
	}
	return &RealGitHubClient{gh: gh}, nil
}

func (c *RealGitHubClient) RepoStats(ctx context.Context, owner, repo string) (*RepoStats, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("github repos/%s/%s: status %d: %w", owner, repo, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("github repos/%s/%s: %w", owner, repo, err)
	}

	stats := &RepoStats{
		Name:        r.GetName(),
		Description: r.GetDescription(),
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		Watchers:    r.GetWatchersCount(),
		OpenIssues:  r.GetOpenIssuesCount(),
		Language:    r.GetLanguage(),
		LastUpdated: r.GetUpdatedAt().Time,
		CreatedAt:   r.GetCreatedAt().Time,
	}
	if stats.Description == "" {
		stats.Description = defaultDescription
	}
	if stats.Language == "" {
		stats.Language = defaultLanguage
	}
	return stats, nil
}

// FetchStats parses a GitHub URL and fetches its stats.
func FetchStats(ctx context.Context, client GitHubClient, githubURL string) (*RepoStats, error) {
	owner, repo, err := ExtractRepoInfo(githubURL)
	if err != nil {
		return nil, err
	}
	return client.RepoStats(ctx, owner, repo)
}
