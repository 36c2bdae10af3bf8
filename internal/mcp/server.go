package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/interest"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/vault"
	"github.com/joescharf/ghostvault/internal/vitality"
)

// Server exposes the vault as MCP tools.
type Server struct {
	store     store.Store
	vault     *vault.Service
	interests *interest.Service
	gh        git.GitHubClient
	version   string
	now       func() time.Time
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, v *vault.Service, i *interest.Service, gh git.GitHubClient, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, vault: v, interests: i, gh: gh, version: version, now: time.Now}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ghost", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.projectTool())
	srv.AddTool(s.vitalityTool())
	srv.AddTool(s.requestsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ghost_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghost_list_projects",
		mcp.WithDescription("List abandoned projects in the Ghost Vault, newest first. Returns id, title, GitHub URL, creator handle, status, vitality score and Ghost Log."),
		mcp.WithString("query", mcp.Description("Case-insensitive search over title, Ghost Log and creator handle")),
	)
	return tool, s.handleListProjects
}

type projectOut struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	GitHubURL     string `json:"githubUrl"`
	CreatorName   string `json:"creatorName"`
	Status        string `json:"status"`
	VitalityScore int    `json:"vitalityScore"`
	Band          string `json:"band"`
	GhostLog      string `json:"ghostLog"`
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.vault.Search(ctx, request.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}

	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = projectOut{
			ID:            p.ID,
			Title:         p.Title,
			GitHubURL:     p.GitHubURL,
			CreatorName:   p.CreatorName,
			Status:        string(p.Status),
			VitalityScore: p.VitalityScore,
			Band:          vitality.Band(p.VitalityScore),
			GhostLog:      p.GhostLog,
		}
	}
	return jsonResult(out)
}

// ghost_project
func (s *Server) projectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghost_project",
		mcp.WithDescription("Get one vault project by id with its stats and vitality band."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	)
	return tool, s.handleProject
}

func (s *Server) handleProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	p, err := s.vault.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get project: %v", err)), nil
	}

	return jsonResult(struct {
		ID            string    `json:"id"`
		Title         string    `json:"title"`
		GitHubURL     string    `json:"githubUrl"`
		CreatorName   string    `json:"creatorName"`
		Description   string    `json:"description,omitempty"`
		GhostLog      string    `json:"ghostLog"`
		ThumbnailURL  string    `json:"thumbnailUrl"`
		Status        string    `json:"status"`
		VitalityScore int       `json:"vitalityScore"`
		Band          string    `json:"band"`
		Stars         int       `json:"stars"`
		Forks         int       `json:"forks"`
		Language      string    `json:"language"`
		LastUpdated   time.Time `json:"lastUpdated"`
	}{
		ID:            p.ID,
		Title:         p.Title,
		GitHubURL:     p.GitHubURL,
		CreatorName:   p.CreatorName,
		Description:   p.Description,
		GhostLog:      p.GhostLog,
		ThumbnailURL:  p.ThumbnailURL,
		Status:        string(p.Status),
		VitalityScore: p.VitalityScore,
		Band:          vitality.Band(p.VitalityScore),
		Stars:         p.Stars,
		Forks:         p.Forks,
		Language:      p.Language,
		LastUpdated:   p.LastUpdated,
	})
}

// ghost_vitality
func (s *Server) vitalityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghost_vitality",
		mcp.WithDescription("Fetch live GitHub stats for a repository and compute its Vitality Score breakdown and status."),
		mcp.WithString("github_url", mcp.Required(), mcp.Description("GitHub repository URL")),
	)
	return tool, s.handleVitality
}

func (s *Server) handleVitality(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("github_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: github_url"), nil
	}
	if s.gh == nil {
		return mcp.NewToolResultError("GitHub client not configured"), nil
	}
	stats, err := git.FetchStats(ctx, s.gh, strings.TrimSpace(url))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not fetch repo: %v", err)), nil
	}

	now := s.now()
	b := vitality.Compute(vitality.Inputs{Stars: stats.Stars, Forks: stats.Forks, LastUpdated: stats.LastUpdated}, now)
	return jsonResult(struct {
		Stats    *git.RepoStats      `json:"stats"`
		Vitality *vitality.Breakdown `json:"vitality"`
		Status   string              `json:"status"`
		Band     string              `json:"band"`
	}{
		Stats:    stats,
		Vitality: b,
		Status:   string(vitality.StatusFor(stats.LastUpdated, now)),
		Band:     vitality.Band(b.Total),
	})
}

// ghost_requests
func (s *Server) requestsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghost_requests",
		mcp.WithDescription("List a user's sent and incoming project requests with their status."),
		mcp.WithString("email", mcp.Required(), mcp.Description("Account email")),
	)
	return tool, s.handleRequests
}

func (s *Server) handleRequests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := request.RequireString("email")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: email"), nil
	}
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("user not found: %s", email)), nil
	}
	d, err := s.interests.Dashboard(ctx, u)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list requests: %v", err)), nil
	}
	return jsonResult(d)
}
