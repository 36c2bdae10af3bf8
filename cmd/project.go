package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/ghostvault/internal/git"
	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/output"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/vault"
	"github.com/joescharf/ghostvault/internal/vitality"
)

var (
	projectAs          string
	projectTitle       string
	projectDescription string
	projectGhostLog    string
	projectQuery       string
	projectCreator     string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage vault projects",
	Long:  "Analyze, list, refresh and remove abandoned projects in the Ghost Vault.",
}

var projectAnalyzeCmd = &cobra.Command{
	Use:   "analyze <github-url>",
	Short: "Preview a repo's stats, Vitality Score and Ghost Log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAnalyzeRun(cmd.Context(), args[0])
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <github-url>",
	Short: "List a project in the vault on behalf of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(cmd.Context(), args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List vault projects, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd.Context())
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectShowRun(cmd.Context(), args[0])
	},
}

var projectRefreshCmd = &cobra.Command{
	Use:   "refresh [id]",
	Short: "Re-fetch GitHub stats and recompute vitality",
	Long:  "Refresh one project, or every project when no id is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return projectRefreshOneRun(cmd.Context(), args[0])
		}
		return projectRefreshAllRun(cmd.Context())
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a project and its requests",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(cmd.Context(), args[0])
	},
}

func init() {
	projectAnalyzeCmd.Flags().StringVar(&projectDescription, "description", "", "Describe the thumbnail instead of using the Ghost Log")

	projectAddCmd.Flags().StringVar(&projectAs, "as", "", "Email of the creating user (required)")
	projectAddCmd.Flags().StringVar(&projectTitle, "title", "", "Project title (default: repo name)")
	projectAddCmd.Flags().StringVar(&projectDescription, "description", "", "Optional description")
	projectAddCmd.Flags().StringVar(&projectGhostLog, "ghost-log", "", "Ghost Log text (default: generated)")
	_ = projectAddCmd.MarkFlagRequired("as")

	projectListCmd.Flags().StringVarP(&projectQuery, "query", "q", "", "Search title, Ghost Log and creator handle")
	projectListCmd.Flags().StringVar(&projectCreator, "creator", "", "Only projects listed by this email")

	projectCmd.AddCommand(projectAnalyzeCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectRefreshCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectAnalyzeRun(ctx context.Context, githubURL string) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	res, err := a.vault.Analyze(ctx, githubURL, projectDescription)
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(res)
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(res.SuggestedTitle))
	fmt.Fprintf(ui.Out, "  Repo:       %s\n", res.GitHubURL)
	fmt.Fprintf(ui.Out, "  About:      %s\n", res.Stats.Description)
	fmt.Fprintf(ui.Out, "  Language:   %s\n", res.Stats.Language)
	fmt.Fprintf(ui.Out, "  Stars:      %d   Forks: %d\n", res.Stats.Stars, res.Stats.Forks)
	if !res.Stats.LastUpdated.IsZero() {
		fmt.Fprintf(ui.Out, "  Updated:    %s\n", timeAgo(res.Stats.LastUpdated))
	}
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(res.Status))
	fmt.Fprintf(ui.Out, "  Vitality:   %s  (base %.0f, stars %+.1f, forks %+.1f, recency %+.0f)\n",
		output.VitalityColor(res.Vitality.Total), res.Vitality.Base, res.Vitality.Stars, res.Vitality.Forks, res.Vitality.Recency)
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  Ghost Log:  %s\n", res.GhostLog)
	fmt.Fprintf(ui.Out, "  Thumbnail:  %s\n", res.ThumbnailURL)
	return nil
}

func projectAddRun(ctx context.Context, githubURL string) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	creator, err := userByEmail(ctx, a.store, projectAs)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(projectTitle)
	if title == "" {
		_, repo, err := git.ExtractRepoInfo(githubURL)
		if err != nil {
			return err
		}
		title = repo
	}

	if dryRun {
		ui.DryRunMsg("Would list %s as %q for %s", githubURL, title, creator.GhostHandle)
		return nil
	}

	p, err := a.vault.Submit(ctx, creator, vault.SubmitInput{
		GitHubURL:   githubURL,
		Title:       title,
		Description: projectDescription,
		GhostLog:    projectGhostLog,
	})
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(p)
	}
	ui.Success("Listed %s (%s) with vitality %s", output.Cyan(p.Title), p.ID, output.VitalityColor(p.VitalityScore))
	return nil
}

func projectListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	filter := store.ProjectListFilter{Query: projectQuery}
	if projectCreator != "" {
		u, err := userByEmail(ctx, s, projectCreator)
		if err != nil {
			return err
		}
		filter.CreatorUID = u.UID
	}
	projects, err := s.ListProjects(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON {
		if projects == nil {
			projects = []*models.Project{}
		}
		return ui.JSON(projects)
	}

	if len(projects) == 0 {
		ui.Info("No projects in the vault. Use 'ghost project add <github-url> --as <email>' to list one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Creator", "Status", "Vitality", "Stars", "Updated"})
	for _, p := range projects {
		updated := "-"
		if !p.LastUpdated.IsZero() {
			updated = timeAgo(p.LastUpdated)
		}
		table.Append([]string{
			p.ID,
			output.Cyan(output.Truncate(p.Title, 32)),
			output.Handle(p.CreatorName),
			output.StatusColor(string(p.Status)),
			output.VitalityColor(p.VitalityScore),
			fmt.Sprintf("%d", p.Stars),
			updated,
		})
	}
	return table.Render()
}

func projectShowRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	interests, err := s.ListInterests(ctx, store.InterestListFilter{ProjectID: p.ID})
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(p)
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Title))
	fmt.Fprintf(ui.Out, "  ID:         %s\n", p.ID)
	fmt.Fprintf(ui.Out, "  Repo:       %s\n", p.GitHubURL)
	fmt.Fprintf(ui.Out, "  Creator:    %s\n", output.Handle(p.CreatorName))
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", p.Description)
	}
	if p.Language != "" {
		fmt.Fprintf(ui.Out, "  Language:   %s\n", p.Language)
	}
	fmt.Fprintf(ui.Out, "  Stars:      %d   Forks: %d\n", p.Stars, p.Forks)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(p.Status)))
	fmt.Fprintf(ui.Out, "  Vitality:   %s (%s)\n", output.VitalityColor(p.VitalityScore), vitality.Band(p.VitalityScore))
	if !p.LastUpdated.IsZero() {
		fmt.Fprintf(ui.Out, "  Updated:    %s\n", timeAgo(p.LastUpdated))
	}
	fmt.Fprintf(ui.Out, "  Listed:     %s\n", timeAgo(p.CreatedAt))
	fmt.Fprintf(ui.Out, "  Theme:      %s\n", vault.Theme(p.Title))
	fmt.Fprintf(ui.Out, "  Requests:   %s\n", requestSummary(interests))
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  %s\n", p.GhostLog)
	return nil
}

// requestSummary counts interests by status, e.g. "2 pending, 1 approved".
func requestSummary(interests []*models.Interest) string {
	if len(interests) == 0 {
		return "none"
	}
	counts := map[models.InterestStatus]int{}
	for _, i := range interests {
		counts[i.Status]++
	}
	var parts []string
	for _, st := range []models.InterestStatus{models.InterestStatusPending, models.InterestStatusApproved, models.InterestStatusRejected} {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	return strings.Join(parts, ", ")
}

func projectRefreshOneRun(ctx context.Context, id string) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	p, err := a.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would refresh %s", p.Title)
		return nil
	}
	changed, err := a.vault.Refresh(ctx, p)
	if err != nil {
		return err
	}
	if changed {
		ui.Success("Refreshed %s: vitality %s, %s", output.Cyan(p.Title), output.VitalityColor(p.VitalityScore), output.StatusColor(string(p.Status)))
	} else {
		ui.Info("%s is up to date", output.Cyan(p.Title))
	}
	return nil
}

func projectRefreshAllRun(ctx context.Context) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would refresh every project")
		return nil
	}
	res, err := a.vault.RefreshAll(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(res)
	}
	for _, r := range res.Results {
		switch {
		case r.Error != "":
			ui.Warning("%s: %s", r.Title, r.Error)
		case r.Changed:
			ui.VerboseLog("%s: vitality %d", r.Title, r.Vitality)
		}
	}
	ui.Success("Refreshed %d of %d projects (%d failed)", res.Refreshed, res.Total, res.Failed)
	return nil
}

func projectRemoveRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would remove %s (%s) and its requests", p.Title, p.ID)
		return nil
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		return err
	}
	ui.Success("Removed %s", output.Cyan(p.Title))
	return nil
}

// userByEmail looks up an account, with a friendlier error when missing.
func userByEmail(ctx context.Context, s store.Store, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("an account email is required")
	}
	u, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no account for %s (create one with 'ghost user add')", email)
	}
	return u, err
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
