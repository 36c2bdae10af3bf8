package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/output"
	"github.com/joescharf/ghostvault/internal/store"
)

var (
	interestAs     string
	interestStatus string
)

var interestCmd = &cobra.Command{
	Use:     "interest",
	Aliases: []string{"request"},
	Short:   "Review takeover requests",
}

var interestListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List takeover requests",
	Long:    "List every request, or only those received by --as.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return interestListRun(cmd.Context())
	},
}

var interestApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a request and email the requester",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return interestDecideRun(cmd.Context(), args[0], models.InterestStatusApproved)
	},
}

var interestRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return interestDecideRun(cmd.Context(), args[0], models.InterestStatusRejected)
	},
}

func init() {
	interestListCmd.Flags().StringVar(&interestAs, "as", "", "Only requests received by this email")
	interestListCmd.Flags().StringVar(&interestStatus, "status", "", "Filter by status (pending, approved, rejected)")

	for _, c := range []*cobra.Command{interestApproveCmd, interestRejectCmd} {
		c.Flags().StringVar(&interestAs, "as", "", "Deciding creator's email (default: the project creator)")
		interestCmd.AddCommand(c)
	}
	interestCmd.AddCommand(interestListCmd)
	rootCmd.AddCommand(interestCmd)
}

func interestListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	var filter store.InterestListFilter
	if interestStatus != "" {
		st := models.InterestStatus(strings.ToLower(interestStatus))
		switch st {
		case models.InterestStatusPending, models.InterestStatusApproved, models.InterestStatusRejected:
			filter.Status = st
		default:
			return fmt.Errorf("unknown status %q (want pending, approved or rejected)", interestStatus)
		}
	}
	if interestAs != "" {
		u, err := userByEmail(ctx, s, interestAs)
		if err != nil {
			return err
		}
		filter.SeniorUID = u.UID
		filter.SeniorEmail = u.Email
	}

	interests, err := s.ListInterests(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON {
		if interests == nil {
			interests = []*models.Interest{}
		}
		return ui.JSON(interests)
	}
	if len(interests) == 0 {
		ui.Info("No requests found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Project", "From", "Creator", "Status", "Sent", "Message"})
	for _, i := range interests {
		table.Append([]string{
			i.ID,
			output.Cyan(output.Truncate(i.ProjectTitle, 28)),
			i.JuniorName,
			output.Handle(i.SeniorName),
			output.StatusColor(string(i.Status)),
			timeAgo(i.CreatedAt),
			output.Truncate(i.Message, 40),
		})
	}
	return table.Render()
}

func interestDecideRun(ctx context.Context, id string, status models.InterestStatus) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	in, err := a.store.GetInterest(ctx, id)
	if err != nil {
		return err
	}

	var senior *models.User
	if interestAs != "" {
		if senior, err = userByEmail(ctx, a.store, interestAs); err != nil {
			return err
		}
	} else if in.SeniorUID != "" {
		if senior, err = a.store.GetUser(ctx, in.SeniorUID); err != nil {
			return fmt.Errorf("project creator %s: %w", in.SeniorUID, err)
		}
	} else if senior, err = userByEmail(ctx, a.store, in.SeniorEmail); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would mark %s's request for %s as %s", in.JuniorName, in.ProjectTitle, status)
		return nil
	}
	updated, err := a.interests.Decide(ctx, senior, id, status)
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(updated)
	}
	ui.Success("%s's request for %s is %s", updated.JuniorName, output.Cyan(updated.ProjectTitle), output.StatusColor(string(updated.Status)))
	return nil
}
