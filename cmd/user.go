package cmd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/ghostvault/internal/models"
	"github.com/joescharf/ghostvault/internal/output"
)

var (
	userName     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create an account",
	Long: `Create an account with a generated ghost handle.

Without --password a random password is generated and printed once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun(cmd.Context(), args[0])
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun(cmd.Context())
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (default: generated)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func userAddRun(ctx context.Context, email string) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would create account %s", email)
		return nil
	}

	password := userPassword
	generated := password == ""
	if generated {
		if password, err = randomPassword(); err != nil {
			return err
		}
	}

	u, err := a.auth.SignUp(ctx, email, password, userName)
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(u)
	}
	ui.Success("Created %s as %s (%s)", u.Email, output.Handle(u.GhostHandle), u.UID)
	if generated {
		ui.Info("Password: %s", password)
	}
	return nil
}

func userListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		if users == nil {
			users = []*models.User{}
		}
		return ui.JSON(users)
	}
	if len(users) == 0 {
		ui.Info("No accounts yet. Use 'ghost user add <email>' to create one.")
		return nil
	}

	table := ui.Table([]string{"UID", "Email", "Name", "Handle", "Joined"})
	for _, u := range users {
		table.Append([]string{
			u.UID,
			u.Email,
			u.Name,
			output.Handle(u.GhostHandle),
			timeAgo(u.CreatedAt),
		})
	}
	return table.Render()
}

func randomPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
