package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "One-off data migrations",
}

var migrateCreatorsCmd = &cobra.Command{
	Use:   "creators",
	Short: "Replace creator names on every project with ghost handles",
	Long: `Rewrite the public creator name of every listed project to a ghost
handle derived from the creator's email, so real names are never shown
in the vault. Projects that fail to update are reported as skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateCreatorsRun(cmd.Context())
	},
}

func init() {
	migrateCmd.AddCommand(migrateCreatorsCmd)
	rootCmd.AddCommand(migrateCmd)
}

func migrateCreatorsRun(ctx context.Context) error {
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would rewrite creator names on every project")
		return nil
	}
	res, err := a.vault.MigrateCreatorHandles(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return ui.JSON(res)
	}
	ui.Success("Migrated %d projects (%d skipped)", res.Updated, res.Skipped)
	return nil
}
