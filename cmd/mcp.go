package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/ghostvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio so an assistant
can browse the vault. Configure it with:

  {
    "mcpServers": {
      "ghost": { "command": "ghost", "args": ["mcp"] }
    }
  }

Available tools: ghost_list_projects, ghost_project, ghost_vitality,
ghost_requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext()
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		return mcp.NewServer(a.store, a.vault, a.interests, a.github, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
