package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/authuser/cmd/authapi/cmd/cmdutil"
)

// roleCmd ensures roles exist, creating the missing ones.
var roleCmd = &cobra.Command{
	Use:   "role <name> [name...]",
	Short: "Find or create roles by name",
	Long: `Looks up each named role and creates it when absent. Running the command
twice with the same name reports the same role id.

Example:
  authapi role admin sre`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		bundle, err := cmdutil.NewIAMServiceBundle(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer bundle.Close()

		for _, name := range args {
			role, err := bundle.Service.FindOrCreateRole(ctx, name)
			if err != nil {
				return fmt.Errorf("find or create role %q: %w", name, err)
			}
			fmt.Printf("Created role: %s, %s\n", role.Name, role.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roleCmd)
}
