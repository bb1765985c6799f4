package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for principal management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage principals",
	Long:  `Commands for managing principals directly against the database.`,
}

func init() {
	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Username of the principal")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the principal (use --stdin to avoid shell history)")
	createCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role(s) to attach; missing roles are created")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	UsersCmd.AddCommand(createCmd)
}
