package users

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/authuser/cmd/authapi/cmd/cmdutil"
	"github.com/terraconstructs/authuser/internal/config"
)

var (
	usernameFlag string
	passwordFlag string
	rolesInput   []string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a principal with a password and optional roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if usernameFlag == "" {
			return fmt.Errorf("--username flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			// Read password from stdin
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}

		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := cmd.Context()
		bundle, err := cmdutil.NewIAMServiceBundle(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer bundle.Close()

		principal, err := bundle.Service.CreatePrincipal(ctx, usernameFlag, password)
		if err != nil {
			return fmt.Errorf("failed to create principal: %w", err)
		}

		roleNames := make([]string, 0, len(rolesInput))
		for _, name := range rolesInput {
			role, err := bundle.Service.FindOrCreateRole(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to resolve role %q: %w", name, err)
			}
			if _, _, err := bundle.Service.AttachRole(ctx, principal.ID, role.ID); err != nil {
				return fmt.Errorf("failed to attach role %q: %w", role.Name, err)
			}
			roleNames = append(roleNames, role.Name)
		}

		fmt.Println("Principal created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("ID: %s\n", principal.ID)
		fmt.Printf("Username: %s\n", principal.Username)
		if len(roleNames) > 0 {
			fmt.Printf("Roles: %s\n", strings.Join(roleNames, ", "))
		}
		fmt.Println("----------------------------------------")

		return nil
	},
}
