package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"incmgr/internal/config"
	"incmgr/internal/database"
	"incmgr/internal/handlers/admin"
)

// NewUserAddCommand creates the useradd command.
func NewUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	u := admin.NewUser{Role: "user"}
	var isAdmin bool

	cmd := &cobra.Command{
		Use:          "useradd <username>",
		Short:        "Create a user account",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			u.Username = args[0]
			if isAdmin {
				u.Role = "admin"
			}
			id, err := admin.CreateUser(cmd.Context(), db, u)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d, role %s)\n", u.Username, id, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&u.DisplayName, "name", "", "display name")
	cmd.Flags().StringVarP(&u.Password, "password", "p", "", "password (12+ characters)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant the admin role")
	cmd.MarkFlagRequired("password")
	return cmd
}
