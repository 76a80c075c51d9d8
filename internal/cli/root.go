// Package cli implements the incmgr command line.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the incmgr CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "incmgr",
		Short: "Receiving inspection routines",
		Long:  "incmgr serves the receiving inspection worklist, saved routines and CRM deep links.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (INCMGR_* env vars override it)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewUserAddCommand(opts))
	cmd.AddCommand(NewParseLSTCommand())

	return cmd
}
