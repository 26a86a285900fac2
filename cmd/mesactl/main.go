// Command mesactl administers tenant subscriptions: schema migrations, manual
// premium overrides and read-only inspection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mesactl",
		Short:         "mesactl - tenant subscription administration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.databaseURL, "database-url", "", "Postgres connection string (defaults to DATABASE_URL)")

	cmd.AddCommand(migrateCmd(a))
	cmd.AddCommand(tenantCmd(a))
	cmd.AddCommand(overrideCmd(a))
	cmd.AddCommand(showCmd(a))
	return cmd
}
