package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/mesa/internal"
	"github.com/dukerupert/mesa/internal/domain"
)

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sqlDB == nil {
				return errors.New("migrate requires a database connection")
			}
			if err := internal.RunMigrations(a.sqlDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sqlDB == nil {
				return errors.New("migrate status requires a database connection")
			}
			return internal.MigrationStatus(a.sqlDB)
		},
	})
	return cmd
}

func tenantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant subscription records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create [tenant-id]",
		Short: "Create the default free/trial record for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			rows, err := a.store.CreateForTenant(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if rows == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s already has a subscription record\n", tenantID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created subscription record for tenant %s\n", tenantID)
			return nil
		},
	})
	return cmd
}

func overrideCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Grant or revoke manual premium access",
		Long: `Manual overrides grant premium regardless of Stripe state.

A tenant's next completed checkout clears the override.

Examples:
  mesactl override grant 3b0f3c8e-8a8b-4f3e-9d51-1c7e5f0a2b44 --reason "card replacement"
  mesactl override revoke 3b0f3c8e-8a8b-4f3e-9d51-1c7e5f0a2b44`,
	}

	var reason string
	grant := &cobra.Command{
		Use:   "grant [tenant-id]",
		Short: "Grant premium to a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			if reason == "" {
				return errors.New("--reason is required")
			}
			rows, err := a.store.SetManualOverride(cmd.Context(), tenantID, reason, a.now().UTC())
			if err != nil {
				return err
			}
			if err := expectOne(rows, tenantID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override granted for tenant %s\n", tenantID)
			return nil
		},
	}
	grant.Flags().StringVarP(&reason, "reason", "r", "", "why the override was granted")

	revoke := &cobra.Command{
		Use:   "revoke [tenant-id]",
		Short: "Clear a tenant's manual override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			rows, err := a.store.ClearManualOverride(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if err := expectOne(rows, tenantID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override revoked for tenant %s\n", tenantID)
			return nil
		},
	}

	cmd.AddCommand(grant, revoke)
	return cmd
}

func showCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [tenant-id]",
		Short: "Print a tenant's subscription record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			rec, err := a.store.GetByTenant(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			return printRecord(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printRecord(w io.Writer, rec *domain.SubscriptionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "tenant\t%s\n", rec.TenantID)
	fmt.Fprintf(tw, "tier\t%s\n", rec.Tier)
	fmt.Fprintf(tw, "status\t%s\n", rec.Status)
	fmt.Fprintf(tw, "premium\t%t\n", rec.IsPremium())
	fmt.Fprintf(tw, "customer\t%s\n", orDash(rec.ExternalCustomerID))
	fmt.Fprintf(tw, "subscription\t%s\n", orDash(rec.ExternalSubscriptionID))
	fmt.Fprintf(tw, "period ends\t%s\n", formatTime(rec.PeriodEndsAt))
	if rec.ManualOverride.Active {
		fmt.Fprintf(tw, "override\t%s (granted %s)\n", rec.ManualOverride.Reason, formatTime(rec.ManualOverride.GrantedAt))
	} else {
		fmt.Fprintf(tw, "override\t-\n")
	}
	fmt.Fprintf(tw, "updated\t%s\n", rec.UpdatedAt.Format(time.RFC3339))
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
