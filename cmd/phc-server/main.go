package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/phc/phc/internal/domain/tenant"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "phc-server",
		Short:        "Multi-tenant PHC clinic API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(superAdminCmd())
	return rootCmd
}

// withApp opens the application for a CLI command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run platform registry migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				count, err := a.migrator().Up(ctx, "public")
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				statuses, err := a.migrator().Status(ctx, "public")
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
				for _, s := range statuses {
					state, applied := "pending", ""
					if s.Applied {
						state = "applied"
						if s.AppliedAt != nil {
							applied = s.AppliedAt.Format(time.RFC3339)
						}
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, state, applied)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func printTenant(w io.Writer, t *tenant.Tenant) {
	fmt.Fprintf(w, "id:        %s\nname:      %s\nlicense:   %s\nstatus:    %s\npartition: %s\n",
		t.ID, t.Name, t.LicenseNumber, t.Status, t.PartitionName)
	if t.ProvisionError != nil {
		fmt.Fprintf(w, "error:     %s\n", *t.ProvisionError)
	}
}

func parseTenantID(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q", args[0])
	}
	return id, nil
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinic tenants",
	}

	var req tenant.CreateRequest
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				t, err := a.tenants.Create(ctx, req)
				if t != nil {
					printTenant(cmd.OutOrStdout(), t)
				}
				return err
			})
		},
	}
	createCmd.Flags().StringVar(&req.Name, "name", "", "Clinic name")
	createCmd.Flags().StringVar(&req.LicenseNumber, "license", "", "License number used to log in")
	createCmd.Flags().StringVar(&req.Address, "address", "", "Clinic address")
	createCmd.Flags().StringVar(&req.ContactNumber, "contact", "", "Contact number")
	createCmd.Flags().StringVar(&req.AdminEmail, "admin-email", "", "First admin email")
	createCmd.Flags().StringVar(&req.AdminName, "admin-name", "", "First admin name")
	createCmd.Flags().StringVar(&req.AdminPassword, "admin-password", "", "First admin password (required with --activate)")
	createCmd.Flags().BoolVar(&req.AutoActivate, "activate", false, "Provision and activate immediately")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List clinics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				tenants, total, err := a.tenants.List(ctx, 1000, 0)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tLICENSE\tNAME\tSTATUS\tPARTITION")
				for _, t := range tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.LicenseNumber, t.Name, t.Status, t.PartitionName)
				}
				fmt.Fprintf(w, "\n%d clinic(s)\n", total)
				return w.Flush()
			})
		},
	}

	var activation tenant.SetStatusRequest
	activateCmd := &cobra.Command{
		Use:   "activate <tenant-id>",
		Short: "Provision a clinic's partition, seed its admin and activate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				activation.Status = tenant.StatusActive
				t, err := a.tenants.SetStatus(ctx, id, activation)
				if err != nil {
					return err
				}
				printTenant(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
	activateCmd.Flags().StringVar(&activation.AdminPassword, "admin-password", "", "First admin password")
	activateCmd.Flags().StringVar(&activation.AdminName, "admin-name", "", "First admin name")

	provisionCmd := &cobra.Command{
		Use:   "provision <tenant-id>",
		Short: "Re-run partition provisioning for a clinic (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				t, err := a.tenants.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := a.prov.ProvisionPartition(ctx, t.PartitionName); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Partition %s provisioned.\n", t.PartitionName)
				return nil
			})
		},
	}

	var confirm bool
	dropCmd := &cobra.Command{
		Use:   "drop <tenant-id>",
		Short: "Drop a clinic's partition and all its data, then mark it INACTIVE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to drop without --confirm")
			}
			id, err := parseTenantID(args)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				t, err := a.tenants.SetStatus(ctx, id, tenant.SetStatusRequest{Status: tenant.StatusInactive})
				if err != nil {
					return err
				}
				if err := a.prov.DeprovisionPartition(ctx, t.PartitionName); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Partition %s dropped; tenant is INACTIVE.\n", t.PartitionName)
				return nil
			})
		},
	}
	dropCmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm irreversible data loss")

	cmd.AddCommand(createCmd, listCmd, activateCmd, provisionCmd, dropCmd)
	return cmd
}

func superAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "superadmin",
		Short: "Manage platform operators",
	}

	var email, name, password string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a super admin unless the email already exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			return withApp(func(ctx context.Context, a *app) error {
				created, err := a.accounts.EnsureSuperAdmin(ctx, email, name, password)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Super admin %s created.\n", email)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Super admin %s already exists.\n", email)
				}
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Login email")
	createCmd.Flags().StringVar(&name, "name", "Super Admin", "Display name")
	createCmd.Flags().StringVar(&password, "password", "", "Password")

	cmd.AddCommand(createCmd)
	return cmd
}
