package main

import (
	"fmt"
	"runtime/debug"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			a.logger.Info("store migrated", "driver", string(a.cfg.Store.Driver))
			return s.Close()
		},
	}
}

func newPlansCmd(a *app) *cobra.Command {
	plansCmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and apply plans",
	}

	plansCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed plans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			plans, err := s.GetAllPlans(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tRUNNING\tOPTIONS")
			for _, p := range plans {
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", p.Name, p.Kind, p.Running, len(p.Options))
			}
			return w.Flush()
		},
	})

	plansCmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Install or reconcile the plans declared in the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := buildDaemon(cmd.Context(), a.cfg, nil, a.logger)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.engine.Start(cmd.Context()); err != nil {
				a.logger.Error("engine started with errors", "error", err)
			}
			applyErr := applyPlans(cmd.Context(), d.engine, a.cfg.Plans)
			if err := d.engine.Stop(cmd.Context()); err != nil {
				return err
			}
			if applyErr != nil {
				return applyErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d plan(s)\n", len(a.cfg.Plans))
			return nil
		},
	})

	return plansCmd
}

func newUsersCmd(a *app) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect users",
	}

	usersCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.GetAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tPROVIDER\tPLAN\tSTATE\tBALANCE\tINVOICES")
			for _, u := range users {
				balance := "-"
				if u.Credits != nil {
					balance = u.Credits.Balance.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					u.UserID, u.ProviderID, u.Plan, u.State, balance, len(u.Invoices))
			}
			return w.Flush()
		},
	})

	return usersCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip config loading.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			if info, ok := debug.ReadBuildInfo(); ok && v == "dev" && info.Main.Version != "" {
				v = info.Main.Version
			}
			fmt.Fprintln(cmd.OutOrStdout(), "financed", v)
		},
	}
}
