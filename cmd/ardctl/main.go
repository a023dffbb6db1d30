package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/macos-ard-tool/internal/ard"
	"github.com/haasonsaas/macos-ard-tool/internal/reconcile"
	"github.com/haasonsaas/macos-ard-tool/pkg/naprivs"
	"github.com/haasonsaas/macos-ard-tool/pkg/output"
)

var (
	outputFormat string
	verbose      bool

	stateFile string
	dryRun    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ardctl",
		Short: "Manage the macOS Remote Management (ARD) service",
		Long: `Inspect and configure Apple Remote Desktop on the local host: per-user
privileges stored in the directory service, the legacy VNC password, and
the com.apple.RemoteManagement preference domain.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(privsCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(activateCmd())
	rootCmd.AddCommand(deactivateCmd())
	rootCmd.AddCommand(vncpwCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func privsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privs",
		Short: "Work with per-user remote management privileges",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <username>",
		Short: "Show a user's privileges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ard.NewClient()
			privs, err := client.UserPrivileges(context.Background(), args[0])
			if err != nil {
				return err
			}
			if privs == nil {
				fmt.Printf("%s has no remote management privileges\n", args[0])
				return nil
			}
			fmt.Println(naprivs.Format(privs))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <username> <privileges>",
		Short: "Set a user's privileges from a comma-delimited list",
		Long: `Set remote management privileges for a local user.

Valid privilege names:
  text              send text messages
  control_observe   control and observe
  copy              copy items
  delete_replace    delete and replace items
  reports           generate reports
  launch            open and quit apps
  settings          change settings
  restart_shutdown  restart and shutdown
  all               every privilege above

Observation notification (default is not to notify):
  observe_notified  notify the user when being observed
  observe_hidden    observe without notification`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			privs, err := naprivs.Parse(args[1])
			if err != nil {
				return err
			}
			client := ard.NewClient()
			if err := client.SetUserPrivileges(context.Background(), args[0], privs); err != nil {
				return err
			}
			if verbose {
				fmt.Printf("Set naprivs for %s to %s\n", args[0], naprivs.Encode(privs))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <username>",
		Short: "Remove a user's naprivs attribute entirely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ard.NewClient().ClearUserPrivileges(context.Background(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decode <mask>",
		Short: "Decode a signed naprivs integer into privilege names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := naprivs.ParseMask(args[0])
			if err != nil {
				return err
			}
			fmt.Println(naprivs.Format(naprivs.Decode(mask)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "encode <privileges>",
		Short: "Encode a comma-delimited privilege list into a naprivs integer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			privs, err := naprivs.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Println(naprivs.Encode(privs))
			return nil
		},
	})

	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users with remote management privileges",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client := ard.NewClient()

			report, err := buildReport(ctx, client)
			if err != nil {
				return err
			}

			formatter := output.GetFormatter(output.FormatterType(outputFormat))
			data, err := formatter.Format(report)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

func buildReport(ctx context.Context, client *ard.Client) (*output.Report, error) {
	active, err := client.Active(ctx)
	if err != nil {
		// A missing pgrep or agent should not hide the user list.
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: checking service state: %v\n", err)
		}
	}

	users, err := client.Users(ctx)
	if err != nil {
		return nil, err
	}

	report := &output.Report{
		GeneratedAt:   time.Now(),
		ServiceActive: active,
	}
	for username, user := range users {
		report.Users = append(report.Users, output.UserPrivileges{
			Username:   username,
			Mask:       user.Mask.String(),
			Privileges: user.Privileges.Names(),
			Notified:   user.Privileges.Notified(),
		})
	}
	return report, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the remote management service is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ard.NewClient()
			active, err := client.Active(context.Background())
			if err != nil {
				return err
			}
			if active {
				fmt.Println("active")
			} else {
				fmt.Println("inactive")
			}
			return nil
		},
	}
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Activate the remote management service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ard.NewClient().Activate(context.Background())
		},
	}
}

func deactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate and stop the remote management service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ard.NewClient().Deactivate(context.Background())
		},
	}
}

func vncpwCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vncpw",
		Short: "Manage the legacy VNC password",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current VNC password",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := ard.NewClient().VNCPassword()
			if err != nil {
				return err
			}
			if password == "" {
				fmt.Println("no VNC password is set")
				return nil
			}
			fmt.Println(password)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <password>",
		Short: "Set the VNC password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ard.NewClient().SetVNCPassword(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Remove the VNC password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ard.NewClient().RemoveVNCPassword()
		},
	})

	return cmd
}

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the host against a desired-state file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := reconcile.Load(stateFile)
			if err != nil {
				return err
			}

			engine := reconcile.NewEngine(ard.NewClient())

			if dryRun {
				plan, err := engine.Plan(ctx, cfg)
				if err != nil {
					return err
				}
				if plan.Empty() {
					fmt.Println("No changes required")
					return nil
				}
				printPlan(plan)
				// Pending changes exit non-zero so scripts can detect
				// drift, diff-style.
				os.Exit(2)
			}

			result, err := engine.Apply(ctx, cfg)
			if err != nil {
				return err
			}
			printPlan(result.Plan)
			fmt.Println(result.Comment)
			return nil
		},
	}
	cmd.Flags().StringVarP(&stateFile, "file", "f", "", "Desired state YAML file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show pending changes without applying them")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printPlan(plan *reconcile.Plan) {
	for _, change := range plan.Service {
		fmt.Printf("service.%s: %v -> %v\n", change.Key, change.Old, change.New)
	}
	for _, change := range plan.Users {
		fmt.Printf("user %s: %v -> %v\n", change.Username, change.Old, change.New)
	}
	for _, failure := range plan.Failures {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", failure.Comment)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ardctl version 1.0.0")
		},
	}
}
