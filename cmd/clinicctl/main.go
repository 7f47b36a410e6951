package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-availability/internal/app"
	"github.com/hackgods/doctor-availability/internal/archive"
	"github.com/hackgods/doctor-availability/internal/config"
	"github.com/hackgods/doctor-availability/internal/db"
	"github.com/hackgods/doctor-availability/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Admin commands for the doctor availability service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for service logs")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(archiveCmd(true))
	rootCmd.AddCommand(archiveCmd(false))
	rootCmd.AddCommand(archivedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, builds the services and hands them to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := cmd.Flags().GetString("log-level")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logging.New("clinicctl", cfg.Env, level))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=%s", config.StorePostgres)
			}

			level, _ := cmd.Flags().GetString("log-level")

			ctx := cmd.Context()
			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logging.New("clinicctl", cfg.Env, level))
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one availability pass now and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				defer a.Scheduler.Stop(context.Background())

				report, err := a.Scheduler.RunNow(ctx)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func archiveCmd(archived bool) *cobra.Command {
	use, short := "archive", "Archive a doctor or patient"
	if !archived {
		use, short = "restore", "Restore an archived doctor or patient"
	}

	return &cobra.Command{
		Use:   use + " <doctor|patient> <id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := archive.ParseKind(args[0])
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var res archive.Result
				if archived {
					res, err = a.Archive.Archive(ctx, kind, id)
				} else {
					res, err = a.Archive.Restore(ctx, kind, id)
				}
				if err != nil {
					return err
				}
				if res.PendingAppointments > 0 {
					fmt.Fprintf(os.Stderr, "warning: %d scheduled appointment(s) were left in place\n", res.PendingAppointments)
				}
				return printJSON(res)
			})
		},
	}
}

func archivedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archived <doctor|patient>",
		Short: "List archived doctors or patients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := archive.ParseKind(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				records, err := a.Archive.ListArchived(ctx, kind)
				if err != nil {
					return err
				}
				return printJSON(records)
			})
		},
	}
}
