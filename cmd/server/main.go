package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"housing-backend/internal/automations"
	"housing-backend/internal/config"
	"housing-backend/internal/database"
	"housing-backend/internal/logging"
	"housing-backend/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	flagMigrate      bool
	flagAutomationID uint
)

var rootCmd = &cobra.Command{
	Use:           "housing-server",
	Short:         "Property and resident management backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the automation scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := boot()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		if flagMigrate {
			if err := database.Migrate(); err != nil {
				return err
			}
		}

		runner := automations.NewRunner(database.DB, log, cfg.SchedulerSpec, cfg.AutomationWorkers)
		app := newApp(cfg, runner)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("server listening", zap.String("port", cfg.HTTPPort))
			return app.Listen(":" + cfg.HTTPPort)
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			return app.ShutdownWithTimeout(shutdownTimeout)
		})
		if cfg.SchedulerEnabled {
			g.Go(func() error {
				return runner.Run(gctx)
			})
		} else {
			log.Info("automation scheduler disabled")
		}
		return g.Wait()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := boot()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		if err := database.Migrate(); err != nil {
			return err
		}
		log.Info("migration complete")
		return nil
	},
}

var automationsCmd = &cobra.Command{
	Use:   "automations",
	Short: "Inspect and run automations",
}

var automationsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every due automation once, or a single one with --id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := boot()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		runner := automations.NewRunner(database.DB, log, cfg.SchedulerSpec, cfg.AutomationWorkers)
		if flagAutomationID == 0 {
			return runner.Tick(cmd.Context())
		}

		var a models.Automation
		if err := database.DB.First(&a, flagAutomationID).Error; err != nil {
			return fmt.Errorf("automation %d: %w", flagAutomationID, err)
		}
		run, err := runner.Execute(&a)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", run.Status, run.Message)
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&flagMigrate, "migrate", true, "run schema migration before serving")
	automationsRunCmd.Flags().UintVar(&flagAutomationID, "id", 0, "run only this automation, ignoring its schedule")

	automationsCmd.AddCommand(automationsRunCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, automationsCmd)
}

// boot loads config, installs the logger and connects the database.
func boot() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	cfg.WarnDefaults(log)

	if err := database.Init(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
