/*
main.go - Application entry point

PURPOSE:
  Starts the front-desk ledger server and runs the operator commands.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve                    Start the HTTP API (and the shift scheduler)
  migrate                  Create or upgrade the SQLite schema
  open-shift               Open today's shift from the command line
  import-pricelist <file>  Import a catalog JSON file (pricelist + staff)
  report [--date]          Print the report of a day with its summary

STARTUP SEQUENCE (serve):
  1. Load configuration (environment + optional .env)
  2. Initialize logger and SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router, start the scheduler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  DB_PATH=./data/clinic.db ./server serve

  # Run with in-memory database
  ./server serve --db=":memory:"

  # Yesterday's report
  ./server report --date=2025-03-09

ENVIRONMENT:
  PORT, ENV, DB_PATH, LOG_LEVEL, CORS_ORIGINS, SHIFT_AUTO_OPEN,
  SHIFT_CHECK_INTERVAL, CHECKING_ACCOUNT_ID (see config/config.go)

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frontdesk/ledger/analytics"
	"github.com/frontdesk/ledger/api"
	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/config"
	"github.com/frontdesk/ledger/factory"
	"github.com/frontdesk/ledger/generic"
	"github.com/frontdesk/ledger/store/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var dbOverride string

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Clinic front-desk ledger",
	}
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "SQLite database path (overrides DB_PATH; \":memory:\" for in-memory)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(openShiftCmd())
	rootCmd.AddCommand(importPricelistCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

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
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			// Opening the store applies the schema.
			store, err := sqlite.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
			}
			logger.Info().Str("db", cfg.DBPath).Msg("schema is up to date")
			return store.Close()
		},
	}
}

func openShiftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open-shift",
		Short: "Open today's shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withStore(func(ctx context.Context, store *sqlite.Store, logger zerolog.Logger) error {
				actor := clinic.SystemUser
				if userID != "" {
					actor = clinic.User{ID: userID, Name: userID, AccessLevel: clinic.AccessRegistrar}
				}
				report, err := clinic.NewShifts(store, generic.SystemClock{}).Open(ctx, actor)
				if err != nil {
					return err
				}
				logger.Info().
					Str("date", report.Date.String()).
					Str("starting_cash", report.StartingCash.String()).
					Str("opened_by", actor.ID).
					Msg("shift opened")
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "ID of the registrar opening the shift (default: system)")
	return cmd
}

func importPricelistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-pricelist <file>",
		Short: "Import a catalog JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			catalog, err := factory.NewCatalogFactory().ParseCatalog(string(data))
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, store *sqlite.Store, logger zerolog.Logger) error {
				if err := catalog.Apply(ctx, store); err != nil {
					return err
				}
				logger.Info().
					Int("pricelist", len(catalog.Pricelist)).
					Int("doctors", len(catalog.Doctors)).
					Str("file", args[0]).
					Msg("catalog imported")
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the report of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("date")
			day := generic.Today(generic.SystemClock{})
			if raw != "" {
				var err error
				if day, err = generic.ParseDay(raw); err != nil {
					return err
				}
			}
			return withStore(func(ctx context.Context, store *sqlite.Store, logger zerolog.Logger) error {
				report, err := clinic.NewShifts(store, generic.SystemClock{}).Get(ctx, day)
				if err != nil {
					return err
				}
				period, err := generic.PeriodFor(generic.PeriodDay, day)
				if err != nil {
					return err
				}
				summary, err := analytics.NewLedger(store).Summary(ctx, period)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"date":          report.Date,
					"starting_cash": report.StartingCash,
					"cash_balance":  report.CashBalance(),
					"payments":      len(report.Payments),
					"opened_by":     report.OpenedBy,
					"summary":       summary,
				})
			})
		},
	}
	cmd.Flags().String("date", "", "Day of the report, YYYY-MM-DD (default: today)")
	return cmd
}

// =============================================================================
// SERVER
// =============================================================================

func runServer() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error().Err(err).Str("db", cfg.DBPath).Msg("failed to initialize database")
		return err
	}
	defer store.Close()
	logger.Info().Str("db", cfg.DBPath).Msg("database ready")

	// Initialize handler
	handler := api.NewHandler(store, generic.SystemClock{}, logger)
	handler.CheckingAccountID = generic.AccountID(cfg.CheckingAccountID)

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins})

	// Scheduler
	scheduler := api.NewShiftScheduler(handler)
	scheduler.CheckInterval = cfg.ShiftCheckInterval
	scheduler.Enabled = cfg.ShiftAutoOpen
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		return err
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// setup loads the configuration and builds the logger it asks for.
func setup() (*config.Config, zerolog.Logger, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return nil, logger, err
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}

	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return cfg, logger.Level(cfg.Level()), nil
}

func withStore(fn func(context.Context, *sqlite.Store, zerolog.Logger) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := fn(context.Background(), store, logger); err != nil {
		logger.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}
