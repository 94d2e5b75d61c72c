package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/mockserver/internal/config"
	"github.com/ehr/mockserver/internal/domain/patient"
	"github.com/ehr/mockserver/internal/domain/user"
	"github.com/ehr/mockserver/internal/platform/apierror"
	"github.com/ehr/mockserver/internal/platform/auth"
	"github.com/ehr/mockserver/internal/platform/db"
	"github.com/ehr/mockserver/internal/platform/jsonx"
	"github.com/ehr/mockserver/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Mock patient management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the mock API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := db.NewMigrator(store).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) on %s.\n", count, store.Dialect)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := db.NewMigrator(store).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert generated mock patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			random, _ := cmd.Flags().GetUint64("random")
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}

			ctx := context.Background()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if _, err := db.NewMigrator(store).Up(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			svc := patient.NewService(patient.NewRepo(store), newLogger("production"))
			created, err := patient.NewSeeder(svc, random).Seed(ctx, count, auth.SystemUser)
			if err != nil {
				return fmt.Errorf("seed failed after %d patient(s): %w", created, err)
			}
			fmt.Printf("Seeded %d patient(s).\n", created)
			return nil
		},
	}
	cmd.Flags().Int("count", 50, "Number of patients to create")
	cmd.Flags().Uint64("random", 42, "Generator seed")
	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openStore(ctx context.Context) (*db.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, storeOptions(cfg))
}

func storeOptions(cfg *config.Config) db.Options {
	return db.Options{
		Driver:   cfg.DatabaseDriver,
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

// newServer builds the echo instance with every route mounted.
func newServer(cfg *config.Config, store *db.Store, patients *patient.Service, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonx.Serializer{}
	e.HTTPErrorHandler = apierror.Handler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.UserIDHeader},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(store))

	patient.NewHandler(patients, logger).RegisterRoutes(e)
	user.NewHandler(user.NewService(user.NewRepo(store), logger)).RegisterRoutes(e)
	auth.NewHandler(auth.NewIssuer(cfg.TokenSecret, cfg.TokenTTL), logger).RegisterRoutes(e.Group("/api/auth"))

	return e
}

// seedIfEmpty fills an empty store with n generated patients.
func seedIfEmpty(ctx context.Context, svc *patient.Service, n int, random uint64, logger zerolog.Logger) error {
	if n <= 0 {
		return nil
	}
	existing, err := svc.CountPatients(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		logger.Info().Int("existing", existing).Msg("store not empty, skipping seed")
		return nil
	}
	created, err := patient.NewSeeder(svc, random).Seed(ctx, n, auth.SystemUser)
	if err != nil {
		return err
	}
	logger.Info().Int("created", created).Msg("seeded patients")
	return nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger = newLogger(cfg.Env)
	}

	ctx := context.Background()
	store, err := db.Open(ctx, storeOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()
	logger.Info().Str("driver", store.Dialect.String()).Msg("connected to database")

	applied, err := db.NewMigrator(store).Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("applied migrations")
	}

	var opts []patient.Option
	if cfg.SearchDelay > 0 {
		opts = append(opts, patient.WithSearchDelay(cfg.SearchDelay))
	}
	patients := patient.NewService(patient.NewRepo(store), logger, opts...)
	if err := seedIfEmpty(ctx, patients, cfg.SeedPatients, uint64(cfg.SeedRandom), logger); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	e := newServer(cfg, store, patients, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
