package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospital/hms/internal/availability"
	"github.com/hospital/hms/internal/config"
	"github.com/hospital/hms/internal/domain/scheduling"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
	"github.com/hospital/hms/internal/platform/middleware"
	"github.com/hospital/hms/migrations"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Doctor availability and booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func openMigrator() (*db.Migrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.UsesMemoryStore() {
		return nil, fmt.Errorf("migrations need STORE=%s", config.StorePostgres)
	}
	return db.NewMigrator(cfg.DatabaseURL, migrations.FS)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			changed, err := m.Up()
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema already up to date.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully.")
			return nil
		},
	})

	// migrate down
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			m, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Down(steps); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s).\n", steps)
			return nil
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	// migrate version
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			st, err := m.Status(migrations.FS)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	})

	return cmd
}

func printStatus(w io.Writer, st db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-10s %s\n", "VERSION", "STATUS", "NOTE")
	fmt.Fprintln(w, "---------- ---------- --------------------")
	for _, v := range st.Available {
		status := "pending"
		note := ""
		if v <= st.Current {
			status = "applied"
		}
		if v == st.Current && st.Dirty {
			note = "dirty, fix and force the version"
		}
		fmt.Fprintf(w, "%-10d %-10s %s\n", v, status, note)
	}
	fmt.Fprintf(w, "%d pending\n", st.Pending())
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print a doctor's slot grid for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctor, _ := cmd.Flags().GetString("doctor")
			day, _ := cmd.Flags().GetString("date")
			granularity, _ := cmd.Flags().GetInt("granularity")

			doctorID, err := parseDoctorID(doctor)
			if err != nil {
				return err
			}
			date, err := availability.ParseDate(day)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			svc, err := newService(cfg, b, zerolog.Nop(), nil)
			if err != nil {
				return err
			}
			slots, err := svc.ListSlots(ctx, doctorID, date, granularity)
			if err != nil {
				return err
			}
			writeSlots(cmd.OutOrStdout(), slots)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor ID")
	cmd.Flags().String("date", "", "Clinic date, YYYY-MM-DD")
	cmd.Flags().Int("granularity", 0, "Slot length in minutes (0 uses SLOT_GRANULARITY_MINUTES)")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func writeSlots(w io.Writer, slots []availability.Slot) {
	for _, s := range slots {
		line := fmt.Sprintf("%s  %-11s", s.Time, s.Status)
		if s.Reason != "" {
			line += "  " + s.Reason
		}
		if s.AppointmentID != nil {
			line += "  " + s.AppointmentID.String()
		}
		fmt.Fprintln(w, line)
	}
}

// backend is the storage the service runs on, plus what /health/db checks.
type backend struct {
	hours     scheduling.WorkingHoursRepository
	blocks    scheduling.BlockRepository
	vacations scheduling.VacationRepository
	appts     scheduling.AppointmentRepository

	pool      *pgxpool.Pool
	redis     *redis.Client
	cache     scheduling.SnapshotCache
	publisher *events.AMQPPublisher
	checks    []db.Check
}

func (b *backend) Close() {
	if b.publisher != nil {
		_ = b.publisher.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	if cfg.UsesMemoryStore() {
		store := scheduling.NewMemoryStore()
		b.hours, b.blocks, b.vacations, b.appts = store.WorkingHours(), store.Blocks(), store.Vacations(), store.Appointments()
		b.checks = append(b.checks, db.Check{Name: "memory", Ping: store.Ping})
	} else {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Hour,
		})
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.hours = scheduling.NewWorkingHoursRepoPG(pool)
		b.blocks = scheduling.NewBlockRepoPG(pool)
		b.vacations = scheduling.NewVacationRepoPG(pool)
		b.appts = scheduling.NewAppointmentRepoPG(pool)
	}

	switch {
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		b.redis = redis.NewClient(opts)
		cache := scheduling.NewRedisSnapshotCache(b.redis, cfg.CacheTTL)
		b.cache = cache
		b.checks = append(b.checks, db.Check{Name: "redis", Ping: cache.Ping})
	case cfg.CacheSize > 0:
		// Process-local, so only safe with a single server instance.
		cache, err := scheduling.NewLRUSnapshotCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.cache = cache
	}

	return b, nil
}

// openPublisher connects the event publisher when AMQP_URL is set. Only the
// server publishes; one-shot commands leave it closed.
func openPublisher(cfg *config.Config, b *backend) error {
	if cfg.AMQPURL == "" {
		return nil
	}
	p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return err
	}
	b.publisher = p
	b.checks = append(b.checks, db.Check{Name: "rabbitmq", Ping: p.Ping})
	return nil
}

func newService(cfg *config.Config, b *backend, logger zerolog.Logger, m *metrics.BookingMetrics) (*scheduling.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}

	opts := []scheduling.Option{
		scheduling.WithLocation(loc),
		scheduling.WithWindow(window),
		scheduling.WithPolicy(cfg.Policy()),
		scheduling.WithGranularity(cfg.SlotGranularity),
		scheduling.WithLogger(logger),
	}
	if b.cache != nil {
		opts = append(opts, scheduling.WithCache(b.cache))
	}
	if m != nil {
		opts = append(opts, scheduling.WithMetrics(m))
	}
	if b.publisher != nil {
		opts = append(opts, scheduling.WithEvents(b.publisher))
	}
	return scheduling.NewService(b.hours, b.blocks, b.vacations, b.appts, opts...), nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("running in development mode without AUTH_SIGNING_KEY, every request is trusted")
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer b.Close()
	if err := openPublisher(cfg, b); err != nil {
		return fmt.Errorf("failed to connect event publisher: %w", err)
	}
	logger.Info().
		Str("store", cfg.Store).
		Bool("cache", b.cache != nil).
		Bool("events", b.publisher != nil).
		Msg("storage ready")

	reg := metrics.NewRegistry()
	svc, err := newService(cfg, b, logger, metrics.NewBookingMetrics(reg))
	if err != nil {
		return err
	}

	e := newServer(cfg, logger, svc, b, reg)

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
	return e.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, logger zerolog.Logger, svc *scheduling.Service, b *backend, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.NewHTTPMetrics(reg).Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, auth.DevRoleHeader, auth.DevUserHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if b.pool != nil {
		e.GET("/health/db", db.HealthHandler(b.pool, b.checks...))
	} else {
		e.GET("/health/db", db.CheckHandler(b.checks...))
	}
	e.GET("/metrics", metrics.Handler(reg))

	var authMW echo.MiddlewareFunc
	if cfg.AuthSigningKey == "" {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rl))
	scheduling.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

func parseDoctorID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --doctor %q: %w", s, err)
	}
	return id, nil
}
