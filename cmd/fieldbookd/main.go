package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/PitchsideLabs/fieldbook/internal/httpapi"
	"github.com/PitchsideLabs/fieldbook/internal/store/gormstore"
	"github.com/PitchsideLabs/fieldbook/internal/store/pgstore"
	"github.com/PitchsideLabs/fieldbook/internal/sweeper"
	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagStoreBackend       = "store-backend"
	flagAllowedOrigins     = "allowed-origins"
	flagSweepSchedule      = "sweep-schedule"
	configKeyDatabaseURL   = "database_url"
	configKeyListenAddr    = "listen_addr"
	configKeyStoreBackend  = "store_backend"
	configKeyOrigins       = "allowed_origins"
	configKeySweep         = "sweep_schedule"
	configKeySigningKey    = "session_signing_key"
	configKeyIssuer        = "session_issuer"
	configKeyCookie        = "session_cookie_name"
	configKeyHoldTTL       = "hold_ttl_seconds"
	configKeyUndoWindow    = "undo_window_seconds"
	configKeyMaxMinutes    = "max_booking_minutes"
	configKeyDepositRate   = "deposit_rate_percent"
	defaultDatabaseURL     = "sqlite:///tmp/fieldbook.db"
	defaultListenAddr      = ":9090"
	defaultStoreBackend    = "gorm"
	defaultSweepSchedule   = "*/1 * * * *"
	storeBackendGorm       = "gorm"
	storeBackendPgx        = "pgx"
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	StoreBackend   string
	AllowedOrigins string
	SweepSchedule  string
	SigningKey     string
	Issuer         string
	CookieName     string
	Engine         booking.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldbookd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "fieldbookd",
		Short:         "Sports field booking server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagStoreBackend, defaultStoreBackend, "Store backend for postgres URLs: gorm or pgx")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-separated CORS origins")
	cmd.Flags().String(flagSweepSchedule, defaultSweepSchedule, "Cron schedule for background sweeps")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:  "DATABASE_URL",
		configKeyListenAddr:   "LISTEN_ADDR",
		configKeyStoreBackend: "STORE_BACKEND",
		configKeyOrigins:      "ALLOWED_ORIGINS",
		configKeySweep:        "SWEEP_SCHEDULE",
		configKeySigningKey:   "SESSION_SIGNING_KEY",
		configKeyIssuer:       "SESSION_ISSUER",
		configKeyCookie:       "SESSION_COOKIE_NAME",
		configKeyHoldTTL:      "HOLD_TTL_SECONDS",
		configKeyUndoWindow:   "UNDO_WINDOW_SECONDS",
		configKeyMaxMinutes:   "MAX_BOOKING_MINUTES",
		configKeyDepositRate:  "DEPOSIT_RATE_PERCENT",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:  flagDatabaseURL,
		configKeyListenAddr:   flagListenAddr,
		configKeyStoreBackend: flagStoreBackend,
		configKeyOrigins:      flagAllowedOrigins,
		configKeySweep:        flagSweepSchedule,
	}
	for key, flagName := range flagBindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.StoreBackend = viper.GetString(configKeyStoreBackend)
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = defaultStoreBackend
	}
	if cfg.StoreBackend != storeBackendGorm && cfg.StoreBackend != storeBackendPgx {
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	cfg.AllowedOrigins = viper.GetString(configKeyOrigins)
	cfg.SweepSchedule = viper.GetString(configKeySweep)
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = defaultSweepSchedule
	}
	cfg.SigningKey = viper.GetString(configKeySigningKey)
	cfg.Issuer = viper.GetString(configKeyIssuer)
	cfg.CookieName = viper.GetString(configKeyCookie)
	cfg.Engine = booking.Config{
		HoldTTLSeconds:     viper.GetInt64(configKeyHoldTTL),
		UndoWindowSeconds:  viper.GetInt64(configKeyUndoWindow),
		MaxBookingMinutes:  viper.GetInt(configKeyMaxMinutes),
		DepositRatePercent: viper.GetInt(configKeyDepositRate),
	}
	if err := cfg.Engine.Validate(); err != nil {
		return err
	}
	if cfg.SigningKey == "" {
		return fmt.Errorf("session signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	clock := func() int64 { return time.Now().UTC().Unix() }
	engine, err := booking.NewEngine(store, clock, cfg.Engine,
		booking.WithOperationLogger(booking.NewZapOperationLogger(logger)),
		booking.WithNotifier(httpapi.NewZapNotifier(logger)),
	)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	backgroundSweeper, err := sweeper.New(engine, logger)
	if err != nil {
		return fmt.Errorf("sweeper init: %w", err)
	}
	if err := backgroundSweeper.Start(ctx, cfg.SweepSchedule); err != nil {
		return fmt.Errorf("sweeper start: %w", err)
	}
	defer backgroundSweeper.Stop()

	apiConfig := httpapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		SessionSigningKey: cfg.SigningKey,
		SessionIssuer:     cfg.Issuer,
		SessionCookieName: cfg.CookieName,
	}
	if err := apiConfig.Validate(); err != nil {
		return err
	}

	return httpapi.Run(ctx, apiConfig, engine, httpapi.NewLocalGateway(), logger)
}

func openStore(ctx context.Context, cfg *runtimeConfig) (booking.Store, func() error, error) {
	driver, sqlitePath, err := resolveDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	if driver == "postgres" && cfg.StoreBackend == storeBackendPgx {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() error {
			pool.Close()
			return nil
		}
		return pgstore.New(pool), cleanup, nil
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	if driver == "sqlite" {
		if err := gormstore.Migrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return gormstore.New(db.WithContext(ctx)), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "fieldbook.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
