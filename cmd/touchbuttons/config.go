package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Shopify/touchbuttons/internal/configstore"
	"github.com/Shopify/touchbuttons/internal/datastore"
	storefactory "github.com/Shopify/touchbuttons/internal/datastore/impl"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"
	"github.com/Shopify/touchbuttons/internal/server"
	"github.com/Shopify/touchbuttons/internal/simulator"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

type Simulator = simulator.SimulationDriver

// Config is read from the environment; command-line flags override it.
type Config struct {
	StoreType      string `env:"TOUCH_BUTTONS_STORE" envDefault:"memory"`
	RedisAddr      string `env:"TOUCH_BUTTONS_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisNamespace string `env:"TOUCH_BUTTONS_REDIS_NAMESPACE" envDefault:"TouchButtonConfigs"`
	SQLitePath     string `env:"TOUCH_BUTTONS_SQLITE_PATH" envDefault:"touch_buttons.db"`
	StatsdAddr     string `env:"TOUCH_BUTTONS_STATSD_ADDR"`
	LogLevel       string `env:"TOUCH_BUTTONS_LOG_LEVEL" envDefault:"info"`

	// Empty means server.DefaultButtonNames.
	ValidButtons []string `env:"TOUCH_BUTTONS_VALID_BUTTONS" envSeparator:","`

	// Storage request budget. Zero leaves an operation unlimited.
	ReadsPerSecond  float64 `env:"TOUCH_BUTTONS_READS_PER_SEC"`
	WritesPerSecond float64 `env:"TOUCH_BUTTONS_WRITES_PER_SEC"`
	BudgetBurst     int     `env:"TOUCH_BUTTONS_BUDGET_BURST" envDefault:"10"`

	// Simulation params follow:
	NumUsers          int     `env:"TOUCH_BUTTONS_NUM_USERS" envDefault:"100"`
	GesturesPerButton int     `env:"TOUCH_BUTTONS_GESTURES_PER_BUTTON" envDefault:"5"`
	ViewportWidth     float64 `env:"TOUCH_BUTTONS_VIEWPORT_WIDTH" envDefault:"1920"`
	ViewportHeight    float64 `env:"TOUCH_BUTTONS_VIEWPORT_HEIGHT" envDefault:"1080"`
	Seed              int64   `env:"TOUCH_BUTTONS_SEED" envDefault:"1"`
}

// parseConfig reads environ, or the process environment when environ is nil.
func parseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.NumUsers < 0 {
		return fmt.Errorf("num users should be >= 0 but found %d", cfg.NumUsers)
	}
	if cfg.GesturesPerButton < 0 {
		return fmt.Errorf("gestures per button should be >= 0 but found %d", cfg.GesturesPerButton)
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive but found %.0fx%.0f", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	return nil
}

func setLogging(logLevel string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	switch logLevel {
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		panic(fmt.Errorf("log level must be one of: {disabled, debug, info, warn}"))
	}
}

func configureMetrics(cfg Config) {
	_ = metrics.Configure(cfg.StatsdAddr)
	metrics.AddGlobalTags([]string{
		fmt.Sprintf("store_type:%s", cfg.StoreType),
		fmt.Sprintf("budgeted:%t", cfg.ReadsPerSecond > 0 || cfg.WritesPerSecond > 0),
	})
}

func makeDataStore(cfg Config) (datastore.DataStore, error) {
	return storefactory.MakeDataStore(storefactory.StoreConfig{
		StoreType:       cfg.StoreType,
		RedisAddr:       cfg.RedisAddr,
		RedisNamespace:  cfg.RedisNamespace,
		SQLitePath:      cfg.SQLitePath,
		ReadsPerSecond:  cfg.ReadsPerSecond,
		WritesPerSecond: cfg.WritesPerSecond,
		Burst:           cfg.BudgetBurst,
	})
}

func closeDataStore(ds datastore.DataStore) {
	if c, ok := ds.(io.Closer); ok {
		_ = c.Close()
	}
}

func validButtonNames(cfg Config) []string {
	if len(cfg.ValidButtons) == 0 {
		return server.DefaultButtonNames()
	}
	return cfg.ValidButtons
}

func makeConfigStore(ds datastore.DataStore, names []string) *configstore.Store {
	store := configstore.MakeStore(ds)
	if err := store.Init(names); err != nil {
		panic(fmt.Errorf("config store initialized twice: %w", err))
	}
	return store
}

func makeSimulator(
	ctx context.Context,
	ctxCancelFunc context.CancelFunc,
	cfg Config,
	srv *server.Server,
	ds datastore.DataStore,
) *Simulator {
	userIDs := make([]int64, cfg.NumUsers)
	for i := range userIDs {
		userIDs[i] = int64(i + 1)
	}
	return &Simulator{
		Ctx:               ctx,
		CtxCancelFunc:     ctxCancelFunc,
		Server:            srv,
		DataStore:         ds,
		Viewport:          layout.Vector2{X: cfg.ViewportWidth, Y: cfg.ViewportHeight},
		UserIDs:           userIDs,
		Buttons:           simulator.DefaultButtons(),
		GesturesPerButton: cfg.GesturesPerButton,
		Seed:              cfg.Seed,
	}
}
