package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/alerts"
	"github.com/stressvision/stressvision/internal/config"
	"github.com/stressvision/stressvision/internal/console"
	"github.com/stressvision/stressvision/internal/event"
	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/registry"
	"github.com/stressvision/stressvision/internal/reports"
	"github.com/stressvision/stressvision/internal/roster"
	"github.com/stressvision/stressvision/internal/store"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/version"
	"github.com/stressvision/stressvision/pkg/plugin"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "enroll":
			runEnroll(os.Args[2:])
			return
		case "simulate":
			runSimulate(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	runMonitor(*configPath)
}

// runMonitor is the long-running engine: it assembles the module stack,
// opens a monitoring session, and runs until interrupted.
func runMonitor(configPath string) {
	env, err := newEnvironment(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger

	logger.Info("stressvision engine starting", zap.String("version", version.Short()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, modules, err := env.buildRegistry(ctx)
	if err != nil {
		logger.Fatal("module startup failed", zap.Error(err))
	}

	// Open a monitoring session when a capture source is configured.
	source := env.Viper.GetString("monitoring.source")
	if source != "" {
		if _, err := modules.Eventlog.StartSession(ctx, source); err != nil {
			logger.Fatal("failed to start monitoring session", zap.Error(err))
		}
	} else {
		logger.Info("no monitoring.source configured, waiting for a session")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", zap.String("signal", s.String()))

	if source != "" {
		if err := modules.Eventlog.EndSession(ctx); err != nil {
			logger.Warn("failed to end session", zap.Error(err))
		}
	}
	reg.StopAll(ctx)
}

// environment bundles the pieces every subcommand needs.
type environment struct {
	Config *config.ViperConfig
	Viper  viperReader
	Logger *zap.Logger
	Store  *store.SQLiteStore
}

type viperReader interface {
	GetString(key string) string
	ConfigFileUsed() string
}

// moduleSet holds typed handles to the registered modules for wiring that
// the plugin interface does not cover.
type moduleSet struct {
	Roster   *roster.Module
	Eventlog *eventlog.Module
	Stress   *stress.Module
	Alerts   *alerts.Module
	Reports  *reports.Module
	Console  *console.Module
}

func newEnvironment(configPath string) (*environment, error) {
	v, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	dbPath := v.GetString("database.path")
	if dbPath == "" {
		dbPath = "stressvision.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", dbPath))

	return &environment{
		Config: config.New(v),
		Viper:  v,
		Logger: logger,
		Store:  db,
	}, nil
}

func (env *environment) Close() {
	_ = env.Logger.Sync()
	_ = env.Store.Close()
}

// buildRegistry registers, validates, initializes and starts all modules.
func (env *environment) buildRegistry(ctx context.Context) (*registry.Registry, *moduleSet, error) {
	logger := env.Logger
	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	set := &moduleSet{
		Roster:   roster.New(),
		Eventlog: eventlog.New(),
		Stress:   stress.New(),
		Alerts:   alerts.New(),
		Reports:  reports.New(),
		Console:  console.New(),
	}
	modules := []plugin.Plugin{
		set.Roster, set.Eventlog, set.Stress, set.Alerts, set.Reports, set.Console,
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			return nil, nil, fmt.Errorf("register module: %w", err)
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("module validation: %w", err)
	}

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  env.Config.Sub("modules." + name),
			Logger:  logger.Named(name),
			Store:   env.Store,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		return nil, nil, fmt.Errorf("module init: %w", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		return nil, nil, fmt.Errorf("module start: %w", err)
	}
	return reg, set, nil
}
