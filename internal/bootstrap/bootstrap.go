package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/NexusBot-official/Nexus/internal/bot"
	"github.com/NexusBot-official/Nexus/internal/commands"
	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/correlator"
	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/decision"
	"github.com/NexusBot-official/Nexus/internal/dispatcher"
	"github.com/NexusBot-official/Nexus/internal/forensics"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/notifier"
	"github.com/NexusBot-official/Nexus/internal/watchdog"
)

type Bootstrap struct {
	ConfigPath  string
	Config      *config.Config
	Components  *Components
	initialized bool
}

type Components struct {
	// Core pipeline components
	Database   *database.Database
	Retention  *database.RetentionManager
	Profiles   *config.ProfileStore
	Client     *dispatcher.Client
	Engine     *decision.Engine
	Resolver   *forensics.Resolver
	Correlator *correlator.Correlator
	Session    *bot.Session
	Commands   *commands.Handler

	// Incident delivery
	Sinks *notifier.Fanout
	Redis *redis.Client

	// Monitoring and observability
	Metrics  *metrics.Metrics
	Exporter *metrics.Exporter
	Watchdog *watchdog.Watchdog

	cancel context.CancelFunc
}

func New(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

func (b *Bootstrap) Initialize() error {
	if err := b.loadConfig(); err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	if err := b.initializeLogging(); err != nil {
		return fmt.Errorf("logging init failed: %w", err)
	}

	if err := b.wireComponents(); err != nil {
		return fmt.Errorf("component wiring failed: %w", err)
	}

	b.initialized = true
	logging.Info("Bootstrap complete")
	return nil
}

func (b *Bootstrap) loadConfig() error {
	cfg, err := config.Load(b.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfg
	return nil
}

func (b *Bootstrap) initializeLogging() error {
	lc := b.Config.Logging
	if lc.Path != "" {
		if err := ensureLogsDirectory(filepath.Dir(lc.Path)); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}
	return logging.InitGlobalLogger(logging.Options{
		Level:   logging.ParseLevel(lc.Level),
		Format:  lc.Format,
		Path:    lc.Path,
		MaxSize: lc.MaxSize,
		MaxAge:  lc.MaxAge,
	})
}

func ensureLogsDirectory(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return err
}

func (b *Bootstrap) wireComponents() error {
	return Wire(b)
}

func (b *Bootstrap) Start(ctx context.Context) error {
	if !b.initialized {
		return fmt.Errorf("bootstrap not initialized")
	}

	return StartAll(ctx, b.ConfigPath, b.Config, b.Components)
}

func (b *Bootstrap) Shutdown() error {
	return Shutdown(b.Components)
}
