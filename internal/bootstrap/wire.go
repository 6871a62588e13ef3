package bootstrap

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/NexusBot-official/Nexus/internal/bot"
	"github.com/NexusBot-official/Nexus/internal/commands"
	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/correlator"
	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/decision"
	"github.com/NexusBot-official/Nexus/internal/detectors"
	"github.com/NexusBot-official/Nexus/internal/dispatcher"
	"github.com/NexusBot-official/Nexus/internal/forensics"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/notifier"
	"github.com/NexusBot-official/Nexus/internal/state"
	"github.com/NexusBot-official/Nexus/internal/watchdog"
)

const (
	watchdogInterval  = 5 * time.Second
	gatewayStallAfter = 2 * time.Minute
	retentionInterval = time.Hour
)

func Wire(b *Bootstrap) error {
	logging.Info("Wiring components...")
	cfg := b.Config

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	logging.Info("Database opened at %s", cfg.Database.Path)

	metricsRegistry := metrics.NewMetrics(prometheus.NewRegistry())
	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		exporter = metrics.NewExporter(metricsRegistry)
	}

	profiles := config.NewProfileStore(cfg.Detection)
	states := state.NewSecurityStore(time.Now)
	tracker := state.NewTracker(state.TrackerOptions{
		Retention:  func(guildID string) time.Duration { return profiles.Policy(guildID).Retention() },
		MaxEntries: cfg.Detection.MaxEventsPerWindow,
	})

	discord, err := bot.NewDiscord(cfg.Bot.Token)
	if err != nil {
		db.Close()
		return err
	}

	client := dispatcher.NewClient(dispatcher.Options{
		Token:          cfg.Bot.Token,
		BaseURL:        cfg.Network.APIBaseURL,
		PoolSize:       cfg.Network.HTTPPoolSize,
		RequestTimeout: cfg.Network.RequestTimeout,
		RetryAttempts:  cfg.Network.RetryAttempts,
		RatePerSecond:  cfg.Network.RatePerSecond,
		Burst:          cfg.Network.Burst,
		StripMask:      detectors.CriticalPermMask,
	})

	sinks, redisClient := wireSinks(cfg.Notify, discord, profiles)

	engine := decision.NewEngine(decision.Options{
		Platform: client,
		Tracker:  tracker,
		States:   states,
		Profiles: profiles,
		Records:  db,
		Sink:     sinks,
		Metrics:  metricsRegistry,
	})

	fetcher := forensics.NewAuditLogFetcher(discord, cfg.Audit.FetchLimit, metricsRegistry)
	resolver := forensics.NewResolver(fetcher, forensics.ResolverOptions{
		Timeout:    cfg.Audit.Timeout,
		Tolerance:  cfg.Audit.Tolerance,
		CacheTTL:   cfg.Audit.CacheTTL,
		LateWindow: cfg.Audit.LateWindow,
		Metrics:    metricsRegistry,
	})

	correlatorInst := correlator.NewCorrelator(correlator.Options{
		Profiles: profiles,
		Tracker:  tracker,
		Resolver: resolver,
		Engine:   engine,
		Metrics:  metricsRegistry,
	})

	session := bot.New(bot.Options{
		Discord:    discord,
		Correlator: correlatorInst,
		Database:   db,
		Defaults:   cfg.Detection,
		OnReady:    client.SetBotID,
	})

	watchdogInst := watchdog.NewWatchdog(watchdogInterval, nil)
	watchdogInst.RegisterComponent("gateway", gatewayStallAfter, func() time.Time {
		discord.RLock()
		defer discord.RUnlock()
		return discord.LastHeartbeatAck
	})
	watchdogInst.RegisterComponent("sweeper", 3*sweepInterval(cfg.Detection), correlatorInst.LastSweep)

	b.Components = &Components{
		Database:   db,
		Retention:  database.NewRetentionManager(db, cfg.Database.RecordRetention, nil),
		Profiles:   profiles,
		Client:     client,
		Engine:     engine,
		Resolver:   resolver,
		Correlator: correlatorInst,
		Session:    session,
		Commands:   commands.NewHandler(correlatorInst, db, metricsRegistry),
		Sinks:      sinks,
		Redis:      redisClient,
		Metrics:    metricsRegistry,
		Exporter:   exporter,
		Watchdog:   watchdogInst,
	}

	logging.Info("Component wiring complete")
	return nil
}

func sweepInterval(d config.DetectionConfig) time.Duration {
	if d.SweepInterval > 0 {
		return d.SweepInterval
	}
	return correlator.DefaultSweepInterval
}

// wireSinks builds the notification fan-out: structured log, the guild's log
// channel and, when configured, a Redis channel.
func wireSinks(nc config.NotifyConfig, sender notifier.EmbedSender, profiles *config.ProfileStore) (*notifier.Fanout, *redis.Client) {
	sinks := []notifier.Sink{
		notifier.NewLogSink(logging.L()),
		notifier.NewDiscordSink(sender, profiles.LogChannel),
	}

	var rc *redis.Client
	if nc.RedisAddr != "" {
		rc = notifier.NewRedisClient(nc.RedisAddr, nc.RedisPassword)
		sinks = append(sinks, notifier.NewRedisSink(rc, nc.RedisChannel))
		logging.Info("Publishing incidents to redis %s", nc.RedisAddr)
	}
	return notifier.NewFanout(sinks...), rc
}

func StartAll(ctx context.Context, configPath string, cfg *config.Config, c *Components) error {
	logging.Info("Starting components...")

	ctx, c.cancel = context.WithCancel(ctx)

	if c.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := c.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logging.Warn("Redis unreachable, incidents will not be published there: %v", err)
		}
	}

	synced, err := c.Database.SyncProfiles(ctx, c.Profiles)
	if err != nil {
		return err
	}
	logging.Info("%d guild profiles loaded", synced)

	if _, err := c.Database.RestoreLockdowns(ctx, c.Engine.States()); err != nil {
		return err
	}

	if c.Exporter != nil {
		go func() {
			if err := c.Exporter.ListenAndServe(cfg.Metrics.Addr); err != nil {
				logging.Error("Metrics exporter stopped: %v", err)
			}
		}()
	}

	logging.Info("HTTP pool warmed (%d connections)", c.Client.Warmup())

	go c.Correlator.RunSweeper(ctx, cfg.Detection.SweepInterval)
	go c.Retention.Run(ctx, retentionInterval)
	go c.Watchdog.Run(ctx)

	c.Session.SetupEventHandlers()
	if err := c.Session.Connect(); err != nil {
		return err
	}
	if err := c.Commands.Register(c.Session); err != nil {
		return err
	}

	if configPath != "" {
		err := config.Watch(configPath, func(next *config.Config) {
			c.Profiles.SetDefaults(next.Detection)
			logging.Info("Detection defaults reloaded from %s", configPath)
		}, func(err error) {
			logging.Warn("Ignoring invalid config edit: %v", err)
		})
		if err != nil {
			logging.Warn("Config hot reload disabled: %v", err)
		}
	}

	logging.Info("All components started")
	return nil
}
