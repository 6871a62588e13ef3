package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Detection DetectionConfig `mapstructure:"detection"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Network   NetworkConfig   `mapstructure:"network"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type BotConfig struct {
	Token    string `mapstructure:"token"`
	ClientID string `mapstructure:"client_id"`
}

// DetectionConfig holds the defaults every guild policy starts from.
type DetectionConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	Sensitivity           string        `mapstructure:"sensitivity"`
	SoftThreshold         int           `mapstructure:"soft_threshold"`
	SoftWindow            time.Duration `mapstructure:"soft_window"`
	HardThreshold         int           `mapstructure:"hard_threshold"`
	HardWindow            time.Duration `mapstructure:"hard_window"`
	UnattributedThreshold int           `mapstructure:"unattributed_threshold"`
	UnattributedWindow    time.Duration `mapstructure:"unattributed_window"`
	MonitoringCooldown    time.Duration `mapstructure:"monitoring_cooldown"`
	InstantPatterns       []string      `mapstructure:"instant_patterns"`
	SuspiciousPatterns    []string      `mapstructure:"suspicious_patterns"`
	BanOnLockdown         bool          `mapstructure:"ban_on_lockdown"`
	ScaleBySize           bool          `mapstructure:"scale_by_size"`
	MaxEventsPerWindow    int           `mapstructure:"max_events_per_window"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
}

type AuditConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Tolerance  time.Duration `mapstructure:"tolerance"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	LateWindow time.Duration `mapstructure:"late_window"`
	FetchLimit int           `mapstructure:"fetch_limit"`
}

type NetworkConfig struct {
	HTTPPoolSize   int           `mapstructure:"http_pool_size"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`

	// RecordRetention bounds the mitigation trail; zero keeps everything.
	RecordRetention time.Duration `mapstructure:"record_retention"`
}

type LoggingConfig struct {
	Level   string        `mapstructure:"level"`
	Format  string        `mapstructure:"format"`
	Path    string        `mapstructure:"path"`
	MaxSize int64         `mapstructure:"max_size"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type NotifyConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisChannel  string `mapstructure:"redis_channel"`
}

const EnvPrefix = "NEXUS"

// DefaultInstantPatterns are channel/role names that only show up during raids.
var DefaultInstantPatterns = []string{
	"*nuked*",
	"*raided*",
	"*get rekt*",
	"*hacked by*",
}

var DefaultSuspiciousPatterns = []string{
	"*raid*",
	"*nuke*",
	"*free nitro*",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.client_id", "")

	v.SetDefault("detection.enabled", true)
	v.SetDefault("detection.sensitivity", "normal")
	v.SetDefault("detection.soft_threshold", 5)
	v.SetDefault("detection.soft_window", 30*time.Second)
	v.SetDefault("detection.hard_threshold", 10)
	v.SetDefault("detection.hard_window", 60*time.Second)
	v.SetDefault("detection.unattributed_threshold", 10)
	v.SetDefault("detection.unattributed_window", 60*time.Second)
	v.SetDefault("detection.monitoring_cooldown", 5*time.Minute)
	v.SetDefault("detection.instant_patterns", DefaultInstantPatterns)
	v.SetDefault("detection.suspicious_patterns", DefaultSuspiciousPatterns)
	v.SetDefault("detection.ban_on_lockdown", false)
	v.SetDefault("detection.scale_by_size", true)
	v.SetDefault("detection.max_events_per_window", 512)
	v.SetDefault("detection.sweep_interval", 30*time.Second)

	v.SetDefault("audit.timeout", 5*time.Second)
	v.SetDefault("audit.tolerance", 5*time.Second)
	v.SetDefault("audit.cache_ttl", 5*time.Second)
	v.SetDefault("audit.late_window", 30*time.Second)
	v.SetDefault("audit.fetch_limit", 10)

	v.SetDefault("network.http_pool_size", 4)
	v.SetDefault("network.api_base_url", "https://discord.com/api/v10")
	v.SetDefault("network.request_timeout", 2*time.Second)
	v.SetDefault("network.retry_attempts", 3)
	v.SetDefault("network.rate_per_second", 40.0)
	v.SetDefault("network.burst", 10)

	v.SetDefault("database.path", "nexus.db")
	v.SetDefault("database.record_retention", 30*24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size", 64<<20)
	v.SetDefault("logging.max_age", 7*24*time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("notify.redis_addr", "")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_channel", "nexus:incidents")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or ./config.*) and overlays NEXUS_* environment variables.
// A missing file is not an error: defaults and env are enough to run.
func Load(path string) (*Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Bot.Token == "" {
		cfg.Bot.Token = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.Bot.ClientID == "" {
		cfg.Bot.ClientID = os.Getenv("CLIENT_ID")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	d := c.Detection
	if d.SoftThreshold <= 0 || d.HardThreshold <= 0 || d.UnattributedThreshold <= 0 {
		return fmt.Errorf("detection thresholds must be positive")
	}
	if d.SoftThreshold > d.HardThreshold {
		return fmt.Errorf("soft threshold %d exceeds hard threshold %d", d.SoftThreshold, d.HardThreshold)
	}
	if d.SoftWindow <= 0 || d.HardWindow <= 0 || d.UnattributedWindow <= 0 {
		return fmt.Errorf("detection windows must be positive")
	}
	if c.Audit.Timeout <= 0 {
		return fmt.Errorf("audit timeout must be positive")
	}
	if c.Network.HTTPPoolSize <= 0 {
		return fmt.Errorf("http pool size must be positive")
	}
	return nil
}

// Watch re-decodes the file on every write and hands the new config to fn.
// Invalid edits are reported through onErr and otherwise ignored.
func Watch(path string, fn func(*Config), onErr func(error)) error {
	if path == "" {
		return fmt.Errorf("watch requires an explicit config path")
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}
