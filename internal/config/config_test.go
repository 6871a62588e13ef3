package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5, cfg.Detection.SoftThreshold)
	assert.Equal(t, 30*time.Second, cfg.Detection.SoftWindow)
	assert.Equal(t, 10, cfg.Detection.HardThreshold)
	assert.Equal(t, 60*time.Second, cfg.Detection.HardWindow)
	assert.Equal(t, 5*time.Second, cfg.Audit.Timeout)
	assert.Equal(t, DefaultInstantPatterns, cfg.Detection.InstantPatterns)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
detection:
  soft_threshold: 3
  hard_threshold: 6
  hard_window: 45s
  instant_patterns: ["*pwned*"]
audit:
  timeout: 2s
`), 0644))

	t.Setenv("NEXUS_BOT_TOKEN", "secret")
	t.Setenv("NEXUS_DATABASE_PATH", "/tmp/x.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Bot.Token)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Detection.SoftThreshold)
	assert.Equal(t, 6, cfg.Detection.HardThreshold)
	assert.Equal(t, 45*time.Second, cfg.Detection.HardWindow)
	assert.Equal(t, []string{"*pwned*"}, cfg.Detection.InstantPatterns)
	assert.Equal(t, 2*time.Second, cfg.Audit.Timeout)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Detection.HardThreshold)
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  soft_threshold: 20\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestProfileStore_PolicyLayers(t *testing.T) {
	store := NewProfileStore(DefaultConfig().Detection)

	p := store.Policy("g1")
	assert.Equal(t, 10, p.HardThreshold)
	assert.True(t, p.Enabled)

	store.Update("g1", func(gp *GuildProfile) {
		gp.MemberCount = 25000
	})
	assert.Equal(t, 20, store.Policy("g1").HardThreshold)

	ban := true
	store.Update("g1", func(gp *GuildProfile) {
		gp.Override = &PolicyOverride{HardThreshold: 8, BanOnLockdown: &ban}
		gp.Sensitivity = SensitivityHigh
	})
	p = store.Policy("g1")
	assert.Equal(t, 4, p.HardThreshold)
	assert.True(t, p.BanOnLockdown)
	assert.LessOrEqual(t, p.SoftThreshold, p.HardThreshold)
	assert.Equal(t, 60*time.Second, p.Retention())
}

func TestProfileStore_Exemptions(t *testing.T) {
	store := NewProfileStore(DefaultConfig().Detection)
	store.SetBotID("bot")
	store.SetOwner("g1", "owner")
	store.AddWhitelist("g1", "trusted")

	assert.True(t, store.IsExempt("g1", "bot"))
	assert.True(t, store.IsExempt("g1", "owner"))
	assert.True(t, store.IsExempt("g1", "trusted"))
	assert.False(t, store.IsExempt("g1", "stranger"))
	assert.False(t, store.IsExempt("g1", ""))

	store.RemoveWhitelist("g1", "trusted")
	assert.False(t, store.IsWhitelisted("g1", "trusted"))
}

func TestProfileStore_GetReturnsCopy(t *testing.T) {
	store := NewProfileStore(DefaultConfig().Detection)
	store.AddWhitelist("g1", "a")

	p := store.Get("g1")
	p.Whitelist["b"] = struct{}{}

	assert.False(t, store.IsWhitelisted("g1", "b"))
}
