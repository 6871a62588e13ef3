package commands

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/state"
)

func intOpt(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func boolOpt(name string, v bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionBoolean, Value: v}
}

func TestGetAllCommands(t *testing.T) {
	names := map[string]*discordgo.ApplicationCommand{}
	for _, c := range GetAllCommands() {
		names[c.Name] = c
	}
	require.Contains(t, names, "antinuke")
	require.Contains(t, names, "lockdown")
	require.Contains(t, names, "status")

	var subs []string
	for _, o := range names["lockdown"].Options {
		subs = append(subs, o.Name)
	}
	assert.Equal(t, []string{"status", "unlock"}, subs)
	assert.Equal(t, int64(discordgo.PermissionAdministrator), *names["antinuke"].DefaultMemberPermissions)
}

func TestApplyLimitOptions(t *testing.T) {
	l := &database.GuildLimits{GuildID: "g1", SoftThreshold: 3}
	err := applyLimitOptions(l, optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		intOpt("hard", 8),
		intOpt("window", 15),
		boolOpt("ban", true),
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, l.SoftThreshold, "untouched fields are kept")
	assert.Equal(t, 8, l.HardThreshold)
	assert.Equal(t, int64(15000), l.HardWindowMs)
	require.NotNil(t, l.BanOnLockdown)
	assert.True(t, *l.BanOnLockdown)

	err = applyLimitOptions(l, optionMap([]*discordgo.ApplicationCommandInteractionDataOption{intOpt("soft", 9)}))
	assert.Error(t, err)
}

func TestOutranks(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "everyone", Position: 0},
		{ID: "bot", Position: 5},
		{ID: "mod", Position: 3},
		{ID: "admin", Position: 8},
	}
	assert.True(t, outranks(roles, []string{"mod", "admin"}, []string{"bot"}))
	assert.False(t, outranks(roles, []string{"mod"}, []string{"bot"}))
	assert.False(t, outranks(roles, nil, []string{"bot"}))
	assert.True(t, outranks(roles, []string{"mod"}, nil))
}

func TestFormatWhitelist(t *testing.T) {
	assert.Equal(t, "👑 <@o> (owner)\nNo whitelisted users.", formatWhitelist("o", nil))
	assert.Equal(t, "• <@a>\n• <@b>", formatWhitelist("", []string{"a", "b"}))

	many := make([]string, maxListed+3)
	for i := range many {
		many[i] = "u"
	}
	assert.Contains(t, formatWhitelist("", many), "…and 3 more")
}

func TestSecurityEmbed(t *testing.T) {
	locked := securityEmbed(state.GuildSecurityState{
		Status:            state.StatusLockdown,
		Reason:            "10 channel_delete in 10s",
		TriggeringActorID: "nuker",
		LockdownStartedAt: time.Unix(1700000000, 0),
	})
	assert.Equal(t, colorAlert, locked.Color)
	assert.Equal(t, "<t:1700000000:R>", locked.Fields[0].Value)
	assert.Equal(t, "<@nuker>", locked.Fields[1].Value)

	unattributed := securityEmbed(state.GuildSecurityState{Status: state.StatusLockdown})
	assert.Equal(t, "unknown", unattributed.Fields[1].Value)

	assert.Equal(t, colorOK, securityEmbed(state.GuildSecurityState{}).Color)
}

func TestStatusEmbed(t *testing.T) {
	embed := statusEmbed(statusInput{
		Host:    HostStats{CPUCores: 4, TotalMemory: 8 << 30, UsedMemory: 2 << 30},
		Metrics: metrics.Snapshot{Healthy: true},
		Guild:   state.GuildSecurityState{Status: state.StatusMonitoring},
		Locked:  2,
	})
	assert.Equal(t, colorOK, embed.Color)
	assert.Contains(t, embed.Description, "monitoring")
	assert.Contains(t, embed.Fields[0].Value, "`2` guilds locked")
	assert.Contains(t, embed.Fields[4].Value, "`2.0 GiB` / `8.0 GiB`")

	stalled := statusEmbed(statusInput{Metrics: metrics.Snapshot{Healthy: false}})
	assert.Equal(t, colorAlert, stalled.Color)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}
