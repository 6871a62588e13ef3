package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexusBot-official/Nexus/internal/models"
)

func TestChannelEvent(t *testing.T) {
	ch := &discordgo.Channel{ID: "c1", GuildID: "g1", Name: "general", Type: discordgo.ChannelTypeGuildText}

	ev, ok := channelEvent(models.ActionChannelCreate, ch)
	require.True(t, ok)
	assert.Equal(t, "g1", ev.GuildID)
	assert.Equal(t, "c1", ev.TargetID)
	assert.Equal(t, "channel_create:c1", ev.ID)
	assert.Equal(t, "general", ev.Name())
	assert.False(t, ev.Attributed())

	ev, ok = channelEvent(models.ActionChannelUpdate, ch)
	require.True(t, ok)
	assert.Empty(t, ev.ID, "updates are never de-duplicated")

	_, ok = channelEvent(models.ActionChannelCreate, &discordgo.Channel{ID: "dm"})
	assert.False(t, ok)
}

func TestRoleEvent_SkipsManagedRoles(t *testing.T) {
	_, ok := roleEvent(models.ActionRoleCreate, "g1", &discordgo.Role{ID: "r1", Name: "SomeBot", Managed: true})
	assert.False(t, ok)

	ev, ok := roleEvent(models.ActionRoleUpdate, "g1", &discordgo.Role{ID: "r2", Name: "mods", Permissions: discordgo.PermissionAdministrator})
	require.True(t, ok)
	payload, isRole := ev.Payload.(models.RolePayload)
	require.True(t, isRole)
	assert.Equal(t, int64(discordgo.PermissionAdministrator), payload.Permissions)
}

func TestBotAddEvent_OnlyBots(t *testing.T) {
	human := &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}}
	_, ok := botAddEvent(human)
	assert.False(t, ok)

	bot := &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "b1", Username: "raider", Bot: true}}}
	ev, ok := botAddEvent(bot)
	require.True(t, ok)
	assert.Equal(t, models.ActionBotAdd, ev.Type)
	assert.Equal(t, "b1", ev.TargetID)
}

func TestAuditEvent(t *testing.T) {
	kick := discordgo.AuditLogActionMemberKick
	ev, ok := auditEvent(&discordgo.GuildAuditLogEntryCreate{
		GuildID: "g1",
		AuditLogEntry: &discordgo.AuditLogEntry{
			ID: "a1", ActionType: &kick, UserID: "mod", TargetID: "u1", Reason: "spam",
		},
	})
	require.True(t, ok)
	assert.Equal(t, models.ActionMemberKick, ev.Type)
	assert.Equal(t, "mod", ev.ActorID)
	assert.Equal(t, "audit:a1", ev.ID)
	assert.Equal(t, "audit reason: spam", ev.Debug)

	hook := discordgo.AuditLogActionWebhookCreate
	key := discordgo.AuditLogChangeKeyName
	ev, ok = auditEvent(&discordgo.GuildAuditLogEntryCreate{
		GuildID: "g1",
		AuditLogEntry: &discordgo.AuditLogEntry{
			ID: "a2", ActionType: &hook, UserID: "nuker", TargetID: "w1",
			Changes: []*discordgo.AuditLogChange{{Key: &key, NewValue: "spam-hook"}},
			Options: &discordgo.AuditLogOptions{ChannelID: "c1"},
		},
	})
	require.True(t, ok)
	assert.Equal(t, models.WebhookPayload{ChannelID: "c1", Name: "spam-hook"}, ev.Payload)

	// channel deletes come from the gateway event, not the audit entry
	del := discordgo.AuditLogActionChannelDelete
	_, ok = auditEvent(&discordgo.GuildAuditLogEntryCreate{
		GuildID:       "g1",
		AuditLogEntry: &discordgo.AuditLogEntry{ID: "a3", ActionType: &del, UserID: "nuker", TargetID: "c9"},
	})
	assert.False(t, ok)
}
