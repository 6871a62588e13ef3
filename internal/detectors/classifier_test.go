package detectors

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/models"
)

func testPolicy() config.Policy {
	return config.DefaultPolicy(config.DefaultConfig().Detection)
}

func TestClassifier_InstantNamePattern(t *testing.T) {
	c := NewClassifier()
	ev := models.NewEvent("g1", models.ActionChannelCreate, "c1", models.ChannelPayload{Name: "NUKED-by-xyz"})

	v := c.Classify(ev, testPolicy())

	assert.True(t, v.Instant())
	assert.Equal(t, "*nuked*", v.Pattern)
	assert.Contains(t, v.Reason, "NUKED-by-xyz")
}

func TestClassifier_SuspiciousNamePattern(t *testing.T) {
	c := NewClassifier()
	ev := models.NewEvent("g1", models.ActionRoleCreate, "r1", models.RolePayload{Name: "raid squad"})

	v := c.Classify(ev, testPolicy())

	assert.False(t, v.Instant())
	assert.True(t, v.Suspicious())
	assert.True(t, HasFlag(v.Flags, FlagSuspiciousName))
}

func TestClassifier_CleanEvents(t *testing.T) {
	c := NewClassifier()
	policy := testPolicy()

	v := c.Classify(models.NewEvent("g1", models.ActionChannelCreate, "c1", models.ChannelPayload{Name: "general"}), policy)
	assert.Zero(t, v.Flags)
	assert.Equal(t, "clean", v.String())

	v = c.Classify(models.NewEvent("g1", models.ActionChannelDelete, "c1", models.ChannelPayload{Name: "nuked"}), policy)
	assert.False(t, v.Instant(), "deletes are never name-matched")
	assert.True(t, HasFlag(v.Flags, FlagDestructive))
}

func TestClassifier_CriticalPermissionGrant(t *testing.T) {
	c := NewClassifier()
	policy := testPolicy()

	c.Permissions().Remember("r1", discordgo.PermissionSendMessages)

	ev := models.NewEvent("g1", models.ActionRoleUpdate, "r1", models.RolePayload{
		Name:        "helpers",
		Permissions: discordgo.PermissionSendMessages | discordgo.PermissionAdministrator,
	})
	v := c.Classify(ev, policy)
	assert.True(t, HasFlag(v.Flags, FlagCriticalPermission))
	assert.True(t, v.Suspicious())

	// the same permissions again are not a new grant
	v = c.Classify(ev, policy)
	assert.False(t, HasFlag(v.Flags, FlagCriticalPermission))

	managed := models.NewEvent("g1", models.ActionRoleCreate, "r2", models.RolePayload{
		Name: "SomeBot", Permissions: discordgo.PermissionAdministrator, Managed: true,
	})
	assert.False(t, HasFlag(c.Classify(managed, policy).Flags, FlagCriticalPermission))
}

func TestClassifier_BotAdd(t *testing.T) {
	c := NewClassifier()
	ev := models.NewEvent("g1", models.ActionBotAdd, "b1", models.MemberPayload{Username: "spammer", Bot: true})

	v := c.Classify(ev, testPolicy())
	assert.True(t, v.Suspicious())
	assert.Equal(t, []string{"bot_add"}, FlagNames(v.Flags))
}

func TestNameDetector_SkipsInvalidPatterns(t *testing.T) {
	d := NewNameDetector()
	patterns := []string{"[unclosed", "*hacked*"}

	p, ok := d.Match("Hacked By Us", patterns)
	require.True(t, ok)
	assert.Equal(t, "*hacked*", p)
	assert.Error(t, Validate(patterns))
	assert.NoError(t, Validate(config.DefaultInstantPatterns))
}

func TestPermissionDiff(t *testing.T) {
	oldPerms := int64(discordgo.PermissionSendMessages | discordgo.PermissionBanMembers)
	newPerms := int64(discordgo.PermissionSendMessages | discordgo.PermissionManageRoles)

	assert.Equal(t, int64(discordgo.PermissionManageRoles), AddedPermissions(oldPerms, newPerms))
	assert.Equal(t, int64(discordgo.PermissionBanMembers), RemovedPermissions(oldPerms, newPerms))
	assert.True(t, HasCritical(newPerms))
	assert.False(t, HasCritical(discordgo.PermissionSendMessages))
}
