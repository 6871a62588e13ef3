package bot

import (
	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/models"
)

// Create and delete events happen once per target, so the target id doubles
// as the de-duplication key for redelivered gateway events. Updates repeat
// legitimately and carry no key.
func onceKey(t models.ActionType, targetID string) string {
	return t.String() + ":" + targetID
}

func channelEvent(t models.ActionType, ch *discordgo.Channel) (models.ActionEvent, bool) {
	if ch == nil || ch.GuildID == "" {
		return models.ActionEvent{}, false
	}
	ev := models.NewEvent(ch.GuildID, t, ch.ID, models.ChannelPayload{
		Name:     ch.Name,
		Kind:     ch.Type,
		ParentID: ch.ParentID,
	})
	if t != models.ActionChannelUpdate {
		ev.ID = onceKey(t, ch.ID)
	}
	return ev, true
}

// roleEvent skips managed roles; Discord creates those for bots and
// integrations on its own.
func roleEvent(t models.ActionType, guildID string, role *discordgo.Role) (models.ActionEvent, bool) {
	if guildID == "" || role == nil || role.Managed {
		return models.ActionEvent{}, false
	}
	ev := models.NewEvent(guildID, t, role.ID, models.RolePayload{
		Name:        role.Name,
		Permissions: role.Permissions,
		Managed:     role.Managed,
	})
	if t == models.ActionRoleCreate {
		ev.ID = onceKey(t, role.ID)
	}
	return ev, true
}

func roleDeleteEvent(r *discordgo.GuildRoleDelete) (models.ActionEvent, bool) {
	if r.GuildID == "" {
		return models.ActionEvent{}, false
	}
	ev := models.NewEvent(r.GuildID, models.ActionRoleDelete, r.RoleID, models.RolePayload{})
	ev.ID = onceKey(models.ActionRoleDelete, r.RoleID)
	return ev, true
}

func banEvent(b *discordgo.GuildBanAdd) (models.ActionEvent, bool) {
	if b.GuildID == "" || b.User == nil {
		return models.ActionEvent{}, false
	}
	ev := models.NewEvent(b.GuildID, models.ActionBanCreate, b.User.ID, models.MemberPayload{
		Username: b.User.Username,
		Bot:      b.User.Bot,
	})
	ev.ID = onceKey(models.ActionBanCreate, b.User.ID)
	return ev, true
}

// botAddEvent only fires for bot accounts; human joins are not tracked.
func botAddEvent(m *discordgo.GuildMemberAdd) (models.ActionEvent, bool) {
	if m.Member == nil || m.GuildID == "" || m.User == nil || !m.User.Bot {
		return models.ActionEvent{}, false
	}
	ev := models.NewEvent(m.GuildID, models.ActionBotAdd, m.User.ID, models.MemberPayload{
		Username: m.User.Username,
		Bot:      true,
	})
	ev.ID = onceKey(models.ActionBotAdd, m.User.ID)
	return ev, true
}

// auditEvent builds events for mutations the gateway reports only through
// the audit log: kicks and webhook changes. They arrive attributed.
func auditEvent(a *discordgo.GuildAuditLogEntryCreate) (models.ActionEvent, bool) {
	if a.GuildID == "" || a.AuditLogEntry == nil || a.ActionType == nil || a.UserID == "" {
		return models.ActionEvent{}, false
	}

	t := models.ActionFromAudit(*a.ActionType)
	var payload models.Payload
	switch t {
	case models.ActionMemberKick:
		payload = models.MemberPayload{}
	case models.ActionWebhookCreate, models.ActionWebhookUpdate, models.ActionWebhookDelete:
		wp := models.WebhookPayload{Name: changedName(a.Changes)}
		if a.Options != nil {
			wp.ChannelID = a.Options.ChannelID
		}
		payload = wp
	default:
		return models.ActionEvent{}, false
	}

	ev := models.NewEvent(a.GuildID, t, a.TargetID, payload)
	ev.ID = "audit:" + a.ID
	ev.ActorID = a.UserID
	if a.Reason != "" {
		ev = ev.WithDebug("audit reason: " + a.Reason)
	}
	return ev, true
}

func changedName(changes []*discordgo.AuditLogChange) string {
	for _, c := range changes {
		if c == nil || c.Key == nil || *c.Key != discordgo.AuditLogChangeKeyName {
			continue
		}
		if name, ok := c.NewValue.(string); ok {
			return name
		}
		if name, ok := c.OldValue.(string); ok {
			return name
		}
	}
	return ""
}
