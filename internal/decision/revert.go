package decision

import (
	"context"

	"github.com/NexusBot-official/Nexus/internal/models"
)

// undo reverses one observed mutation. Actions with nothing to undo produce a
// Blocked record without touching the platform. Bots are kicked instead of
// banned when kickBots is set.
func (e *Engine) undo(ctx context.Context, guildID, actorID string, t models.ActionType, targetID string, trigger models.Trigger, reason string, kickBots bool) models.MitigationRecord {
	p := e.platform
	action := models.MitigationDeleted
	auditReason := banReason(reason)
	var err error

	if targetID == "" || !t.Revertible() {
		return models.NewMitigationRecord(guildID, actorID, targetID, models.MitigationBlocked, trigger, reason)
	}

	// Unbans are not echoed: no handler watches ban removal.
	switch t {
	case models.ActionChannelCreate:
		err = e.mutate(guildID, models.ActionChannelDelete, targetID, func() error {
			return p.DeleteChannel(ctx, targetID, auditReason)
		})
	case models.ActionRoleCreate:
		err = e.mutate(guildID, models.ActionRoleDelete, targetID, func() error {
			return p.DeleteRole(ctx, guildID, targetID, auditReason)
		})
	case models.ActionWebhookCreate, models.ActionWebhookUpdate:
		err = e.mutate(guildID, models.ActionWebhookDelete, targetID, func() error {
			return p.DeleteWebhook(ctx, targetID, auditReason)
		})
	case models.ActionBanCreate:
		action = models.MitigationReverted
		err = p.Unban(ctx, guildID, targetID, auditReason)
	case models.ActionBotAdd:
		if kickBots {
			action = models.MitigationReverted
			err = e.mutate(guildID, models.ActionMemberKick, targetID, func() error {
				return p.KickMember(ctx, guildID, targetID, auditReason)
			})
		} else {
			action = models.MitigationBanned
			err = e.mutate(guildID, models.ActionBanCreate, targetID, func() error {
				return p.BanMember(ctx, guildID, targetID, auditReason)
			})
		}
	}

	return models.NewMitigationRecord(guildID, actorID, targetID, action, trigger, reason).WithError(err)
}
