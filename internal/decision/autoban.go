package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/NexusBot-official/Nexus/internal/models"
)

// mitigateActor strips the actor's elevated roles and, when the policy asks
// for it, bans them. Exempt actors and actors still inside their cooldown are
// left alone.
func (e *Engine) mitigateActor(ctx context.Context, guildID, actorID string, trigger models.Trigger, reason string) []models.MitigationRecord {
	if actorID == "" || e.profiles.IsExempt(guildID, actorID) {
		return nil
	}
	if !e.cooldown.TryAcquire(guildID, actorID) {
		return nil
	}

	policy := e.profiles.Policy(guildID)
	var recs []models.MitigationRecord

	cctx, cancel := e.callContext(ctx)
	removed, err := e.platform.StripRoles(cctx, guildID, actorID, banReason(reason))
	cancel()

	stripReason := reason
	if len(removed) > 0 {
		stripReason = fmt.Sprintf("%s (removed %s)", reason, strings.Join(removed, ", "))
	}
	recs = append(recs, e.finish(models.NewMitigationRecord(guildID, actorID, actorID, models.MitigationRolesStripped, trigger, stripReason).WithError(err)))

	if policy.BanOnLockdown {
		cctx, cancel := e.callContext(ctx)
		err := e.mutate(guildID, models.ActionBanCreate, actorID, func() error {
			return e.platform.BanMember(cctx, guildID, actorID, banReason(reason))
		})
		cancel()
		recs = append(recs, e.finish(models.NewMitigationRecord(guildID, actorID, actorID, models.MitigationBanned, trigger, reason).WithError(err)))
	}
	return recs
}

func banReason(reason string) string {
	return "Nexus anti-nuke: " + reason
}
