package decision

import (
	"github.com/NexusBot-official/Nexus/internal/models"
)

// incident builds the notification sent for a transition or mitigation.
func (e *Engine) incident(kind models.NotificationKind, guildID, actorID string, trigger models.Trigger, reason string, recs []models.MitigationRecord) models.Notification {
	return models.Notification{
		Kind:     kind,
		Severity: EvaluateSeverity(kind, recs),
		GuildID:  guildID,
		ActorID:  actorID,
		Trigger:  trigger,
		Reason:   reason,
		Records:  recs,
		At:       e.now(),
	}
}
