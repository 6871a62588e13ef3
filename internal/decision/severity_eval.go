package decision

import "github.com/NexusBot-official/Nexus/internal/models"

// EvaluateSeverity grades a notification for the operators. Failed
// mitigations always escalate to critical.
func EvaluateSeverity(kind models.NotificationKind, recs []models.MitigationRecord) models.Severity {
	for _, r := range recs {
		if r.Failed() {
			return models.SeverityCritical
		}
	}

	switch kind {
	case models.NotifyLockdown:
		return models.SeverityCritical
	case models.NotifyMonitoring, models.NotifyMitigation:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
