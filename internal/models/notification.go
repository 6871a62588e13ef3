package models

import "time"

type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

type NotificationKind string

const (
	NotifyMonitoring NotificationKind = "monitoring"
	NotifyLockdown   NotificationKind = "lockdown"
	NotifyMitigation NotificationKind = "mitigation"
	NotifyUnlock     NotificationKind = "unlock"
)

// Notification is what operators are told about a state change or a
// mitigation. Sinks must treat it as read-only.
type Notification struct {
	Kind     NotificationKind   `json:"kind"`
	Severity Severity           `json:"severity"`
	GuildID  string             `json:"guild_id"`
	ActorID  string             `json:"actor_id,omitempty"`
	Trigger  Trigger            `json:"trigger,omitempty"`
	Reason   string             `json:"reason"`
	Records  []MitigationRecord `json:"records,omitempty"`
	At       time.Time          `json:"at"`
}

// Failures returns the records whose mitigation did not succeed.
func (n Notification) Failures() []MitigationRecord {
	var out []MitigationRecord
	for _, r := range n.Records {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
