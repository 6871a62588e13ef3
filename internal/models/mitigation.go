package models

import (
	"time"

	"github.com/google/uuid"
)

type MitigationAction string

const (
	MitigationDeleted       MitigationAction = "deleted"
	MitigationRolesStripped MitigationAction = "roles_stripped"
	MitigationBanned        MitigationAction = "banned"
	MitigationGuildLocked   MitigationAction = "guild_locked"
	MitigationReverted      MitigationAction = "reverted"
	MitigationBlocked       MitigationAction = "blocked"
)

// Trigger names the rule that caused a mitigation.
type Trigger string

const (
	TriggerThreshold    Trigger = "threshold"
	TriggerHeuristic    Trigger = "heuristic"
	TriggerGate         Trigger = "gate"
	TriggerUnattributed Trigger = "unattributed"

	// TriggerLate marks mitigations applied once a late attribution named
	// the actor behind already-mitigated events.
	TriggerLate Trigger = "late_attribution"
)

// MitigationRecord is an append-only trail entry. ActorID may be filled in
// later when attribution finishes after the mitigation ran.
type MitigationRecord struct {
	ID       string           `json:"id"`
	GuildID  string           `json:"guild_id"`
	ActorID  string           `json:"actor_id,omitempty"`
	TargetID string           `json:"target_id,omitempty"`
	Action   MitigationAction `json:"action"`
	Trigger  Trigger          `json:"trigger"`
	Reason   string           `json:"reason"`
	Error    string           `json:"error,omitempty"`
	At       time.Time        `json:"at"`
}

func NewMitigationRecord(guildID, actorID, targetID string, action MitigationAction, trigger Trigger, reason string) MitigationRecord {
	return MitigationRecord{
		ID:       uuid.NewString(),
		GuildID:  guildID,
		ActorID:  actorID,
		TargetID: targetID,
		Action:   action,
		Trigger:  trigger,
		Reason:   reason,
		At:       time.Now(),
	}
}

func (r MitigationRecord) Failed() bool {
	return r.Error != ""
}

// WithError marks the record failed; nil leaves it untouched.
func (r MitigationRecord) WithError(err error) MitigationRecord {
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
