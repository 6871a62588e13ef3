package decision

import (
	"fmt"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/detectors"
	"github.com/NexusBot-official/Nexus/internal/models"
)

type level uint8

const (
	levelNone level = iota
	levelMonitoring
	levelLockdown
)

// counts are the window totals relevant to one event. Attributed events fill
// soft and hard, unattributed events fill unattributed.
type counts struct {
	soft         int
	hard         int
	unattributed int
}

type assessment struct {
	level   level
	trigger models.Trigger
	reason  string
}

func crossed(n, threshold int) bool {
	return threshold > 0 && n >= threshold
}

// assess maps counts and the heuristic verdict to the escalation they call for.
// Lockdown rules are checked before monitoring rules.
func assess(p config.Policy, c counts, v detectors.Verdict, t models.ActionType) assessment {
	switch {
	case v.Instant():
		return assessment{levelLockdown, models.TriggerHeuristic, v.Reason}
	case crossed(c.hard, p.HardThreshold):
		return assessment{levelLockdown, models.TriggerThreshold,
			fmt.Sprintf("%d actions within %s (limit %d)", c.hard, p.HardWindow, p.HardThreshold)}
	case crossed(c.unattributed, p.UnattributedThreshold):
		return assessment{levelLockdown, models.TriggerUnattributed,
			fmt.Sprintf("%d unattributed %s events within %s (limit %d)", c.unattributed, t, p.UnattributedWindow, p.UnattributedThreshold)}
	case crossed(c.soft, p.SoftThreshold):
		return assessment{levelMonitoring, models.TriggerThreshold,
			fmt.Sprintf("%d actions within %s (limit %d)", c.soft, p.SoftWindow, p.SoftThreshold)}
	case v.Suspicious():
		return assessment{levelMonitoring, models.TriggerHeuristic, v.Reason}
	}
	return assessment{}
}
