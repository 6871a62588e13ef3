package forensics

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

const DefaultTolerance = 5 * time.Second

// AuditMatcher picks the audit entry that explains an observed event.
type AuditMatcher struct {
	tolerance time.Duration
}

func NewAuditMatcher(tolerance time.Duration) *AuditMatcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &AuditMatcher{tolerance: tolerance}
}

// Match returns the newest entry of the query's action type whose target
// matches (any target when the query has none) and whose snowflake time lies
// within the tolerance of the event time.
func (am *AuditMatcher) Match(entries []*discordgo.AuditLogEntry, q Query) *discordgo.AuditLogEntry {
	action := q.Type.AuditAction()
	within := q.Within
	if within <= 0 {
		within = am.tolerance
	}

	var (
		best   *discordgo.AuditLogEntry
		bestAt time.Time
	)
	for _, entry := range entries {
		if entry == nil || entry.ActionType == nil || *entry.ActionType != action {
			continue
		}
		if entry.UserID == "" {
			continue
		}
		if q.TargetID != "" && entry.TargetID != q.TargetID {
			continue
		}

		at, err := discordgo.SnowflakeTimestamp(entry.ID)
		if err != nil {
			continue
		}
		if skew := at.Sub(q.At); skew > within || skew < -within {
			continue
		}

		if best == nil || at.After(bestAt) {
			best, bestAt = entry, at
		}
	}
	return best
}
