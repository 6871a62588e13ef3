package decision

import (
	"go.uber.org/zap"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// DecisionLogger writes one structured line per transition and mitigation.
type DecisionLogger struct {
	log *zap.Logger
}

func NewDecisionLogger(log *zap.Logger) *DecisionLogger {
	if log == nil {
		log = logging.L()
	}
	return &DecisionLogger{log: log.Named("decision")}
}

func (dl *DecisionLogger) Transition(guildID string, to state.Status, actorID string, trigger models.Trigger, reason string) {
	dl.log.Warn("guild state changed",
		zap.String("guild_id", guildID),
		zap.Stringer("status", to),
		zap.String("actor_id", actorID),
		zap.String("trigger", string(trigger)),
		zap.String("reason", reason),
	)
}

func (dl *DecisionLogger) Record(rec models.MitigationRecord) {
	fields := []zap.Field{
		zap.String("record_id", rec.ID),
		zap.String("guild_id", rec.GuildID),
		zap.String("actor_id", rec.ActorID),
		zap.String("target_id", rec.TargetID),
		zap.String("action", string(rec.Action)),
		zap.String("trigger", string(rec.Trigger)),
		zap.String("reason", rec.Reason),
	}
	if rec.Failed() {
		dl.log.Error("mitigation failed", append(fields, zap.String("error", rec.Error))...)
		return
	}
	dl.log.Info("mitigation applied", fields...)
}
