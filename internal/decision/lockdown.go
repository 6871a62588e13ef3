package decision

import (
	"context"
	"fmt"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/models"
)

// Gate is consulted by every mutating event handler. While a guild is in
// lockdown it undoes what it can and records the rest as blocked; the
// handler returns right after.
type Gate struct {
	engine *Engine
}

func (g *Gate) IsLocked(guildID string) bool {
	return g.engine.states.IsLocked(guildID)
}

// Neutralize reverts a structural mutation observed during lockdown. Bots
// added while locked are kicked rather than banned.
func (g *Gate) Neutralize(ctx context.Context, ev models.ActionEvent) models.MitigationRecord {
	e := g.engine
	e.metrics.EventGated(ev.Type.String())

	reason := fmt.Sprintf("%s during lockdown", ev.Type)
	if ev.Type.Destructive() {
		reason = fmt.Sprintf("%s during lockdown cannot be undone", ev.Type)
	}

	cctx, cancel := e.callContext(ctx)
	defer cancel()
	return e.finish(e.undo(cctx, ev.GuildID, ev.ActorID, ev.Type, ev.TargetID, models.TriggerGate, reason, true))
}

// Echo reports, once, whether the event is the gateway echo of a mitigation
// the engine issued itself.
func (g *Gate) Echo(ev models.ActionEvent) bool {
	return g.engine.echoes.consume(ev.GuildID, ev.Type, ev.TargetID)
}

// Attribute records the actor behind gated mutations once it is known. It
// does not mitigate; crossing a threshold during lockdown is what does.
func (g *Gate) Attribute(ctx context.Context, guildID string, recordIDs []string, actorID string) {
	if actorID == "" || len(recordIDs) == 0 {
		return
	}
	if err := g.engine.records.AnnotateRecords(context.WithoutCancel(ctx), guildID, recordIDs, actorID); err != nil {
		logging.Error("[GATE] Failed to annotate %d records in %s: %v", len(recordIDs), guildID, err)
	}
}
