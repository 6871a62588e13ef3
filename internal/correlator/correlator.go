package correlator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/decision"
	"github.com/NexusBot-official/Nexus/internal/detectors"
	"github.com/NexusBot-official/Nexus/internal/forensics"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// Result describes what Handle did with one event.
type Result struct {
	Skipped   bool
	Gated     bool
	Duplicate bool
	ActorID   string
	Verdict   detectors.Verdict
	Status    state.Status
	Records   []models.MitigationRecord
}

// Correlator owns the per-guild stores and runs every event through
// gate, classification, attribution, tracking and escalation.
type Correlator struct {
	profiles   *config.ProfileStore
	tracker    *state.Tracker
	resolver   *forensics.Resolver
	classifier *detectors.Classifier
	engine     *decision.Engine
	gate       *decision.Gate
	metrics    *metrics.Metrics
	health     *metrics.CorrelatorHealth
	counters   CounterSet
	lastSweep  atomic.Int64

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *Correlator) Engine() *decision.Engine {
	return c.engine
}

func (c *Correlator) Profiles() *config.ProfileStore {
	return c.profiles
}

func (c *Correlator) Classifier() *detectors.Classifier {
	return c.classifier
}

func (c *Correlator) Stats() Stats {
	return c.counters.Snapshot()
}

// Observe forwards a gateway audit entry to the resolver.
func (c *Correlator) Observe(guildID string, entry *discordgo.AuditLogEntry) {
	c.resolver.Observe(guildID, entry)
}

// Handle processes one event. It returns once mitigation is done; waiting
// for a late attribution continues in the background (see Wait).
func (c *Correlator) Handle(ctx context.Context, ev models.ActionEvent) Result {
	c.health.Begin()
	defer c.health.End()
	c.counters.Events.Add(1)
	c.metrics.EventObserved(ev.Type.String())

	if ev.GuildID == "" {
		c.counters.Skipped.Add(1)
		return Result{Skipped: true, ActorID: ev.ActorID}
	}

	// Echoes are consumed first, even when the audit log already names the
	// bot as the actor.
	if c.gate.Echo(ev) {
		c.counters.Echoes.Add(1)
		return Result{Skipped: true, ActorID: ev.ActorID, Status: c.engine.States().Get(ev.GuildID).Status}
	}

	if !c.profiles.IsEnabled(ev.GuildID) || c.profiles.IsExempt(ev.GuildID, ev.ActorID) {
		c.counters.Skipped.Add(1)
		return Result{Skipped: true, ActorID: ev.ActorID}
	}

	if c.gate.IsLocked(ev.GuildID) {
		rec := c.gate.Neutralize(ctx, ev)
		c.counters.Gated.Add(1)
		c.spawn(func(bg context.Context) { c.followGated(bg, ev, rec) })
		return Result{Gated: true, ActorID: ev.ActorID, Status: state.StatusLockdown, Records: []models.MitigationRecord{rec}}
	}

	policy := c.profiles.Policy(ev.GuildID)

	var attribution chan forensics.Attribution
	if !ev.Attributed() {
		attribution = make(chan forensics.Attribution, 1)
		q := forensics.QueryFor(ev, 0)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("[CORRELATOR] Panic during attribution: %v", r)
					attribution <- forensics.Attribution{}
				}
			}()
			attribution <- c.resolver.Resolve(ctx, q)
		}()
	}

	v := c.classifier.Classify(ev, policy)
	res := Result{Verdict: v}

	var instant []models.MitigationRecord
	if v.Instant() {
		c.counters.Instant.Add(1)
		out := c.engine.Instant(ctx, ev, v)
		instant = out.Records
		res.Records = append(res.Records, out.Records...)
		// the lockdown already happened; evaluate the rest normally
		v.Flags &^= detectors.FlagInstantName
	}

	if attribution != nil {
		if a := <-attribution; a.Found() {
			ev.ActorID = a.ActorID
		}
	}
	res.ActorID = ev.ActorID

	if len(instant) > 0 {
		ids := recordIDs(instant)
		if ev.Attributed() {
			res.Records = append(res.Records, c.engine.Annotate(ctx, ev.GuildID, ids, ev.ActorID)...)
		} else {
			c.spawn(func(bg context.Context) { c.annotateLate(bg, ev, ids) })
		}
	}

	if ev.Attributed() && c.profiles.IsExempt(ev.GuildID, ev.ActorID) {
		c.counters.Skipped.Add(1)
		res.Skipped = true
		res.Status = c.engine.States().Get(ev.GuildID).Status
		return res
	}
	if !ev.Attributed() {
		c.counters.Unattributed.Add(1)
	}

	if !c.tracker.Track(ev) {
		c.counters.Duplicates.Add(1)
		res.Duplicate = true
		res.Status = c.engine.States().Get(ev.GuildID).Status
		return res
	}

	out := c.engine.Evaluate(ctx, ev, v)
	res.Status = out.Status
	res.Records = append(res.Records, out.Records...)

	if out.Transition && !ev.Attributed() && len(out.Records) > 0 {
		ids := recordIDs(out.Records)
		c.spawn(func(bg context.Context) { c.annotateLate(bg, ev, ids) })
	}
	return res
}

// annotateLate waits for the audit entry behind ev and hands the actor to
// the engine.
func (c *Correlator) annotateLate(ctx context.Context, ev models.ActionEvent, ids []string) {
	a := c.resolver.AwaitLate(ctx, forensics.QueryFor(ev, 0))
	if !a.Found() {
		logging.Warn("[CORRELATOR] %s %s in %s was never attributed", ev.Type, ev.TargetID, ev.GuildID)
		return
	}
	c.counters.LateResolved.Add(1)
	logging.Info("[CORRELATOR] Late attribution: %s %s in %s was %s", ev.Type, ev.TargetID, ev.GuildID, a.ActorID)
	c.engine.Annotate(ctx, ev.GuildID, ids, a.ActorID)
}

// followGated attributes an event neutralized by the gate, then counts it so
// an actor still pushing during lockdown gets mitigated.
func (c *Correlator) followGated(ctx context.Context, ev models.ActionEvent, rec models.MitigationRecord) {
	if !ev.Attributed() {
		q := forensics.QueryFor(ev, 0)
		a := c.resolver.Resolve(ctx, q)
		if !a.Found() {
			a = c.resolver.AwaitLate(ctx, q)
		}
		if a.Found() {
			c.counters.LateResolved.Add(1)
			ev.ActorID = a.ActorID
			c.gate.Attribute(ctx, ev.GuildID, []string{rec.ID}, a.ActorID)
		}
	}
	if c.profiles.IsExempt(ev.GuildID, ev.ActorID) {
		return
	}
	if c.tracker.Track(ev) {
		c.engine.Evaluate(ctx, ev, detectors.Verdict{})
	}
}

// spawn runs fn in a tracked goroutine bound to the correlator's lifetime.
func (c *Correlator) spawn(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Error("[CORRELATOR] Panic in background task: %v", r)
			}
		}()
		fn(c.bg)
	}()
}

// Wait blocks until every background attribution has finished.
func (c *Correlator) Wait() {
	c.wg.Wait()
}

// Close cancels pending background work and waits for it.
func (c *Correlator) Close() {
	c.cancel()
	c.wg.Wait()
}

func recordIDs(recs []models.MitigationRecord) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}
